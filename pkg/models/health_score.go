package models

import (
	"time"

	"github.com/google/uuid"
)

// Component names appearing in health score breakdowns.
const (
	ComponentAuditPerformance = "audit_performance"
	ComponentCAPACompletion   = "capa_completion"
	ComponentRepeatFindings   = "repeat_findings"
	ComponentIncidentRate     = "incident_rate"
	ComponentVerificationPass = "verification_pass"
	ComponentHACCPCompliance  = "haccp_compliance"
	ComponentProductionAudit  = "production_audit_perf"
	ComponentSupplierQuality  = "supplier_quality"
	ComponentProductQuality   = "product_quality"
	ComponentCompliance       = "compliance"
	ComponentDeliveryPerf     = "delivery_perf"
)

// BatchEntityType is the sentinel entity type of the batch metadata record.
// Its ComputedAt timestamp is the completion time of the last full batch run.
const BatchEntityType EntityType = "batch"

// BatchSentinelID is the sentinel entity id of the batch metadata record.
var BatchSentinelID = uuid.Nil

// HealthScoreRecord holds the latest composite score for one entity with its
// named component breakdown. It is a derived, overwritable cache - never a
// source of truth - and is recomputable at any time from audits, CAPAs and
// incidents.
type HealthScoreRecord struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`

	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components"`

	ComputedAt time.Time `json:"computed_at"`
}
