package models

import (
	"time"

	"github.com/google/uuid"
)

// FindingSeverity ranks a non-conformance.
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityHigh     FindingSeverity = "high"
	SeverityMedium   FindingSeverity = "medium"
)

// Finding is a non-conformance derived from a failed or flagged checklist
// item, or from a manually-entered note, during audit execution. Findings are
// owned by the audit that produced them but independently addressable.
type Finding struct {
	ID      uuid.UUID  `json:"id"`
	AuditID uuid.UUID  `json:"audit_id"`
	ItemID  *uuid.UUID `json:"item_id,omitempty"` // nil for manual findings

	Severity    FindingSeverity `json:"severity"`
	Description string          `json:"description"`

	CreatedAt time.Time `json:"created_at"`
}
