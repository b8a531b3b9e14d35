package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which kind of business unit a record targets.
type EntityType string

const (
	EntityTypeBranch   EntityType = "branch"
	EntityTypeKitchen  EntityType = "kitchen" // central kitchen (BCK)
	EntityTypeSupplier EntityType = "supplier"
)

// Branch is a customer-facing outlet.
type Branch struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Region string    `json:"region"`

	// HealthScore is a denormalized copy of the latest composite score; the
	// HealthScoreRecord is the authoritative cache, this field the fast-read
	// copy. Both are updated together by the health score engine.
	HealthScore *float64 `json:"health_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kitchen is a central production kitchen (BCK) serving branches.
type Kitchen struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`

	HealthScore *float64 `json:"health_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupplierStatus is a supplier's commercial standing.
type SupplierStatus string

const (
	SupplierStatusActive    SupplierStatus = "active"
	SupplierStatusSuspended SupplierStatus = "suspended"
	SupplierStatusInactive  SupplierStatus = "inactive"
)

// Certification is a supplier quality certification. Expiry dates are stored
// but not yet evaluated by the compliance health component.
type Certification struct {
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Supplier provides ingredients to kitchens and branches.
type Supplier struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`

	Status SupplierStatus `json:"status"`

	// QualityScore is the supplier's denormalized composite score, the
	// supplier-side counterpart of Branch.HealthScore.
	QualityScore *float64 `json:"quality_score,omitempty"`

	Certifications []Certification `json:"certifications,omitempty"`

	// CustomerKitchenIDs lists the kitchens this supplier delivers to; kitchen
	// health scores average the quality scores of their suppliers.
	CustomerKitchenIDs []uuid.UUID `json:"customer_kitchen_ids,omitempty"`

	// IncidentTotal is the all-time incident count, maintained by the incident
	// module and consumed by the product-quality health component.
	IncidentTotal int `json:"incident_total"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
