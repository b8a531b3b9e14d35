package models

import (
	"time"

	"github.com/google/uuid"
)

// CAPAStatus is the lifecycle state of a corrective action.
type CAPAStatus string

const (
	CAPAStatusPendingVerification CAPAStatus = "pending_verification"
	CAPAStatusApproved            CAPAStatus = "approved"
	CAPAStatusRejected            CAPAStatus = "rejected"
	CAPAStatusClosed              CAPAStatus = "closed"
	CAPAStatusEscalated           CAPAStatus = "escalated"
)

// CAPA is a corrective and preventive action: one remediation task generated
// 1:1 from a finding at audit submission.
type CAPA struct {
	ID        uuid.UUID `json:"id"`
	FindingID uuid.UUID `json:"finding_id"`
	AuditID   uuid.UUID `json:"audit_id"`

	TargetType EntityType `json:"target_type"`
	TargetID   uuid.UUID  `json:"target_id"`

	Description string          `json:"description"`
	AssigneeID  uuid.UUID       `json:"assignee_id"`
	Priority    FindingSeverity `json:"priority"` // mirrors the finding severity

	Status  CAPAStatus `json:"status"`
	DueDate time.Time  `json:"due_date"`

	ClosedAt *time.Time `json:"closed_at,omitempty"`

	// EverRejected records whether the CAPA was rejected at any point in its
	// activity history; used by the verification-pass health component.
	EverRejected bool `json:"ever_rejected"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Closed reports whether the CAPA reached a closed or approved terminal state.
func (c *CAPA) Closed() bool {
	return c.Status == CAPAStatusClosed || c.Status == CAPAStatusApproved
}

// ClosedOnTime reports whether the closing activity occurred on or before the
// due date. Only meaningful for closed CAPAs.
func (c *CAPA) ClosedOnTime() bool {
	return c.ClosedAt != nil && !c.ClosedAt.After(c.DueDate)
}
