package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditStatus is the stored lifecycle state of an audit instance.
type AuditStatus string

const (
	AuditStatusScheduled           AuditStatus = "scheduled"
	AuditStatusInProgress          AuditStatus = "in_progress"
	AuditStatusPendingVerification AuditStatus = "pending_verification"
	AuditStatusApproved            AuditStatus = "approved"
	AuditStatusRejected            AuditStatus = "rejected"
	AuditStatusCancelled           AuditStatus = "cancelled"

	// AuditStatusOverdue is derived, never stored: a scheduled audit whose
	// scheduled date has passed.
	AuditStatusOverdue AuditStatus = "overdue"
)

// Audit is one scheduled or executed instance of a checklist template against
// one target entity. Once submitted, Score and Passed are immutable inputs to
// downstream finding/CAPA generation and are never recomputed from later edits.
type Audit struct {
	ID         uuid.UUID  `json:"id"`
	TemplateID uuid.UUID  `json:"template_id"`
	TargetType EntityType `json:"target_type"`
	TargetID   uuid.UUID  `json:"target_id"`
	AuditorID  uuid.UUID  `json:"auditor_id"`

	Status        AuditStatus `json:"status"`
	ScheduledDate time.Time   `json:"scheduled_date"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`

	Score        *float64 `json:"score,omitempty"`
	Passed       *bool    `json:"passed,omitempty"`
	CriticalFail bool     `json:"critical_fail"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveStatus returns the status with the derived overdue state applied.
func (a *Audit) EffectiveStatus(now time.Time) AuditStatus {
	if a.Status == AuditStatusScheduled && now.After(a.ScheduledDate) {
		return AuditStatusOverdue
	}
	return a.Status
}

// Submitted reports whether the audit has reached a post-submission state.
func (a *Audit) Submitted() bool {
	switch a.Status {
	case AuditStatusPendingVerification, AuditStatusApproved, AuditStatusRejected:
		return true
	}
	return false
}
