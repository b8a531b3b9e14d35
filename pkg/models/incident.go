package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus is the lifecycle state of a quality incident.
type IncidentStatus string

const (
	IncidentStatusOpen          IncidentStatus = "open"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusClosed        IncidentStatus = "closed"
)

// Incident is a reported quality event against an entity (customer complaint,
// contamination, delivery rejection). Open incidents depress the incident-rate
// health component.
type Incident struct {
	ID         uuid.UUID  `json:"id"`
	TargetType EntityType `json:"target_type"`
	TargetID   uuid.UUID  `json:"target_id"`

	Status      IncidentStatus `json:"status"`
	Description string         `json:"description"`
	OccurredAt  time.Time      `json:"occurred_at"`

	CreatedAt time.Time `json:"created_at"`
}

// Open reports whether the incident is still unresolved.
func (i *Incident) Open() bool {
	return i.Status == IncidentStatusOpen || i.Status == IncidentStatusInvestigating
}
