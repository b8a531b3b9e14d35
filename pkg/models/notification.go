package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds emitted by this core.
const (
	NotificationSupplierSuspended = "supplier_suspended"
)

// Notification is an in-app message for one user. Delivery is handled by an
// external collaborator; this core only creates the records.
type Notification struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"user_id"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`

	CreatedAt time.Time `json:"created_at"`
}
