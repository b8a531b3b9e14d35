package models

import "github.com/google/uuid"

// Roles relevant to this core.
const (
	RoleAuditManager = "audit_manager"
)

// User is a minimal projection of the host application's user record;
// authentication and the full profile live outside this core.
type User struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	Active bool      `json:"active"`
}
