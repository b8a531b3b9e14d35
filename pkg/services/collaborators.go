package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/savoria-foods/quality-engine/pkg/models"
)

// EvidenceResolver converts raw uploads into stable storage references with
// signed retrieval URLs. Uploads must fully resolve before submission so that
// evidence-sufficiency validation counts every attachment; scoring only ever
// consumes the reference lists, never file bytes.
type EvidenceResolver interface {
	Resolve(ctx context.Context, uploadIDs []uuid.UUID) ([]models.EvidenceRef, error)
}

// IdentityDirectory resolves responsible parties and role membership. Backed
// by the host application's user store.
type IdentityDirectory interface {
	// ResponsibleFor returns the user assigned CAPAs raised against an entity.
	ResponsibleFor(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) (uuid.UUID, error)

	// ActiveAuditManagers returns all active users with the audit-manager
	// role, notified on supplier auto-suspension.
	ActiveAuditManagers(ctx context.Context) ([]*models.User, error)
}
