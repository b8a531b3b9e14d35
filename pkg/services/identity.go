package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/savoria-foods/quality-engine/pkg/models"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
)

type userDirectory struct {
	userRepo repositories.UserRepository
}

// NewUserDirectory returns an IdentityDirectory backed by the user store.
func NewUserDirectory(userRepo repositories.UserRepository) IdentityDirectory {
	return &userDirectory{userRepo: userRepo}
}

var _ IdentityDirectory = (*userDirectory)(nil)

func (d *userDirectory) ResponsibleFor(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) (uuid.UUID, error) {
	return d.userRepo.ResponsibleFor(ctx, targetType, targetID)
}

func (d *userDirectory) ActiveAuditManagers(ctx context.Context) ([]*models.User, error) {
	return d.userRepo.ListActiveByRole(ctx, models.RoleAuditManager)
}
