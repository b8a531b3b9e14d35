package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/database"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

// UserRepository is the database-backed identity directory: it resolves CAPA
// assignees for an entity and lists active users by role. Authentication and
// the full user profile live in the host application.
type UserRepository interface {
	// ListActiveByRole returns all active users holding the given role.
	ListActiveByRole(ctx context.Context, role string) ([]*models.User, error)

	// ResponsibleFor resolves the user responsible for one entity, used as
	// the CAPA assignee. Returns apperrors.ErrNotFound when no responsible
	// party is registered.
	ResponsibleFor(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) (uuid.UUID, error)
}

type userRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

var _ UserRepository = (*userRepository)(nil)

func (r *userRepository) ListActiveByRole(ctx context.Context, role string) ([]*models.User, error) {
	query := `
		SELECT id, name, role, active
		FROM users
		WHERE role = $1 AND active
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Active); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func (r *userRepository) ResponsibleFor(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) (uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM responsible_parties
		WHERE target_type = $1 AND target_id = $2`

	var userID uuid.UUID
	err := r.db.QueryRow(ctx, query, targetType, targetID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to resolve responsible party: %w", err)
	}

	return userID, nil
}
