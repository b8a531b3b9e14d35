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

// KitchenRepository provides data access for central kitchens.
type KitchenRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Kitchen, error)
	ListAll(ctx context.Context) ([]*models.Kitchen, error)
	UpdateHealthScore(ctx context.Context, id uuid.UUID, score float64) error
}

type kitchenRepository struct {
	db *database.DB
}

// NewKitchenRepository creates a new KitchenRepository.
func NewKitchenRepository(db *database.DB) KitchenRepository {
	return &kitchenRepository{db: db}
}

var _ KitchenRepository = (*kitchenRepository)(nil)

func (r *kitchenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Kitchen, error) {
	query := `
		SELECT id, code, name, health_score, created_at, updated_at
		FROM kitchens WHERE id = $1`

	var k models.Kitchen
	err := r.db.QueryRow(ctx, query, id).Scan(
		&k.ID, &k.Code, &k.Name, &k.HealthScore, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get kitchen: %w", err)
	}

	return &k, nil
}

func (r *kitchenRepository) ListAll(ctx context.Context) ([]*models.Kitchen, error) {
	query := `
		SELECT id, code, name, health_score, created_at, updated_at
		FROM kitchens ORDER BY code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query kitchens: %w", err)
	}
	defer rows.Close()

	var kitchens []*models.Kitchen
	for rows.Next() {
		var k models.Kitchen
		if err := rows.Scan(&k.ID, &k.Code, &k.Name, &k.HealthScore, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kitchen: %w", err)
		}
		kitchens = append(kitchens, &k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kitchens: %w", err)
	}

	return kitchens, nil
}

func (r *kitchenRepository) UpdateHealthScore(ctx context.Context, id uuid.UUID, score float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE kitchens SET health_score = $1, updated_at = now() WHERE id = $2`, score, id)
	if err != nil {
		return fmt.Errorf("failed to update kitchen health score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
