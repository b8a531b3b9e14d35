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

// BranchRepository provides data access for branches.
type BranchRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	ListAll(ctx context.Context) ([]*models.Branch, error)

	// UpdateHealthScore mirrors the latest composite score onto the branch's
	// denormalized fast-read field.
	UpdateHealthScore(ctx context.Context, id uuid.UUID, score float64) error
}

type branchRepository struct {
	db *database.DB
}

// NewBranchRepository creates a new BranchRepository.
func NewBranchRepository(db *database.DB) BranchRepository {
	return &branchRepository{db: db}
}

var _ BranchRepository = (*branchRepository)(nil)

func (r *branchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	query := `
		SELECT id, code, name, region, health_score, created_at, updated_at
		FROM branches WHERE id = $1`

	var b models.Branch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.Code, &b.Name, &b.Region, &b.HealthScore, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get branch: %w", err)
	}

	return &b, nil
}

func (r *branchRepository) ListAll(ctx context.Context) ([]*models.Branch, error) {
	query := `
		SELECT id, code, name, region, health_score, created_at, updated_at
		FROM branches ORDER BY code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer rows.Close()

	var branches []*models.Branch
	for rows.Next() {
		var b models.Branch
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Region, &b.HealthScore, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		branches = append(branches, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating branches: %w", err)
	}

	return branches, nil
}

func (r *branchRepository) UpdateHealthScore(ctx context.Context, id uuid.UUID, score float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE branches SET health_score = $1, updated_at = now() WHERE id = $2`, score, id)
	if err != nil {
		return fmt.Errorf("failed to update branch health score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
