package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/database"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

// CAPARepository provides data access for corrective actions.
type CAPARepository interface {
	// GetByID returns one CAPA or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.CAPA, error)

	// ListByTarget returns all CAPAs raised against one entity.
	ListByTarget(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) ([]*models.CAPA, error)

	// UpdateStatus transitions a CAPA between lifecycle states. Rejections
	// set the ever_rejected flag permanently; closing states record the
	// closing timestamp.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CAPAStatus) error
}

type capaRepository struct {
	db *database.DB
}

// NewCAPARepository creates a new CAPARepository.
func NewCAPARepository(db *database.DB) CAPARepository {
	return &capaRepository{db: db}
}

var _ CAPARepository = (*capaRepository)(nil)

const capaColumns = `id, finding_id, audit_id, target_type, target_id, description,
	assignee_id, priority, status, due_date, closed_at, ever_rejected,
	created_at, updated_at`

func (r *capaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CAPA, error) {
	query := `SELECT ` + capaColumns + ` FROM capas WHERE id = $1`

	capa, err := scanCAPA(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return capa, nil
}

func (r *capaRepository) ListByTarget(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) ([]*models.CAPA, error) {
	query := `SELECT ` + capaColumns + `
		FROM capas
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query CAPAs: %w", err)
	}
	defer rows.Close()

	var capas []*models.CAPA
	for rows.Next() {
		capa, err := scanCAPA(rows)
		if err != nil {
			return nil, err
		}
		capas = append(capas, capa)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating CAPAs: %w", err)
	}

	return capas, nil
}

func (r *capaRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CAPAStatus) error {
	var closedAt *time.Time
	if status == models.CAPAStatusClosed || status == models.CAPAStatusApproved {
		now := time.Now()
		closedAt = &now
	}

	query := `
		UPDATE capas
		SET status = $1,
		    closed_at = COALESCE($2, closed_at),
		    ever_rejected = ever_rejected OR $3,
		    updated_at = now()
		WHERE id = $4`

	tag, err := r.db.Exec(ctx, query, status, closedAt, status == models.CAPAStatusRejected, id)
	if err != nil {
		return fmt.Errorf("failed to update CAPA status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanCAPA(row pgx.Row) (*models.CAPA, error) {
	var c models.CAPA

	err := row.Scan(
		&c.ID, &c.FindingID, &c.AuditID, &c.TargetType, &c.TargetID,
		&c.Description, &c.AssigneeID, &c.Priority, &c.Status, &c.DueDate,
		&c.ClosedAt, &c.EverRejected, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan CAPA: %w", err)
	}

	return &c, nil
}
