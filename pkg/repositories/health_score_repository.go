package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/database"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

// HealthScoreRepository provides data access for the health score cache and
// the batch-run sentinel record.
type HealthScoreRepository interface {
	// Upsert overwrites the entity's health score record.
	Upsert(ctx context.Context, record *models.HealthScoreRecord) error

	// GetByEntity returns the latest record for one entity or apperrors.ErrNotFound.
	GetByEntity(ctx context.Context, entityType models.EntityType, entityID uuid.UUID) (*models.HealthScoreRecord, error)

	// ListAll returns all entity records, excluding the batch sentinel.
	ListAll(ctx context.Context) ([]*models.HealthScoreRecord, error)

	// GetLastBatchRun returns the completion time of the last full batch run.
	// The boolean is false when no batch has ever completed.
	GetLastBatchRun(ctx context.Context) (time.Time, bool, error)

	// SetLastBatchRun records the completion time of a full batch run.
	SetLastBatchRun(ctx context.Context, completedAt time.Time) error
}

type healthScoreRepository struct {
	db *database.DB
}

// NewHealthScoreRepository creates a new HealthScoreRepository.
func NewHealthScoreRepository(db *database.DB) HealthScoreRepository {
	return &healthScoreRepository{db: db}
}

var _ HealthScoreRepository = (*healthScoreRepository)(nil)

func (r *healthScoreRepository) Upsert(ctx context.Context, record *models.HealthScoreRecord) error {
	componentsJSON, err := json.Marshal(record.Components)
	if err != nil {
		return fmt.Errorf("failed to marshal score components: %w", err)
	}

	query := `
		INSERT INTO health_scores (entity_type, entity_id, score, components, computed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_type, entity_id)
		DO UPDATE SET score = EXCLUDED.score,
		              components = EXCLUDED.components,
		              computed_at = EXCLUDED.computed_at`

	_, err = r.db.Exec(ctx, query,
		record.EntityType, record.EntityID, record.Score, componentsJSON, record.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert health score: %w", err)
	}

	return nil
}

func (r *healthScoreRepository) GetByEntity(ctx context.Context, entityType models.EntityType, entityID uuid.UUID) (*models.HealthScoreRecord, error) {
	query := `
		SELECT entity_type, entity_id, score, components, computed_at
		FROM health_scores
		WHERE entity_type = $1 AND entity_id = $2`

	record, err := scanHealthScore(r.db.QueryRow(ctx, query, entityType, entityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *healthScoreRepository) ListAll(ctx context.Context) ([]*models.HealthScoreRecord, error) {
	query := `
		SELECT entity_type, entity_id, score, components, computed_at
		FROM health_scores
		WHERE entity_type != $1
		ORDER BY entity_type, entity_id`

	rows, err := r.db.Query(ctx, query, models.BatchEntityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query health scores: %w", err)
	}
	defer rows.Close()

	var records []*models.HealthScoreRecord
	for rows.Next() {
		record, err := scanHealthScore(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health scores: %w", err)
	}

	return records, nil
}

func (r *healthScoreRepository) GetLastBatchRun(ctx context.Context) (time.Time, bool, error) {
	record, err := r.GetByEntity(ctx, models.BatchEntityType, models.BatchSentinelID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return record.ComputedAt, true, nil
}

func (r *healthScoreRepository) SetLastBatchRun(ctx context.Context, completedAt time.Time) error {
	return r.Upsert(ctx, &models.HealthScoreRecord{
		EntityType: models.BatchEntityType,
		EntityID:   models.BatchSentinelID,
		Components: map[string]float64{},
		ComputedAt: completedAt,
	})
}

func scanHealthScore(row pgx.Row) (*models.HealthScoreRecord, error) {
	var record models.HealthScoreRecord
	var componentsJSON []byte

	err := row.Scan(
		&record.EntityType, &record.EntityID, &record.Score, &componentsJSON, &record.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan health score: %w", err)
	}

	if len(componentsJSON) > 0 {
		if err := json.Unmarshal(componentsJSON, &record.Components); err != nil {
			return nil, fmt.Errorf("failed to unmarshal score components: %w", err)
		}
	}

	return &record, nil
}
