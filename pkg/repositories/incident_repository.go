package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/savoria-foods/quality-engine/pkg/database"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

// IncidentRepository provides data access for quality incidents.
type IncidentRepository interface {
	// Create inserts a new incident and bumps the supplier's all-time
	// incident counter when the target is a supplier.
	Create(ctx context.Context, incident *models.Incident) error

	// CountOpenSince returns the number of open or investigating incidents
	// against one entity that occurred on or after the given time.
	CountOpenSince(ctx context.Context, targetType models.EntityType, targetID uuid.UUID, since time.Time) (int, error)
}

type incidentRepository struct {
	db *database.DB
}

// NewIncidentRepository creates a new IncidentRepository.
func NewIncidentRepository(db *database.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

var _ IncidentRepository = (*incidentRepository)(nil)

func (r *incidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	if incident.Status == "" {
		incident.Status = models.IncidentStatusOpen
	}
	incident.CreatedAt = time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin incident transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO incidents (id, target_type, target_id, status, description, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		incident.ID, incident.TargetType, incident.TargetID, incident.Status,
		incident.Description, incident.OccurredAt, incident.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	if incident.TargetType == models.EntityTypeSupplier {
		_, err = tx.Exec(ctx,
			`UPDATE suppliers SET incident_total = incident_total + 1, updated_at = now() WHERE id = $1`,
			incident.TargetID)
		if err != nil {
			return fmt.Errorf("failed to bump supplier incident total: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit incident: %w", err)
	}

	return nil
}

func (r *incidentRepository) CountOpenSince(ctx context.Context, targetType models.EntityType, targetID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM incidents
		WHERE target_type = $1 AND target_id = $2
		  AND status IN ($3, $4)
		  AND occurred_at >= $5`

	var count int
	err := r.db.QueryRow(ctx, query, targetType, targetID,
		models.IncidentStatusOpen, models.IncidentStatusInvestigating, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open incidents: %w", err)
	}

	return count, nil
}
