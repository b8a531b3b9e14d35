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

// TemplateRepository provides data access for checklist templates.
type TemplateRepository interface {
	// Create inserts a new checklist template.
	Create(ctx context.Context, tpl *models.ChecklistTemplate) error

	// GetByID returns one template or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChecklistTemplate, error)

	// ListByTargetType returns all templates applicable to one entity type.
	ListByTargetType(ctx context.Context, targetType models.EntityType) ([]*models.ChecklistTemplate, error)
}

type templateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *database.DB) TemplateRepository {
	return &templateRepository{db: db}
}

var _ TemplateRepository = (*templateRepository)(nil)

func (r *templateRepository) Create(ctx context.Context, tpl *models.ChecklistTemplate) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	now := time.Now()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	sectionsJSON, err := json.Marshal(tpl.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal template sections: %w", err)
	}

	query := `
		INSERT INTO checklist_templates (
			id, name, category, target_type, weighted, critical_fail_enabled,
			pass_threshold, sections, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		tpl.ID, tpl.Name, tpl.Category, tpl.TargetType, tpl.Weighted,
		tpl.CriticalFailEnabled, tpl.PassThreshold, sectionsJSON,
		tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create checklist template: %w", err)
	}

	return nil
}

func (r *templateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChecklistTemplate, error) {
	query := `
		SELECT id, name, category, target_type, weighted, critical_fail_enabled,
		       pass_threshold, sections, created_at, updated_at
		FROM checklist_templates
		WHERE id = $1`

	tpl, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return tpl, nil
}

func (r *templateRepository) ListByTargetType(ctx context.Context, targetType models.EntityType) ([]*models.ChecklistTemplate, error) {
	query := `
		SELECT id, name, category, target_type, weighted, critical_fail_enabled,
		       pass_threshold, sections, created_at, updated_at
		FROM checklist_templates
		WHERE target_type = $1
		ORDER BY name`

	rows, err := r.db.Query(ctx, query, targetType)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.ChecklistTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func scanTemplate(row pgx.Row) (*models.ChecklistTemplate, error) {
	var tpl models.ChecklistTemplate
	var sectionsJSON []byte

	err := row.Scan(
		&tpl.ID, &tpl.Name, &tpl.Category, &tpl.TargetType, &tpl.Weighted,
		&tpl.CriticalFailEnabled, &tpl.PassThreshold, &sectionsJSON,
		&tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan checklist template: %w", err)
	}

	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &tpl.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template sections: %w", err)
		}
	}

	return &tpl, nil
}
