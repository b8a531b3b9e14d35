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

// Submission carries everything the audit submission transaction persists:
// the final responses, the frozen score, and the derived findings and CAPAs.
type Submission struct {
	AuditID      uuid.UUID
	CompletedAt  time.Time
	Score        float64
	Passed       bool
	CriticalFail bool
	Responses    []*models.ItemResponse
	Findings     []*models.Finding
	CAPAs        []*models.CAPA
}

// AuditRepository provides data access for audits and their item responses.
type AuditRepository interface {
	// Create inserts a new scheduled audit.
	Create(ctx context.Context, audit *models.Audit) error

	// GetByID returns one audit or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Audit, error)

	// MarkInProgress transitions a scheduled audit to in_progress and records
	// the start timestamp. It is idempotent: audits past scheduled are left
	// untouched and no error is returned.
	MarkInProgress(ctx context.Context, id uuid.UUID, startedAt time.Time) error

	// SaveResponses upserts draft item responses for an audit.
	SaveResponses(ctx context.Context, auditID uuid.UUID, responses []*models.ItemResponse) error

	// GetResponses returns all stored responses for an audit keyed by item id.
	GetResponses(ctx context.Context, auditID uuid.UUID) (map[uuid.UUID]*models.ItemResponse, error)

	// Submit atomically persists a submission: final responses, the audit's
	// frozen score and pending_verification status, and the derived findings
	// and CAPAs. Either everything commits or nothing does. Returns
	// apperrors.ErrInvalidTransition if the audit is not in_progress.
	Submit(ctx context.Context, sub *Submission) error

	// UpdateStatus transitions an audit from one status to another, returning
	// apperrors.ErrInvalidTransition if the audit is not in the expected
	// source status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.AuditStatus) error

	// ListApprovedByTarget returns approved audits for one entity completed
	// on or after the given time, most recently completed first.
	ListApprovedByTarget(ctx context.Context, targetType models.EntityType, targetID uuid.UUID, since time.Time) ([]*models.Audit, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

const auditColumns = `id, template_id, target_type, target_id, auditor_id, status,
	scheduled_date, started_at, completed_at, score, passed, critical_fail,
	created_at, updated_at`

func (r *auditRepository) Create(ctx context.Context, audit *models.Audit) error {
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.Status == "" {
		audit.Status = models.AuditStatusScheduled
	}
	now := time.Now()
	audit.CreatedAt = now
	audit.UpdatedAt = now

	query := `
		INSERT INTO audits (
			id, template_id, target_type, target_id, auditor_id, status,
			scheduled_date, started_at, completed_at, score, passed, critical_fail,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(ctx, query,
		audit.ID, audit.TemplateID, audit.TargetType, audit.TargetID,
		audit.AuditorID, audit.Status, audit.ScheduledDate, audit.StartedAt,
		audit.CompletedAt, audit.Score, audit.Passed, audit.CriticalFail,
		audit.CreatedAt, audit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit: %w", err)
	}

	return nil
}

func (r *auditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE id = $1`

	audit, err := scanAudit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return audit, nil
}

func (r *auditRepository) MarkInProgress(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `
		UPDATE audits
		SET status = $1, started_at = $2, updated_at = now()
		WHERE id = $3 AND status = $4`

	_, err := r.db.Exec(ctx, query,
		models.AuditStatusInProgress, startedAt, id, models.AuditStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to mark audit in progress: %w", err)
	}

	return nil
}

func (r *auditRepository) SaveResponses(ctx context.Context, auditID uuid.UUID, responses []*models.ItemResponse) error {
	return r.saveResponses(ctx, r.db, auditID, responses)
}

func (r *auditRepository) saveResponses(ctx context.Context, q querier, auditID uuid.UUID, responses []*models.ItemResponse) error {
	query := `
		INSERT INTO audit_responses (audit_id, item_id, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (audit_id, item_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`

	for _, resp := range responses {
		payload, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to marshal item response: %w", err)
		}
		if _, err := q.Exec(ctx, query, auditID, resp.ItemID, payload); err != nil {
			return fmt.Errorf("failed to upsert item response: %w", err)
		}
	}

	return nil
}

func (r *auditRepository) GetResponses(ctx context.Context, auditID uuid.UUID) (map[uuid.UUID]*models.ItemResponse, error) {
	query := `SELECT payload FROM audit_responses WHERE audit_id = $1`

	rows, err := r.db.Query(ctx, query, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit responses: %w", err)
	}
	defer rows.Close()

	responses := make(map[uuid.UUID]*models.ItemResponse)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan item response: %w", err)
		}
		var resp models.ItemResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item response: %w", err)
		}
		responses[resp.ItemID] = &resp
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit responses: %w", err)
	}

	return responses, nil
}

func (r *auditRepository) Submit(ctx context.Context, sub *Submission) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin submission transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE audits
		SET status = $1, completed_at = $2, score = $3, passed = $4,
		    critical_fail = $5, updated_at = now()
		WHERE id = $6 AND status = $7`,
		models.AuditStatusPendingVerification, sub.CompletedAt, sub.Score,
		sub.Passed, sub.CriticalFail, sub.AuditID, models.AuditStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to update audit on submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}

	if err := r.saveResponses(ctx, tx, sub.AuditID, sub.Responses); err != nil {
		return err
	}

	for _, f := range sub.Findings {
		_, err := tx.Exec(ctx, `
			INSERT INTO findings (id, audit_id, item_id, severity, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			f.ID, f.AuditID, f.ItemID, f.Severity, f.Description, f.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	for _, c := range sub.CAPAs {
		_, err := tx.Exec(ctx, `
			INSERT INTO capas (
				id, finding_id, audit_id, target_type, target_id, description,
				assignee_id, priority, status, due_date, closed_at, ever_rejected,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			c.ID, c.FindingID, c.AuditID, c.TargetType, c.TargetID,
			c.Description, c.AssigneeID, c.Priority, c.Status, c.DueDate,
			c.ClosedAt, c.EverRejected, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert CAPA: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}

	return nil
}

func (r *auditRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.AuditStatus) error {
	query := `UPDATE audits SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`

	tag, err := r.db.Exec(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update audit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}

	return nil
}

func (r *auditRepository) ListApprovedByTarget(ctx context.Context, targetType models.EntityType, targetID uuid.UUID, since time.Time) ([]*models.Audit, error) {
	query := `SELECT ` + auditColumns + `
		FROM audits
		WHERE target_type = $1 AND target_id = $2 AND status = $3
		  AND completed_at IS NOT NULL AND completed_at >= $4
		ORDER BY completed_at DESC`

	rows, err := r.db.Query(ctx, query, targetType, targetID, models.AuditStatusApproved, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.Audit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audits: %w", err)
	}

	return audits, nil
}

func scanAudit(row pgx.Row) (*models.Audit, error) {
	var audit models.Audit

	err := row.Scan(
		&audit.ID, &audit.TemplateID, &audit.TargetType, &audit.TargetID,
		&audit.AuditorID, &audit.Status, &audit.ScheduledDate, &audit.StartedAt,
		&audit.CompletedAt, &audit.Score, &audit.Passed, &audit.CriticalFail,
		&audit.CreatedAt, &audit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit: %w", err)
	}

	return &audit, nil
}
