package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/savoria-foods/quality-engine/pkg/database"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

// FindingRepository provides data access for audit findings.
type FindingRepository interface {
	// Create inserts a manually-entered finding outside the submission
	// transaction (submission findings are written by AuditRepository.Submit).
	Create(ctx context.Context, finding *models.Finding) error

	// ListByAudit returns all findings for one audit.
	ListByAudit(ctx context.Context, auditID uuid.UUID) ([]*models.Finding, error)

	// ListByAudits returns all findings across the given audits, keyed by audit id.
	ListByAudits(ctx context.Context, auditIDs []uuid.UUID) (map[uuid.UUID][]*models.Finding, error)
}

type findingRepository struct {
	db *database.DB
}

// NewFindingRepository creates a new FindingRepository.
func NewFindingRepository(db *database.DB) FindingRepository {
	return &findingRepository{db: db}
}

var _ FindingRepository = (*findingRepository)(nil)

func (r *findingRepository) Create(ctx context.Context, finding *models.Finding) error {
	if finding.ID == uuid.Nil {
		finding.ID = uuid.New()
	}
	if finding.CreatedAt.IsZero() {
		finding.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO findings (id, audit_id, item_id, severity, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		finding.ID, finding.AuditID, finding.ItemID, finding.Severity,
		finding.Description, finding.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create finding: %w", err)
	}

	return nil
}

func (r *findingRepository) ListByAudit(ctx context.Context, auditID uuid.UUID) ([]*models.Finding, error) {
	query := `
		SELECT id, audit_id, item_id, severity, description, created_at
		FROM findings
		WHERE audit_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	return collectFindings(rows)
}

func (r *findingRepository) ListByAudits(ctx context.Context, auditIDs []uuid.UUID) (map[uuid.UUID][]*models.Finding, error) {
	byAudit := make(map[uuid.UUID][]*models.Finding)
	if len(auditIDs) == 0 {
		return byAudit, nil
	}

	query := `
		SELECT id, audit_id, item_id, severity, description, created_at
		FROM findings
		WHERE audit_id = ANY($1)
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, auditIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	findings, err := collectFindings(rows)
	if err != nil {
		return nil, err
	}

	for _, f := range findings {
		byAudit[f.AuditID] = append(byAudit[f.AuditID], f)
	}

	return byAudit, nil
}

func collectFindings(rows pgx.Rows) ([]*models.Finding, error) {
	var findings []*models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}

	return findings, nil
}

func scanFinding(row pgx.Row) (*models.Finding, error) {
	var f models.Finding

	err := row.Scan(&f.ID, &f.AuditID, &f.ItemID, &f.Severity, &f.Description, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan finding: %w", err)
	}

	return &f, nil
}
