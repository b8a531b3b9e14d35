package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/database"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

// SupplierRepository provides data access for suppliers.
type SupplierRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	ListAll(ctx context.Context) ([]*models.Supplier, error)

	// ListByCustomerKitchen returns suppliers that list the given kitchen as
	// a customer.
	ListByCustomerKitchen(ctx context.Context, kitchenID uuid.UUID) ([]*models.Supplier, error)

	// UpdateQualityScore mirrors the latest composite score onto the
	// supplier's denormalized fast-read field.
	UpdateQualityScore(ctx context.Context, id uuid.UUID, score float64) error

	// UpdateStatus changes the supplier's commercial standing.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SupplierStatus) error
}

type supplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new SupplierRepository.
func NewSupplierRepository(db *database.DB) SupplierRepository {
	return &supplierRepository{db: db}
}

var _ SupplierRepository = (*supplierRepository)(nil)

const supplierColumns = `id, code, name, status, quality_score, certifications,
	customer_kitchen_ids, incident_total, created_at, updated_at`

func (r *supplierRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE id = $1`

	s, err := scanSupplier(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *supplierRepository) ListAll(ctx context.Context) ([]*models.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers ORDER BY code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query suppliers: %w", err)
	}
	defer rows.Close()

	return collectSuppliers(rows)
}

func (r *supplierRepository) ListByCustomerKitchen(ctx context.Context, kitchenID uuid.UUID) ([]*models.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE $1 = ANY(customer_kitchen_ids) ORDER BY code`

	rows, err := r.db.Query(ctx, query, kitchenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suppliers by kitchen: %w", err)
	}
	defer rows.Close()

	return collectSuppliers(rows)
}

func (r *supplierRepository) UpdateQualityScore(ctx context.Context, id uuid.UUID, score float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE suppliers SET quality_score = $1, updated_at = now() WHERE id = $2`, score, id)
	if err != nil {
		return fmt.Errorf("failed to update supplier quality score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *supplierRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SupplierStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE suppliers SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update supplier status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func collectSuppliers(rows pgx.Rows) ([]*models.Supplier, error) {
	var suppliers []*models.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suppliers: %w", err)
	}

	return suppliers, nil
}

func scanSupplier(row pgx.Row) (*models.Supplier, error) {
	var s models.Supplier
	var certsJSON []byte

	err := row.Scan(
		&s.ID, &s.Code, &s.Name, &s.Status, &s.QualityScore, &certsJSON,
		&s.CustomerKitchenIDs, &s.IncidentTotal, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan supplier: %w", err)
	}

	if len(certsJSON) > 0 && string(certsJSON) != "null" {
		if err := json.Unmarshal(certsJSON, &s.Certifications); err != nil {
			return nil, fmt.Errorf("failed to unmarshal supplier certifications: %w", err)
		}
	}

	return &s, nil
}
