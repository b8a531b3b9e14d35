package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/models"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
	"github.com/savoria-foods/quality-engine/pkg/testhelpers"
)

func seedAudit(t *testing.T, ctx context.Context, db *testhelpers.TestDB) (*models.ChecklistTemplate, *models.Audit) {
	t.Helper()

	templateRepo := repositories.NewTemplateRepository(db.DB)
	auditRepo := repositories.NewAuditRepository(db.DB)

	tpl := &models.ChecklistTemplate{
		Name:       "Branch hygiene",
		TargetType: models.EntityTypeBranch,
		Weighted:   false,
		Sections: []models.Section{
			{ID: uuid.New(), Name: "Hygiene", Weight: 100, Items: []models.Item{
				{ID: uuid.New(), Text: "Surfaces sanitized", Type: models.ItemTypePassFail, Points: 10},
				{ID: uuid.New(), Text: "Cold storage below 5C", Type: models.ItemTypePassFail, Points: 10, Critical: true},
			}},
		},
		PassThreshold: 80,
	}
	require.NoError(t, templateRepo.Create(ctx, tpl))

	audit := &models.Audit{
		TemplateID:    tpl.ID,
		TargetType:    models.EntityTypeBranch,
		TargetID:      uuid.New(),
		AuditorID:     uuid.New(),
		ScheduledDate: time.Now().Add(-time.Hour),
	}
	require.NoError(t, auditRepo.Create(ctx, audit))

	return tpl, audit
}

func TestAuditSubmissionRoundTrip(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	auditRepo := repositories.NewAuditRepository(db.DB)
	findingRepo := repositories.NewFindingRepository(db.DB)
	capaRepo := repositories.NewCAPARepository(db.DB)

	tpl, audit := seedAudit(t, ctx, db)
	items := tpl.Sections[0].Items

	require.NoError(t, auditRepo.MarkInProgress(ctx, audit.ID, time.Now()))

	pass := true
	fail := false
	responses := []*models.ItemResponse{
		{ItemID: items[0].ID, Type: models.ItemTypePassFail, Pass: &pass},
		{ItemID: items[1].ID, Type: models.ItemTypePassFail, Pass: &fail, Note: "cooler at 9C"},
	}
	require.NoError(t, auditRepo.SaveResponses(ctx, audit.ID, responses))

	stored, err := auditRepo.GetResponses(ctx, audit.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "cooler at 9C", stored[items[1].ID].Note)

	now := time.Now().UTC().Truncate(time.Microsecond)
	finding := &models.Finding{
		ID:          uuid.New(),
		AuditID:     audit.ID,
		ItemID:      &items[1].ID,
		Severity:    models.SeverityCritical,
		Description: "cooler at 9C",
		CreatedAt:   now,
	}
	capa := &models.CAPA{
		ID:          uuid.New(),
		FindingID:   finding.ID,
		AuditID:     audit.ID,
		TargetType:  audit.TargetType,
		TargetID:    audit.TargetID,
		Description: finding.Description,
		AssigneeID:  uuid.New(),
		Priority:    models.SeverityCritical,
		Status:      models.CAPAStatusPendingVerification,
		DueDate:     now.AddDate(0, 0, 3),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sub := &repositories.Submission{
		AuditID:      audit.ID,
		CompletedAt:  now,
		Score:        50,
		Passed:       false,
		CriticalFail: true,
		Responses:    responses,
		Findings:     []*models.Finding{finding},
		CAPAs:        []*models.CAPA{capa},
	}
	require.NoError(t, auditRepo.Submit(ctx, sub))

	// A second submission finds the audit already past in_progress.
	assert.ErrorIs(t, auditRepo.Submit(ctx, sub), apperrors.ErrInvalidTransition)

	reloaded, err := auditRepo.GetByID(ctx, audit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuditStatusPendingVerification, reloaded.Status)
	require.NotNil(t, reloaded.Score)
	assert.InDelta(t, 50.0, *reloaded.Score, 0.001)
	assert.True(t, reloaded.CriticalFail)

	findings, err := findingRepo.ListByAudit(ctx, audit.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)

	capas, err := capaRepo.ListByTarget(ctx, audit.TargetType, audit.TargetID)
	require.NoError(t, err)
	require.Len(t, capas, 1)
	assert.Equal(t, finding.ID, capas[0].FindingID)

	// Approval makes the audit visible to the health score queries.
	require.NoError(t, auditRepo.UpdateStatus(ctx, audit.ID,
		models.AuditStatusPendingVerification, models.AuditStatusApproved))

	approved, err := auditRepo.ListApprovedByTarget(ctx, audit.TargetType, audit.TargetID, time.Time{})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, audit.ID, approved[0].ID)
}

func TestHealthScoreUpsertAndBatchSentinel(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	healthRepo := repositories.NewHealthScoreRepository(db.DB)

	entityID := uuid.New()
	record := &models.HealthScoreRecord{
		EntityType: models.EntityTypeBranch,
		EntityID:   entityID,
		Score:      82.5,
		Components: map[string]float64{models.ComponentAuditPerformance: 82.5},
		ComputedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, healthRepo.Upsert(ctx, record))

	// Upsert overwrites in place.
	record.Score = 90.1
	require.NoError(t, healthRepo.Upsert(ctx, record))

	stored, err := healthRepo.GetByEntity(ctx, models.EntityTypeBranch, entityID)
	require.NoError(t, err)
	assert.InDelta(t, 90.1, stored.Score, 0.001)

	// The batch sentinel is invisible to entity listings.
	runAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, healthRepo.SetLastBatchRun(ctx, runAt))

	all, err := healthRepo.ListAll(ctx)
	require.NoError(t, err)
	for _, r := range all {
		assert.NotEqual(t, models.BatchEntityType, r.EntityType)
	}

	lastRun, found, err := healthRepo.GetLastBatchRun(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.WithinDuration(t, runAt, lastRun, time.Second)
}
