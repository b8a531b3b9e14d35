package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/config"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

func TestComputeBranchScoreCleanBranch(t *testing.T) {
	score, components := ComputeBranchScore(BranchInputs{
		AuditScores90d: []float64{88},
	})

	// No CAPAs, findings or incidents: every other component defaults to 100.
	assert.InDelta(t, 88.0, components[models.ComponentAuditPerformance], 0.001)
	assert.InDelta(t, 100.0, components[models.ComponentCAPACompletion], 0.001)
	assert.InDelta(t, 100.0, components[models.ComponentRepeatFindings], 0.001)
	assert.InDelta(t, 100.0, components[models.ComponentIncidentRate], 0.001)
	assert.InDelta(t, 100.0, components[models.ComponentVerificationPass], 0.001)

	// 88*0.40 + 100*0.25 + 100*0.15 + 100*0.10 + 100*0.10
	assert.InDelta(t, 95.2, score, 0.001)
}

func TestComputeBranchScoreRepeatPenaltyCapped(t *testing.T) {
	repeated := []string{
		"cooler temperature above safe limit",
		"grease trap overflowing near fryer station",
		"hand wash station missing soap supplies",
		"raw chicken stored above produce shelf",
		"floor drain blocked in prep area",
		"sanitizer concentration below required level",
	}

	_, components := ComputeBranchScore(BranchInputs{
		CurrentFindings: repeated,
		PriorFindings:   repeated,
	})

	// Six repeats would be a 60-point penalty; the cap holds it at 50.
	assert.InDelta(t, 50.0, components[models.ComponentRepeatFindings], 0.001)
}

func TestComputeBranchScoreIncidentFloor(t *testing.T) {
	_, components := ComputeBranchScore(BranchInputs{OpenIncidents30d: 7})
	assert.Zero(t, components[models.ComponentIncidentRate])
}

func TestComputeBranchScoreCAPAComponents(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	capas := []*models.CAPA{
		{Status: models.CAPAStatusClosed, DueDate: due, ClosedAt: timePtr(due.Add(-24 * time.Hour))},
		{Status: models.CAPAStatusApproved, DueDate: due, ClosedAt: timePtr(due.Add(48 * time.Hour)), EverRejected: true},
		{Status: models.CAPAStatusPendingVerification, DueDate: due}, // open, ignored
	}

	_, components := ComputeBranchScore(BranchInputs{CAPAs: capas})

	// One of two closed CAPAs closed on time; one of two was ever rejected.
	assert.InDelta(t, 50.0, components[models.ComponentCAPACompletion], 0.001)
	assert.InDelta(t, 50.0, components[models.ComponentVerificationPass], 0.001)
}

func TestComputeKitchenScore(t *testing.T) {
	score, components := ComputeKitchenScore(KitchenInputs{
		LatestAuditScore: f64Ptr(90),
		AuditScores90d:   []float64{90, 80},
		SupplierScores:   []float64{80, 90},
	})

	assert.InDelta(t, 90.0, components[models.ComponentHACCPCompliance], 0.001)
	assert.InDelta(t, 85.0, components[models.ComponentProductionAudit], 0.001)
	assert.InDelta(t, 85.0, components[models.ComponentSupplierQuality], 0.001)
	assert.InDelta(t, 100.0, components[models.ComponentCAPACompletion], 0.001)

	// 90*0.50 + 85*0.25 + 85*0.15 + 100*0.10
	assert.InDelta(t, 89.0, score, 0.001)
}

func TestComputeKitchenScoreDefaults(t *testing.T) {
	score, components := ComputeKitchenScore(KitchenInputs{})

	// Never audited: HACCP and production both zero. No suppliers: neutral 100.
	assert.Zero(t, components[models.ComponentHACCPCompliance])
	assert.Zero(t, components[models.ComponentProductionAudit])
	assert.InDelta(t, 100.0, components[models.ComponentSupplierQuality], 0.001)
	assert.InDelta(t, 25.0, score, 0.001)
}

func TestComputeSupplierScore(t *testing.T) {
	score, components := ComputeSupplierScore(SupplierInputs{
		AuditScores90d: []float64{90},
		IncidentTotal:  3,
	})

	assert.InDelta(t, 90.0, components[models.ComponentAuditPerformance], 0.001)
	assert.InDelta(t, 70.0, components[models.ComponentProductQuality], 0.001)
	assert.InDelta(t, 50.0, components[models.ComponentCompliance], 0.001, "no certifications halves compliance")
	assert.InDelta(t, 100.0, components[models.ComponentDeliveryPerf], 0.001)

	// 90*0.40 + 70*0.30 + 50*0.20 + 100*0.10
	assert.InDelta(t, 77.0, score, 0.001)
}

func TestComputeSupplierScoreCertifiedFullCompliance(t *testing.T) {
	_, components := ComputeSupplierScore(SupplierInputs{CertificationCount: 1})
	assert.InDelta(t, 100.0, components[models.ComponentCompliance], 0.001)
}

type healthHarness struct {
	auditRepo     *fakeAuditRepo
	findings      *fakeFindingRepo
	capas         *fakeCAPARepo
	incidents     *fakeIncidentRepo
	branches      *fakeBranchRepo
	kitchens      *fakeKitchenRepo
	suppliers     *fakeSupplierRepo
	health        *fakeHealthScoreRepo
	notifications *fakeNotificationRepo
	identity      *fakeIdentity
	service       HealthScoreService
}

func newHealthHarness(t *testing.T) *healthHarness {
	t.Helper()

	h := &healthHarness{
		auditRepo:     newFakeAuditRepo(),
		findings:      &fakeFindingRepo{findings: make(map[uuid.UUID][]*models.Finding)},
		capas:         &fakeCAPARepo{},
		incidents:     &fakeIncidentRepo{openCounts: make(map[uuid.UUID]int)},
		branches:      &fakeBranchRepo{branches: make(map[uuid.UUID]*models.Branch)},
		kitchens:      &fakeKitchenRepo{kitchens: make(map[uuid.UUID]*models.Kitchen)},
		suppliers:     &fakeSupplierRepo{suppliers: make(map[uuid.UUID]*models.Supplier), byKitchen: make(map[uuid.UUID][]*models.Supplier)},
		health:        newFakeHealthScoreRepo(),
		notifications: &fakeNotificationRepo{},
		identity:      &fakeIdentity{},
	}

	h.service = NewHealthScoreService(
		h.auditRepo, h.findings, h.capas, h.incidents,
		h.branches, h.kitchens, h.suppliers, h.health,
		h.notifications, h.identity, NewScoreCache(nil),
		&config.HealthConfig{StalenessHours: 6, SuspensionThreshold: 60},
		zap.NewNop(),
	)

	return h
}

func (h *healthHarness) addApprovedAudit(targetType models.EntityType, targetID uuid.UUID, score float64, completedAt time.Time) *models.Audit {
	audit := &models.Audit{
		ID:          uuid.New(),
		TargetType:  targetType,
		TargetID:    targetID,
		Status:      models.AuditStatusApproved,
		CompletedAt: &completedAt,
		Score:       &score,
	}
	h.auditRepo.approved = append([]*models.Audit{audit}, h.auditRepo.approved...)
	return audit
}

func TestRecalculateBranchPersistsRecordAndMirror(t *testing.T) {
	h := newHealthHarness(t)
	branchID := uuid.New()
	h.branches.branches[branchID] = &models.Branch{ID: branchID, Code: "BR-01"}
	h.addApprovedAudit(models.EntityTypeBranch, branchID, 88, time.Now().Add(-48*time.Hour))

	record, err := h.service.RecalculateBranch(context.Background(), branchID)
	require.NoError(t, err)

	assert.Equal(t, models.EntityTypeBranch, record.EntityType)
	assert.InDelta(t, 95.2, record.Score, 0.001)

	stored, err := h.health.GetByEntity(context.Background(), models.EntityTypeBranch, branchID)
	require.NoError(t, err)
	assert.InDelta(t, 95.2, stored.Score, 0.001)
	assert.InDelta(t, 95.2, h.branches.scores[branchID], 0.001, "denormalized copy updated with the record")
}

func TestRecalculateBranchRepeatFindings(t *testing.T) {
	h := newHealthHarness(t)
	branchID := uuid.New()
	h.branches.branches[branchID] = &models.Branch{ID: branchID}

	now := time.Now()
	prior := h.addApprovedAudit(models.EntityTypeBranch, branchID, 80, now.Add(-30*24*time.Hour))
	latest := h.addApprovedAudit(models.EntityTypeBranch, branchID, 85, now.Add(-24*time.Hour))

	h.findings.findings[prior.ID] = []*models.Finding{
		{AuditID: prior.ID, Description: "cooler temperature above safe limit"},
	}
	h.findings.findings[latest.ID] = []*models.Finding{
		{AuditID: latest.ID, Description: "cooler temperature above the safe limit"},
	}

	record, err := h.service.RecalculateBranch(context.Background(), branchID)
	require.NoError(t, err)

	// One recurring finding: 10-point penalty on the repeat component.
	assert.InDelta(t, 90.0, record.Components[models.ComponentRepeatFindings], 0.001)
}

func TestRecalculateBranchIgnoresStalePriorFindings(t *testing.T) {
	h := newHealthHarness(t)
	branchID := uuid.New()
	h.branches.branches[branchID] = &models.Branch{ID: branchID}

	now := time.Now()
	// Same finding, but the prior audit is outside the 60-day window.
	stale := h.addApprovedAudit(models.EntityTypeBranch, branchID, 80, now.Add(-80*24*time.Hour))
	latest := h.addApprovedAudit(models.EntityTypeBranch, branchID, 85, now.Add(-24*time.Hour))

	h.findings.findings[stale.ID] = []*models.Finding{
		{AuditID: stale.ID, Description: "cooler temperature above safe limit"},
	}
	h.findings.findings[latest.ID] = []*models.Finding{
		{AuditID: latest.ID, Description: "cooler temperature above safe limit"},
	}

	record, err := h.service.RecalculateBranch(context.Background(), branchID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, record.Components[models.ComponentRepeatFindings], 0.001)
}

func TestRecalculateKitchenReadsSupplierScores(t *testing.T) {
	h := newHealthHarness(t)
	kitchenID := uuid.New()
	h.kitchens.kitchens[kitchenID] = &models.Kitchen{ID: kitchenID}
	h.suppliers.byKitchen[kitchenID] = []*models.Supplier{
		{ID: uuid.New(), QualityScore: f64Ptr(80)},
		{ID: uuid.New(), QualityScore: f64Ptr(90)},
		{ID: uuid.New()}, // never scored, excluded from the mean
	}
	h.addApprovedAudit(models.EntityTypeKitchen, kitchenID, 90, time.Now().Add(-24*time.Hour))

	record, err := h.service.RecalculateKitchen(context.Background(), kitchenID)
	require.NoError(t, err)

	assert.InDelta(t, 85.0, record.Components[models.ComponentSupplierQuality], 0.001)
	assert.InDelta(t, 90.0, record.Components[models.ComponentHACCPCompliance], 0.001)
	assert.InDelta(t, 89.0, record.Score, 0.001)
	assert.InDelta(t, 89.0, h.kitchens.scores[kitchenID], 0.001)
}

func TestRecalculateSupplierAutoSuspends(t *testing.T) {
	h := newHealthHarness(t)
	supplierID := uuid.New()
	h.suppliers.suppliers[supplierID] = &models.Supplier{
		ID: supplierID, Code: "SUP-07", Name: "Harbor Seafood",
		Status: models.SupplierStatusActive,
	}
	h.identity.managers = []*models.User{
		{ID: uuid.New(), Name: "QA One"},
		{ID: uuid.New(), Name: "QA Two"},
	}

	// Never audited and uncertified: 0*0.40 + 100*0.30 + 50*0.20 + 100*0.10 = 50.
	record, err := h.service.RecalculateSupplier(context.Background(), supplierID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, record.Score, 0.001)

	assert.Equal(t, models.SupplierStatusSuspended, h.suppliers.suppliers[supplierID].Status)
	require.Len(t, h.notifications.created, 2, "one notification per active audit manager")
	assert.Equal(t, models.NotificationSupplierSuspended, h.notifications.created[0].Kind)

	// A second recomputation of the still-failing, now-suspended supplier
	// does not re-suspend or re-notify.
	_, err = h.service.RecalculateSupplier(context.Background(), supplierID)
	require.NoError(t, err)
	assert.Len(t, h.suppliers.statuses, 1)
	assert.Len(t, h.notifications.created, 2)
}

func TestRecalculateSupplierAboveThresholdStaysActive(t *testing.T) {
	h := newHealthHarness(t)
	supplierID := uuid.New()
	h.suppliers.suppliers[supplierID] = &models.Supplier{
		ID:             supplierID,
		Status:         models.SupplierStatusActive,
		Certifications: []models.Certification{{Name: "HACCP"}},
	}
	h.addApprovedAudit(models.EntityTypeSupplier, supplierID, 90, time.Now().Add(-24*time.Hour))

	// 90*0.40 + 100*0.30 + 100*0.20 + 100*0.10 = 96.
	record, err := h.service.RecalculateSupplier(context.Background(), supplierID)
	require.NoError(t, err)
	assert.InDelta(t, 96.0, record.Score, 0.001)

	assert.Equal(t, models.SupplierStatusActive, h.suppliers.suppliers[supplierID].Status)
	assert.Empty(t, h.notifications.created)
	assert.InDelta(t, 96.0, h.suppliers.scores[supplierID], 0.001)
}

func TestRecalculateSupplierNeverUnsuspends(t *testing.T) {
	h := newHealthHarness(t)
	supplierID := uuid.New()
	h.suppliers.suppliers[supplierID] = &models.Supplier{
		ID:             supplierID,
		Status:         models.SupplierStatusSuspended,
		Certifications: []models.Certification{{Name: "ISO 22000"}},
	}
	h.addApprovedAudit(models.EntityTypeSupplier, supplierID, 95, time.Now().Add(-24*time.Hour))

	_, err := h.service.RecalculateSupplier(context.Background(), supplierID)
	require.NoError(t, err)

	// Recovery is a human decision; the engine never lifts a suspension.
	assert.Equal(t, models.SupplierStatusSuspended, h.suppliers.suppliers[supplierID].Status)
	assert.Empty(t, h.suppliers.statuses)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	h := newHealthHarness(t)
	branchID := uuid.New()
	h.branches.branches[branchID] = &models.Branch{ID: branchID}
	h.addApprovedAudit(models.EntityTypeBranch, branchID, 72, time.Now().Add(-24*time.Hour))

	first, err := h.service.RecalculateBranch(context.Background(), branchID)
	require.NoError(t, err)
	second, err := h.service.RecalculateBranch(context.Background(), branchID)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Components, second.Components)
}
