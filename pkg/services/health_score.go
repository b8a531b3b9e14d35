package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/config"
	"github.com/savoria-foods/quality-engine/pkg/models"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
	"github.com/savoria-foods/quality-engine/pkg/retry"
)

// Trailing windows feeding the health score components.
const (
	auditWindowDays    = 90
	repeatWindowDays   = 60
	incidentWindowDays = 30
)

// Component weights. Each entity type's weights sum to 100.
var (
	branchWeights = map[string]float64{
		models.ComponentAuditPerformance: 40,
		models.ComponentCAPACompletion:   25,
		models.ComponentRepeatFindings:   15,
		models.ComponentIncidentRate:     10,
		models.ComponentVerificationPass: 10,
	}
	kitchenWeights = map[string]float64{
		models.ComponentHACCPCompliance: 50,
		models.ComponentProductionAudit: 25,
		models.ComponentSupplierQuality: 15,
		models.ComponentCAPACompletion:  10,
	}
	supplierWeights = map[string]float64{
		models.ComponentAuditPerformance: 40,
		models.ComponentProductQuality:   30,
		models.ComponentCompliance:       20,
		models.ComponentDeliveryPerf:     10,
	}
)

// BranchInputs are the raw observations feeding a branch score.
type BranchInputs struct {
	AuditScores90d   []float64
	CAPAs            []*models.CAPA
	CurrentFindings  []string // descriptions on the most recent audit
	PriorFindings    []string // descriptions from audits completed in the trailing 60 days, excluding the most recent audit
	OpenIncidents30d int
}

// KitchenInputs are the raw observations feeding a kitchen score.
type KitchenInputs struct {
	LatestAuditScore *float64 // most recently completed approved audit
	AuditScores90d   []float64
	SupplierScores   []float64 // quality scores of suppliers serving this kitchen
	CAPAs            []*models.CAPA
}

// SupplierInputs are the raw observations feeding a supplier score.
type SupplierInputs struct {
	AuditScores90d     []float64
	IncidentTotal      int
	CertificationCount int
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// weightedSum rounds each component to one decimal, blends by weight, and
// rounds the final score to one decimal. The rounded components are written
// back so the stored breakdown matches what was blended.
func weightedSum(components map[string]float64, weights map[string]float64) float64 {
	total := 0.0
	for name, weight := range weights {
		v := round1(components[name])
		components[name] = v
		total += v * weight / 100
	}
	return round1(total)
}

// capaCompletionPct is the share of closed CAPAs whose closing activity
// occurred on or before the due date. An entity with no closed CAPAs scores
// 100: innocent until proven late.
func capaCompletionPct(capas []*models.CAPA) float64 {
	closed, onTime := 0, 0
	for _, c := range capas {
		if !c.Closed() {
			continue
		}
		closed++
		if c.ClosedOnTime() {
			onTime++
		}
	}
	if closed == 0 {
		return 100
	}
	return float64(onTime) / float64(closed) * 100
}

// verificationPassPct is the share of closed CAPAs that were never rejected
// during their activity history, 100 when none are closed.
func verificationPassPct(capas []*models.CAPA) float64 {
	closed, clean := 0, 0
	for _, c := range capas {
		if !c.Closed() {
			continue
		}
		closed++
		if !c.EverRejected {
			clean++
		}
	}
	if closed == 0 {
		return 100
	}
	return float64(clean) / float64(closed) * 100
}

// ComputeBranchScore blends the branch components: audit performance 40%,
// CAPA completion 25%, repeat findings 15%, incident rate 10%, verification
// pass 10%.
func ComputeBranchScore(in BranchInputs) (float64, map[string]float64) {
	repeats := CountRepeatFindings(in.CurrentFindings, in.PriorFindings)

	components := map[string]float64{
		models.ComponentAuditPerformance: mean(in.AuditScores90d),
		models.ComponentCAPACompletion:   capaCompletionPct(in.CAPAs),
		models.ComponentRepeatFindings:   100 - math.Min(50, 10*float64(repeats)),
		models.ComponentIncidentRate:     math.Max(0, 100-20*float64(in.OpenIncidents30d)),
		models.ComponentVerificationPass: verificationPassPct(in.CAPAs),
	}

	return weightedSum(components, branchWeights), components
}

// ComputeKitchenScore blends the kitchen components: HACCP compliance 50%,
// production audit performance 25%, supplier quality 15%, CAPA completion 10%.
func ComputeKitchenScore(in KitchenInputs) (float64, map[string]float64) {
	haccp := 0.0
	if in.LatestAuditScore != nil {
		haccp = *in.LatestAuditScore
	}

	supplierQuality := 100.0
	if len(in.SupplierScores) > 0 {
		supplierQuality = mean(in.SupplierScores)
	}

	components := map[string]float64{
		models.ComponentHACCPCompliance: haccp,
		models.ComponentProductionAudit: mean(in.AuditScores90d),
		models.ComponentSupplierQuality: supplierQuality,
		models.ComponentCAPACompletion:  capaCompletionPct(in.CAPAs),
	}

	return weightedSum(components, kitchenWeights), components
}

// ComputeSupplierScore blends the supplier components: audit performance 40%,
// product quality 30%, compliance 20%, delivery performance 10%. Compliance
// is a binary certification-presence proxy and delivery performance a fixed
// placeholder until real delivery data feeds it.
func ComputeSupplierScore(in SupplierInputs) (float64, map[string]float64) {
	compliance := 50.0
	if in.CertificationCount > 0 {
		compliance = 100
	}

	components := map[string]float64{
		models.ComponentAuditPerformance: mean(in.AuditScores90d),
		models.ComponentProductQuality:   math.Max(0, 100-10*float64(in.IncidentTotal)),
		models.ComponentCompliance:       compliance,
		models.ComponentDeliveryPerf:     100,
	}

	return weightedSum(components, supplierWeights), components
}

// HealthScoreService computes and persists composite health scores per
// entity, mirrors them onto the entity's denormalized field, and triggers
// supplier auto-suspension.
type HealthScoreService interface {
	RecalculateBranch(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error)
	RecalculateKitchen(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error)
	RecalculateSupplier(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error)
}

type healthScoreService struct {
	auditRepo        repositories.AuditRepository
	findingRepo      repositories.FindingRepository
	capaRepo         repositories.CAPARepository
	incidentRepo     repositories.IncidentRepository
	branchRepo       repositories.BranchRepository
	kitchenRepo      repositories.KitchenRepository
	supplierRepo     repositories.SupplierRepository
	healthRepo       repositories.HealthScoreRepository
	notificationRepo repositories.NotificationRepository
	identity         IdentityDirectory
	cache            *ScoreCache
	cfg              *config.HealthConfig
	logger           *zap.Logger
}

// NewHealthScoreService creates a new HealthScoreService.
func NewHealthScoreService(
	auditRepo repositories.AuditRepository,
	findingRepo repositories.FindingRepository,
	capaRepo repositories.CAPARepository,
	incidentRepo repositories.IncidentRepository,
	branchRepo repositories.BranchRepository,
	kitchenRepo repositories.KitchenRepository,
	supplierRepo repositories.SupplierRepository,
	healthRepo repositories.HealthScoreRepository,
	notificationRepo repositories.NotificationRepository,
	identity IdentityDirectory,
	cache *ScoreCache,
	cfg *config.HealthConfig,
	logger *zap.Logger,
) HealthScoreService {
	return &healthScoreService{
		auditRepo:        auditRepo,
		findingRepo:      findingRepo,
		capaRepo:         capaRepo,
		incidentRepo:     incidentRepo,
		branchRepo:       branchRepo,
		kitchenRepo:      kitchenRepo,
		supplierRepo:     supplierRepo,
		healthRepo:       healthRepo,
		notificationRepo: notificationRepo,
		identity:         identity,
		cache:            cache,
		cfg:              cfg,
		logger:           logger.Named("health-score"),
	}
}

var _ HealthScoreService = (*healthScoreService)(nil)

func (s *healthScoreService) RecalculateBranch(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error) {
	if _, err := s.branchRepo.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}

	now := time.Now()
	audits, err := s.auditRepo.ListApprovedByTarget(ctx, models.EntityTypeBranch, id, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list branch audits: %w", err)
	}

	capas, err := s.capaRepo.ListByTarget(ctx, models.EntityTypeBranch, id)
	if err != nil {
		return nil, fmt.Errorf("list branch CAPAs: %w", err)
	}

	open30, err := s.incidentRepo.CountOpenSince(ctx, models.EntityTypeBranch, id,
		now.AddDate(0, 0, -incidentWindowDays))
	if err != nil {
		return nil, fmt.Errorf("count branch incidents: %w", err)
	}

	current, prior, err := s.repeatFindingInputs(ctx, audits, now)
	if err != nil {
		return nil, err
	}

	score, components := ComputeBranchScore(BranchInputs{
		AuditScores90d:   auditScoresWithin(audits, now.AddDate(0, 0, -auditWindowDays)),
		CAPAs:            capas,
		CurrentFindings:  current,
		PriorFindings:    prior,
		OpenIncidents30d: open30,
	})

	record := &models.HealthScoreRecord{
		EntityType: models.EntityTypeBranch,
		EntityID:   id,
		Score:      score,
		Components: components,
		ComputedAt: now,
	}

	err = s.persistScore(ctx, record, func(ctx context.Context) error {
		return s.branchRepo.UpdateHealthScore(ctx, id, score)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *healthScoreService) RecalculateKitchen(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error) {
	if _, err := s.kitchenRepo.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("get kitchen: %w", err)
	}

	now := time.Now()
	audits, err := s.auditRepo.ListApprovedByTarget(ctx, models.EntityTypeKitchen, id, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list kitchen audits: %w", err)
	}

	capas, err := s.capaRepo.ListByTarget(ctx, models.EntityTypeKitchen, id)
	if err != nil {
		return nil, fmt.Errorf("list kitchen CAPAs: %w", err)
	}

	// Kitchen scores read supplier quality scores, which is why batch
	// recalculation computes suppliers first.
	suppliers, err := s.supplierRepo.ListByCustomerKitchen(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list kitchen suppliers: %w", err)
	}
	var supplierScores []float64
	for _, sup := range suppliers {
		if sup.QualityScore != nil {
			supplierScores = append(supplierScores, *sup.QualityScore)
		}
	}

	var latest *float64
	if len(audits) > 0 {
		latest = audits[0].Score
	}

	score, components := ComputeKitchenScore(KitchenInputs{
		LatestAuditScore: latest,
		AuditScores90d:   auditScoresWithin(audits, now.AddDate(0, 0, -auditWindowDays)),
		SupplierScores:   supplierScores,
		CAPAs:            capas,
	})

	record := &models.HealthScoreRecord{
		EntityType: models.EntityTypeKitchen,
		EntityID:   id,
		Score:      score,
		Components: components,
		ComputedAt: now,
	}

	err = s.persistScore(ctx, record, func(ctx context.Context) error {
		return s.kitchenRepo.UpdateHealthScore(ctx, id, score)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *healthScoreService) RecalculateSupplier(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error) {
	supplier, err := s.supplierRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get supplier: %w", err)
	}

	now := time.Now()
	audits, err := s.auditRepo.ListApprovedByTarget(ctx, models.EntityTypeSupplier, id,
		now.AddDate(0, 0, -auditWindowDays))
	if err != nil {
		return nil, fmt.Errorf("list supplier audits: %w", err)
	}

	score, components := ComputeSupplierScore(SupplierInputs{
		AuditScores90d:     auditScores(audits),
		IncidentTotal:      supplier.IncidentTotal,
		CertificationCount: len(supplier.Certifications),
	})

	record := &models.HealthScoreRecord{
		EntityType: models.EntityTypeSupplier,
		EntityID:   id,
		Score:      score,
		Components: components,
		ComputedAt: now,
	}

	err = s.persistScore(ctx, record, func(ctx context.Context) error {
		return s.supplierRepo.UpdateQualityScore(ctx, id, score)
	})
	if err != nil {
		return nil, err
	}

	if err := s.autoSuspend(ctx, supplier, score); err != nil {
		return nil, err
	}

	return record, nil
}

// autoSuspend fires exactly once per recomputation that crosses the
// threshold: an already-suspended supplier is never re-suspended or
// re-notified, and recovery above the threshold never un-suspends.
func (s *healthScoreService) autoSuspend(ctx context.Context, supplier *models.Supplier, score float64) error {
	if score >= s.cfg.SuspensionThreshold || supplier.Status != models.SupplierStatusActive {
		return nil
	}

	if err := s.supplierRepo.UpdateStatus(ctx, supplier.ID, models.SupplierStatusSuspended); err != nil {
		return fmt.Errorf("suspend supplier: %w", err)
	}

	s.logger.Warn("supplier auto-suspended",
		zap.String("supplier_id", supplier.ID.String()),
		zap.String("supplier_code", supplier.Code),
		zap.Float64("score", score))

	managers, err := s.identity.ActiveAuditManagers(ctx)
	if err != nil {
		return fmt.Errorf("list audit managers: %w", err)
	}

	message := fmt.Sprintf("Supplier %s was suspended automatically: quality score %.1f fell below %.0f",
		supplier.Name, score, s.cfg.SuspensionThreshold)
	for _, m := range managers {
		err := s.notificationRepo.Create(ctx, &models.Notification{
			UserID:  m.ID,
			Kind:    models.NotificationSupplierSuspended,
			Message: message,
		})
		if err != nil {
			return fmt.Errorf("create suspension notification: %w", err)
		}
	}

	return nil
}

// persistScore upserts the authoritative record and mirrors the score onto
// the entity's denormalized field, refreshing the read cache afterwards. On
// failure the previous record is left untouched so a retry recomputes from
// scratch.
func (s *healthScoreService) persistScore(ctx context.Context, record *models.HealthScoreRecord, mirror func(context.Context) error) error {
	err := retry.DoIfRetryable(ctx, nil, func() error {
		if err := s.healthRepo.Upsert(ctx, record); err != nil {
			return err
		}
		return mirror(ctx)
	})
	if err != nil {
		return fmt.Errorf("persist health score: %w", err)
	}

	if err := s.cache.Set(ctx, record); err != nil {
		// Cache refresh is best-effort; the database copies are authoritative.
		s.logger.Warn("score cache refresh failed",
			zap.String("entity_id", record.EntityID.String()),
			zap.Error(err))
	}

	return nil
}

// repeatFindingInputs returns the descriptions of findings on the most
// recent audit and of findings from audits completed in the trailing 60
// days, excluding the most recent audit itself. Audits must be ordered most
// recently completed first.
func (s *healthScoreService) repeatFindingInputs(ctx context.Context, audits []*models.Audit, now time.Time) (current, prior []string, err error) {
	if len(audits) == 0 {
		return nil, nil, nil
	}

	cutoff := now.AddDate(0, 0, -repeatWindowDays)
	ids := []uuid.UUID{audits[0].ID}
	for _, a := range audits[1:] {
		if a.CompletedAt != nil && !a.CompletedAt.Before(cutoff) {
			ids = append(ids, a.ID)
		}
	}

	byAudit, err := s.findingRepo.ListByAudits(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("list findings for repeat detection: %w", err)
	}

	for _, f := range byAudit[audits[0].ID] {
		current = append(current, f.Description)
	}
	for _, id := range ids[1:] {
		for _, f := range byAudit[id] {
			prior = append(prior, f.Description)
		}
	}

	return current, prior, nil
}

func auditScores(audits []*models.Audit) []float64 {
	var scores []float64
	for _, a := range audits {
		if a.Score != nil {
			scores = append(scores, *a.Score)
		}
	}
	return scores
}

func auditScoresWithin(audits []*models.Audit, cutoff time.Time) []float64 {
	var scores []float64
	for _, a := range audits {
		if a.Score != nil && a.CompletedAt != nil && !a.CompletedAt.Before(cutoff) {
			scores = append(scores, *a.Score)
		}
	}
	return scores
}
