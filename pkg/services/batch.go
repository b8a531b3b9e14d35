package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/config"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
)

// BatchService recomputes every entity's health score when the last full run
// is older than the staleness window. Runs are single-flight: concurrent
// triggers collapse into one run.
type BatchService interface {
	// IsStale reports whether a full recalculation is due.
	IsStale(ctx context.Context) (bool, error)

	// RunBatch recomputes all supplier, then kitchen, then branch scores.
	// The ordering matters: kitchen scores read supplier quality scores, and
	// branch reporting reads both. Per-entity failures are collected and do
	// not stop the run, but any failure leaves the last-run marker untouched
	// so the next trigger retries.
	RunBatch(ctx context.Context) error

	// KickIfStale starts a background run when scores are stale and no run
	// is in flight. It returns immediately; callers never wait on the batch.
	KickIfStale(ctx context.Context)
}

type batchService struct {
	health       HealthScoreService
	branchRepo   repositories.BranchRepository
	kitchenRepo  repositories.KitchenRepository
	supplierRepo repositories.SupplierRepository
	healthRepo   repositories.HealthScoreRepository
	cfg          *config.HealthConfig
	logger       *zap.Logger
	now          func() time.Time

	running atomic.Bool
}

// NewBatchService creates a new BatchService.
func NewBatchService(
	health HealthScoreService,
	branchRepo repositories.BranchRepository,
	kitchenRepo repositories.KitchenRepository,
	supplierRepo repositories.SupplierRepository,
	healthRepo repositories.HealthScoreRepository,
	cfg *config.HealthConfig,
	logger *zap.Logger,
) BatchService {
	return &batchService{
		health:       health,
		branchRepo:   branchRepo,
		kitchenRepo:  kitchenRepo,
		supplierRepo: supplierRepo,
		healthRepo:   healthRepo,
		cfg:          cfg,
		logger:       logger.Named("score-batch"),
		now:          time.Now,
	}
}

var _ BatchService = (*batchService)(nil)

func (s *batchService) IsStale(ctx context.Context) (bool, error) {
	lastRun, found, err := s.healthRepo.GetLastBatchRun(ctx)
	if err != nil {
		return false, fmt.Errorf("get last batch run: %w", err)
	}
	if !found {
		return true, nil
	}

	// Strictly older than the window; a run exactly at the boundary is
	// still fresh.
	staleness := time.Duration(s.cfg.StalenessHours) * time.Hour
	return s.now().Sub(lastRun) > staleness, nil
}

func (s *batchService) RunBatch(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("batch already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	start := time.Now()
	var errs []error

	suppliers, err := s.supplierRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list suppliers: %w", err)
	}
	for _, sup := range suppliers {
		if _, err := s.health.RecalculateSupplier(ctx, sup.ID); err != nil {
			errs = append(errs, fmt.Errorf("supplier %s: %w", sup.ID, err))
		}
	}

	kitchens, err := s.kitchenRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list kitchens: %w", err)
	}
	for _, k := range kitchens {
		if _, err := s.health.RecalculateKitchen(ctx, k.ID); err != nil {
			errs = append(errs, fmt.Errorf("kitchen %s: %w", k.ID, err))
		}
	}

	branches, err := s.branchRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list branches: %w", err)
	}
	for _, b := range branches {
		if _, err := s.health.RecalculateBranch(ctx, b.ID); err != nil {
			errs = append(errs, fmt.Errorf("branch %s: %w", b.ID, err))
		}
	}

	if len(errs) > 0 {
		// Leave the last-run marker alone so the next trigger retries the
		// whole batch; recomputation is idempotent.
		s.logger.Error("batch recalculation finished with failures",
			zap.Int("failed", len(errs)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(errors.Join(errs...)))
		return fmt.Errorf("batch recalculation: %d entity(ies) failed: %w", len(errs), errors.Join(errs...))
	}

	if err := s.healthRepo.SetLastBatchRun(ctx, time.Now()); err != nil {
		return fmt.Errorf("record batch run: %w", err)
	}

	s.logger.Info("batch recalculation complete",
		zap.Int("suppliers", len(suppliers)),
		zap.Int("kitchens", len(kitchens)),
		zap.Int("branches", len(branches)),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

func (s *batchService) KickIfStale(ctx context.Context) {
	stale, err := s.IsStale(ctx)
	if err != nil {
		s.logger.Warn("staleness check failed", zap.Error(err))
		return
	}
	if !stale {
		return
	}

	// Detach from the caller's request context; the batch outlives it.
	go func() {
		if err := s.RunBatch(context.Background()); err != nil {
			s.logger.Error("background batch run failed", zap.Error(err))
		}
	}()
}
