package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/models"
)

// DraftPersistFunc persists buffered draft responses for one audit.
type DraftPersistFunc func(ctx context.Context, auditID uuid.UUID, responses []*models.ItemResponse) error

// DraftAutosave buffers in-flight item responses and persists them after a
// quiet period, so every keystroke does not hit the store. A synchronous
// Flush supersedes any pending timer: submission flushes before its own
// atomic write, so an in-flight autosave can never race with and overwrite a
// submission.
type DraftAutosave struct {
	mu      sync.Mutex
	quiet   time.Duration
	persist DraftPersistFunc
	drafts  map[uuid.UUID]*draftState
	flushes map[uuid.UUID]*sync.Mutex
	logger  *zap.Logger
}

type draftState struct {
	responses map[uuid.UUID]*models.ItemResponse
	timer     *time.Timer
}

// NewDraftAutosave creates a DraftAutosave with the given quiet period.
func NewDraftAutosave(quiet time.Duration, persist DraftPersistFunc, logger *zap.Logger) *DraftAutosave {
	return &DraftAutosave{
		quiet:   quiet,
		persist: persist,
		drafts:  make(map[uuid.UUID]*draftState),
		flushes: make(map[uuid.UUID]*sync.Mutex),
		logger:  logger.Named("draft-autosave"),
	}
}

// Record buffers a response change and restarts the audit's quiet-period
// timer. When the timer fires without further changes, the buffer is
// persisted in the background.
func (d *DraftAutosave) Record(auditID uuid.UUID, resp *models.ItemResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.drafts[auditID]
	if !ok {
		state = &draftState{responses: make(map[uuid.UUID]*models.ItemResponse)}
		d.drafts[auditID] = state
	}
	state.responses[resp.ItemID] = resp

	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = time.AfterFunc(d.quiet, func() {
		if err := d.Flush(context.Background(), auditID); err != nil {
			d.logger.Warn("background draft persist failed",
				zap.String("audit_id", auditID.String()),
				zap.Error(err))
		}
	})
}

// flushLock returns the audit's persist mutex. Entries are never removed, so
// every flush for an audit serializes on the same mutex.
func (d *DraftAutosave) flushLock(auditID uuid.UUID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.flushes[auditID]
	if !ok {
		lock = &sync.Mutex{}
		d.flushes[auditID] = lock
	}
	return lock
}

// Flush cancels any pending timer and persists the audit's buffered
// responses synchronously. The buffer is kept on persist failure so a later
// flush retries; it is cleared on success. Flushing an audit with no buffered
// draft is a no-op.
//
// The audit's flush mutex is held across the persist call, so a slow
// background flush can never land after a later flush and overwrite newer
// responses with stale ones.
func (d *DraftAutosave) Flush(ctx context.Context, auditID uuid.UUID) error {
	lock := d.flushLock(auditID)
	lock.Lock()
	defer lock.Unlock()

	d.mu.Lock()
	state, ok := d.drafts[auditID]
	if !ok || len(state.responses) == 0 {
		d.mu.Unlock()
		return nil
	}
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
	responses := make([]*models.ItemResponse, 0, len(state.responses))
	for _, resp := range state.responses {
		responses = append(responses, resp)
	}
	d.mu.Unlock()

	if err := d.persist(ctx, auditID, responses); err != nil {
		return err
	}

	d.mu.Lock()
	if state, ok := d.drafts[auditID]; ok {
		for _, resp := range responses {
			if state.responses[resp.ItemID] == resp {
				delete(state.responses, resp.ItemID)
			}
		}
		if len(state.responses) == 0 {
			delete(d.drafts, auditID)
		}
	}
	d.mu.Unlock()

	return nil
}

// Pending reports whether the audit has unsaved draft responses.
func (d *DraftAutosave) Pending(auditID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.drafts[auditID]
	return ok && len(state.responses) > 0
}
