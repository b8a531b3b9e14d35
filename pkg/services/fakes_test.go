package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/models"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
)

func boolPtr(b bool) *bool           { return &b }
func intPtr(i int) *int              { return &i }
func f64Ptr(f float64) *float64      { return &f }
func timePtr(t time.Time) *time.Time { return &t }

type fakeAuditRepo struct {
	mu               sync.Mutex
	audits           map[uuid.UUID]*models.Audit
	responses        map[uuid.UUID]map[uuid.UUID]*models.ItemResponse
	approved         []*models.Audit
	submissions      []*repositories.Submission
	saveCalls        int
	markedInProgress []uuid.UUID
	saveErr          error
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{
		audits:    make(map[uuid.UUID]*models.Audit),
		responses: make(map[uuid.UUID]map[uuid.UUID]*models.ItemResponse),
	}
}

func (f *fakeAuditRepo) Create(ctx context.Context, audit *models.Audit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits[audit.ID] = audit
	return nil
}

func (f *fakeAuditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	audit, ok := f.audits[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *audit
	return &copied, nil
}

func (f *fakeAuditRepo) MarkInProgress(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	audit, ok := f.audits[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if audit.Status == models.AuditStatusScheduled {
		audit.Status = models.AuditStatusInProgress
		audit.StartedAt = &startedAt
		f.markedInProgress = append(f.markedInProgress, id)
	}
	return nil
}

func (f *fakeAuditRepo) SaveResponses(ctx context.Context, auditID uuid.UUID, responses []*models.ItemResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saveCalls++
	stored, ok := f.responses[auditID]
	if !ok {
		stored = make(map[uuid.UUID]*models.ItemResponse)
		f.responses[auditID] = stored
	}
	for _, resp := range responses {
		stored[resp.ItemID] = resp
	}
	return nil
}

func (f *fakeAuditRepo) GetResponses(ctx context.Context, auditID uuid.UUID) (map[uuid.UUID]*models.ItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]*models.ItemResponse, len(f.responses[auditID]))
	for id, resp := range f.responses[auditID] {
		out[id] = resp
	}
	return out, nil
}

func (f *fakeAuditRepo) Submit(ctx context.Context, sub *repositories.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	audit, ok := f.audits[sub.AuditID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if audit.Status != models.AuditStatusInProgress {
		return apperrors.ErrInvalidTransition
	}
	audit.Status = models.AuditStatusPendingVerification
	audit.CompletedAt = &sub.CompletedAt
	audit.Score = &sub.Score
	audit.Passed = &sub.Passed
	audit.CriticalFail = sub.CriticalFail
	f.submissions = append(f.submissions, sub)
	return nil
}

func (f *fakeAuditRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.AuditStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	audit, ok := f.audits[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if audit.Status != from {
		return apperrors.ErrInvalidTransition
	}
	audit.Status = to
	return nil
}

func (f *fakeAuditRepo) ListApprovedByTarget(ctx context.Context, targetType models.EntityType, targetID uuid.UUID, since time.Time) ([]*models.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Audit
	for _, a := range f.approved {
		if a.TargetType != targetType || a.TargetID != targetID {
			continue
		}
		if a.CompletedAt == nil || a.CompletedAt.Before(since) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type fakeTemplateRepo struct {
	templates map[uuid.UUID]*models.ChecklistTemplate
}

func (f *fakeTemplateRepo) Create(ctx context.Context, tpl *models.ChecklistTemplate) error {
	f.templates[tpl.ID] = tpl
	return nil
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ChecklistTemplate, error) {
	tpl, ok := f.templates[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return tpl, nil
}

func (f *fakeTemplateRepo) ListByTargetType(ctx context.Context, targetType models.EntityType) ([]*models.ChecklistTemplate, error) {
	var out []*models.ChecklistTemplate
	for _, tpl := range f.templates {
		if tpl.TargetType == targetType {
			out = append(out, tpl)
		}
	}
	return out, nil
}

type fakeFindingRepo struct {
	findings map[uuid.UUID][]*models.Finding // by audit id
}

func (f *fakeFindingRepo) Create(ctx context.Context, finding *models.Finding) error {
	f.findings[finding.AuditID] = append(f.findings[finding.AuditID], finding)
	return nil
}

func (f *fakeFindingRepo) ListByAudit(ctx context.Context, auditID uuid.UUID) ([]*models.Finding, error) {
	return f.findings[auditID], nil
}

func (f *fakeFindingRepo) ListByAudits(ctx context.Context, auditIDs []uuid.UUID) (map[uuid.UUID][]*models.Finding, error) {
	out := make(map[uuid.UUID][]*models.Finding)
	for _, id := range auditIDs {
		if fs := f.findings[id]; len(fs) > 0 {
			out[id] = fs
		}
	}
	return out, nil
}

type fakeCAPARepo struct {
	capas []*models.CAPA
}

func (f *fakeCAPARepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CAPA, error) {
	for _, c := range f.capas {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeCAPARepo) ListByTarget(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) ([]*models.CAPA, error) {
	var out []*models.CAPA
	for _, c := range f.capas {
		if c.TargetType == targetType && c.TargetID == targetID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCAPARepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CAPAStatus) error {
	for _, c := range f.capas {
		if c.ID == id {
			c.Status = status
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type fakeIncidentRepo struct {
	openCounts map[uuid.UUID]int
}

func (f *fakeIncidentRepo) Create(ctx context.Context, incident *models.Incident) error {
	return nil
}

func (f *fakeIncidentRepo) CountOpenSince(ctx context.Context, targetType models.EntityType, targetID uuid.UUID, since time.Time) (int, error) {
	return f.openCounts[targetID], nil
}

type fakeBranchRepo struct {
	mu       sync.Mutex
	branches map[uuid.UUID]*models.Branch
	scores   map[uuid.UUID]float64
}

func (f *fakeBranchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return b, nil
}

func (f *fakeBranchRepo) ListAll(ctx context.Context) ([]*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Branch
	for _, b := range f.branches {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBranchRepo) UpdateHealthScore(ctx context.Context, id uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scores == nil {
		f.scores = make(map[uuid.UUID]float64)
	}
	f.scores[id] = score
	return nil
}

type fakeKitchenRepo struct {
	mu       sync.Mutex
	kitchens map[uuid.UUID]*models.Kitchen
	scores   map[uuid.UUID]float64
}

func (f *fakeKitchenRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Kitchen, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.kitchens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return k, nil
}

func (f *fakeKitchenRepo) ListAll(ctx context.Context) ([]*models.Kitchen, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Kitchen
	for _, k := range f.kitchens {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeKitchenRepo) UpdateHealthScore(ctx context.Context, id uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scores == nil {
		f.scores = make(map[uuid.UUID]float64)
	}
	f.scores[id] = score
	return nil
}

type fakeSupplierRepo struct {
	mu        sync.Mutex
	suppliers map[uuid.UUID]*models.Supplier
	byKitchen map[uuid.UUID][]*models.Supplier
	scores    map[uuid.UUID]float64
	statuses  []models.SupplierStatus
}

func (f *fakeSupplierRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSupplierRepo) ListAll(ctx context.Context) ([]*models.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Supplier
	for _, s := range f.suppliers {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSupplierRepo) ListByCustomerKitchen(ctx context.Context, kitchenID uuid.UUID) ([]*models.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byKitchen[kitchenID], nil
}

func (f *fakeSupplierRepo) UpdateQualityScore(ctx context.Context, id uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scores == nil {
		f.scores = make(map[uuid.UUID]float64)
	}
	f.scores[id] = score
	return nil
}

func (f *fakeSupplierRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SupplierStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	s.Status = status
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeHealthScoreRepo struct {
	mu         sync.Mutex
	records    map[string]*models.HealthScoreRecord
	lastRun    time.Time
	lastRunSet bool
}

func newFakeHealthScoreRepo() *fakeHealthScoreRepo {
	return &fakeHealthScoreRepo{records: make(map[string]*models.HealthScoreRecord)}
}

func healthKey(entityType models.EntityType, id uuid.UUID) string {
	return string(entityType) + ":" + id.String()
}

func (f *fakeHealthScoreRepo) Upsert(ctx context.Context, record *models.HealthScoreRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[healthKey(record.EntityType, record.EntityID)] = record
	return nil
}

func (f *fakeHealthScoreRepo) GetByEntity(ctx context.Context, entityType models.EntityType, entityID uuid.UUID) (*models.HealthScoreRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[healthKey(entityType, entityID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return record, nil
}

func (f *fakeHealthScoreRepo) ListAll(ctx context.Context) ([]*models.HealthScoreRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.HealthScoreRecord
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeHealthScoreRepo) GetLastBatchRun(ctx context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRun, f.lastRunSet, nil
}

func (f *fakeHealthScoreRepo) SetLastBatchRun(ctx context.Context, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRun = completedAt
	f.lastRunSet = true
	return nil
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	created []*models.Notification
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, n)
	return nil
}

type fakeIdentity struct {
	assignee    uuid.UUID
	assigneeErr error
	managers    []*models.User
}

func (f *fakeIdentity) ResponsibleFor(ctx context.Context, targetType models.EntityType, targetID uuid.UUID) (uuid.UUID, error) {
	if f.assigneeErr != nil {
		return uuid.Nil, f.assigneeErr
	}
	return f.assignee, nil
}

func (f *fakeIdentity) ActiveAuditManagers(ctx context.Context) ([]*models.User, error) {
	return f.managers, nil
}

type fakeHealthService struct {
	mu     sync.Mutex
	order  []string
	failOn map[uuid.UUID]error
}

func (f *fakeHealthService) recalculate(kind string, id uuid.UUID) (*models.HealthScoreRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, fmt.Sprintf("%s:%s", kind, id))
	if err := f.failOn[id]; err != nil {
		return nil, err
	}
	return &models.HealthScoreRecord{EntityID: id}, nil
}

func (f *fakeHealthService) RecalculateBranch(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error) {
	return f.recalculate("branch", id)
}

func (f *fakeHealthService) RecalculateKitchen(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error) {
	return f.recalculate("kitchen", id)
}

func (f *fakeHealthService) RecalculateSupplier(ctx context.Context, id uuid.UUID) (*models.HealthScoreRecord, error) {
	return f.recalculate("supplier", id)
}

func (f *fakeHealthService) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}
