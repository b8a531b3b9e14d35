package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/config"
	"github.com/savoria-foods/quality-engine/pkg/models"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
)

// Names of the ordered submission validation checks.
const (
	CheckCompletion = "completion"
	CheckEvidence   = "evidence"
	CheckCritical   = "critical_items"
)

// ValidationFailure is a user-correctable submission rejection. It carries a
// structured reason and a pointer to the first offending item for UI
// scroll-to; it never corrupts state and the submission is safely retryable
// after the input is fixed.
type ValidationFailure struct {
	Check         string    `json:"check"`
	Message       string    `json:"message"`
	CompletionPct float64   `json:"completion_pct,omitempty"`
	Count         int       `json:"count,omitempty"`
	FirstItemID   uuid.UUID `json:"first_item_id,omitempty"`
}

// SubmitResult is the outcome of a submission attempt. Exactly one of
// Validation or Score is set: a validation failure leaves the audit untouched.
type SubmitResult struct {
	Validation *ValidationFailure `json:"validation,omitempty"`
	Score      *ScoreResult       `json:"score,omitempty"`
	Findings   []*models.Finding  `json:"findings,omitempty"`
	CAPAs      []*models.CAPA     `json:"capas,omitempty"`
}

// AuditExecutionService governs the lifecycle of a single audit instance:
// scheduled → in_progress → pending_verification → {approved | rejected},
// with cancelled reachable only from scheduled.
type AuditExecutionService interface {
	// OnResponseChanged records a draft response. The first answered response
	// transitions a scheduled audit to in_progress; repeated triggers are
	// no-ops. Draft persistence is debounced.
	OnResponseChanged(ctx context.Context, auditID uuid.UUID, resp *models.ItemResponse) error

	// FlushDraft persists any buffered draft responses synchronously.
	FlushDraft(ctx context.Context, auditID uuid.UUID) error

	// Preview recomputes the live score for the audit's current responses
	// without side effects.
	Preview(ctx context.Context, auditID uuid.UUID) (*ScoreResult, error)

	// Submit validates and, on success, atomically persists the submission:
	// responses, frozen score, derived findings and CAPAs, and the
	// pending_verification transition. A validation failure is returned in
	// the result, not as an error.
	Submit(ctx context.Context, auditID uuid.UUID) (*SubmitResult, error)

	// Approve and Reject resolve a pending_verification audit.
	Approve(ctx context.Context, auditID uuid.UUID) error
	Reject(ctx context.Context, auditID uuid.UUID) error

	// Cancel terminates an audit that never started.
	Cancel(ctx context.Context, auditID uuid.UUID) error
}

type auditExecutionService struct {
	auditRepo    repositories.AuditRepository
	templateRepo repositories.TemplateRepository
	identity     IdentityDirectory
	autosave     *DraftAutosave
	scoringCfg   *config.ScoringConfig
	capaCfg      *config.CAPAConfig
	logger       *zap.Logger
}

// NewAuditExecutionService creates a new AuditExecutionService.
func NewAuditExecutionService(
	auditRepo repositories.AuditRepository,
	templateRepo repositories.TemplateRepository,
	identity IdentityDirectory,
	autosave *DraftAutosave,
	scoringCfg *config.ScoringConfig,
	capaCfg *config.CAPAConfig,
	logger *zap.Logger,
) AuditExecutionService {
	return &auditExecutionService{
		auditRepo:    auditRepo,
		templateRepo: templateRepo,
		identity:     identity,
		autosave:     autosave,
		scoringCfg:   scoringCfg,
		capaCfg:      capaCfg,
		logger:       logger.Named("audit-execution"),
	}
}

var _ AuditExecutionService = (*auditExecutionService)(nil)

func (s *auditExecutionService) OnResponseChanged(ctx context.Context, auditID uuid.UUID, resp *models.ItemResponse) error {
	audit, err := s.auditRepo.GetByID(ctx, auditID)
	if err != nil {
		return fmt.Errorf("get audit: %w", err)
	}

	if audit.Submitted() || audit.Status == models.AuditStatusCancelled {
		return apperrors.ErrAlreadySubmitted
	}

	// First answered response starts the audit. MarkInProgress only touches
	// rows still in scheduled, so repeated triggers are no-ops.
	if audit.Status == models.AuditStatusScheduled && (resp.Answered() || resp.Note != "") {
		if err := s.auditRepo.MarkInProgress(ctx, auditID, time.Now()); err != nil {
			return fmt.Errorf("mark in progress: %w", err)
		}
	}

	s.autosave.Record(auditID, resp)
	return nil
}

func (s *auditExecutionService) FlushDraft(ctx context.Context, auditID uuid.UUID) error {
	return s.autosave.Flush(ctx, auditID)
}

func (s *auditExecutionService) Preview(ctx context.Context, auditID uuid.UUID) (*ScoreResult, error) {
	_, tpl, responses, err := s.loadExecution(ctx, auditID)
	if err != nil {
		return nil, err
	}

	result := ScoreChecklist(tpl, responses)
	return &result, nil
}

// ValidateSubmission runs the ordered submission checks and returns the first
// failure, or nil when the audit is ready to submit:
//  1. completion: at least completionThreshold percent of items answered;
//  2. evidence: every required-evidence item has enough attachments;
//  3. critical items: no critical item left unanswered.
func ValidateSubmission(tpl *models.ChecklistTemplate, responses map[uuid.UUID]*models.ItemResponse, completionThreshold float64) *ValidationFailure {
	total := tpl.ItemCount()
	if total == 0 {
		return nil
	}

	answered := 0
	var firstUnanswered uuid.UUID
	for _, section := range tpl.Sections {
		for _, item := range section.Items {
			if responses[item.ID].Answered() {
				answered++
			} else if firstUnanswered == uuid.Nil {
				firstUnanswered = item.ID
			}
		}
	}

	completionPct := float64(answered) / float64(total) * 100
	if completionPct < completionThreshold {
		return &ValidationFailure{
			Check: CheckCompletion,
			Message: fmt.Sprintf("only %.1f%% of items answered; %.0f%% required",
				completionPct, completionThreshold),
			CompletionPct: completionPct,
			FirstItemID:   firstUnanswered,
		}
	}

	missingEvidence := 0
	var firstMissingEvidence uuid.UUID
	for _, section := range tpl.Sections {
		for _, item := range section.Items {
			required := item.Evidence.MinAttachments()
			if required == 0 {
				continue
			}
			have := 0
			if resp := responses[item.ID]; resp != nil {
				have = len(resp.Evidence)
			}
			if have < required {
				missingEvidence++
				if firstMissingEvidence == uuid.Nil {
					firstMissingEvidence = item.ID
				}
			}
		}
	}
	if missingEvidence > 0 {
		return &ValidationFailure{
			Check:       CheckEvidence,
			Message:     fmt.Sprintf("%d item(s) missing required evidence", missingEvidence),
			Count:       missingEvidence,
			FirstItemID: firstMissingEvidence,
		}
	}

	unansweredCritical := 0
	var firstCritical uuid.UUID
	for _, section := range tpl.Sections {
		for _, item := range section.Items {
			if item.Critical && !responses[item.ID].Answered() {
				unansweredCritical++
				if firstCritical == uuid.Nil {
					firstCritical = item.ID
				}
			}
		}
	}
	if unansweredCritical > 0 {
		return &ValidationFailure{
			Check:       CheckCritical,
			Message:     fmt.Sprintf("%d critical item(s) unanswered", unansweredCritical),
			Count:       unansweredCritical,
			FirstItemID: firstCritical,
		}
	}

	return nil
}

func (s *auditExecutionService) Submit(ctx context.Context, auditID uuid.UUID) (*SubmitResult, error) {
	// Flush any pending autosave so the submission sees the latest responses
	// and no background persist can land after the transaction.
	if err := s.autosave.Flush(ctx, auditID); err != nil {
		return nil, fmt.Errorf("flush draft: %w", err)
	}

	audit, tpl, responses, err := s.loadExecution(ctx, auditID)
	if err != nil {
		return nil, err
	}

	if audit.Submitted() {
		return nil, apperrors.ErrAlreadySubmitted
	}
	if audit.Status != models.AuditStatusInProgress {
		return nil, apperrors.ErrInvalidTransition
	}

	if failure := ValidateSubmission(tpl, responses, s.scoringCfg.CompletionThreshold); failure != nil {
		s.logger.Info("submission rejected",
			zap.String("audit_id", auditID.String()),
			zap.String("check", failure.Check),
			zap.String("reason", failure.Message))
		return &SubmitResult{Validation: failure}, nil
	}

	now := time.Now()
	score := ScoreChecklist(tpl, responses)
	findings := DeriveFindings(tpl, responses, auditID, now)

	var capas []*models.CAPA
	if len(findings) > 0 {
		assignee, err := s.identity.ResponsibleFor(ctx, audit.TargetType, audit.TargetID)
		if err != nil {
			return nil, fmt.Errorf("resolve CAPA assignee: %w", err)
		}
		for _, f := range findings {
			capas = append(capas, DeriveCAPA(f, audit, assignee, now, s.capaCfg))
		}
	}

	responseList := make([]*models.ItemResponse, 0, len(responses))
	for _, resp := range responses {
		responseList = append(responseList, resp)
	}

	sub := &repositories.Submission{
		AuditID:      auditID,
		CompletedAt:  now,
		Score:        score.Total,
		Passed:       score.Passed,
		CriticalFail: score.CriticalFail,
		Responses:    responseList,
		Findings:     findings,
		CAPAs:        capas,
	}
	if err := s.auditRepo.Submit(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	s.logger.Info("audit submitted",
		zap.String("audit_id", auditID.String()),
		zap.Float64("score", score.Total),
		zap.Bool("passed", score.Passed),
		zap.Bool("critical_fail", score.CriticalFail),
		zap.Int("findings", len(findings)))

	return &SubmitResult{Score: &score, Findings: findings, CAPAs: capas}, nil
}

func (s *auditExecutionService) Approve(ctx context.Context, auditID uuid.UUID) error {
	return s.auditRepo.UpdateStatus(ctx, auditID,
		models.AuditStatusPendingVerification, models.AuditStatusApproved)
}

func (s *auditExecutionService) Reject(ctx context.Context, auditID uuid.UUID) error {
	return s.auditRepo.UpdateStatus(ctx, auditID,
		models.AuditStatusPendingVerification, models.AuditStatusRejected)
}

func (s *auditExecutionService) Cancel(ctx context.Context, auditID uuid.UUID) error {
	return s.auditRepo.UpdateStatus(ctx, auditID,
		models.AuditStatusScheduled, models.AuditStatusCancelled)
}

func (s *auditExecutionService) loadExecution(ctx context.Context, auditID uuid.UUID) (*models.Audit, *models.ChecklistTemplate, map[uuid.UUID]*models.ItemResponse, error) {
	audit, err := s.auditRepo.GetByID(ctx, auditID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get audit: %w", err)
	}

	tpl, err := s.templateRepo.GetByID(ctx, audit.TemplateID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get template: %w", err)
	}

	responses, err := s.auditRepo.GetResponses(ctx, auditID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get responses: %w", err)
	}

	return audit, tpl, responses, nil
}
