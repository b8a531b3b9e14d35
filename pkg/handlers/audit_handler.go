package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/models"
	"github.com/savoria-foods/quality-engine/pkg/services"
)

// AuditHandler handles audit execution HTTP requests.
type AuditHandler struct {
	executionService services.AuditExecutionService
	logger           *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(executionService services.AuditExecutionService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		executionService: executionService,
		logger:           logger,
	}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/audits/{audit_id}/responses", h.SaveResponse)
	mux.HandleFunc("GET /api/audits/{audit_id}/preview", h.Preview)
	mux.HandleFunc("POST /api/audits/{audit_id}/submit", h.Submit)
	mux.HandleFunc("POST /api/audits/{audit_id}/approve", h.Approve)
	mux.HandleFunc("POST /api/audits/{audit_id}/reject", h.Reject)
	mux.HandleFunc("POST /api/audits/{audit_id}/cancel", h.Cancel)
}

func parseAuditID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	auditID, err := uuid.Parse(r.PathValue("audit_id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_audit_id", "Invalid audit ID format"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return auditID, true
}

// writeExecutionError maps service errors onto HTTP statuses: missing audit
// to 404, lifecycle violations to 409, everything else to 500.
func (h *AuditHandler) writeExecutionError(w http.ResponseWriter, action string, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "audit_not_found"
	case errors.Is(err, apperrors.ErrAlreadySubmitted):
		status, code = http.StatusConflict, "audit_already_submitted"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	default:
		h.logger.Error("Audit "+action+" failed", zap.Error(err))
		status, code = http.StatusInternalServerError, action+"_failed"
	}

	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// SaveResponse handles PUT /api/audits/{audit_id}/responses.
// Records a draft item response; persistence is debounced server-side.
func (h *AuditHandler) SaveResponse(w http.ResponseWriter, r *http.Request) {
	auditID, ok := parseAuditID(w, r, h.logger)
	if !ok {
		return
	}

	var resp models.ItemResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if resp.ItemID == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_item_id", "item_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.executionService.OnResponseChanged(r.Context(), auditID, &resp); err != nil {
		h.writeExecutionError(w, "save_response", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Preview handles GET /api/audits/{audit_id}/preview.
// Returns the live score for the audit's current responses.
func (h *AuditHandler) Preview(w http.ResponseWriter, r *http.Request) {
	auditID, ok := parseAuditID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.executionService.Preview(r.Context(), auditID)
	if err != nil {
		h.writeExecutionError(w, "preview", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Submit handles POST /api/audits/{audit_id}/submit.
// A validation failure returns 422 with the structured failure so the client
// can scroll to the offending item; nothing is persisted in that case.
func (h *AuditHandler) Submit(w http.ResponseWriter, r *http.Request) {
	auditID, ok := parseAuditID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.executionService.Submit(r.Context(), auditID)
	if err != nil {
		h.writeExecutionError(w, "submit", err)
		return
	}

	if result.Validation != nil {
		if err := WriteJSON(w, http.StatusUnprocessableEntity, ApiResponse{
			Success: false,
			Data:    result.Validation,
			Error:   "validation_failed",
			Message: result.Validation.Message,
		}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Approve handles POST /api/audits/{audit_id}/approve.
func (h *AuditHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve", h.executionService.Approve)
}

// Reject handles POST /api/audits/{audit_id}/reject.
func (h *AuditHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reject", h.executionService.Reject)
}

// Cancel handles POST /api/audits/{audit_id}/cancel.
func (h *AuditHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", h.executionService.Cancel)
}

func (h *AuditHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, id uuid.UUID) error) {
	auditID, ok := parseAuditID(w, r, h.logger)
	if !ok {
		return
	}

	if err := fn(r.Context(), auditID); err != nil {
		h.writeExecutionError(w, action, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Message: "Audit " + action + " applied",
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
