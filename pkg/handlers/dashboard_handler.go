package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/apperrors"
	"github.com/savoria-foods/quality-engine/pkg/models"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
	"github.com/savoria-foods/quality-engine/pkg/services"
)

// DashboardHandler serves health score reads for the operations dashboard.
// Every read opportunistically kicks a background batch recalculation when
// the stored scores are stale; the response itself never waits on it.
type DashboardHandler struct {
	healthRepo repositories.HealthScoreRepository
	cache      *services.ScoreCache
	batch      services.BatchService
	logger     *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(
	healthRepo repositories.HealthScoreRepository,
	cache *services.ScoreCache,
	batch services.BatchService,
	logger *zap.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		healthRepo: healthRepo,
		cache:      cache,
		batch:      batch,
		logger:     logger,
	}
}

// RegisterRoutes registers the dashboard handler's routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dashboard/scores", h.ListScores)
	mux.HandleFunc("GET /api/dashboard/scores/{entity_type}/{entity_id}", h.GetScore)
}

// ListScores handles GET /api/dashboard/scores.
// Returns the latest stored score for every entity. Stored scores may be up
// to the staleness window old; clients get them immediately while a refresh
// runs behind the scenes.
func (h *DashboardHandler) ListScores(w http.ResponseWriter, r *http.Request) {
	h.batch.KickIfStale(r.Context())

	records, err := h.healthRepo.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to list health scores", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_scores_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if records == nil {
		records = make([]*models.HealthScoreRecord, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: records}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetScore handles GET /api/dashboard/scores/{entity_type}/{entity_id}.
// Reads through the cache, falling back to the database on a miss.
func (h *DashboardHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	entityType := models.EntityType(r.PathValue("entity_type"))
	switch entityType {
	case models.EntityTypeBranch, models.EntityTypeKitchen, models.EntityTypeSupplier:
	default:
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_entity_type", "Entity type must be branch, kitchen or supplier"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	entityID, err := uuid.Parse(r.PathValue("entity_id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_entity_id", "Invalid entity ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.batch.KickIfStale(r.Context())

	record, err := h.cache.Get(r.Context(), entityType, entityID)
	if err != nil {
		h.logger.Warn("Score cache read failed", zap.Error(err))
	}
	if record == nil {
		record, err = h.healthRepo.GetByEntity(r.Context(), entityType, entityID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				if err := ErrorResponse(w, http.StatusNotFound, "score_not_found", "No health score computed for this entity yet"); err != nil {
					h.logger.Error("Failed to write error response", zap.Error(err))
				}
				return
			}
			h.logger.Error("Failed to read health score", zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "get_score_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: record}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
