package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/repositories"
)

// DashboardHandler exposes read-only pipeline state: recent batches,
// records held for review, per-entity audit trails, and per-entity
// mutation history.
type DashboardHandler struct {
	records   repositories.EntityRecordRepository
	batches   repositories.BatchRepository
	audits    repositories.AuditRepository
	mutations repositories.MutationRepository
	logger    *zap.Logger
}

func NewDashboardHandler(
	records repositories.EntityRecordRepository,
	batches repositories.BatchRepository,
	audits repositories.AuditRepository,
	mutations repositories.MutationRepository,
	logger *zap.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		records:   records,
		batches:   batches,
		audits:    audits,
		mutations: mutations,
		logger:    logger.Named("dashboard"),
	}
}

// RegisterRoutes registers the dashboard routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/batches", h.ListBatches)
	mux.HandleFunc("/api/review", h.ListNeedsReview)
	mux.HandleFunc("/api/entities/{entity}/audit", h.EntityAudit)
	mux.HandleFunc("/api/entities/{entity}/mutations", h.EntityMutations)
}

// ListBatches handles GET /api/batches.
func (h *DashboardHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)
	summaries, err := h.batches.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list batches", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal", "failed to list batches")
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"batches": summaries})
}

// ListNeedsReview handles GET /api/review.
func (h *DashboardHandler) ListNeedsReview(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.ListNeedsReview(r.Context())
	if err != nil {
		h.logger.Error("Failed to list review records", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal", "failed to list records")
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

// EntityAudit handles GET /api/entities/{entity}/audit.
func (h *DashboardHandler) EntityAudit(w http.ResponseWriter, r *http.Request) {
	entityKey := r.PathValue("entity")
	if entityKey == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_entity", "entity path segment is required")
		return
	}

	events, err := h.audits.ListForEntity(r.Context(), entityKey, parseLimit(r, 100))
	if err != nil {
		h.logger.Error("Failed to list audit events",
			zap.String("entity", entityKey), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal", "failed to list audit events")
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// EntityMutations handles GET /api/entities/{entity}/mutations. The
// mutation log answers "what did we actually write, and when" per entity,
// newest first.
func (h *DashboardHandler) EntityMutations(w http.ResponseWriter, r *http.Request) {
	entity, err := models.ParseEntityRef(r.PathValue("entity"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_entity", err.Error())
		return
	}

	muts, err := h.mutations.ListForEntity(r.Context(), entity)
	if err != nil {
		h.logger.Error("Failed to list mutations",
			zap.String("entity", entity.String()), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal", "failed to list mutations")
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"mutations": muts})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
