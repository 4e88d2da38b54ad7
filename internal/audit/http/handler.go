package audithttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/caravela-erp/caravela/internal/audit"
	"github.com/caravela-erp/caravela/internal/platform/httpx"
)

type auditService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	EntityHistory(ctx context.Context, entityType, entityID string) ([]audit.Entry, error)
	LeaderChanges(ctx context.Context, projectID string) ([]audit.LeaderChange, error)
	ExportCSV(ctx context.Context, w io.Writer, filters audit.TimelineFilters) error
}

// Handler wires the audit timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service auditService
}

// NewHandler constructs an audit HTTP handler.
func NewHandler(logger *slog.Logger, service auditService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/audit", func(r chi.Router) {
		r.Get("/", h.timeline)
		r.Get("/export.csv", h.exportCSV)
		r.Get("/entity/{entityType}/{entityID}", h.entityHistory)
	})
	r.Get("/api/projects/{projectID}/leader-changes", h.leaderChanges)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": result.Entries,
		"paging":  result.Paging,
	})
}

func (h *Handler) entityHistory(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")
	entries, err := h.service.EntityHistory(r.Context(), entityType, entityID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) leaderChanges(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	changes, err := h.service.LeaderChanges(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	if err := h.service.ExportCSV(r.Context(), w, filters); err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
	}
}

func filtersFromQuery(r *http.Request) audit.TimelineFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return audit.TimelineFilters{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		Page:       page,
		PageSize:   pageSize,
	}
}
