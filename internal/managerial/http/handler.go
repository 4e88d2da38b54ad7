package managerialhttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caravela-erp/caravela/internal/managerial"
	"github.com/caravela-erp/caravela/internal/platform/httpx"
	"github.com/caravela-erp/caravela/internal/portfolio"
)

type aggregator interface {
	InstallmentsWithTax(ctx context.Context, filters managerial.Filters) ([]managerial.InstallmentWithTax, error)
	ByCompany(ctx context.Context, filters managerial.Filters) ([]managerial.RevenueGroup, error)
	ByDepartment(ctx context.Context, filters managerial.Filters) ([]managerial.RevenueGroup, error)
	ByLeader(ctx context.Context, filters managerial.Filters) ([]managerial.RevenueGroup, error)
	ByProject(ctx context.Context, filters managerial.Filters) ([]managerial.RevenueGroup, error)
	ByMonth(ctx context.Context, filters managerial.Filters) ([]managerial.MonthlyProjection, error)
	Stats(ctx context.Context, filters managerial.Filters) (managerial.Stats, error)
	ExportCSV(ctx context.Context, w io.Writer, filters managerial.Filters) error
}

// Handler wires the managerial revenue endpoints.
type Handler struct {
	logger     *slog.Logger
	aggregator aggregator
}

// NewHandler constructs a managerial HTTP handler.
func NewHandler(logger *slog.Logger, agg aggregator) *Handler {
	return &Handler{logger: logger, aggregator: agg}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/managerial", func(r chi.Router) {
		r.Get("/installments", h.installments)
		r.Get("/by-company", h.byCompany)
		r.Get("/by-department", h.byDepartment)
		r.Get("/by-leader", h.byLeader)
		r.Get("/by-project", h.byProject)
		r.Get("/by-month", h.byMonth)
		r.Get("/stats", h.stats)
		r.Get("/export.csv", h.exportCSV)
	})
}

func (h *Handler) installments(w http.ResponseWriter, r *http.Request) {
	items, err := h.aggregator.InstallmentsWithTax(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("managerial installments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"installments": items})
}

func (h *Handler) byCompany(w http.ResponseWriter, r *http.Request) {
	h.groups(w, r, h.aggregator.ByCompany)
}

func (h *Handler) byDepartment(w http.ResponseWriter, r *http.Request) {
	h.groups(w, r, h.aggregator.ByDepartment)
}

func (h *Handler) byLeader(w http.ResponseWriter, r *http.Request) {
	h.groups(w, r, h.aggregator.ByLeader)
}

func (h *Handler) byProject(w http.ResponseWriter, r *http.Request) {
	h.groups(w, r, h.aggregator.ByProject)
}

func (h *Handler) groups(w http.ResponseWriter, r *http.Request, fn func(context.Context, managerial.Filters) ([]managerial.RevenueGroup, error)) {
	groups, err := fn(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) byMonth(w http.ResponseWriter, r *http.Request) {
	months, err := h.aggregator.ByMonth(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"months": months})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.aggregator.Stats(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="managerial-revenue.csv"`)
	if err := h.aggregator.ExportCSV(r.Context(), w, filtersFromQuery(r)); err != nil {
		h.logger.Error("managerial export", slog.Any("error", err))
	}
}

func filtersFromQuery(r *http.Request) managerial.Filters {
	q := r.URL.Query()
	return managerial.Filters{
		YearMonth:  q.Get("year_month"),
		CompanyID:  q.Get("company_id"),
		Department: portfolio.Department(q.Get("department")),
		ProjectID:  q.Get("project_id"),
	}
}
