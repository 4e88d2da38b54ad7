package taxindexhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/platform/httpx"
	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/internal/taxindex"
)

type registry interface {
	List(ctx context.Context) ([]taxindex.MonthlyTaxIndex, error)
	RateForMonth(ctx context.Context, ym shared.YearMonth) (decimal.Decimal, error)
	IsConsolidated(ctx context.Context, ym shared.YearMonth) (bool, error)
	ArgentinaRate(ctx context.Context) (decimal.Decimal, error)
}

// Handler wires the tax index read endpoints.
type Handler struct {
	logger   *slog.Logger
	registry registry
}

// NewHandler constructs a tax index HTTP handler.
func NewHandler(logger *slog.Logger, reg registry) *Handler {
	return &Handler{logger: logger, registry: reg}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/tax-indices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/argentina-rate", h.argentinaRate)
		r.Get("/{yearMonth}/rate", h.rateForMonth)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	indices, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("taxindex list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]indexResponse, 0, len(indices))
	for _, idx := range indices {
		out = append(out, toResponse(idx))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"indices": out})
}

func (h *Handler) rateForMonth(w http.ResponseWriter, r *http.Request) {
	ym := chi.URLParam(r, "yearMonth")
	rate, err := h.registry.RateForMonth(r.Context(), ym)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	consolidated, err := h.registry.IsConsolidated(r.Context(), ym)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"yearMonth":    ym,
		"rate":         rate.String(),
		"consolidated": consolidated,
	})
}

func (h *Handler) argentinaRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.registry.ArgentinaRate(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rate": rate.String()})
}

type indexResponse struct {
	ID             string  `json:"id"`
	YearMonth      string  `json:"yearMonth"`
	Rate           string  `json:"rate"`
	Status         string  `json:"status"`
	ActualRevenue  *string `json:"actualRevenue,omitempty"`
	ActualTaxes    *string `json:"actualTaxes,omitempty"`
	ConsolidatedBy *string `json:"consolidatedBy,omitempty"`
}

func toResponse(idx taxindex.MonthlyTaxIndex) indexResponse {
	resp := indexResponse{
		ID:             idx.ID,
		YearMonth:      idx.YearMonth,
		Rate:           idx.TaxIndexRate.String(),
		Status:         string(idx.Status),
		ConsolidatedBy: idx.ConsolidatedByName,
	}
	if idx.ActualRevenue != nil {
		s := idx.ActualRevenue.String()
		resp.ActualRevenue = &s
	}
	if idx.ActualTaxes != nil {
		s := idx.ActualTaxes.String()
		resp.ActualTaxes = &s
	}
	return resp
}
