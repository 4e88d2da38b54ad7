package closinghttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/closing"
	"github.com/caravela-erp/caravela/internal/platform/httpx"
	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/internal/taxindex"
)

type closingService interface {
	List(ctx context.Context) ([]closing.ClosingWithIndex, error)
	Close(ctx context.Context, in closing.CloseInput) (closing.MonthlyClosing, error)
	Reopen(ctx context.Context, in closing.ReopenInput) (closing.MonthlyClosing, error)
	Consolidate(ctx context.Context, in closing.ConsolidateInput) (closing.ConsolidateResult, error)
}

// Handler wires the monthly closing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  closingService
	validate *validator.Validate
}

// NewHandler constructs a closing HTTP handler.
func NewHandler(logger *slog.Logger, service closingService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/closings", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/{yearMonth}/close", h.close)
		r.Post("/{yearMonth}/reopen", h.reopen)
		r.Post("/{yearMonth}/consolidate", h.consolidate)
	})
}

type closeRequest struct {
	Justification string `json:"justification"`
}

type reopenRequest struct {
	Justification string `json:"justification" validate:"required"`
}

type consolidateRequest struct {
	ActualRevenue string `json:"actualRevenue" validate:"required"`
	ActualTaxes   string `json:"actualTaxes" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("closing list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]closingResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toResponse(item.Closing, item.Index))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"closings": out})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing actor", "actor identity headers are required")
		return
	}
	var req closeRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}
	mc, err := h.service.Close(r.Context(), closing.CloseInput{
		YearMonth:     chi.URLParam(r, "yearMonth"),
		Justification: req.Justification,
		Actor:         actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(mc, nil))
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing actor", "actor identity headers are required")
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	mc, err := h.service.Reopen(r.Context(), closing.ReopenInput{
		YearMonth:     chi.URLParam(r, "yearMonth"),
		Justification: req.Justification,
		Actor:         actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(mc, nil))
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing actor", "actor identity headers are required")
		return
	}
	var req consolidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	revenue, err := decimal.NewFromString(req.ActualRevenue)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid actualRevenue", err.Error())
		return
	}
	taxes, err := decimal.NewFromString(req.ActualTaxes)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid actualTaxes", err.Error())
		return
	}
	result, err := h.service.Consolidate(r.Context(), closing.ConsolidateInput{
		YearMonth:     chi.URLParam(r, "yearMonth"),
		ActualRevenue: revenue,
		ActualTaxes:   taxes,
		Actor:         actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(result.Closing, &result.Index))
}

type closingResponse struct {
	ID            string            `json:"id"`
	YearMonth     string            `json:"yearMonth"`
	Status        string            `json:"status"`
	ClosedAt      *time.Time        `json:"closedAt,omitempty"`
	ClosedBy      *string           `json:"closedBy,omitempty"`
	ClosedByName  *string           `json:"closedByName,omitempty"`
	Justification *string           `json:"justification,omitempty"`
	ReopenedAt    *time.Time        `json:"reopenedAt,omitempty"`
	ReopenedBy    *string           `json:"reopenedBy,omitempty"`
	ReopenReason  *string           `json:"reopenReason,omitempty"`
	TaxIndex      *taxIndexResponse `json:"taxIndex,omitempty"`
}

type taxIndexResponse struct {
	Rate           string     `json:"rate"`
	Status         string     `json:"status"`
	ActualRevenue  *string    `json:"actualRevenue,omitempty"`
	ActualTaxes    *string    `json:"actualTaxes,omitempty"`
	ConsolidatedAt *time.Time `json:"consolidatedAt,omitempty"`
}

func toResponse(mc closing.MonthlyClosing, idx *taxindex.MonthlyTaxIndex) closingResponse {
	resp := closingResponse{
		ID:            mc.ID,
		YearMonth:     mc.YearMonth,
		Status:        string(mc.Status),
		ClosedAt:      mc.ClosedAt,
		ClosedBy:      mc.ClosedBy,
		ClosedByName:  mc.ClosedByName,
		Justification: mc.Justification,
		ReopenedAt:    mc.ReopenedAt,
		ReopenedBy:    mc.ReopenedBy,
		ReopenReason:  mc.ReopenReason,
	}
	if idx != nil {
		ti := taxIndexResponse{
			Rate:           idx.TaxIndexRate.String(),
			Status:         string(idx.Status),
			ConsolidatedAt: idx.ConsolidatedAt,
		}
		if idx.ActualRevenue != nil {
			s := idx.ActualRevenue.String()
			ti.ActualRevenue = &s
		}
		if idx.ActualTaxes != nil {
			s := idx.ActualTaxes.String()
			ti.ActualTaxes = &s
		}
		resp.TaxIndex = &ti
	}
	return resp
}
