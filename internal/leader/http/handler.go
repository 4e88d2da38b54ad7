package leaderhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/caravela-erp/caravela/internal/leader"
	"github.com/caravela-erp/caravela/internal/platform/httpx"
	"github.com/caravela-erp/caravela/internal/shared"
)

type leaderEngine interface {
	Propagate(ctx context.Context, in leader.PropagateInput) (leader.PropagationResult, error)
	AvailableMonths(ctx context.Context, projectID string) ([]shared.YearMonth, error)
	History(ctx context.Context, projectID string) ([]leader.HistoryEntry, error)
}

// Handler wires the leader propagation endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   leaderEngine
	validate *validator.Validate
}

// NewHandler constructs a leader HTTP handler.
func NewHandler(logger *slog.Logger, engine leaderEngine) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/projects/{projectID}/leader", func(r chi.Router) {
		r.Post("/propagate", h.propagate)
		r.Get("/available-months", h.availableMonths)
		r.Get("/history", h.history)
	})
}

type propagateRequest struct {
	NewLeaderID        string `json:"newLeaderId" validate:"required"`
	NewLeaderName      string `json:"newLeaderName" validate:"required"`
	EffectiveFromMonth string `json:"effectiveFromMonth" validate:"required"`
	Reason             string `json:"reason"`
}

func (h *Handler) propagate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing actor", "actor identity headers are required")
		return
	}
	var req propagateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	result, err := h.engine.Propagate(r.Context(), leader.PropagateInput{
		ProjectID:          chi.URLParam(r, "projectID"),
		NewLeaderID:        req.NewLeaderID,
		NewLeaderName:      req.NewLeaderName,
		EffectiveFromMonth: req.EffectiveFromMonth,
		Reason:             req.Reason,
		Actor:              actor,
	})
	if err != nil {
		h.logger.Error("leader propagate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// Success false is still HTTP 200: an all-blocked or empty propagation is
	// a normal result the UI inspects, not a transport failure.
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) availableMonths(w http.ResponseWriter, r *http.Request) {
	months, err := h.engine.AvailableMonths(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if months == nil {
		months = []shared.YearMonth{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"months": months})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.History(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": entries})
}
