package portfolio

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/platform/httpx"
	"github.com/caravela-erp/caravela/internal/shared"
)

// Handler wires the portfolio read endpoints and the installment value edit.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a portfolio HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/api/companies", h.listCompanies)
	r.Get("/api/contracts", h.listContracts)
	r.Get("/api/projects", h.listProjects)
	r.Get("/api/projects/{projectID}", h.getProject)
	r.Get("/api/projects/{projectID}/installments", h.listInstallments)
	r.Patch("/api/installments/{installmentID}/value", h.updateValue)
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.Companies(r.Context())
	if err != nil {
		h.logger.Error("portfolio companies", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.service.Contracts(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"contracts": contracts})
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.Projects(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.service.Project(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) listInstallments(w http.ResponseWriter, r *http.Request) {
	installments, err := h.service.Installments(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"installments": installments})
}

type updateValueRequest struct {
	Value string `json:"value" validate:"required"`
}

func (h *Handler) updateValue(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing actor", "actor identity headers are required")
		return
	}
	var req updateValueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid value", err.Error())
		return
	}
	inst, err := h.service.UpdateInstallmentValue(r.Context(), chi.URLParam(r, "installmentID"), value, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}
