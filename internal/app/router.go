package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/caravela-erp/caravela/internal/audit/http"
	closinghttp "github.com/caravela-erp/caravela/internal/closing/http"
	leaderhttp "github.com/caravela-erp/caravela/internal/leader/http"
	managerialhttp "github.com/caravela-erp/caravela/internal/managerial/http"
	"github.com/caravela-erp/caravela/internal/observability"
	"github.com/caravela-erp/caravela/internal/portfolio"
	taxindexhttp "github.com/caravela-erp/caravela/internal/taxindex/http"
	"github.com/caravela-erp/caravela/jobs"
	"github.com/caravela-erp/caravela/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	ClosingHandler    *closinghttp.Handler
	TaxIndexHandler   *taxindexhttp.Handler
	LeaderHandler     *leaderhttp.Handler
	ManagerialHandler *managerialhttp.Handler
	PortfolioHandler  *portfolio.Handler
	AuditHandler      *audithttp.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ClosingHandler != nil {
		params.ClosingHandler.MountRoutes(r)
	}
	if params.TaxIndexHandler != nil {
		params.TaxIndexHandler.MountRoutes(r)
	}
	if params.LeaderHandler != nil {
		params.LeaderHandler.MountRoutes(r)
	}
	if params.ManagerialHandler != nil {
		params.ManagerialHandler.MountRoutes(r)
	}
	if params.PortfolioHandler != nil {
		params.PortfolioHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.ReportHandler != nil {
		r.Route("/api/reports", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
