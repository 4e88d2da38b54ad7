package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/managerial"
	"github.com/caravela-erp/caravela/internal/platform/httpx"
	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/web"
)

type monthlyAggregator interface {
	ByMonth(ctx context.Context, filters managerial.Filters) ([]managerial.MonthlyProjection, error)
	ByCompany(ctx context.Context, filters managerial.Filters) ([]managerial.RevenueGroup, error)
}

type monthGate interface {
	IsClosed(ctx context.Context, ym shared.YearMonth) (bool, error)
}

// Handler serves the monthly statement PDF. The statement is a snapshot of
// the managerial view for one competence month, so it is computed on demand
// like every other managerial read.
type Handler struct {
	client     *Client
	aggregator monthlyAggregator
	gate       monthGate
	logger     *slog.Logger
	tmpl       *template.Template
}

// NewHandler parses the statement template and wires the report endpoints.
func NewHandler(client *Client, aggregator monthlyAggregator, gate monthGate, logger *slog.Logger) (*Handler, error) {
	tmpl, err := template.New("monthly_statement.html").ParseFS(
		web.Templates, "templates/report/monthly_statement.html",
	)
	if err != nil {
		return nil, fmt.Errorf("parse monthly statement template: %w", err)
	}
	return &Handler{
		client:     client,
		aggregator: aggregator,
		gate:       gate,
		logger:     logger,
		tmpl:       tmpl,
	}, nil
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/monthly-statement/{yearMonth}", h.monthlyStatement)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) monthlyStatement(w http.ResponseWriter, r *http.Request) {
	ym := shared.YearMonth(chi.URLParam(r, "yearMonth"))
	if _, err := shared.FirstDayOf(ym); err != nil {
		httpx.RespondError(w, err)
		return
	}

	html, err := h.BuildHTML(r.Context(), ym)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	pdf, err := h.client.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render monthly statement", slog.String("year_month", string(ym)), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=statement-%s.pdf", ym))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// BuildHTML renders the statement body for one competence month.
func (h *Handler) BuildHTML(ctx context.Context, ym shared.YearMonth) (string, error) {
	filters := managerial.Filters{YearMonth: ym}

	projections, err := h.aggregator.ByMonth(ctx, filters)
	if err != nil {
		return "", err
	}
	if len(projections) == 0 {
		return "", fmt.Errorf("no revenue recorded for %s: %w", ym, shared.ErrNotFound)
	}
	projection := projections[0]

	companies, err := h.aggregator.ByCompany(ctx, filters)
	if err != nil {
		return "", err
	}

	closed, err := h.gate.IsClosed(ctx, ym)
	if err != nil {
		return "", err
	}
	status := "open"
	if closed {
		status = "closed"
	}

	view := statementView{
		YearMonth:      string(ym),
		GeneratedAt:    time.Now().UTC().Format("02/01/2006 15:04 UTC"),
		Status:         status,
		Consolidated:   projection.Consolidated,
		Gross:          money(projection.GrossRevenueBRL),
		Tax:            money(projection.ManagerialTax),
		Net:            money(projection.NetRevenueBRL),
		BrazilGross:    money(projection.BrazilGross),
		BrazilTax:      money(projection.BrazilTax),
		BrazilNet:      money(projection.BrazilNet),
		BrazilRate:     percent(projection.BrazilRate),
		ArgentinaGross: money(projection.ArgentinaGross),
		ArgentinaTax:   money(projection.ArgentinaTax),
		ArgentinaNet:   money(projection.ArgentinaNet),
		ArgentinaRate:  percent(projection.ArgentinaRate),
	}
	for _, group := range companies {
		view.Companies = append(view.Companies, statementRow{
			Name:     group.Label,
			Projects: group.ProjectCount,
			Gross:    money(group.GrossRevenueBRL),
			Tax:      money(group.ManagerialTax),
			Net:      money(group.NetRevenueBRL),
		})
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render monthly statement: %w", err)
	}
	return buf.String(), nil
}

type statementView struct {
	YearMonth    string
	GeneratedAt  string
	Status       string
	Consolidated bool

	Gross, Tax, Net string

	BrazilGross, BrazilTax, BrazilNet, BrazilRate             string
	ArgentinaGross, ArgentinaTax, ArgentinaNet, ArgentinaRate string

	Companies []statementRow
}

type statementRow struct {
	Name     string
	Projects int

	Gross, Tax, Net string
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
