package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravela-erp/caravela/internal/managerial"
	"github.com/caravela-erp/caravela/internal/shared"
)

type fakeAggregator struct {
	projections []managerial.MonthlyProjection
	companies   []managerial.RevenueGroup
}

func (f *fakeAggregator) ByMonth(ctx context.Context, filters managerial.Filters) ([]managerial.MonthlyProjection, error) {
	return f.projections, nil
}

func (f *fakeAggregator) ByCompany(ctx context.Context, filters managerial.Filters) ([]managerial.RevenueGroup, error) {
	return f.companies, nil
}

type fakeGate struct {
	closed map[shared.YearMonth]bool
}

func (f *fakeGate) IsClosed(ctx context.Context, ym shared.YearMonth) (bool, error) {
	return f.closed[ym], nil
}

func testAggregator() *fakeAggregator {
	return &fakeAggregator{
		projections: []managerial.MonthlyProjection{{
			YearMonth:       "2024-03",
			GrossRevenueBRL: decimal.RequireFromString("6000"),
			ManagerialTax:   decimal.RequireFromString("760"),
			NetRevenueBRL:   decimal.RequireFromString("5240"),
			BrazilGross:     decimal.RequireFromString("5000"),
			BrazilTax:       decimal.RequireFromString("550"),
			BrazilNet:       decimal.RequireFromString("4450"),
			ArgentinaGross:  decimal.RequireFromString("1000"),
			ArgentinaTax:    decimal.RequireFromString("210"),
			ArgentinaNet:    decimal.RequireFromString("790"),
			BrazilRate:      decimal.RequireFromString("0.11"),
			ArgentinaRate:   decimal.RequireFromString("0.21"),
			Consolidated:    true,
		}},
		companies: []managerial.RevenueGroup{
			{
				Key:             "co-br",
				Label:           "Caravela Brasil",
				GrossRevenueBRL: decimal.RequireFromString("5000"),
				ManagerialTax:   decimal.RequireFromString("550"),
				NetRevenueBRL:   decimal.RequireFromString("4450"),
				ProjectCount:    2,
			},
			{
				Key:             "co-ar",
				Label:           "Caravela Argentina",
				GrossRevenueBRL: decimal.RequireFromString("1000"),
				ManagerialTax:   decimal.RequireFromString("210"),
				NetRevenueBRL:   decimal.RequireFromString("790"),
				ProjectCount:    1,
			},
		},
	}
}

func TestBuildHTMLRendersStatement(t *testing.T) {
	gate := &fakeGate{closed: map[shared.YearMonth]bool{"2024-03": true}}
	handler, err := NewHandler(NewClient("http://127.0.0.1:0"), testAggregator(), gate, slog.Default())
	require.NoError(t, err)

	html, err := handler.BuildHTML(context.Background(), "2024-03")
	require.NoError(t, err)

	assert.Contains(t, html, "2024-03")
	assert.Contains(t, html, "Mês fechado")
	assert.Contains(t, html, "índice consolidado")
	assert.Contains(t, html, "11.00%")
	assert.Contains(t, html, "21.00%")
	assert.Contains(t, html, "6000.00")
	assert.Contains(t, html, "Caravela Brasil")
	assert.Contains(t, html, "Caravela Argentina")
}

func TestBuildHTMLMissingMonthIsNotFound(t *testing.T) {
	agg := &fakeAggregator{}
	handler, err := NewHandler(NewClient("http://127.0.0.1:0"), agg, &fakeGate{}, slog.Default())
	require.NoError(t, err)

	_, err = handler.BuildHTML(context.Background(), "2030-01")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestMonthlyStatementEndpointReturnsPDF(t *testing.T) {
	gotenberg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(10<<20))

		file, _, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()

		html, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Contains(t, string(html), "Demonstrativo Gerencial")

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("MOCK-PDF"))
	}))
	defer gotenberg.Close()

	gate := &fakeGate{closed: map[shared.YearMonth]bool{}}
	handler, err := NewHandler(NewClient(gotenberg.URL), testAggregator(), gate, slog.Default())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/reports/monthly-statement/2024-03", nil)
	rec := httptest.NewRecorder()

	router := newTestRouter(handler)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "MOCK-PDF", rec.Body.String())
}

func TestMonthlyStatementRejectsMalformedMonth(t *testing.T) {
	handler, err := NewHandler(NewClient("http://127.0.0.1:0"), testAggregator(), &fakeGate{}, slog.Default())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/reports/monthly-statement/march-2024", nil)
	rec := httptest.NewRecorder()

	router := newTestRouter(handler)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func newTestRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/reports", handler.MountRoutes)
	return r
}
