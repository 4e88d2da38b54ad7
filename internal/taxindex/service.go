package taxindex

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

// Store provides the read surface the registry needs.
type Store interface {
	GetByMonth(ctx context.Context, ym shared.YearMonth) (*MonthlyTaxIndex, error)
	LatestConsolidated(ctx context.Context) (*MonthlyTaxIndex, error)
	List(ctx context.Context) ([]MonthlyTaxIndex, error)
	ArgentinaFixedRate(ctx context.Context) (decimal.Decimal, bool, error)
}

// Registry resolves jurisdiction tax rates and consolidation state.
type Registry struct {
	store Store
}

// NewRegistry constructs a tax index registry.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// RateForMonth resolves the Brazilian rate for a month. A consolidated record
// wins; otherwise the globally latest consolidated rate carries forward —
// deliberately not "latest before this month", matching the upstream product
// behavior where past unconsolidated months also inherit the newest known
// rate. FallbackRate applies when nothing was ever consolidated.
func (g *Registry) RateForMonth(ctx context.Context, ym shared.YearMonth) (decimal.Decimal, error) {
	if g == nil || g.store == nil {
		return decimal.Zero, fmt.Errorf("taxindex: registry not configured")
	}
	if _, err := shared.ParseYearMonth(ym); err != nil {
		return decimal.Zero, err
	}
	idx, err := g.store.GetByMonth(ctx, ym)
	if err != nil {
		return decimal.Zero, err
	}
	if idx != nil && idx.Status == StatusConsolidated {
		return idx.TaxIndexRate, nil
	}
	return g.LastKnownRate(ctx)
}

// LastKnownRate returns the latest consolidated rate, or FallbackRate.
func (g *Registry) LastKnownRate(ctx context.Context) (decimal.Decimal, error) {
	latest, err := g.store.LatestConsolidated(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		return FallbackRate, nil
	}
	return latest.TaxIndexRate, nil
}

// RateForJurisdiction resolves the applicable rate for a company type. The
// Argentine subsidiary always gets the fixed configured rate regardless of
// month; Brazil follows the forecast-carry-forward policy.
func (g *Registry) RateForJurisdiction(ctx context.Context, jurisdiction Jurisdiction, ym shared.YearMonth) (decimal.Decimal, error) {
	if g == nil || g.store == nil {
		return decimal.Zero, fmt.Errorf("taxindex: registry not configured")
	}
	if jurisdiction == JurisdictionArgentina {
		return g.ArgentinaRate(ctx)
	}
	return g.RateForMonth(ctx, ym)
}

// ArgentinaRate returns the configured fixed rate, or DefaultArgentinaRate.
func (g *Registry) ArgentinaRate(ctx context.Context) (decimal.Decimal, error) {
	rate, found, err := g.store.ArgentinaFixedRate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return DefaultArgentinaRate, nil
	}
	return rate, nil
}

// IsConsolidated reports whether a month has a consolidated index.
func (g *Registry) IsConsolidated(ctx context.Context, ym shared.YearMonth) (bool, error) {
	if g == nil || g.store == nil {
		return false, fmt.Errorf("taxindex: registry not configured")
	}
	idx, err := g.store.GetByMonth(ctx, ym)
	if err != nil {
		return false, err
	}
	return idx != nil && idx.Status == StatusConsolidated, nil
}

// List returns all indices ordered by yearMonth.
func (g *Registry) List(ctx context.Context) ([]MonthlyTaxIndex, error) {
	return g.store.List(ctx)
}
