package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

type fakeMonths struct {
	months []shared.YearMonth
}

func (f *fakeMonths) CompetenceMonths(ctx context.Context) ([]shared.YearMonth, error) {
	return f.months, nil
}

type fakeRates struct {
	rate decimal.Decimal
}

func (f *fakeRates) LastKnownRate(ctx context.Context) (decimal.Decimal, error) {
	return f.rate, nil
}

type fakeRegistry struct {
	existing map[shared.YearMonth]bool
	seen     []shared.YearMonth
	rates    []decimal.Decimal
	fail     error
}

func (f *fakeRegistry) EnsureMonth(ctx context.Context, ym shared.YearMonth, rate decimal.Decimal) (bool, error) {
	if f.fail != nil {
		return false, f.fail
	}
	f.seen = append(f.seen, ym)
	f.rates = append(f.rates, rate)
	return !f.existing[ym], nil
}

func TestSeedCreatesMissingMonths(t *testing.T) {
	months := &fakeMonths{months: []shared.YearMonth{"2024-01", "2024-02", "2024-03"}}
	rates := &fakeRates{rate: decimal.RequireFromString("0.1133")}
	registry := &fakeRegistry{existing: map[shared.YearMonth]bool{"2024-01": true}}

	seeder := NewSeeder(months, rates, registry, nil, nil)
	created, err := seeder.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2 (2024-01 already registered)", created)
	}
	if len(registry.seen) != 3 {
		t.Fatalf("EnsureMonth calls = %d, want one per month", len(registry.seen))
	}
	for _, rate := range registry.rates {
		if !rate.Equal(rates.rate) {
			t.Fatalf("forecast rate = %s, want last known %s", rate, rates.rate)
		}
	}
}

func TestSeedStopsOnRegistryError(t *testing.T) {
	months := &fakeMonths{months: []shared.YearMonth{"2024-01"}}
	rates := &fakeRates{rate: decimal.RequireFromString("0.1133")}
	boom := errors.New("db down")
	registry := &fakeRegistry{fail: boom}

	seeder := NewSeeder(months, rates, registry, nil, nil)
	if _, err := seeder.Seed(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Seed() error = %v, want %v", err, boom)
	}
}
