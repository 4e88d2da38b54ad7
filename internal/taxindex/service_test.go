package taxindex

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

type fakeStore struct {
	indices  map[string]MonthlyTaxIndex
	arRate   *decimal.Decimal
	arCalled bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{indices: make(map[string]MonthlyTaxIndex)}
}

func (f *fakeStore) addConsolidated(ym, rate string) {
	f.indices[ym] = MonthlyTaxIndex{YearMonth: ym, TaxIndexRate: decimal.RequireFromString(rate), Status: StatusConsolidated}
}

func (f *fakeStore) addForecast(ym, rate string) {
	f.indices[ym] = MonthlyTaxIndex{YearMonth: ym, TaxIndexRate: decimal.RequireFromString(rate), Status: StatusForecast}
}

func (f *fakeStore) GetByMonth(ctx context.Context, ym shared.YearMonth) (*MonthlyTaxIndex, error) {
	idx, ok := f.indices[ym]
	if !ok {
		return nil, nil
	}
	return &idx, nil
}

func (f *fakeStore) LatestConsolidated(ctx context.Context) (*MonthlyTaxIndex, error) {
	var months []string
	for ym, idx := range f.indices {
		if idx.Status == StatusConsolidated {
			months = append(months, ym)
		}
	}
	if len(months) == 0 {
		return nil, nil
	}
	sort.Strings(months)
	idx := f.indices[months[len(months)-1]]
	return &idx, nil
}

func (f *fakeStore) List(ctx context.Context) ([]MonthlyTaxIndex, error) {
	var months []string
	for ym := range f.indices {
		months = append(months, ym)
	}
	sort.Strings(months)
	out := make([]MonthlyTaxIndex, 0, len(months))
	for _, ym := range months {
		out = append(out, f.indices[ym])
	}
	return out, nil
}

func (f *fakeStore) ArgentinaFixedRate(ctx context.Context) (decimal.Decimal, bool, error) {
	f.arCalled = true
	if f.arRate == nil {
		return decimal.Zero, false, nil
	}
	return *f.arRate, true, nil
}

func TestRateForMonthForecastCarryForward(t *testing.T) {
	store := newFakeStore()
	store.addConsolidated("2024-01", "0.1133")
	store.addConsolidated("2024-02", "0.1160")
	store.addConsolidated("2024-03", "0.1100")
	registry := NewRegistry(store)

	rate, err := registry.RateForMonth(context.Background(), "2024-04")
	if err != nil {
		t.Fatalf("RateForMonth() error = %v", err)
	}
	if want := decimal.RequireFromString("0.1100"); !rate.Equal(want) {
		t.Fatalf("RateForMonth(2024-04) = %s, want %s (latest consolidated, not an average)", rate, want)
	}
}

func TestRateForMonthPrefersConsolidatedRecord(t *testing.T) {
	store := newFakeStore()
	store.addConsolidated("2024-01", "0.1133")
	store.addConsolidated("2024-03", "0.1100")
	registry := NewRegistry(store)

	rate, err := registry.RateForMonth(context.Background(), "2024-01")
	if err != nil {
		t.Fatalf("RateForMonth() error = %v", err)
	}
	if want := decimal.RequireFromString("0.1133"); !rate.Equal(want) {
		t.Fatalf("RateForMonth(2024-01) = %s, want its own consolidated rate %s", rate, want)
	}
}

func TestRateForMonthIgnoresForecastRecords(t *testing.T) {
	// A forecast record for the month never wins over the carry-forward rate.
	store := newFakeStore()
	store.addConsolidated("2024-10", "0.1200")
	store.addForecast("2024-11", "0.0900")
	registry := NewRegistry(store)

	rate, err := registry.RateForMonth(context.Background(), "2024-11")
	if err != nil {
		t.Fatalf("RateForMonth() error = %v", err)
	}
	if want := decimal.RequireFromString("0.1200"); !rate.Equal(want) {
		t.Fatalf("RateForMonth(2024-11) = %s, want carry-forward %s", rate, want)
	}
}

func TestRateForMonthFallbackWhenNothingConsolidated(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	rate, err := registry.RateForMonth(context.Background(), "2024-05")
	if err != nil {
		t.Fatalf("RateForMonth() error = %v", err)
	}
	if !rate.Equal(FallbackRate) {
		t.Fatalf("RateForMonth() = %s, want fallback %s", rate, FallbackRate)
	}
}

func TestRateForMonthRejectsMalformedToken(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	if _, err := registry.RateForMonth(context.Background(), "2024-5"); err == nil {
		t.Fatal("expected error for malformed year-month")
	}
}

func TestJurisdictionIndependence(t *testing.T) {
	store := newFakeStore()
	store.addConsolidated("2024-03", "0.1100")
	ar := decimal.RequireFromString("0.21")
	store.arRate = &ar
	registry := NewRegistry(store)

	brRate, err := registry.RateForJurisdiction(context.Background(), JurisdictionBrazil, "2024-03")
	if err != nil {
		t.Fatalf("RateForJurisdiction(brazil) error = %v", err)
	}
	arRate, err := registry.RateForJurisdiction(context.Background(), JurisdictionArgentina, "2024-03")
	if err != nil {
		t.Fatalf("RateForJurisdiction(argentina) error = %v", err)
	}

	// Changing the fixed AR rate must not move the BR result, and vice versa.
	bumped := decimal.RequireFromString("0.35")
	store.arRate = &bumped
	brAfter, err := registry.RateForJurisdiction(context.Background(), JurisdictionBrazil, "2024-03")
	if err != nil {
		t.Fatalf("RateForJurisdiction(brazil) error = %v", err)
	}
	if !brAfter.Equal(brRate) {
		t.Fatalf("brazil rate moved with argentina config: %s -> %s", brRate, brAfter)
	}

	store.addConsolidated("2024-03", "0.1400")
	arAfter, err := registry.RateForJurisdiction(context.Background(), JurisdictionArgentina, "2024-03")
	if err != nil {
		t.Fatalf("RateForJurisdiction(argentina) error = %v", err)
	}
	if !arAfter.Equal(bumped) {
		t.Fatalf("argentina rate moved with brazil consolidation: %s -> %s", arRate, arAfter)
	}
}

func TestArgentinaDefaultRate(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	rate, err := registry.ArgentinaRate(context.Background())
	if err != nil {
		t.Fatalf("ArgentinaRate() error = %v", err)
	}
	if !rate.Equal(DefaultArgentinaRate) {
		t.Fatalf("ArgentinaRate() = %s, want default %s", rate, DefaultArgentinaRate)
	}
}

func TestCalculateIndex(t *testing.T) {
	got := CalculateIndex(decimal.NewFromInt(780000), decimal.NewFromInt(85800))
	if want := decimal.RequireFromString("0.11"); !got.Equal(want) {
		t.Fatalf("CalculateIndex = %s, want %s exactly", got, want)
	}
	if !CalculateIndex(decimal.Zero, decimal.NewFromInt(100)).IsZero() {
		t.Fatal("expected zero index for non-positive revenue")
	}
}
