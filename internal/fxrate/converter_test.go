package fxrate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

type fakeSource struct {
	rates map[shared.Currency]decimal.Decimal
	calls int
}

func (f *fakeSource) LatestRate(ctx context.Context, from, to shared.Currency, asOf time.Time) (decimal.Decimal, bool, error) {
	f.calls++
	rate, ok := f.rates[from]
	return rate, ok, nil
}

func usdSource() *fakeSource {
	return &fakeSource{rates: map[shared.Currency]decimal.Decimal{
		shared.CurrencyUSD: decimal.RequireFromString("5.05"),
		shared.CurrencyEUR: decimal.RequireFromString("5.45"),
		shared.CurrencyARS: decimal.RequireFromString("0.006"),
	}}
}

func TestToBRLIdentityForBaseCurrency(t *testing.T) {
	source := usdSource()
	conv := NewConverter(source, nil, 0, nil)

	amount := decimal.RequireFromString("25000")
	got, err := conv.ToBRL(context.Background(), amount, shared.CurrencyBRL, time.Now())
	if err != nil {
		t.Fatalf("ToBRL() error = %v", err)
	}
	if !got.Equal(amount) {
		t.Fatalf("ToBRL(BRL) = %s, want %s", got, amount)
	}
	if source.calls != 0 {
		t.Fatalf("expected no source lookup for BRL, got %d calls", source.calls)
	}
}

func TestToBRLAppliesEffectiveRate(t *testing.T) {
	conv := NewConverter(usdSource(), nil, 0, nil)

	got, err := conv.ToBRL(context.Background(), decimal.RequireFromString("1000"), shared.CurrencyUSD, time.Now())
	if err != nil {
		t.Fatalf("ToBRL() error = %v", err)
	}
	want := decimal.RequireFromString("5050")
	if !got.Equal(want) {
		t.Fatalf("ToBRL(USD 1000) = %s, want %s", got, want)
	}
}

func TestToBRLFallsBackToIdentityWhenQuoteMissing(t *testing.T) {
	source := &fakeSource{rates: map[shared.Currency]decimal.Decimal{}}
	conv := NewConverter(source, nil, 0, nil)

	amount := decimal.RequireFromString("300")
	got, err := conv.ToBRL(context.Background(), amount, shared.CurrencyEUR, time.Now())
	if err != nil {
		t.Fatalf("ToBRL() error = %v", err)
	}
	if !got.Equal(amount) {
		t.Fatalf("expected identity fallback, got %s", got)
	}
}

func TestToBRLRejectsUnknownCurrency(t *testing.T) {
	conv := NewConverter(usdSource(), nil, 0, nil)
	if _, err := conv.ToBRL(context.Background(), decimal.NewFromInt(10), shared.Currency("GBP"), time.Now()); err == nil {
		t.Fatal("expected error for unsupported currency")
	}
}

func TestToBRLUsesCacheOnSecondLookup(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := usdSource()
	conv := NewConverter(source, client, time.Minute, nil)

	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := conv.ToBRL(context.Background(), decimal.NewFromInt(100), shared.CurrencyUSD, asOf); err != nil {
			t.Fatalf("ToBRL() error = %v", err)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected single source lookup, got %d", source.calls)
	}
}
