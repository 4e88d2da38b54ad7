package fxrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

// RateSource looks up the effective rate for a currency pair.
type RateSource interface {
	LatestRate(ctx context.Context, from, to shared.Currency, asOf time.Time) (decimal.Decimal, bool, error)
}

// Converter normalizes amounts into BRL. Quotes are cached in Redis with a
// short TTL; aggregation results built on top of conversions are never cached.
type Converter struct {
	source RateSource
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewConverter constructs a converter. The cache client may be nil, in which
// case every lookup hits the rate table.
func NewConverter(source RateSource, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{source: source, cache: cache, ttl: ttl, logger: logger}
}

// ToBRL converts amount from the given currency into BRL as of the given
// date. BRL amounts pass through unchanged. A missing quote falls back to
// rate 1 so a gap in the table surfaces as an unconverted amount instead of
// a dropped installment.
func (c *Converter) ToBRL(ctx context.Context, amount decimal.Decimal, currency shared.Currency, asOf time.Time) (decimal.Decimal, error) {
	if c == nil || c.source == nil {
		return decimal.Zero, fmt.Errorf("fxrate: converter not configured")
	}
	if !shared.ValidCurrency(currency) {
		return decimal.Zero, fmt.Errorf("%w: %q", shared.ErrUnknownCurrency, currency)
	}
	if currency == shared.BaseCurrency {
		return amount, nil
	}
	rate, err := c.rate(ctx, currency, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

func (c *Converter) rate(ctx context.Context, currency shared.Currency, asOf time.Time) (decimal.Decimal, error) {
	key := fmt.Sprintf("fx:%s:%s:%s", currency, shared.BaseCurrency, asOf.Format("2006-01-02"))
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key).Result(); err == nil {
			if rate, perr := decimal.NewFromString(cached); perr == nil {
				return rate, nil
			}
		}
	}

	rate, found, err := c.source.LatestRate(ctx, currency, shared.BaseCurrency, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fxrate: lookup %s/%s: %w", currency, shared.BaseCurrency, err)
	}
	if !found {
		c.logger.Warn("fx quote missing, using identity rate",
			slog.String("from", string(currency)),
			slog.Time("as_of", asOf))
		rate = decimal.NewFromInt(1)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
			c.logger.Warn("fx cache set", slog.Any("error", err))
		}
	}
	return rate, nil
}
