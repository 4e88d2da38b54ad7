package fxrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"time"

	"github.com/caravela-erp/caravela/internal/shared"
)

// Repository reads the exchange rate table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a rate repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LatestRate returns the most recent quote effective at or before asOf.
// The second return reports whether a quote exists for the pair.
func (r *Repository) LatestRate(ctx context.Context, from, to shared.Currency, asOf time.Time) (decimal.Decimal, bool, error) {
	if r == nil || r.pool == nil {
		return decimal.Zero, false, fmt.Errorf("fxrate: repository not initialised")
	}
	const query = `
		SELECT rate::text
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2 AND effective_date <= $3
		ORDER BY effective_date DESC
		LIMIT 1`
	var raw string
	if err := r.pool.QueryRow(ctx, query, string(from), string(to), asOf).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("fxrate: parse rate %q: %w", raw, err)
	}
	return rate, true, nil
}
