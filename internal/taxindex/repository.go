package taxindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

// Repository reads monthly tax index rows. Writes funnel through the closing
// registry so the consolidate/close transition pair stays atomic.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a tax index repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const indexColumns = `id, year_month, actual_revenue::text, actual_taxes::text, tax_index_rate::text, status, calculated_at, consolidated_at, consolidated_by, consolidated_by_name, created_at, updated_at`

// GetByMonth returns the index for a month, or nil when none exists.
func (r *Repository) GetByMonth(ctx context.Context, ym shared.YearMonth) (*MonthlyTaxIndex, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("taxindex: repository not initialised")
	}
	query := `SELECT ` + indexColumns + ` FROM monthly_tax_indices WHERE year_month = $1`
	row := r.pool.QueryRow(ctx, query, ym)
	idx, err := scanIndex(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return idx, nil
}

// LatestConsolidated returns the consolidated record with the greatest
// yearMonth, or nil when nothing was ever consolidated.
func (r *Repository) LatestConsolidated(ctx context.Context) (*MonthlyTaxIndex, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("taxindex: repository not initialised")
	}
	query := `SELECT ` + indexColumns + ` FROM monthly_tax_indices WHERE status = 'consolidated' ORDER BY year_month DESC LIMIT 1`
	row := r.pool.QueryRow(ctx, query)
	idx, err := scanIndex(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return idx, nil
}

// List returns all indices ordered by yearMonth ascending.
func (r *Repository) List(ctx context.Context) ([]MonthlyTaxIndex, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("taxindex: repository not initialised")
	}
	query := `SELECT ` + indexColumns + ` FROM monthly_tax_indices ORDER BY year_month`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indices []MonthlyTaxIndex
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, err
		}
		indices = append(indices, *idx)
	}
	return indices, rows.Err()
}

// ArgentinaFixedRate returns the configured fixed rate effective now.
// The second return reports whether a config row exists.
func (r *Repository) ArgentinaFixedRate(ctx context.Context) (decimal.Decimal, bool, error) {
	if r == nil || r.pool == nil {
		return decimal.Zero, false, fmt.Errorf("taxindex: repository not initialised")
	}
	const query = `
		SELECT fixed_tax_rate::text
		FROM argentina_tax_config
		WHERE effective_from <= NOW() AND (effective_to IS NULL OR effective_to > NOW())
		ORDER BY effective_from DESC
		LIMIT 1`
	var raw string
	if err := r.pool.QueryRow(ctx, query).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("taxindex: parse fixed rate %q: %w", raw, err)
	}
	return rate, true, nil
}

func scanIndex(row pgx.Row) (*MonthlyTaxIndex, error) {
	var (
		idx            MonthlyTaxIndex
		actualRevenue  pgtype.Text
		actualTaxes    pgtype.Text
		rateRaw        string
		calculatedAt   pgtype.Timestamptz
		consolidatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&idx.ID, &idx.YearMonth, &actualRevenue, &actualTaxes, &rateRaw, &idx.Status,
		&calculatedAt, &consolidatedAt, &idx.ConsolidatedBy, &idx.ConsolidatedByName,
		&idx.CreatedAt, &idx.UpdatedAt); err != nil {
		return nil, err
	}
	rate, err := decimal.NewFromString(rateRaw)
	if err != nil {
		return nil, fmt.Errorf("taxindex: parse rate %q: %w", rateRaw, err)
	}
	idx.TaxIndexRate = rate
	if actualRevenue.Valid {
		v, err := decimal.NewFromString(actualRevenue.String)
		if err != nil {
			return nil, err
		}
		idx.ActualRevenue = &v
	}
	if actualTaxes.Valid {
		v, err := decimal.NewFromString(actualTaxes.String)
		if err != nil {
			return nil, err
		}
		idx.ActualTaxes = &v
	}
	idx.CalculatedAt = timePtr(calculatedAt)
	idx.ConsolidatedAt = timePtr(consolidatedAt)
	return &idx, nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
