package closing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/platform/db"
	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/internal/taxindex"
)

// Repository persists monthly closing state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const closingColumns = `id, year_month, status, closed_at, closed_by, closed_by_name, justification, reopened_at, reopened_by, reopened_by_name, reopen_reason, created_at, updated_at`

// GetByMonth fetches a closing record, or nil when the month has none.
func (r *Repository) GetByMonth(ctx context.Context, ym shared.YearMonth) (*MonthlyClosing, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("closing: repository not initialised")
	}
	query := `SELECT ` + closingColumns + ` FROM monthly_closings WHERE year_month = $1`
	mc, err := scanClosing(r.pool.QueryRow(ctx, query, ym))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return mc, nil
}

// ListWithIndex returns closings joined with their paired tax index, ordered
// by yearMonth ascending.
func (r *Repository) ListWithIndex(ctx context.Context) ([]ClosingWithIndex, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("closing: repository not initialised")
	}
	const query = `
		SELECT c.id, c.year_month, c.status, c.closed_at, c.closed_by, c.closed_by_name, c.justification,
		       c.reopened_at, c.reopened_by, c.reopened_by_name, c.reopen_reason, c.created_at, c.updated_at,
		       i.id, i.status, i.tax_index_rate::text, i.actual_revenue::text, i.actual_taxes::text,
		       i.consolidated_at, i.consolidated_by, i.consolidated_by_name, i.created_at, i.updated_at
		FROM monthly_closings c
		LEFT JOIN monthly_tax_indices i ON i.year_month = c.year_month
		ORDER BY c.year_month`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClosingWithIndex
	for rows.Next() {
		var (
			mc             MonthlyClosing
			closedAt       pgtype.Timestamptz
			reopenedAt     pgtype.Timestamptz
			idxID          pgtype.Text
			idxStatus      pgtype.Text
			idxRate        pgtype.Text
			idxRevenue     pgtype.Text
			idxTaxes       pgtype.Text
			consolidatedAt pgtype.Timestamptz
			consolidatedBy pgtype.Text
			consolidatedNm pgtype.Text
			idxCreatedAt   pgtype.Timestamptz
			idxUpdatedAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&mc.ID, &mc.YearMonth, &mc.Status, &closedAt, &mc.ClosedBy, &mc.ClosedByName, &mc.Justification,
			&reopenedAt, &mc.ReopenedBy, &mc.ReopenedByName, &mc.ReopenReason, &mc.CreatedAt, &mc.UpdatedAt,
			&idxID, &idxStatus, &idxRate, &idxRevenue, &idxTaxes,
			&consolidatedAt, &consolidatedBy, &consolidatedNm, &idxCreatedAt, &idxUpdatedAt); err != nil {
			return nil, err
		}
		mc.ClosedAt = timePtr(closedAt)
		mc.ReopenedAt = timePtr(reopenedAt)

		item := ClosingWithIndex{Closing: mc}
		if idxID.Valid {
			rate, err := decimal.NewFromString(idxRate.String)
			if err != nil {
				return nil, fmt.Errorf("closing: parse index rate %q: %w", idxRate.String, err)
			}
			idx := taxindex.MonthlyTaxIndex{
				ID:             idxID.String,
				YearMonth:      mc.YearMonth,
				TaxIndexRate:   rate,
				Status:         taxindex.Status(idxStatus.String),
				ConsolidatedAt: timePtr(consolidatedAt),
				CreatedAt:      idxCreatedAt.Time,
				UpdatedAt:      idxUpdatedAt.Time,
			}
			if idxRevenue.Valid {
				v, err := decimal.NewFromString(idxRevenue.String)
				if err != nil {
					return nil, err
				}
				idx.ActualRevenue = &v
			}
			if idxTaxes.Valid {
				v, err := decimal.NewFromString(idxTaxes.String)
				if err != nil {
					return nil, err
				}
				idx.ActualTaxes = &v
			}
			if consolidatedBy.Valid {
				v := consolidatedBy.String
				idx.ConsolidatedBy = &v
			}
			if consolidatedNm.Valid {
				v := consolidatedNm.String
				idx.ConsolidatedByName = &v
			}
			item.Index = &idx
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("closing: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

type txStore struct {
	tx pgx.Tx
}

// GetByMonthForUpdate locks the closing row for the duration of the
// transaction, or returns nil when the month has no record yet.
func (t *txStore) GetByMonthForUpdate(ctx context.Context, ym shared.YearMonth) (*MonthlyClosing, error) {
	query := `SELECT ` + closingColumns + ` FROM monthly_closings WHERE year_month = $1 FOR UPDATE`
	mc, err := scanClosing(t.tx.QueryRow(ctx, query, ym))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return mc, nil
}

// Insert creates a new closing row. A concurrent insert for the same month
// surfaces as a state conflict, not a duplicate row.
func (t *txStore) Insert(ctx context.Context, mc MonthlyClosing) error {
	const query = `
		INSERT INTO monthly_closings (id, year_month, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := t.tx.Exec(ctx, query, mc.ID, mc.YearMonth, string(mc.Status), mc.CreatedAt, mc.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("closing: month %s already registered: %w", mc.YearMonth, shared.ErrStateConflict)
	}
	return err
}

// MarkClosed stamps close fields and flips status.
func (t *txStore) MarkClosed(ctx context.Context, mc MonthlyClosing) error {
	const query = `
		UPDATE monthly_closings
		SET status = $2, closed_at = $3, closed_by = $4, closed_by_name = $5, justification = $6, updated_at = $7
		WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, mc.ID, string(mc.Status), mc.ClosedAt, mc.ClosedBy, mc.ClosedByName, mc.Justification, mc.UpdatedAt)
	return err
}

// MarkReopened stamps reopen fields and flips status back to open.
func (t *txStore) MarkReopened(ctx context.Context, mc MonthlyClosing) error {
	const query = `
		UPDATE monthly_closings
		SET status = $2, reopened_at = $3, reopened_by = $4, reopened_by_name = $5, reopen_reason = $6, updated_at = $7
		WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, mc.ID, string(mc.Status), mc.ReopenedAt, mc.ReopenedBy, mc.ReopenedByName, mc.ReopenReason, mc.UpdatedAt)
	return err
}

// UpsertConsolidatedIndex writes the consolidated tax index for the month.
func (t *txStore) UpsertConsolidatedIndex(ctx context.Context, idx taxindex.MonthlyTaxIndex) error {
	const query = `
		INSERT INTO monthly_tax_indices (id, year_month, actual_revenue, actual_taxes, tax_index_rate, status, calculated_at, consolidated_at, consolidated_by, consolidated_by_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (year_month) DO UPDATE
		SET actual_revenue = EXCLUDED.actual_revenue,
		    actual_taxes = EXCLUDED.actual_taxes,
		    tax_index_rate = EXCLUDED.tax_index_rate,
		    status = EXCLUDED.status,
		    calculated_at = EXCLUDED.calculated_at,
		    consolidated_at = EXCLUDED.consolidated_at,
		    consolidated_by = EXCLUDED.consolidated_by,
		    consolidated_by_name = EXCLUDED.consolidated_by_name,
		    updated_at = EXCLUDED.updated_at`
	_, err := t.tx.Exec(ctx, query,
		idx.ID, idx.YearMonth, decimalPtr(idx.ActualRevenue), decimalPtr(idx.ActualTaxes),
		idx.TaxIndexRate.String(), string(idx.Status), idx.CalculatedAt, idx.ConsolidatedAt,
		idx.ConsolidatedBy, idx.ConsolidatedByName, idx.CreatedAt, idx.UpdatedAt)
	return err
}

// RevertIndexToForecast flips the month's index back to forecast, clearing
// the consolidation stamps but keeping the last computed rate in place.
func (t *txStore) RevertIndexToForecast(ctx context.Context, ym shared.YearMonth, at time.Time) (bool, error) {
	const query = `
		UPDATE monthly_tax_indices
		SET status = 'forecast', consolidated_at = NULL, consolidated_by = NULL, consolidated_by_name = NULL, updated_at = $2
		WHERE year_month = $1`
	tag, err := t.tx.Exec(ctx, query, ym, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertForecastIndexIfMissing seeds a forecast row; existing rows win.
func (t *txStore) InsertForecastIndexIfMissing(ctx context.Context, idx taxindex.MonthlyTaxIndex) (bool, error) {
	const query = `
		INSERT INTO monthly_tax_indices (id, year_month, tax_index_rate, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (year_month) DO NOTHING`
	tag, err := t.tx.Exec(ctx, query, idx.ID, idx.YearMonth, idx.TaxIndexRate.String(), string(idx.Status), idx.CreatedAt, idx.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanClosing(row pgx.Row) (*MonthlyClosing, error) {
	var (
		mc         MonthlyClosing
		closedAt   pgtype.Timestamptz
		reopenedAt pgtype.Timestamptz
	)
	if err := row.Scan(&mc.ID, &mc.YearMonth, &mc.Status, &closedAt, &mc.ClosedBy, &mc.ClosedByName, &mc.Justification,
		&reopenedAt, &mc.ReopenedBy, &mc.ReopenedByName, &mc.ReopenReason, &mc.CreatedAt, &mc.UpdatedAt); err != nil {
		return nil, err
	}
	mc.ClosedAt = timePtr(closedAt)
	mc.ReopenedAt = timePtr(reopenedAt)
	return &mc, nil
}

func decimalPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
