package managerial

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/portfolio"
	"github.com/caravela-erp/caravela/internal/shared"
)

// SourceRow is one installment joined with its project, contract and company.
// ProjectLeaderName is the project's current pointer, used when the
// installment carries no attribution of its own.
type SourceRow struct {
	InstallmentID     string
	ProjectID         string
	ProjectName       string
	Department        portfolio.Department
	ProjectLeaderName *string
	CompanyID         string
	CompanyName       string
	CompanyType       portfolio.CompanyType
	PeriodStart       time.Time
	CompetenceMonth   *shared.YearMonth
	Value             decimal.Decimal
	Currency          shared.Currency
	LeaderName        *string
}

// Competence resolves the row's accounting period the same way the
// installment entity does.
func (r SourceRow) Competence() shared.YearMonth {
	if r.CompetenceMonth != nil && *r.CompetenceMonth != "" {
		return *r.CompetenceMonth
	}
	return shared.YearMonthOf(r.PeriodStart)
}

// Repository reads the joined installment source set.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SourceRows returns the filtered joined view, ordered for stable output.
// The year-month filter is applied in Go because the competence derivation
// must match Competence() exactly; the other filters push down to SQL.
func (r *Repository) SourceRows(ctx context.Context, filters Filters) ([]SourceRow, error) {
	query := `
		SELECT i.id, p.id, p.name, p.department, p.leader_name,
		       co.id, co.name, co.type,
		       i.period_start, i.competence_month, i.value::text, i.currency, i.leader_name
		FROM installments i
		JOIN projects p ON p.id = i.project_id
		JOIN contracts c ON c.id = p.contract_id
		JOIN companies co ON co.id = c.company_id`

	var (
		conds []string
		args  []any
	)
	if filters.CompanyID != "" {
		args = append(args, filters.CompanyID)
		conds = append(conds, fmt.Sprintf("co.id = $%d", len(args)))
	}
	if filters.Department != "" {
		args = append(args, string(filters.Department))
		conds = append(conds, fmt.Sprintf("p.department = $%d", len(args)))
	}
	if filters.ProjectID != "" {
		args = append(args, filters.ProjectID)
		conds = append(conds, fmt.Sprintf("p.id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY i.period_start, i.id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceRow
	for rows.Next() {
		var (
			row        SourceRow
			competence pgtype.Text
			value      string
		)
		if err := rows.Scan(&row.InstallmentID, &row.ProjectID, &row.ProjectName, &row.Department, &row.ProjectLeaderName,
			&row.CompanyID, &row.CompanyName, &row.CompanyType,
			&row.PeriodStart, &competence, &value, &row.Currency, &row.LeaderName); err != nil {
			return nil, err
		}
		if competence.Valid && competence.String != "" {
			ym := shared.YearMonth(competence.String)
			row.CompetenceMonth = &ym
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("managerial: parse value %q: %w", value, err)
		}
		row.Value = v

		if filters.YearMonth != "" && row.Competence() != filters.YearMonth {
			continue
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
