package portfolio

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

// Repository provides PostgreSQL backed persistence for portfolio records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCompanies returns all companies ordered by name.
func (r *Repository) ListCompanies(ctx context.Context) ([]Company, error) {
	const query = `
		SELECT id, name, type, currency, created_at, updated_at
		FROM companies ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Currency, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListContracts returns all contracts ordered by code.
func (r *Repository) ListContracts(ctx context.Context) ([]Contract, error) {
	const query = `
		SELECT id, company_id, code, client_name, start_date, end_date, created_at, updated_at
		FROM contracts ORDER BY code`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		var (
			c       Contract
			endDate pgtype.Date
		)
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Code, &c.ClientName, &c.StartDate, &endDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if endDate.Valid {
			d := endDate.Time
			c.EndDate = &d
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const projectColumns = `id, contract_id, name, department, leader_id, leader_name, created_at, updated_at`

// GetProject fetches one project, or nil when absent.
func (r *Repository) GetProject(ctx context.Context, id string) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	var p Project
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.ContractID, &p.Name, &p.Department, &p.LeaderID, &p.LeaderName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all projects ordered by name.
func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.ContractID, &p.Name, &p.Department, &p.LeaderID, &p.LeaderName, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const installmentColumns = `id, project_id, period_start, period_end, competence_month, type, value::text, currency, tax_percentage::text, tax_estimated_value::text, leader_id, leader_name, created_at, updated_at`

// GetInstallment fetches one installment, or nil when absent.
func (r *Repository) GetInstallment(ctx context.Context, id string) (*Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE id = $1`
	inst, err := scanInstallment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

// InstallmentsByProject returns a project's installments ordered by period.
func (r *Repository) InstallmentsByProject(ctx context.Context, projectID string) ([]Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE project_id = $1 ORDER BY period_start, id`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

// UpdateInstallmentValue rewrites the value of one installment.
func (r *Repository) UpdateInstallmentValue(ctx context.Context, id string, value decimal.Decimal, at time.Time) error {
	const query = `UPDATE installments SET value = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, value.String(), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("portfolio: installment %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// DistinctCompetenceMonths returns the sorted set of months carrying at least
// one installment. The explicit column wins over the period-start derivation,
// mirroring Installment.Competence.
func (r *Repository) DistinctCompetenceMonths(ctx context.Context) ([]shared.YearMonth, error) {
	const query = `
		SELECT DISTINCT COALESCE(NULLIF(competence_month, ''), to_char(period_start, 'YYYY-MM')) AS ym
		FROM installments ORDER BY ym`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shared.YearMonth
	for rows.Next() {
		var ym shared.YearMonth
		if err := rows.Scan(&ym); err != nil {
			return nil, err
		}
		out = append(out, ym)
	}
	return out, rows.Err()
}

func scanInstallment(row pgx.Row) (*Installment, error) {
	var (
		inst          Installment
		periodEnd     pgtype.Date
		competence    pgtype.Text
		value         string
		taxPercentage pgtype.Text
		taxEstimated  pgtype.Text
	)
	if err := row.Scan(&inst.ID, &inst.ProjectID, &inst.PeriodStart, &periodEnd, &competence, &inst.Type,
		&value, &inst.Currency, &taxPercentage, &taxEstimated, &inst.LeaderID, &inst.LeaderName,
		&inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	if periodEnd.Valid {
		d := periodEnd.Time
		inst.PeriodEnd = &d
	}
	if competence.Valid && competence.String != "" {
		ym := shared.YearMonth(competence.String)
		inst.CompetenceMonth = &ym
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("portfolio: parse installment value %q: %w", value, err)
	}
	inst.Value = v
	if taxPercentage.Valid {
		p, err := decimal.NewFromString(taxPercentage.String)
		if err != nil {
			return nil, err
		}
		inst.TaxPercentage = &p
	}
	if taxEstimated.Valid {
		e, err := decimal.NewFromString(taxEstimated.String)
		if err != nil {
			return nil, err
		}
		inst.TaxEstimatedValue = &e
	}
	return &inst, nil
}
