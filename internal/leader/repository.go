package leader

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caravela-erp/caravela/internal/platform/db"
	"github.com/caravela-erp/caravela/internal/portfolio"
)

// Repository persists leader history and performs propagation writes.
type Repository struct {
	pool      *pgxpool.Pool
	portfolio *portfolio.Repository
}

// NewRepository constructs a repository. The portfolio repository is reused
// for the plain reads so the row mapping lives in one place.
func NewRepository(pool *pgxpool.Pool, pf *portfolio.Repository) *Repository {
	return &Repository{pool: pool, portfolio: pf}
}

const historyColumns = `id, project_id, previous_leader_id, previous_leader_name, new_leader_id, new_leader_name, start_date, end_date, reason, changed_by, changed_by_name, changed_at`

// History returns the project's intervals ordered most recent first.
func (r *Repository) History(ctx context.Context, projectID string) ([]HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM leader_history WHERE project_id = $1 ORDER BY start_date DESC, changed_at DESC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e       HistoryEntry
			endDate pgtype.Timestamptz
			reason  pgtype.Text
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.PreviousLeaderID, &e.PreviousLeaderName,
			&e.NewLeaderID, &e.NewLeaderName, &e.StartDate, &endDate, &reason,
			&e.ChangedBy, &e.ChangedByName, &e.ChangedAt); err != nil {
			return nil, err
		}
		if endDate.Valid {
			d := endDate.Time
			e.EndDate = &d
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InstallmentsByProject proxies the portfolio read.
func (r *Repository) InstallmentsByProject(ctx context.Context, projectID string) ([]portfolio.Installment, error) {
	return r.portfolio.InstallmentsByProject(ctx, projectID)
}

// GetProject proxies the portfolio read.
func (r *Repository) GetProject(ctx context.Context, projectID string) (*portfolio.Project, error) {
	return r.portfolio.GetProject(ctx, projectID)
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

type txStore struct {
	tx pgx.Tx
}

// GetProjectForUpdate locks the project row so concurrent propagations on
// the same project serialize. Returns nil when the project does not exist.
func (t *txStore) GetProjectForUpdate(ctx context.Context, projectID string) (*portfolio.Project, error) {
	const query = `
		SELECT id, contract_id, name, department, leader_id, leader_name, created_at, updated_at
		FROM projects WHERE id = $1 FOR UPDATE`
	var p portfolio.Project
	err := t.tx.QueryRow(ctx, query, projectID).Scan(
		&p.ID, &p.ContractID, &p.Name, &p.Department, &p.LeaderID, &p.LeaderName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (t *txStore) InstallmentsByProject(ctx context.Context, projectID string) ([]portfolio.Installment, error) {
	const query = `
		SELECT id, project_id, period_start, competence_month
		FROM installments WHERE project_id = $1 ORDER BY period_start, id`
	rows, err := t.tx.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []portfolio.Installment
	for rows.Next() {
		var (
			inst       portfolio.Installment
			competence pgtype.Text
		)
		if err := rows.Scan(&inst.ID, &inst.ProjectID, &inst.PeriodStart, &competence); err != nil {
			return nil, err
		}
		if competence.Valid && competence.String != "" {
			ym := competence.String
			inst.CompetenceMonth = &ym
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (t *txStore) SetInstallmentLeader(ctx context.Context, installmentIDs []string, leaderID, leaderName string, at time.Time) error {
	const query = `
		UPDATE installments SET leader_id = $2, leader_name = $3, updated_at = $4
		WHERE id = ANY($1)`
	_, err := t.tx.Exec(ctx, query, installmentIDs, leaderID, leaderName, at)
	return err
}

func (t *txStore) CloseOpenHistoryEntry(ctx context.Context, projectID string, endDate time.Time) error {
	const query = `
		UPDATE leader_history SET end_date = $2
		WHERE project_id = $1 AND end_date IS NULL`
	_, err := t.tx.Exec(ctx, query, projectID, endDate)
	return err
}

func (t *txStore) InsertHistoryEntry(ctx context.Context, e HistoryEntry) error {
	query := `
		INSERT INTO leader_history (` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	var reason *string
	if e.Reason != "" {
		reason = &e.Reason
	}
	_, err := t.tx.Exec(ctx, query,
		e.ID, e.ProjectID, e.PreviousLeaderID, e.PreviousLeaderName,
		e.NewLeaderID, e.NewLeaderName, e.StartDate, e.EndDate, reason,
		e.ChangedBy, e.ChangedByName, e.ChangedAt)
	return err
}

func (t *txStore) SetProjectLeader(ctx context.Context, projectID, leaderID, leaderName string, at time.Time) error {
	const query = `
		UPDATE projects SET leader_id = $2, leader_name = $3, updated_at = $4
		WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, projectID, leaderID, leaderName, at)
	return err
}
