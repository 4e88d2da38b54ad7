package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries and leader-change logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one audit entry. Entries are never updated or deleted.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("audit: repository not initialised")
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("audit: marshal metadata: %w", err)
	}
	const query = `
		INSERT INTO audit_logs (id, entity_type, entity_id, entity_name, action, field, old_value, new_value, metadata, actor_id, actor_name, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.pool.Exec(ctx, query,
		e.ID, e.EntityType, e.EntityID, e.EntityName, e.Action,
		optional(e.Field), optional(e.OldValue), optional(e.NewValue),
		metaJSON, e.ActorID, e.ActorName, e.OccurredAt)
	return err
}

// InsertLeaderChange appends one leader-change log row.
func (r *Repository) InsertLeaderChange(ctx context.Context, lc LeaderChange) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("audit: repository not initialised")
	}
	affected, err := json.Marshal(lc.AffectedInstallments)
	if err != nil {
		return err
	}
	blocked, err := json.Marshal(lc.BlockedInstallments)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO leader_change_logs (id, project_id, project_name, previous_leader_id, previous_leader_name, new_leader_id, new_leader_name, effective_from_month, affected_installments, blocked_installments, reason, changed_by, changed_by_name, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.pool.Exec(ctx, query,
		lc.ID, lc.ProjectID, lc.ProjectName, lc.PreviousLeaderID, lc.PreviousLeaderName,
		lc.NewLeaderID, lc.NewLeaderName, lc.EffectiveFromMonth, affected, blocked,
		optional(lc.Reason), lc.ChangedBy, lc.ChangedByName, lc.ChangedAt)
	return err
}

// Timeline returns entries most-recent-first, filtered and windowed.
func (r *Repository) Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("audit: repository not initialised")
	}
	const query = `
		SELECT id, entity_type, entity_id, entity_name, action, field, old_value, new_value, metadata, actor_id, actor_name, occurred_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1)
		  AND ($2 = '' OR entity_id = $2)
		  AND ($3 = '' OR action = $3)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.pool.Query(ctx, query, filters.EntityType, filters.EntityID, filters.Action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			field    pgtype.Text
			oldValue pgtype.Text
			newValue pgtype.Text
			metaJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.EntityName, &e.Action,
			&field, &oldValue, &newValue, &metaJSON, &e.ActorID, &e.ActorName, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Field = field.String
		e.OldValue = oldValue.String
		e.NewValue = newValue.String
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LeaderChangesByProject returns the specialized log most-recent-first.
func (r *Repository) LeaderChangesByProject(ctx context.Context, projectID string) ([]LeaderChange, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("audit: repository not initialised")
	}
	const query = `
		SELECT id, project_id, project_name, previous_leader_id, previous_leader_name, new_leader_id, new_leader_name, effective_from_month, affected_installments, blocked_installments, reason, changed_by, changed_by_name, changed_at
		FROM leader_change_logs
		WHERE project_id = $1
		ORDER BY changed_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []LeaderChange
	for rows.Next() {
		var (
			lc       LeaderChange
			reason   pgtype.Text
			affected []byte
			blocked  []byte
		)
		if err := rows.Scan(&lc.ID, &lc.ProjectID, &lc.ProjectName, &lc.PreviousLeaderID, &lc.PreviousLeaderName,
			&lc.NewLeaderID, &lc.NewLeaderName, &lc.EffectiveFromMonth, &affected, &blocked,
			&reason, &lc.ChangedBy, &lc.ChangedByName, &lc.ChangedAt); err != nil {
			return nil, err
		}
		lc.Reason = reason.String
		_ = json.Unmarshal(affected, &lc.AffectedInstallments)
		_ = json.Unmarshal(blocked, &lc.BlockedInstallments)
		changes = append(changes, lc)
	}
	return changes, rows.Err()
}

func optional(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
