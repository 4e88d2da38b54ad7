package leader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/caravela-erp/caravela/internal/audit"
	"github.com/caravela-erp/caravela/internal/portfolio"
	"github.com/caravela-erp/caravela/internal/shared"
)

// Store provides the persistence surface for the engine.
type Store interface {
	History(ctx context.Context, projectID string) ([]HistoryEntry, error)
	InstallmentsByProject(ctx context.Context, projectID string) ([]portfolio.Installment, error)
	GetProject(ctx context.Context, projectID string) (*portfolio.Project, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the operations permitted inside a propagation transaction.
// The project row is locked first so concurrent propagations on the same
// project serialize.
type TxStore interface {
	GetProjectForUpdate(ctx context.Context, projectID string) (*portfolio.Project, error)
	InstallmentsByProject(ctx context.Context, projectID string) ([]portfolio.Installment, error)
	SetInstallmentLeader(ctx context.Context, installmentIDs []string, leaderID, leaderName string, at time.Time) error
	CloseOpenHistoryEntry(ctx context.Context, projectID string, endDate time.Time) error
	InsertHistoryEntry(ctx context.Context, e HistoryEntry) error
	SetProjectLeader(ctx context.Context, projectID, leaderID, leaderName string, at time.Time) error
}

type monthGate interface {
	IsClosed(ctx context.Context, ym shared.YearMonth) (bool, error)
}

type auditSink interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
	RecordLeaderChange(ctx context.Context, lc audit.LeaderChange) (audit.LeaderChange, error)
}

// Engine performs leadership propagation and serves the history reads.
type Engine struct {
	store  Store
	gate   monthGate
	trail  auditSink
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewEngine constructs a propagation engine.
func NewEngine(store Store, gate monthGate, trail auditSink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		gate:   gate,
		trail:  trail,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Propagate reassigns project leadership from effectiveFromMonth onward.
// In-scope installments in open months are rewritten; in-scope installments
// in closed months are reported as blocked; out-of-scope installments are
// untouched either way. An empty affected set yields success false with zero
// side effects.
func (e *Engine) Propagate(ctx context.Context, in PropagateInput) (PropagationResult, error) {
	if in.NewLeaderID == "" || in.NewLeaderName == "" {
		return PropagationResult{}, ErrLeaderRequired
	}
	if !in.Actor.Valid() {
		return PropagationResult{}, ErrActorRequired
	}
	if _, err := shared.ParseYearMonth(in.EffectiveFromMonth); err != nil {
		return PropagationResult{}, err
	}

	var (
		result        PropagationResult
		previousID    *string
		previousName  *string
		projectName   string
		appliedChange bool
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		project, err := tx.GetProjectForUpdate(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			result = PropagationResult{
				Success:                false,
				Message:                "project not found",
				AffectedInstallmentIDs: []string{},
				BlockedInstallmentIDs:  []string{},
			}
			return nil
		}
		projectName = project.Name
		previousID = project.LeaderID
		previousName = project.LeaderName

		installments, err := tx.InstallmentsByProject(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		affected, blocked, err := e.partition(ctx, installments, in.EffectiveFromMonth)
		if err != nil {
			return err
		}

		if len(affected) == 0 {
			message := "no installments match the period at all"
			if len(blocked) > 0 {
				message = "all in-scope installments are in closed months"
			}
			result = PropagationResult{
				Success:                false,
				Message:                message,
				AffectedInstallmentIDs: []string{},
				BlockedInstallmentIDs:  blocked,
			}
			return nil
		}

		now := e.now()
		start, err := shared.FirstDayOf(in.EffectiveFromMonth)
		if err != nil {
			return err
		}

		if err := tx.SetInstallmentLeader(ctx, affected, in.NewLeaderID, in.NewLeaderName, now); err != nil {
			return err
		}
		if err := tx.CloseOpenHistoryEntry(ctx, in.ProjectID, start); err != nil {
			return err
		}
		entry := HistoryEntry{
			ID:                 e.newID(),
			ProjectID:          in.ProjectID,
			PreviousLeaderID:   previousID,
			PreviousLeaderName: previousName,
			NewLeaderID:        in.NewLeaderID,
			NewLeaderName:      in.NewLeaderName,
			StartDate:          start,
			Reason:             in.Reason,
			ChangedBy:          in.Actor.ID,
			ChangedByName:      in.Actor.Name,
			ChangedAt:          now,
		}
		if err := tx.InsertHistoryEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.SetProjectLeader(ctx, in.ProjectID, in.NewLeaderID, in.NewLeaderName, now); err != nil {
			return err
		}

		result = PropagationResult{
			Success:                true,
			Message:                fmt.Sprintf("leader updated on %d installments, %d blocked by closed months", len(affected), len(blocked)),
			AffectedInstallmentIDs: affected,
			BlockedInstallmentIDs:  blocked,
			HistoryEntry:           &entry,
		}
		appliedChange = true
		return nil
	})
	if err != nil {
		return PropagationResult{}, err
	}

	if appliedChange {
		e.recordChange(ctx, in, projectName, previousID, previousName, result)
	}
	return result, nil
}

// AvailableMonths returns the sorted distinct open competence months among a
// project's installments. This is the only legal domain for
// effectiveFromMonth; closed months are never offered.
func (e *Engine) AvailableMonths(ctx context.Context, projectID string) ([]shared.YearMonth, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("leader: project %s: %w", projectID, shared.ErrNotFound)
	}
	installments, err := e.store.InstallmentsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	seen := make(map[shared.YearMonth]bool)
	var out []shared.YearMonth
	for _, inst := range installments {
		ym := inst.Competence()
		if seen[ym] {
			continue
		}
		seen[ym] = true
		closed, err := e.gate.IsClosed(ctx, ym)
		if err != nil {
			return nil, err
		}
		if !closed {
			out = append(out, ym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// History returns the project's leadership intervals, most recent first.
func (e *Engine) History(ctx context.Context, projectID string) ([]HistoryEntry, error) {
	return e.store.History(ctx, projectID)
}

// partition splits installments into affected and blocked id lists. Both
// predicates key off the competence month: in scope means month >=
// effectiveFromMonth (lexical compare on zero-padded YYYY-MM), and a closed
// in-scope month blocks while an open one is affected. Out-of-scope
// installments fall through untouched.
func (e *Engine) partition(ctx context.Context, installments []portfolio.Installment, from shared.YearMonth) (affected, blocked []string, err error) {
	affected = []string{}
	blocked = []string{}
	closedByMonth := make(map[shared.YearMonth]bool)
	for _, inst := range installments {
		ym := inst.Competence()
		if ym < from {
			continue
		}
		closed, ok := closedByMonth[ym]
		if !ok {
			closed, err = e.gate.IsClosed(ctx, ym)
			if err != nil {
				return nil, nil, err
			}
			closedByMonth[ym] = closed
		}
		if closed {
			blocked = append(blocked, inst.ID)
		} else {
			affected = append(affected, inst.ID)
		}
	}
	return affected, blocked, nil
}

// recordChange appends the paired audit records after the transaction
// committed: the generic timeline entry and the specialized leader change
// log. Both are written for every successful propagation.
func (e *Engine) recordChange(ctx context.Context, in PropagateInput, projectName string, previousID, previousName *string, result PropagationResult) {
	if e.trail == nil {
		return
	}
	oldValue := ""
	if previousName != nil {
		oldValue = *previousName
	}
	_, err := e.trail.Record(ctx, audit.Entry{
		EntityType: "project",
		EntityID:   in.ProjectID,
		EntityName: projectName,
		Action:     audit.ActionLeaderChange,
		Field:      "leaderId",
		OldValue:   oldValue,
		NewValue:   in.NewLeaderName,
		Metadata: map[string]any{
			"effective_from_month": string(in.EffectiveFromMonth),
			"affected_count":       len(result.AffectedInstallmentIDs),
			"blocked_count":        len(result.BlockedInstallmentIDs),
		},
		ActorID:   in.Actor.ID,
		ActorName: in.Actor.Name,
	})
	if err != nil {
		e.logger.Error("leader: audit entry append failed",
			slog.String("project_id", in.ProjectID),
			slog.Any("error", err))
	}

	_, err = e.trail.RecordLeaderChange(ctx, audit.LeaderChange{
		ProjectID:            in.ProjectID,
		ProjectName:          projectName,
		PreviousLeaderID:     previousID,
		PreviousLeaderName:   previousName,
		NewLeaderID:          in.NewLeaderID,
		NewLeaderName:        in.NewLeaderName,
		EffectiveFromMonth:   string(in.EffectiveFromMonth),
		AffectedInstallments: result.AffectedInstallmentIDs,
		BlockedInstallments:  result.BlockedInstallmentIDs,
		Reason:               in.Reason,
		ChangedBy:            in.Actor.ID,
		ChangedByName:        in.Actor.Name,
	})
	if err != nil {
		e.logger.Error("leader: leader change log append failed",
			slog.String("project_id", in.ProjectID),
			slog.Any("error", err))
	}
}
