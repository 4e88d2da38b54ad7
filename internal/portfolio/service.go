package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/audit"
	"github.com/caravela-erp/caravela/internal/shared"
)

// Store provides the persistence surface the service needs.
type Store interface {
	ListCompanies(ctx context.Context) ([]Company, error)
	ListContracts(ctx context.Context) ([]Contract, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	GetInstallment(ctx context.Context, id string) (*Installment, error)
	InstallmentsByProject(ctx context.Context, projectID string) ([]Installment, error)
	UpdateInstallmentValue(ctx context.Context, id string, value decimal.Decimal, at time.Time) error
	DistinctCompetenceMonths(ctx context.Context) ([]shared.YearMonth, error)
}

type monthGate interface {
	IsClosed(ctx context.Context, ym shared.YearMonth) (bool, error)
}

type auditSink interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Service exposes portfolio reads and the closing-gated installment edit.
type Service struct {
	store  Store
	gate   monthGate
	trail  auditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a portfolio service.
func NewService(store Store, gate monthGate, trail auditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		gate:   gate,
		trail:  trail,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Companies lists all companies.
func (s *Service) Companies(ctx context.Context) ([]Company, error) {
	return s.store.ListCompanies(ctx)
}

// Contracts lists all contracts.
func (s *Service) Contracts(ctx context.Context) ([]Contract, error) {
	return s.store.ListContracts(ctx)
}

// Projects lists all projects.
func (s *Service) Projects(ctx context.Context) ([]Project, error) {
	return s.store.ListProjects(ctx)
}

// Project fetches one project.
func (s *Service) Project(ctx context.Context, id string) (Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if p == nil {
		return Project{}, fmt.Errorf("portfolio: project %s: %w", id, shared.ErrNotFound)
	}
	return *p, nil
}

// Installments lists a project's installments.
func (s *Service) Installments(ctx context.Context, projectID string) ([]Installment, error) {
	if _, err := s.Project(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.InstallmentsByProject(ctx, projectID)
}

// CompetenceMonths returns the sorted distinct months that carry installments.
// The seed job uses it to register new closing records.
func (s *Service) CompetenceMonths(ctx context.Context) ([]shared.YearMonth, error) {
	return s.store.DistinctCompetenceMonths(ctx)
}

// UpdateInstallmentValue rewrites one installment's value. The edit is refused
// when the installment's competence month is closed; values are mutable only
// inside open months.
func (s *Service) UpdateInstallmentValue(ctx context.Context, id string, value decimal.Decimal, actor shared.Actor) (Installment, error) {
	if !actor.Valid() {
		return Installment{}, ErrActorRequired
	}
	if value.LessThanOrEqual(decimal.Zero) {
		return Installment{}, ErrInvalidValue
	}
	inst, err := s.store.GetInstallment(ctx, id)
	if err != nil {
		return Installment{}, err
	}
	if inst == nil {
		return Installment{}, fmt.Errorf("portfolio: installment %s: %w", id, shared.ErrNotFound)
	}

	competence := inst.Competence()
	closed, err := s.gate.IsClosed(ctx, competence)
	if err != nil {
		return Installment{}, err
	}
	if closed {
		return Installment{}, fmt.Errorf("%w: %s", ErrInstallmentMonthClosed, competence)
	}

	previous := inst.Value
	now := s.now()
	if err := s.store.UpdateInstallmentValue(ctx, id, value, now); err != nil {
		return Installment{}, err
	}
	inst.Value = value
	inst.UpdatedAt = now

	s.record(ctx, audit.Entry{
		EntityType: "installment",
		EntityID:   inst.ID,
		EntityName: fmt.Sprintf("installment %s (%s)", inst.ID, competence),
		Action:     audit.ActionValueChange,
		Metadata: map[string]any{
			"field":            "value",
			"previous_value":   previous.String(),
			"new_value":        value.String(),
			"competence_month": string(competence),
		},
		ActorID:   actor.ID,
		ActorName: actor.Name,
	})
	return *inst, nil
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(ctx, e); err != nil {
		s.logger.Error("portfolio: audit append failed",
			slog.String("action", e.Action),
			slog.String("entity_id", e.EntityID),
			slog.Any("error", err))
	}
}
