package closing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/audit"
	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/internal/taxindex"
)

// Store provides the persistence surface for the registry.
type Store interface {
	GetByMonth(ctx context.Context, ym shared.YearMonth) (*MonthlyClosing, error)
	ListWithIndex(ctx context.Context) ([]ClosingWithIndex, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the operations permitted inside a closing transaction.
// The tax index writes live here because the consolidate and reopen actions
// must pair both tables in one transaction.
type TxStore interface {
	GetByMonthForUpdate(ctx context.Context, ym shared.YearMonth) (*MonthlyClosing, error)
	Insert(ctx context.Context, mc MonthlyClosing) error
	MarkClosed(ctx context.Context, mc MonthlyClosing) error
	MarkReopened(ctx context.Context, mc MonthlyClosing) error
	UpsertConsolidatedIndex(ctx context.Context, idx taxindex.MonthlyTaxIndex) error
	RevertIndexToForecast(ctx context.Context, ym shared.YearMonth, at time.Time) (bool, error)
	InsertForecastIndexIfMissing(ctx context.Context, idx taxindex.MonthlyTaxIndex) (bool, error)
}

type auditSink interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Service orchestrates the monthly closing lifecycle.
type Service struct {
	store  Store
	trail  auditSink
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService constructs a closing service.
func NewService(store Store, trail auditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		trail:  trail,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// IsClosed reports whether the month is closed. A month with no record is
// open; absence is never an error.
func (s *Service) IsClosed(ctx context.Context, ym shared.YearMonth) (bool, error) {
	if _, err := shared.ParseYearMonth(ym); err != nil {
		return false, err
	}
	mc, err := s.store.GetByMonth(ctx, ym)
	if err != nil {
		return false, err
	}
	return mc != nil && mc.Status == StatusClosed, nil
}

// List returns every closing with its paired tax index.
func (s *Service) List(ctx context.Context) ([]ClosingWithIndex, error) {
	return s.store.ListWithIndex(ctx)
}

// Close transitions a month to closed. The record is created implicitly when
// the month was never touched before.
func (s *Service) Close(ctx context.Context, in CloseInput) (MonthlyClosing, error) {
	if _, err := shared.ParseYearMonth(in.YearMonth); err != nil {
		return MonthlyClosing{}, err
	}
	if !in.Actor.Valid() {
		return MonthlyClosing{}, ErrActorRequired
	}

	var closed MonthlyClosing
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		mc, err := s.lockOrCreate(ctx, tx, in.YearMonth)
		if err != nil {
			return err
		}
		if mc.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		now := s.now()
		mc.Status = StatusClosed
		mc.ClosedAt = &now
		mc.ClosedBy = &in.Actor.ID
		mc.ClosedByName = &in.Actor.Name
		if strings.TrimSpace(in.Justification) != "" {
			j := in.Justification
			mc.Justification = &j
		}
		mc.UpdatedAt = now
		if err := tx.MarkClosed(ctx, *mc); err != nil {
			return err
		}
		closed = *mc
		return nil
	})
	if err != nil {
		return MonthlyClosing{}, err
	}

	s.record(ctx, audit.Entry{
		EntityType: "monthly_closing",
		EntityID:   closed.ID,
		EntityName: closed.YearMonth,
		Action:     audit.ActionCloseMonth,
		Metadata:   justificationMeta(in.Justification),
		ActorID:    in.Actor.ID,
		ActorName:  in.Actor.Name,
	})
	return closed, nil
}

// Reopen transitions a closed month back to open and reverts the paired tax
// index to forecast. Justification is mandatory.
func (s *Service) Reopen(ctx context.Context, in ReopenInput) (MonthlyClosing, error) {
	if _, err := shared.ParseYearMonth(in.YearMonth); err != nil {
		return MonthlyClosing{}, err
	}
	if !in.Actor.Valid() {
		return MonthlyClosing{}, ErrActorRequired
	}
	if strings.TrimSpace(in.Justification) == "" {
		return MonthlyClosing{}, ErrJustificationRequired
	}

	var reopened MonthlyClosing
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		mc, err := tx.GetByMonthForUpdate(ctx, in.YearMonth)
		if err != nil {
			return err
		}
		if mc == nil || mc.Status != StatusClosed {
			return ErrNotClosed
		}
		now := s.now()
		mc.Status = StatusOpen
		mc.ReopenedAt = &now
		mc.ReopenedBy = &in.Actor.ID
		mc.ReopenedByName = &in.Actor.Name
		reason := in.Justification
		mc.ReopenReason = &reason
		mc.UpdatedAt = now
		if err := tx.MarkReopened(ctx, *mc); err != nil {
			return err
		}
		if _, err := tx.RevertIndexToForecast(ctx, in.YearMonth, now); err != nil {
			return err
		}
		reopened = *mc
		return nil
	})
	if err != nil {
		return MonthlyClosing{}, err
	}

	s.record(ctx, audit.Entry{
		EntityType: "monthly_closing",
		EntityID:   reopened.ID,
		EntityName: reopened.YearMonth,
		Action:     audit.ActionReopenMonth,
		Metadata:   justificationMeta(in.Justification),
		ActorID:    in.Actor.ID,
		ActorName:  in.Actor.Name,
	})
	return reopened, nil
}

// Consolidate upserts the month's tax index with the realized rate and closes
// the month, atomically as a pair. This is the only path that both sets a tax
// index and closes a month in one step.
func (s *Service) Consolidate(ctx context.Context, in ConsolidateInput) (ConsolidateResult, error) {
	if _, err := shared.ParseYearMonth(in.YearMonth); err != nil {
		return ConsolidateResult{}, err
	}
	if !in.Actor.Valid() {
		return ConsolidateResult{}, ErrActorRequired
	}
	if in.ActualRevenue.LessThanOrEqual(decimal.Zero) {
		return ConsolidateResult{}, ErrInvalidRevenue
	}
	if in.ActualTaxes.IsNegative() {
		return ConsolidateResult{}, ErrInvalidTaxes
	}

	rate := taxindex.CalculateIndex(in.ActualRevenue, in.ActualTaxes)
	justification := fmt.Sprintf(
		"Consolidated with actual revenue %s, actual taxes %s, tax index %s",
		in.ActualRevenue.String(), in.ActualTaxes.String(), rate.String())

	var result ConsolidateResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		mc, err := s.lockOrCreate(ctx, tx, in.YearMonth)
		if err != nil {
			return err
		}
		if mc.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		now := s.now()

		revenue := in.ActualRevenue
		taxes := in.ActualTaxes
		idx := taxindex.MonthlyTaxIndex{
			ID:                 s.newID(),
			YearMonth:          in.YearMonth,
			ActualRevenue:      &revenue,
			ActualTaxes:        &taxes,
			TaxIndexRate:       rate,
			Status:             taxindex.StatusConsolidated,
			CalculatedAt:       &now,
			ConsolidatedAt:     &now,
			ConsolidatedBy:     &in.Actor.ID,
			ConsolidatedByName: &in.Actor.Name,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.UpsertConsolidatedIndex(ctx, idx); err != nil {
			return err
		}

		mc.Status = StatusClosed
		mc.ClosedAt = &now
		mc.ClosedBy = &in.Actor.ID
		mc.ClosedByName = &in.Actor.Name
		mc.Justification = &justification
		mc.UpdatedAt = now
		if err := tx.MarkClosed(ctx, *mc); err != nil {
			return err
		}
		result = ConsolidateResult{Closing: *mc, Index: idx}
		return nil
	})
	if err != nil {
		return ConsolidateResult{}, err
	}

	s.record(ctx, audit.Entry{
		EntityType: "monthly_closing",
		EntityID:   result.Closing.ID,
		EntityName: result.Closing.YearMonth,
		Action:     audit.ActionConsolidateMonth,
		Metadata: map[string]any{
			"actual_revenue": in.ActualRevenue.String(),
			"actual_taxes":   in.ActualTaxes.String(),
			"tax_index_rate": rate.String(),
		},
		ActorID:   in.Actor.ID,
		ActorName: in.Actor.Name,
	})
	return result, nil
}

// EnsureMonth creates an open closing record and a forecast tax index for a
// month that became relevant (first installment landed in it). forecastRate
// is the caller-resolved last known rate. Returns true when the closing row
// was created.
func (s *Service) EnsureMonth(ctx context.Context, ym shared.YearMonth, forecastRate decimal.Decimal) (bool, error) {
	if _, err := shared.ParseYearMonth(ym); err != nil {
		return false, err
	}
	var created bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		mc, err := tx.GetByMonthForUpdate(ctx, ym)
		if err != nil {
			return err
		}
		now := s.now()
		if mc == nil {
			if err := tx.Insert(ctx, s.openRecord(ym, now)); err != nil {
				return err
			}
			created = true
		}
		_, err = tx.InsertForecastIndexIfMissing(ctx, taxindex.MonthlyTaxIndex{
			ID:           s.newID(),
			YearMonth:    ym,
			TaxIndexRate: forecastRate,
			Status:       taxindex.StatusForecast,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return err
	})
	return created, err
}

// lockOrCreate loads the month row for update, creating it open when the
// period was never registered.
func (s *Service) lockOrCreate(ctx context.Context, tx TxStore, ym shared.YearMonth) (*MonthlyClosing, error) {
	mc, err := tx.GetByMonthForUpdate(ctx, ym)
	if err != nil {
		return nil, err
	}
	if mc != nil {
		return mc, nil
	}
	fresh := s.openRecord(ym, s.now())
	if err := tx.Insert(ctx, fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

func (s *Service) openRecord(ym shared.YearMonth, now time.Time) MonthlyClosing {
	return MonthlyClosing{
		ID:        s.newID(),
		YearMonth: ym,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// record appends the audit entry after the transaction committed. The
// transition itself is the source of truth; a failed append is logged and
// does not undo it.
func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(ctx, e); err != nil {
		s.logger.Error("closing: audit append failed",
			slog.String("action", e.Action),
			slog.String("year_month", e.EntityName),
			slog.Any("error", err))
	}
}

func justificationMeta(justification string) map[string]any {
	if strings.TrimSpace(justification) == "" {
		return nil
	}
	return map[string]any{"justification": justification}
}
