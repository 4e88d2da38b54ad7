package closing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/audit"
	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/internal/taxindex"
)

type memStore struct {
	closings map[string]MonthlyClosing
	indices  map[string]taxindex.MonthlyTaxIndex
}

func newMemStore() *memStore {
	return &memStore{
		closings: make(map[string]MonthlyClosing),
		indices:  make(map[string]taxindex.MonthlyTaxIndex),
	}
}

func (m *memStore) GetByMonth(ctx context.Context, ym shared.YearMonth) (*MonthlyClosing, error) {
	mc, ok := m.closings[ym]
	if !ok {
		return nil, nil
	}
	return &mc, nil
}

func (m *memStore) ListWithIndex(ctx context.Context) ([]ClosingWithIndex, error) {
	var out []ClosingWithIndex
	for ym, mc := range m.closings {
		item := ClosingWithIndex{Closing: mc}
		if idx, ok := m.indices[ym]; ok {
			item.Index = &idx
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return fn(ctx, &memTx{store: m})
}

type memTx struct {
	store *memStore
}

func (t *memTx) GetByMonthForUpdate(ctx context.Context, ym shared.YearMonth) (*MonthlyClosing, error) {
	return t.store.GetByMonth(ctx, ym)
}

func (t *memTx) Insert(ctx context.Context, mc MonthlyClosing) error {
	if _, ok := t.store.closings[mc.YearMonth]; ok {
		return fmt.Errorf("closing: month %s already registered: %w", mc.YearMonth, shared.ErrStateConflict)
	}
	t.store.closings[mc.YearMonth] = mc
	return nil
}

func (t *memTx) MarkClosed(ctx context.Context, mc MonthlyClosing) error {
	t.store.closings[mc.YearMonth] = mc
	return nil
}

func (t *memTx) MarkReopened(ctx context.Context, mc MonthlyClosing) error {
	t.store.closings[mc.YearMonth] = mc
	return nil
}

func (t *memTx) UpsertConsolidatedIndex(ctx context.Context, idx taxindex.MonthlyTaxIndex) error {
	t.store.indices[idx.YearMonth] = idx
	return nil
}

func (t *memTx) RevertIndexToForecast(ctx context.Context, ym shared.YearMonth, at time.Time) (bool, error) {
	idx, ok := t.store.indices[ym]
	if !ok {
		return false, nil
	}
	idx.Status = taxindex.StatusForecast
	idx.ConsolidatedAt = nil
	idx.ConsolidatedBy = nil
	idx.ConsolidatedByName = nil
	idx.UpdatedAt = at
	t.store.indices[ym] = idx
	return true, nil
}

func (t *memTx) InsertForecastIndexIfMissing(ctx context.Context, idx taxindex.MonthlyTaxIndex) (bool, error) {
	if _, ok := t.store.indices[idx.YearMonth]; ok {
		return false, nil
	}
	t.store.indices[idx.YearMonth] = idx
	return true, nil
}

type memTrail struct {
	entries []audit.Entry
}

func (m *memTrail) Record(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memTrail) lastAction() string {
	if len(m.entries) == 0 {
		return ""
	}
	return m.entries[len(m.entries)-1].Action
}

var testActor = shared.Actor{ID: "u-1", Name: "Ana Costa"}

func newTestService(store *memStore) (*Service, *memTrail) {
	trail := &memTrail{}
	svc := NewService(store, trail, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) })
	return svc, trail
}

func TestIsClosedTreatsAbsenceAsOpen(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	closed, err := svc.IsClosed(context.Background(), "2099-01")
	if err != nil {
		t.Fatalf("IsClosed() error = %v", err)
	}
	if closed {
		t.Fatal("month with no record must be open")
	}
}

func TestCloseCreatesRecordImplicitly(t *testing.T) {
	store := newMemStore()
	svc, trail := newTestService(store)

	mc, err := svc.Close(context.Background(), CloseInput{YearMonth: "2024-05", Actor: testActor})
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if mc.Status != StatusClosed {
		t.Fatalf("status = %s, want closed", mc.Status)
	}
	if mc.ClosedAt == nil || mc.ClosedBy == nil {
		t.Fatal("close stamps missing")
	}
	if trail.lastAction() != audit.ActionCloseMonth {
		t.Fatalf("audit action = %q, want %q", trail.lastAction(), audit.ActionCloseMonth)
	}

	closed, err := svc.IsClosed(context.Background(), "2024-05")
	if err != nil {
		t.Fatalf("IsClosed() error = %v", err)
	}
	if !closed {
		t.Fatal("expected month closed after Close")
	}
}

func TestCloseTwiceIsStateConflict(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()
	if _, err := svc.Close(ctx, CloseInput{YearMonth: "2024-05", Actor: testActor}); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	_, err := svc.Close(ctx, CloseInput{YearMonth: "2024-05", Actor: testActor})
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("second Close() error = %v, want ErrAlreadyClosed", err)
	}
	if !errors.Is(err, shared.ErrStateConflict) {
		t.Fatalf("error does not wrap state conflict: %v", err)
	}
}

func TestReopenRequiresJustification(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()
	if _, err := svc.Close(ctx, CloseInput{YearMonth: "2024-05", Actor: testActor}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, justification := range []string{"", "   ", "\t\n"} {
		_, err := svc.Reopen(ctx, ReopenInput{YearMonth: "2024-05", Justification: justification, Actor: testActor})
		if !errors.Is(err, ErrJustificationRequired) {
			t.Fatalf("Reopen(%q) error = %v, want ErrJustificationRequired", justification, err)
		}
	}

	closed, err := svc.IsClosed(ctx, "2024-05")
	if err != nil {
		t.Fatalf("IsClosed() error = %v", err)
	}
	if !closed {
		t.Fatal("rejected reopen must leave the month closed")
	}
}

func TestReopenOpenMonthIsStateConflict(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	_, err := svc.Reopen(context.Background(), ReopenInput{YearMonth: "2024-05", Justification: "auditoria", Actor: testActor})
	if !errors.Is(err, ErrNotClosed) {
		t.Fatalf("Reopen() error = %v, want ErrNotClosed", err)
	}
}

func TestReopenRevertsIndexToForecast(t *testing.T) {
	store := newMemStore()
	svc, trail := newTestService(store)
	ctx := context.Background()

	_, err := svc.Consolidate(ctx, ConsolidateInput{
		YearMonth:     "2024-05",
		ActualRevenue: decimal.NewFromInt(780000),
		ActualTaxes:   decimal.NewFromInt(85800),
		Actor:         testActor,
	})
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if got := store.indices["2024-05"].Status; got != taxindex.StatusConsolidated {
		t.Fatalf("index status = %s, want consolidated", got)
	}

	if _, err := svc.Reopen(ctx, ReopenInput{YearMonth: "2024-05", Justification: "late invoice arrived", Actor: testActor}); err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}

	idx := store.indices["2024-05"]
	if idx.Status != taxindex.StatusForecast {
		t.Fatalf("index status after reopen = %s, want forecast", idx.Status)
	}
	if idx.ConsolidatedAt != nil || idx.ConsolidatedBy != nil {
		t.Fatal("consolidation stamps must be cleared on reopen")
	}
	if trail.lastAction() != audit.ActionReopenMonth {
		t.Fatalf("audit action = %q, want %q", trail.lastAction(), audit.ActionReopenMonth)
	}
}

func TestConsolidateComputesExactRateAndClosesMonth(t *testing.T) {
	store := newMemStore()
	svc, trail := newTestService(store)

	result, err := svc.Consolidate(context.Background(), ConsolidateInput{
		YearMonth:     "2024-05",
		ActualRevenue: decimal.NewFromInt(780000),
		ActualTaxes:   decimal.NewFromInt(85800),
		Actor:         testActor,
	})
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}
	if want := decimal.RequireFromString("0.11"); !result.Index.TaxIndexRate.Equal(want) {
		t.Fatalf("rate = %s, want %s exactly", result.Index.TaxIndexRate, want)
	}
	if result.Index.Status != taxindex.StatusConsolidated {
		t.Fatalf("index status = %s, want consolidated", result.Index.Status)
	}
	if result.Closing.Status != StatusClosed {
		t.Fatalf("closing status = %s, want closed (single-call pairing)", result.Closing.Status)
	}
	if result.Closing.Justification == nil || *result.Closing.Justification == "" {
		t.Fatal("consolidation must generate a justification")
	}
	if trail.lastAction() != audit.ActionConsolidateMonth {
		t.Fatalf("audit action = %q, want %q", trail.lastAction(), audit.ActionConsolidateMonth)
	}
}

func TestConsolidateValidation(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()

	_, err := svc.Consolidate(ctx, ConsolidateInput{
		YearMonth:     "2024-05",
		ActualRevenue: decimal.Zero,
		ActualTaxes:   decimal.NewFromInt(100),
		Actor:         testActor,
	})
	if !errors.Is(err, ErrInvalidRevenue) {
		t.Fatalf("zero revenue error = %v, want ErrInvalidRevenue", err)
	}

	_, err = svc.Consolidate(ctx, ConsolidateInput{
		YearMonth:     "2024-05",
		ActualRevenue: decimal.NewFromInt(100),
		ActualTaxes:   decimal.NewFromInt(-1),
		Actor:         testActor,
	})
	if !errors.Is(err, ErrInvalidTaxes) {
		t.Fatalf("negative taxes error = %v, want ErrInvalidTaxes", err)
	}

	_, err = svc.Consolidate(ctx, ConsolidateInput{
		YearMonth:     "2024-5",
		ActualRevenue: decimal.NewFromInt(100),
		ActualTaxes:   decimal.Zero,
		Actor:         testActor,
	})
	if !errors.Is(err, shared.ErrInvalidYearMonth) {
		t.Fatalf("malformed month error = %v, want ErrInvalidYearMonth", err)
	}
}

func TestConsolidateAlreadyClosedMonth(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	ctx := context.Background()
	if _, err := svc.Close(ctx, CloseInput{YearMonth: "2024-05", Actor: testActor}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	_, err := svc.Consolidate(ctx, ConsolidateInput{
		YearMonth:     "2024-05",
		ActualRevenue: decimal.NewFromInt(100),
		ActualTaxes:   decimal.Zero,
		Actor:         testActor,
	})
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("Consolidate() error = %v, want ErrAlreadyClosed", err)
	}
}

func TestEnsureMonthIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	ctx := context.Background()
	rate := decimal.RequireFromString("0.1133")

	created, err := svc.EnsureMonth(ctx, "2024-07", rate)
	if err != nil {
		t.Fatalf("EnsureMonth() error = %v", err)
	}
	if !created {
		t.Fatal("expected first EnsureMonth to create the record")
	}
	if got := store.indices["2024-07"].Status; got != taxindex.StatusForecast {
		t.Fatalf("seeded index status = %s, want forecast", got)
	}

	created, err = svc.EnsureMonth(ctx, "2024-07", rate)
	if err != nil {
		t.Fatalf("second EnsureMonth() error = %v", err)
	}
	if created {
		t.Fatal("second EnsureMonth must be a no-op")
	}
}
