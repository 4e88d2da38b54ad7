package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/audit"
	"github.com/caravela-erp/caravela/internal/shared"
)

type fakeStore struct {
	installments map[string]Installment
	months       []shared.YearMonth
}

func newFakeStore() *fakeStore {
	return &fakeStore{installments: make(map[string]Installment)}
}

func (f *fakeStore) ListCompanies(ctx context.Context) ([]Company, error)  { return nil, nil }
func (f *fakeStore) ListContracts(ctx context.Context) ([]Contract, error) { return nil, nil }
func (f *fakeStore) GetProject(ctx context.Context, id string) (*Project, error) {
	return nil, nil
}
func (f *fakeStore) ListProjects(ctx context.Context) ([]Project, error) { return nil, nil }

func (f *fakeStore) GetInstallment(ctx context.Context, id string) (*Installment, error) {
	inst, ok := f.installments[id]
	if !ok {
		return nil, nil
	}
	return &inst, nil
}

func (f *fakeStore) InstallmentsByProject(ctx context.Context, projectID string) ([]Installment, error) {
	var out []Installment
	for _, inst := range f.installments {
		if inst.ProjectID == projectID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateInstallmentValue(ctx context.Context, id string, value decimal.Decimal, at time.Time) error {
	inst, ok := f.installments[id]
	if !ok {
		return shared.ErrNotFound
	}
	inst.Value = value
	inst.UpdatedAt = at
	f.installments[id] = inst
	return nil
}

func (f *fakeStore) DistinctCompetenceMonths(ctx context.Context) ([]shared.YearMonth, error) {
	return f.months, nil
}

type fakeGate struct {
	closed map[shared.YearMonth]bool
}

func (f *fakeGate) IsClosed(ctx context.Context, ym shared.YearMonth) (bool, error) {
	return f.closed[ym], nil
}

type fakeTrail struct {
	entries []audit.Entry
}

func (f *fakeTrail) Record(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	f.entries = append(f.entries, e)
	return e, nil
}

var testActor = shared.Actor{ID: "u-1", Name: "Bruno Lima"}

func TestCompetenceDerivedFromPeriodStart(t *testing.T) {
	inst := Installment{PeriodStart: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}
	if got := inst.Competence(); got != "2024-03" {
		t.Fatalf("Competence() = %s, want 2024-03", got)
	}

	explicit := shared.YearMonth("2024-05")
	inst.CompetenceMonth = &explicit
	if got := inst.Competence(); got != "2024-05" {
		t.Fatalf("Competence() = %s, want explicit 2024-05", got)
	}
}

func TestUpdateInstallmentValueInOpenMonth(t *testing.T) {
	store := newFakeStore()
	store.installments["i-1"] = Installment{
		ID:          "i-1",
		ProjectID:   "p-1",
		PeriodStart: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Value:       decimal.NewFromInt(1000),
		Currency:    shared.CurrencyBRL,
	}
	gate := &fakeGate{closed: map[shared.YearMonth]bool{}}
	trail := &fakeTrail{}
	svc := NewService(store, gate, trail, nil)

	inst, err := svc.UpdateInstallmentValue(context.Background(), "i-1", decimal.NewFromInt(1500), testActor)
	if err != nil {
		t.Fatalf("UpdateInstallmentValue() error = %v", err)
	}
	if !inst.Value.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("value = %s, want 1500", inst.Value)
	}

	if len(trail.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(trail.entries))
	}
	entry := trail.entries[0]
	if entry.Action != audit.ActionValueChange {
		t.Fatalf("audit action = %q, want %q", entry.Action, audit.ActionValueChange)
	}
	if entry.Metadata["previous_value"] != "1000" || entry.Metadata["new_value"] != "1500" {
		t.Fatalf("audit metadata = %v, want previous/new values", entry.Metadata)
	}
}

func TestUpdateInstallmentValueBlockedInClosedMonth(t *testing.T) {
	store := newFakeStore()
	store.installments["i-1"] = Installment{
		ID:          "i-1",
		ProjectID:   "p-1",
		PeriodStart: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Value:       decimal.NewFromInt(1000),
		Currency:    shared.CurrencyBRL,
	}
	gate := &fakeGate{closed: map[shared.YearMonth]bool{"2024-04": true}}
	trail := &fakeTrail{}
	svc := NewService(store, gate, trail, nil)

	_, err := svc.UpdateInstallmentValue(context.Background(), "i-1", decimal.NewFromInt(1500), testActor)
	if !errors.Is(err, ErrInstallmentMonthClosed) {
		t.Fatalf("error = %v, want ErrInstallmentMonthClosed", err)
	}
	if !errors.Is(err, shared.ErrStateConflict) {
		t.Fatalf("error does not wrap state conflict: %v", err)
	}
	if !store.installments["i-1"].Value.Equal(decimal.NewFromInt(1000)) {
		t.Fatal("blocked edit must not mutate the installment")
	}
	if len(trail.entries) != 0 {
		t.Fatal("blocked edit must not write audit entries")
	}
}

func TestUpdateInstallmentValueValidation(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeGate{}, nil, nil)
	ctx := context.Background()

	_, err := svc.UpdateInstallmentValue(ctx, "i-1", decimal.Zero, testActor)
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("zero value error = %v, want ErrInvalidValue", err)
	}

	_, err = svc.UpdateInstallmentValue(ctx, "i-1", decimal.NewFromInt(10), shared.Actor{})
	if !errors.Is(err, ErrActorRequired) {
		t.Fatalf("missing actor error = %v, want ErrActorRequired", err)
	}

	_, err = svc.UpdateInstallmentValue(ctx, "missing", decimal.NewFromInt(10), testActor)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("missing installment error = %v, want ErrNotFound", err)
	}
}
