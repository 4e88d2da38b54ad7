// Package closing owns the open/closed state machine for calendar months.
// It is the single source of truth for "is month X mutable" and the only
// writer of monthly tax index rows, so the consolidate/close transition pair
// stays atomic.
package closing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/internal/taxindex"
)

// Status enumerates monthly closing lifecycle stages.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// MonthlyClosing is one record per yearMonth. Transition stamps are present
// only after the corresponding transition; records are never deleted.
type MonthlyClosing struct {
	ID             string
	YearMonth      shared.YearMonth
	Status         Status
	ClosedAt       *time.Time
	ClosedBy       *string
	ClosedByName   *string
	Justification  *string
	ReopenedAt     *time.Time
	ReopenedBy     *string
	ReopenedByName *string
	ReopenReason   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClosingWithIndex pairs a closing with its tax index for listing.
type ClosingWithIndex struct {
	Closing MonthlyClosing
	Index   *taxindex.MonthlyTaxIndex
}

// CloseInput captures a plain close request. Justification is optional here;
// consolidation generates its own.
type CloseInput struct {
	YearMonth     shared.YearMonth
	Justification string
	Actor         shared.Actor
}

// ReopenInput captures a reopen request. Justification is mandatory because
// reopening undoes a financial control.
type ReopenInput struct {
	YearMonth     shared.YearMonth
	Justification string
	Actor         shared.Actor
}

// ConsolidateInput carries realized figures for the consolidation action.
type ConsolidateInput struct {
	YearMonth     shared.YearMonth
	ActualRevenue decimal.Decimal
	ActualTaxes   decimal.Decimal
	Actor         shared.Actor
}

// ConsolidateResult bundles the paired transition outcome.
type ConsolidateResult struct {
	Closing MonthlyClosing
	Index   taxindex.MonthlyTaxIndex
}

var (
	// ErrAlreadyClosed is returned when closing a month that is already closed.
	// Never coerced into a no-op success: a silently dropped justification
	// would mask the conflict.
	ErrAlreadyClosed = fmt.Errorf("closing: month already closed: %w", shared.ErrStateConflict)
	// ErrNotClosed is returned when reopening a month that is not closed.
	ErrNotClosed = fmt.Errorf("closing: month is not closed: %w", shared.ErrStateConflict)
	// ErrJustificationRequired is returned when reopening without a reason.
	ErrJustificationRequired = fmt.Errorf("closing: reopen justification required: %w", shared.ErrValidation)
	// ErrInvalidRevenue is returned when consolidating with revenue <= 0.
	ErrInvalidRevenue = fmt.Errorf("closing: actual revenue must be positive: %w", shared.ErrValidation)
	// ErrInvalidTaxes is returned when consolidating with negative taxes.
	ErrInvalidTaxes = fmt.Errorf("closing: actual taxes must not be negative: %w", shared.ErrValidation)
	// ErrActorRequired is returned when a transition lacks actor identity.
	ErrActorRequired = fmt.Errorf("closing: actor required: %w", shared.ErrValidation)
)
