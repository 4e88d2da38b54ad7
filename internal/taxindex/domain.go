// Package taxindex owns the monthly realized-tax-index records for the
// Brazilian jurisdiction and the fixed-rate configuration for the Argentine
// subsidiary. Rates are decimal fractions (0.1133 = 11.33%) kept at full
// precision; rounding belongs to the presentation layer.
package taxindex

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

// Status enumerates tax index lifecycle stages.
type Status string

const (
	StatusForecast     Status = "forecast"
	StatusConsolidated Status = "consolidated"
)

// Jurisdiction mirrors the company types that select a tax regime.
type Jurisdiction string

const (
	JurisdictionBrazil    Jurisdiction = "brazil"
	JurisdictionArgentina Jurisdiction = "argentina_subsidiary"
)

// FallbackRate applies when no month was ever consolidated.
var FallbackRate = decimal.RequireFromString("0.1133")

// DefaultArgentinaRate applies when no fixed-rate config row exists.
var DefaultArgentinaRate = decimal.RequireFromString("0.21")

// MonthlyTaxIndex is one per yearMonth, Brazilian jurisdiction only.
// ActualRevenue/ActualTaxes are present only once consolidated. A forecast
// record always carries the latest consolidated rate (or FallbackRate); it is
// never independently guessed.
type MonthlyTaxIndex struct {
	ID                 string
	YearMonth          shared.YearMonth
	ActualRevenue      *decimal.Decimal
	ActualTaxes        *decimal.Decimal
	TaxIndexRate       decimal.Decimal
	Status             Status
	CalculatedAt       *time.Time
	ConsolidatedAt     *time.Time
	ConsolidatedBy     *string
	ConsolidatedByName *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ArgentinaTaxConfig is the fixed-rate configuration for the alternate
// jurisdiction. It never consolidates per month.
type ArgentinaTaxConfig struct {
	ID            string
	FixedTaxRate  decimal.Decimal
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CalculateIndex derives the realized rate from consolidation inputs. The
// caller guards actualRevenue > 0; a non-positive revenue yields zero here so
// the function is total.
func CalculateIndex(actualRevenue, actualTaxes decimal.Decimal) decimal.Decimal {
	if actualRevenue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return actualTaxes.Div(actualRevenue)
}
