package shared

import "errors"

// Currency codes accepted at the engine boundary. BRL is the base reporting
// currency; conversions into BRL happen at the fxrate boundary only.
type Currency string

const (
	CurrencyBRL Currency = "BRL"
	CurrencyUSD Currency = "USD"
	CurrencyARS Currency = "ARS"
	CurrencyEUR Currency = "EUR"
)

// BaseCurrency is the reporting currency every amount is normalized into.
const BaseCurrency = CurrencyBRL

// ErrUnknownCurrency indicates a code outside the supported set.
var ErrUnknownCurrency = errors.New("shared: unknown currency code")

// ValidCurrency reports whether c belongs to the supported closed set.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyBRL, CurrencyUSD, CurrencyARS, CurrencyEUR:
		return true
	default:
		return false
	}
}
