// Package fxrate converts monetary amounts into the base reporting currency
// (BRL) using an effective-dated rate table. The engine consumes it as a pure
// lookup: conversion never mutates state and same-currency/base-currency
// requests short-circuit to the input amount.
package fxrate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/shared"
)

// Rate is one effective-dated quote from the rate table.
type Rate struct {
	ID            string
	FromCurrency  shared.Currency
	ToCurrency    shared.Currency
	Rate          decimal.Decimal
	EffectiveDate time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
