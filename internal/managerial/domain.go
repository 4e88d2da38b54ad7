// Package managerial computes the jurisdiction-aware revenue view. Every
// aggregation is a group-and-sum reduction over InstallmentsWithTax and is
// recomputed on every call; nothing derived is cached, so a consolidation,
// reopening, or leader propagation is visible on the next read.
package managerial

import (
	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/portfolio"
	"github.com/caravela-erp/caravela/internal/shared"
)

// InstallmentWithTax is the foundational per-installment view. The managerial
// tax here is computed from the jurisdiction rate and is independent of any
// contract-declared estimate carried on the installment itself.
type InstallmentWithTax struct {
	InstallmentID   string               `json:"installment_id"`
	ProjectID       string               `json:"project_id"`
	ProjectName     string               `json:"project_name"`
	CompanyID       string               `json:"company_id"`
	CompanyName     string               `json:"company_name"`
	CompanyType     portfolio.CompanyType `json:"company_type"`
	Department      portfolio.Department `json:"department"`
	LeaderName      string               `json:"leader_name,omitempty"`
	YearMonth       shared.YearMonth     `json:"year_month"`
	Value           decimal.Decimal      `json:"value"`
	Currency        shared.Currency      `json:"currency"`
	GrossRevenueBRL decimal.Decimal      `json:"gross_revenue_brl"`
	TaxRate         decimal.Decimal      `json:"tax_rate"`
	ManagerialTax   decimal.Decimal      `json:"managerial_tax"`
	NetRevenueBRL   decimal.Decimal      `json:"net_revenue_brl"`
}

// Filters narrows the source installment set before computation.
type Filters struct {
	YearMonth  shared.YearMonth
	CompanyID  string
	Department portfolio.Department
	ProjectID  string
}

// RevenueGroup is one bucket of a group-and-sum reduction.
type RevenueGroup struct {
	Key             string          `json:"key"`
	Label           string          `json:"label"`
	GrossRevenueBRL decimal.Decimal `json:"gross_revenue_brl"`
	ManagerialTax   decimal.Decimal `json:"managerial_tax"`
	NetRevenueBRL   decimal.Decimal `json:"net_revenue_brl"`
	ProjectCount    int             `json:"project_count"`
}

// MonthlyProjection is the byMonth bucket. The same month can blend both tax
// regimes, so totals are split per jurisdiction and the applied rates are
// recorded alongside.
type MonthlyProjection struct {
	YearMonth       shared.YearMonth `json:"year_month"`
	GrossRevenueBRL decimal.Decimal  `json:"gross_revenue_brl"`
	ManagerialTax   decimal.Decimal  `json:"managerial_tax"`
	NetRevenueBRL   decimal.Decimal  `json:"net_revenue_brl"`
	BrazilGross     decimal.Decimal  `json:"brazil_gross"`
	BrazilTax       decimal.Decimal  `json:"brazil_tax"`
	BrazilNet       decimal.Decimal  `json:"brazil_net"`
	ArgentinaGross  decimal.Decimal  `json:"argentina_gross"`
	ArgentinaTax    decimal.Decimal  `json:"argentina_tax"`
	ArgentinaNet    decimal.Decimal  `json:"argentina_net"`
	BrazilRate      decimal.Decimal  `json:"brazil_rate"`
	ArgentinaRate   decimal.Decimal  `json:"argentina_rate"`
	Consolidated    bool             `json:"consolidated"`
}

// Stats summarizes the filtered view in one shot. The two rates echo what the
// next computation would apply: the last consolidated Brazil index (or the
// fallback) and the fixed Argentina rate.
type Stats struct {
	GrossRevenueBRL     decimal.Decimal `json:"gross_revenue_brl"`
	ManagerialTax       decimal.Decimal `json:"managerial_tax"`
	NetRevenueBRL       decimal.Decimal `json:"net_revenue_brl"`
	InstallmentCount    int             `json:"installment_count"`
	ProjectCount        int             `json:"project_count"`
	MonthCount          int             `json:"month_count"`
	LastKnownBrazilRate decimal.Decimal `json:"last_known_brazil_rate"`
	ArgentinaFixedRate  decimal.Decimal `json:"argentina_fixed_rate"`
}
