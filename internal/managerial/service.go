package managerial

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caravela-erp/caravela/internal/portfolio"
	"github.com/caravela-erp/caravela/internal/shared"
	"github.com/caravela-erp/caravela/internal/taxindex"
)

// Store reads the joined installment source set.
type Store interface {
	SourceRows(ctx context.Context, filters Filters) ([]SourceRow, error)
}

type rateResolver interface {
	RateForJurisdiction(ctx context.Context, jurisdiction taxindex.Jurisdiction, ym shared.YearMonth) (decimal.Decimal, error)
	RateForMonth(ctx context.Context, ym shared.YearMonth) (decimal.Decimal, error)
	LastKnownRate(ctx context.Context) (decimal.Decimal, error)
	ArgentinaRate(ctx context.Context) (decimal.Decimal, error)
	IsConsolidated(ctx context.Context, ym shared.YearMonth) (bool, error)
}

type currencyConverter interface {
	ToBRL(ctx context.Context, amount decimal.Decimal, currency shared.Currency, asOf time.Time) (decimal.Decimal, error)
}

// Aggregator turns the raw installment set into the managerial revenue view.
type Aggregator struct {
	store Store
	rates rateResolver
	fx    currencyConverter
}

// NewAggregator constructs an aggregator.
func NewAggregator(store Store, rates rateResolver, fx currencyConverter) *Aggregator {
	return &Aggregator{store: store, rates: rates, fx: fx}
}

// InstallmentsWithTax computes the per-installment view everything else
// groups over. Leader attribution prefers the installment's own snapshot and
// falls back to the project's current pointer.
func (a *Aggregator) InstallmentsWithTax(ctx context.Context, filters Filters) ([]InstallmentWithTax, error) {
	rows, err := a.store.SourceRows(ctx, filters)
	if err != nil {
		return nil, err
	}

	out := make([]InstallmentWithTax, 0, len(rows))
	for _, row := range rows {
		ym := row.Competence()
		rate, err := a.rates.RateForJurisdiction(ctx, jurisdictionOf(row.CompanyType), ym)
		if err != nil {
			return nil, err
		}
		gross, err := a.fx.ToBRL(ctx, row.Value, row.Currency, row.PeriodStart)
		if err != nil {
			return nil, err
		}
		tax := gross.Mul(rate)

		leaderName := ""
		if row.LeaderName != nil && *row.LeaderName != "" {
			leaderName = *row.LeaderName
		} else if row.ProjectLeaderName != nil {
			leaderName = *row.ProjectLeaderName
		}

		out = append(out, InstallmentWithTax{
			InstallmentID:   row.InstallmentID,
			ProjectID:       row.ProjectID,
			ProjectName:     row.ProjectName,
			CompanyID:       row.CompanyID,
			CompanyName:     row.CompanyName,
			CompanyType:     row.CompanyType,
			Department:      row.Department,
			LeaderName:      leaderName,
			YearMonth:       ym,
			Value:           row.Value,
			Currency:        row.Currency,
			GrossRevenueBRL: gross,
			TaxRate:         rate,
			ManagerialTax:   tax,
			NetRevenueBRL:   gross.Sub(tax),
		})
	}
	return out, nil
}

// ByCompany aggregates the view per issuing company.
func (a *Aggregator) ByCompany(ctx context.Context, filters Filters) ([]RevenueGroup, error) {
	items, err := a.InstallmentsWithTax(ctx, filters)
	if err != nil {
		return nil, err
	}
	return groupBy(items, func(i InstallmentWithTax) (string, string) {
		return i.CompanyID, i.CompanyName
	}), nil
}

// ByDepartment aggregates the view per department.
func (a *Aggregator) ByDepartment(ctx context.Context, filters Filters) ([]RevenueGroup, error) {
	items, err := a.InstallmentsWithTax(ctx, filters)
	if err != nil {
		return nil, err
	}
	return groupBy(items, func(i InstallmentWithTax) (string, string) {
		return string(i.Department), string(i.Department)
	}), nil
}

// ByLeader aggregates the view per leader attribution.
func (a *Aggregator) ByLeader(ctx context.Context, filters Filters) ([]RevenueGroup, error) {
	items, err := a.InstallmentsWithTax(ctx, filters)
	if err != nil {
		return nil, err
	}
	return groupBy(items, func(i InstallmentWithTax) (string, string) {
		name := i.LeaderName
		if name == "" {
			name = "unassigned"
		}
		return name, name
	}), nil
}

// ByProject aggregates the view per project.
func (a *Aggregator) ByProject(ctx context.Context, filters Filters) ([]RevenueGroup, error) {
	items, err := a.InstallmentsWithTax(ctx, filters)
	if err != nil {
		return nil, err
	}
	return groupBy(items, func(i InstallmentWithTax) (string, string) {
		return i.ProjectID, i.ProjectName
	}), nil
}

// ByMonth aggregates the view per calendar month, splitting totals per
// jurisdiction and recording the rate each regime applied for that month.
func (a *Aggregator) ByMonth(ctx context.Context, filters Filters) ([]MonthlyProjection, error) {
	items, err := a.InstallmentsWithTax(ctx, filters)
	if err != nil {
		return nil, err
	}

	buckets := make(map[shared.YearMonth]*MonthlyProjection)
	for _, item := range items {
		bucket, ok := buckets[item.YearMonth]
		if !ok {
			bucket = &MonthlyProjection{YearMonth: item.YearMonth}
			buckets[item.YearMonth] = bucket
		}
		bucket.GrossRevenueBRL = bucket.GrossRevenueBRL.Add(item.GrossRevenueBRL)
		bucket.ManagerialTax = bucket.ManagerialTax.Add(item.ManagerialTax)
		bucket.NetRevenueBRL = bucket.NetRevenueBRL.Add(item.NetRevenueBRL)
		if item.CompanyType == portfolio.CompanyTypeArgentina {
			bucket.ArgentinaGross = bucket.ArgentinaGross.Add(item.GrossRevenueBRL)
			bucket.ArgentinaTax = bucket.ArgentinaTax.Add(item.ManagerialTax)
			bucket.ArgentinaNet = bucket.ArgentinaNet.Add(item.NetRevenueBRL)
		} else {
			bucket.BrazilGross = bucket.BrazilGross.Add(item.GrossRevenueBRL)
			bucket.BrazilTax = bucket.BrazilTax.Add(item.ManagerialTax)
			bucket.BrazilNet = bucket.BrazilNet.Add(item.NetRevenueBRL)
		}
	}

	out := make([]MonthlyProjection, 0, len(buckets))
	for ym, bucket := range buckets {
		brRate, err := a.rates.RateForMonth(ctx, ym)
		if err != nil {
			return nil, err
		}
		arRate, err := a.rates.ArgentinaRate(ctx)
		if err != nil {
			return nil, err
		}
		consolidated, err := a.rates.IsConsolidated(ctx, ym)
		if err != nil {
			return nil, err
		}
		bucket.BrazilRate = brRate
		bucket.ArgentinaRate = arRate
		bucket.Consolidated = consolidated
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, nil
}

// Stats summarizes the filtered view.
func (a *Aggregator) Stats(ctx context.Context, filters Filters) (Stats, error) {
	items, err := a.InstallmentsWithTax(ctx, filters)
	if err != nil {
		return Stats{}, err
	}
	projects := make(map[string]bool)
	months := make(map[shared.YearMonth]bool)
	stats := Stats{InstallmentCount: len(items)}
	for _, item := range items {
		stats.GrossRevenueBRL = stats.GrossRevenueBRL.Add(item.GrossRevenueBRL)
		stats.ManagerialTax = stats.ManagerialTax.Add(item.ManagerialTax)
		stats.NetRevenueBRL = stats.NetRevenueBRL.Add(item.NetRevenueBRL)
		projects[item.ProjectID] = true
		months[item.YearMonth] = true
	}
	stats.ProjectCount = len(projects)
	stats.MonthCount = len(months)

	if stats.LastKnownBrazilRate, err = a.rates.LastKnownRate(ctx); err != nil {
		return Stats{}, err
	}
	if stats.ArgentinaFixedRate, err = a.rates.ArgentinaRate(ctx); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func jurisdictionOf(t portfolio.CompanyType) taxindex.Jurisdiction {
	if t == portfolio.CompanyTypeArgentina {
		return taxindex.JurisdictionArgentina
	}
	return taxindex.JurisdictionBrazil
}

// groupBy reduces items into sorted revenue buckets with distinct project
// counts per bucket.
func groupBy(items []InstallmentWithTax, keyFn func(InstallmentWithTax) (key, label string)) []RevenueGroup {
	buckets := make(map[string]*RevenueGroup)
	projects := make(map[string]map[string]bool)
	for _, item := range items {
		key, label := keyFn(item)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &RevenueGroup{Key: key, Label: label}
			buckets[key] = bucket
			projects[key] = make(map[string]bool)
		}
		bucket.GrossRevenueBRL = bucket.GrossRevenueBRL.Add(item.GrossRevenueBRL)
		bucket.ManagerialTax = bucket.ManagerialTax.Add(item.ManagerialTax)
		bucket.NetRevenueBRL = bucket.NetRevenueBRL.Add(item.NetRevenueBRL)
		projects[key][item.ProjectID] = true
	}

	out := make([]RevenueGroup, 0, len(buckets))
	for key, bucket := range buckets {
		bucket.ProjectCount = len(projects[key])
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
