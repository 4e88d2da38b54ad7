package managerial

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ExportCSV streams the per-installment view as CSV. Monetary columns are
// formatted in pt-BR convention for the finance team's spreadsheets; the raw
// decimal value column is kept machine-readable.
func (a *Aggregator) ExportCSV(ctx context.Context, w io.Writer, filters Filters) error {
	items, err := a.InstallmentsWithTax(ctx, filters)
	if err != nil {
		return err
	}

	printer := message.NewPrinter(language.BrazilianPortuguese)
	cw := csv.NewWriter(w)
	header := []string{"competencia", "empresa", "departamento", "projeto", "lider", "moeda", "valor", "receita_bruta_brl", "aliquota", "imposto_gerencial_brl", "receita_liquida_brl"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, item := range items {
		record := []string{
			string(item.YearMonth),
			item.CompanyName,
			string(item.Department),
			item.ProjectName,
			item.LeaderName,
			string(item.Currency),
			item.Value.String(),
			formatBRL(printer, item.GrossRevenueBRL),
			item.TaxRate.String(),
			formatBRL(printer, item.ManagerialTax),
			formatBRL(printer, item.NetRevenueBRL),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatBRL(printer *message.Printer, d decimal.Decimal) string {
	f, _ := d.Float64()
	return printer.Sprint(number.Decimal(f, number.Scale(2)))
}
