package export

import (
	"encoding/csv"
	"io"

	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BucketLabel is the Greek row label of a compliance bucket.
func BucketLabel(b compliancedomain.Bucket) string {
	switch b {
	case compliancedomain.BucketStandard:
		return "24% (Κανονικός)"
	case compliancedomain.BucketReduced:
		return "13% (Μειωμένος)"
	case compliancedomain.BucketSuperReduced:
		return "6% (Υπερμειωμένος)"
	case compliancedomain.BucketExempt:
		return "0% (Απαλλαγή)"
	case compliancedomain.BucketReverseCharge:
		return "0% (Reverse Charge)"
	default:
		return string(b)
	}
}

// WriteCSV writes the rate breakdown of report with a closing total row.
func WriteCSV(w io.Writer, report compliancedomain.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Συντελεστής ΦΠΑ", "Πωλήσεις (€)", "ΦΠΑ (€)", "Ποσοστό επί συνόλου"}); err != nil {
		return err
	}

	total := report.Summary.TotalSales
	for _, b := range compliancedomain.Buckets {
		totals := report.Breakdown.Bucket(b)
		if err := cw.Write([]string{
			BucketLabel(b),
			totals.Sales.StringFixed(2),
			totals.VAT.StringFixed(2),
			Share(totals.Sales, total),
		}); err != nil {
			return err
		}
	}

	if err := cw.Write([]string{
		"ΣΥΝΟΛΟ",
		report.Summary.TotalSales.StringFixed(2),
		report.Summary.TotalVATCollected.StringFixed(2),
		"100.0%",
	}); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// Share formats part as a percentage of total with one decimal.
func Share(part, total decimal.Decimal) string {
	if total.IsZero() {
		return "0.0%"
	}
	return part.Mul(hundred).Div(total).StringFixed(1) + "%"
}
