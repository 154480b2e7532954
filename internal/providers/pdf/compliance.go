package pdf

import (
	"context"
	"fmt"

	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/dixis/taxengine/internal/compliance/export"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var bucketTitles = map[compliancedomain.Bucket]string{
	compliancedomain.BucketStandard:      "24% (standard)",
	compliancedomain.BucketReduced:       "13% (reduced)",
	compliancedomain.BucketSuperReduced:  "6% (super-reduced)",
	compliancedomain.BucketExempt:        "0% (exempt)",
	compliancedomain.BucketReverseCharge: "0% (EU reverse charge)",
}

// GenerateComplianceReport renders the VAT summary, bucket table, EU
// figures and findings of report.
func (p *PDFProvider) GenerateComplianceReport(ctx context.Context, report compliancedomain.Report) ([]byte, error) {
	m, err := newDocument()
	if err != nil {
		return nil, err
	}

	m.AddRow(12,
		text.NewCol(12, "Tax compliance report", props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Center}),
	)
	m.AddRow(8,
		text.NewCol(12, p.seller.Name, props.Text{Size: 12, Align: align.Center}),
	)
	m.AddRow(10,
		text.NewCol(12, fmt.Sprintf("Period: %s - %s",
			report.Period.Start.Format(dateLayout), report.Period.End.Format(dateLayout)),
			props.Text{Size: 10, Align: align.Center}),
	)

	status := "Compliant"
	if !report.Compliance.IsCompliant {
		status = "Needs attention"
	}
	summary := col.New(12).Add(
		text.New("Summary", props.Text{Style: fontstyle.Bold}),
		text.New("Total sales: "+report.Summary.TotalSales.StringFixed(2)+" EUR", props.Text{Top: 5}),
		text.New("Total VAT collected: "+report.Summary.TotalVATCollected.StringFixed(2)+" EUR", props.Text{Top: 10}),
		text.New("Status: "+status, props.Text{Top: 15}),
	)
	if report.Credits.Count > 0 {
		summary.Add(text.New(fmt.Sprintf("Credit notes netted: %d (%s EUR, VAT %s EUR)",
			report.Credits.Count, report.Credits.Sales.StringFixed(2), report.Credits.VAT.StringFixed(2)), props.Text{Top: 20}))
	}
	m.AddRow(30, summary)

	m.AddRow(10,
		text.NewCol(6, "VAT rate", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Sales", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "VAT", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Share", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, b := range compliancedomain.Buckets {
		totals := report.Breakdown.Bucket(b)
		m.AddRow(8,
			text.NewCol(6, bucketTitles[b], props.Text{Size: 9}),
			text.NewCol(2, totals.Sales.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, totals.VAT.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, export.Share(totals.Sales, report.Summary.TotalSales), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		text.NewCol(6, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, report.Summary.TotalSales.StringFixed(2), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, report.Summary.TotalVATCollected.StringFixed(2), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "100.0%", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	m.AddRow(20,
		col.New(12).Add(
			text.New("EU transactions", props.Text{Style: fontstyle.Bold, Top: 4}),
			text.New(fmt.Sprintf("Count: %d, value: %s EUR, VAT saved: %s EUR",
				report.EUTransactions.TransactionCount,
				report.EUTransactions.TotalValue.StringFixed(2),
				report.EUTransactions.VATSaved.StringFixed(2)), props.Text{Top: 10, Size: 9}),
		),
	)

	addFindings(m, "Issues", report.Compliance.Issues)
	addFindings(m, "Recommendations", report.Compliance.Recommendations)
	if len(report.Excluded) > 0 {
		m.AddRow(8, text.NewCol(12, "Excluded transactions", props.Text{Style: fontstyle.Bold}))
		for _, ex := range report.Excluded {
			m.AddRow(6, text.NewCol(12, fmt.Sprintf("#%d %s: %s", ex.Index, ex.Reference, ex.Reason), props.Text{Size: 8}))
		}
	}

	m.AddRow(10,
		text.NewCol(12, "Generated "+report.GeneratedAt.Format("02/01/2006 15:04 MST"), props.Text{Size: 8, Align: align.Center, Top: 4}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render compliance report: %w", err)
	}
	return doc.GetBytes(), nil
}

func addFindings(m core.Maroto, title string, findings []compliancedomain.Finding) {
	if len(findings) == 0 {
		return
	}
	m.AddRow(8, text.NewCol(12, title, props.Text{Style: fontstyle.Bold, Top: 2}))
	for _, f := range findings {
		m.AddRow(6, text.NewCol(12, "- "+string(f.Code), props.Text{Size: 9}))
	}
}
