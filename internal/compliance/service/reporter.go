package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/dixis/taxengine/internal/clock"
	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/dixis/taxengine/internal/config"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	msgZeroVATCollected = "Δεν έχει συλλεχθεί ΦΠΑ παρά τις πωλήσεις"
	msgExcludedResults  = "Εξαιρέθηκαν %d συναλλαγές λόγω μη έγκυρων δεδομένων"
	msgEUOSS            = "Υψηλή αξία EU συναλλαγών - εξετάστε VAT OSS scheme"
)

type reporterParam struct {
	fx.In

	Config config.TaxConfig
	Clock  clock.Clock
	Log    *zap.Logger
}

type reporter struct {
	rates     config.RateTable
	threshold decimal.Decimal
	clock     clock.Clock
	log       *zap.Logger
}

func NewReporter(p reporterParam) compliancedomain.Reporter {
	return newReporter(p.Config, p.Clock, p.Log)
}

// NewDefaultReporter builds a reporter outside the fx graph.
func NewDefaultReporter(cfg config.TaxConfig, clk clock.Clock, log *zap.Logger) compliancedomain.Reporter {
	return newReporter(cfg, clk, log)
}

func newReporter(cfg config.TaxConfig, clk clock.Clock, log *zap.Logger) *reporter {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &reporter{
		rates:     cfg.Rates,
		threshold: cfg.EUSchemeThreshold,
		clock:     clk,
		log:       log.Named("compliance.reporter"),
	}
}

func (r *reporter) Generate(results []taxdomain.TaxCalculationResult, start, end time.Time) (compliancedomain.Report, error) {
	txns := make([]compliancedomain.Transaction, len(results))
	for i, result := range results {
		txns[i] = compliancedomain.Transaction{Result: result}
	}
	return r.GenerateTransactions(txns, start, end)
}

// GenerateTransactions folds txns into a report. Malformed transactions are
// listed in Report.Excluded and never abort the fold.
func (r *reporter) GenerateTransactions(txns []compliancedomain.Transaction, start, end time.Time) (compliancedomain.Report, error) {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return compliancedomain.Report{}, taxdomain.NewInvalidInput(-1, "period", compliancedomain.ErrInvalidPeriod)
	}

	report := compliancedomain.Report{
		Period: compliancedomain.Period{Start: start.UTC(), End: end.UTC()},
		Summary: compliancedomain.Summary{
			TotalSales:        decimal.Zero,
			TotalVATCollected: decimal.Zero,
		},
		EUTransactions: compliancedomain.EUTransactions{
			TotalValue: decimal.Zero,
			VATSaved:   decimal.Zero,
		},
		Credits: compliancedomain.CreditTotals{
			Sales: decimal.Zero,
			VAT:   decimal.Zero,
		},
		Compliance: compliancedomain.Compliance{
			Issues:          []compliancedomain.Finding{},
			Recommendations: []compliancedomain.Finding{},
		},
		GeneratedAt: r.clock.Now().UTC(),
	}
	for _, b := range compliancedomain.Buckets {
		*report.Breakdown.Bucket(b) = compliancedomain.BucketTotals{Sales: decimal.Zero, VAT: decimal.Zero}
	}

	for i, txn := range txns {
		if txn.Err != nil {
			report.Excluded = append(report.Excluded, compliancedomain.Excluded{Index: i, Reference: txn.Reference, Reason: txn.Err.Error()})
			continue
		}
		buckets, err := r.classify(txn.Result)
		if err != nil {
			report.Excluded = append(report.Excluded, compliancedomain.Excluded{Index: i, Reference: txn.Reference, Reason: err.Error()})
			continue
		}
		if txn.Credit {
			r.credit(&report, txn.Result, buckets)
			continue
		}
		r.fold(&report, txn.Result, buckets)
	}

	report.Summary.TotalVATPayable = report.Summary.TotalVATCollected
	report.Summary.NetVATPosition = report.Summary.TotalVATCollected
	r.verdict(&report)

	r.log.Info("compliance report generated",
		zap.Time("start", report.Period.Start),
		zap.Time("end", report.Period.End),
		zap.Int("transactions", report.TransactionCount),
		zap.Int("excluded", len(report.Excluded)),
		zap.String("total_sales", report.Summary.TotalSales.StringFixed(2)),
		zap.String("total_vat_collected", report.Summary.TotalVATCollected.StringFixed(2)),
		zap.Int("eu_transactions", report.EUTransactions.TransactionCount),
		zap.Int("credit_notes", report.Credits.Count),
		zap.Bool("is_compliant", report.Compliance.IsCompliant),
	)
	return report, nil
}

// classify validates result and returns the bucket of each breakdown entry.
func (r *reporter) classify(result taxdomain.TaxCalculationResult) ([]compliancedomain.Bucket, error) {
	if result.Subtotal.IsNegative() || result.VATAmount.IsNegative() || result.Total.IsNegative() {
		return nil, errors.New("negative amounts")
	}
	if !result.Total.Equal(result.Subtotal.Add(result.VATAmount)) {
		return nil, fmt.Errorf("total %s is not subtotal plus vat", result.Total.StringFixed(2))
	}

	reverseCharge := result.HasExemption(taxdomain.ExemptionReverseCharge)
	sales, vat := decimal.Zero, decimal.Zero
	buckets := make([]compliancedomain.Bucket, len(result.TaxBreakdown))
	for i, entry := range result.TaxBreakdown {
		if entry.Amount.IsNegative() || entry.VATAmount.IsNegative() {
			return nil, fmt.Errorf("tax_breakdown[%d]: negative amounts", i)
		}
		bucket, ok := r.bucketFor(entry.VATRate, reverseCharge)
		if !ok {
			return nil, fmt.Errorf("tax_breakdown[%d]: rate %s matches no bucket", i, entry.VATRate.String())
		}
		buckets[i] = bucket
		sales = sales.Add(entry.Amount)
		vat = vat.Add(entry.VATAmount)
	}

	if !sales.Equal(result.Subtotal) {
		return nil, fmt.Errorf("subtotal %s differs from breakdown %s", result.Subtotal.StringFixed(2), sales.StringFixed(2))
	}
	if !vat.Equal(result.VATAmount) {
		return nil, fmt.Errorf("vat_amount %s differs from breakdown %s", result.VATAmount.StringFixed(2), vat.StringFixed(2))
	}
	return buckets, nil
}

// bucketFor maps an effective rate to its bucket. A zero rate is reverse
// charge only when the result carries a reverse-charge exemption.
func (r *reporter) bucketFor(rate decimal.Decimal, reverseCharge bool) (compliancedomain.Bucket, bool) {
	switch {
	case rate.IsZero():
		if reverseCharge {
			return compliancedomain.BucketReverseCharge, true
		}
		return compliancedomain.BucketExempt, true
	case rate.Equal(r.rates.Standard):
		return compliancedomain.BucketStandard, true
	case rate.Equal(r.rates.Reduced):
		return compliancedomain.BucketReduced, true
	case rate.Equal(r.rates.SuperReduced):
		return compliancedomain.BucketSuperReduced, true
	default:
		return "", false
	}
}

func (r *reporter) fold(report *compliancedomain.Report, result taxdomain.TaxCalculationResult, buckets []compliancedomain.Bucket) {
	report.TransactionCount++
	report.Summary.TotalSales = report.Summary.TotalSales.Add(result.Subtotal)
	report.Summary.TotalVATCollected = report.Summary.TotalVATCollected.Add(result.VATAmount)

	for i, entry := range result.TaxBreakdown {
		totals := report.Breakdown.Bucket(buckets[i])
		totals.Sales = totals.Sales.Add(entry.Amount)
		totals.VAT = totals.VAT.Add(entry.VATAmount)
		if buckets[i] == compliancedomain.BucketReverseCharge {
			report.EUTransactions.TransactionCount++
			report.EUTransactions.TotalValue = report.EUTransactions.TotalValue.Add(entry.Amount)
		}
	}

	for _, e := range result.Exemptions {
		if e.Type == taxdomain.ExemptionReverseCharge {
			report.EUTransactions.VATSaved = report.EUTransactions.VATSaved.Add(e.SavedAmount)
		}
	}
}

// credit nets a credit note out of the totals. EU transaction counts are
// left alone; only the value is reduced.
func (r *reporter) credit(report *compliancedomain.Report, result taxdomain.TaxCalculationResult, buckets []compliancedomain.Bucket) {
	report.Credits.Count++
	report.Credits.Sales = report.Credits.Sales.Add(result.Subtotal)
	report.Credits.VAT = report.Credits.VAT.Add(result.VATAmount)
	report.Summary.TotalSales = report.Summary.TotalSales.Sub(result.Subtotal)
	report.Summary.TotalVATCollected = report.Summary.TotalVATCollected.Sub(result.VATAmount)

	for i, entry := range result.TaxBreakdown {
		totals := report.Breakdown.Bucket(buckets[i])
		totals.Sales = totals.Sales.Sub(entry.Amount)
		totals.VAT = totals.VAT.Sub(entry.VATAmount)
		if buckets[i] == compliancedomain.BucketReverseCharge {
			report.EUTransactions.TotalValue = report.EUTransactions.TotalValue.Sub(entry.Amount)
		}
	}
}

func (r *reporter) verdict(report *compliancedomain.Report) {
	c := &report.Compliance
	if report.Summary.TotalVATCollected.IsZero() && report.Summary.TotalSales.IsPositive() {
		c.Issues = append(c.Issues, compliancedomain.Finding{
			Code:    compliancedomain.IssueZeroVATCollected,
			Message: msgZeroVATCollected,
		})
	}
	if n := len(report.Excluded); n > 0 {
		c.Issues = append(c.Issues, compliancedomain.Finding{
			Code:    compliancedomain.IssueExcludedResults,
			Message: fmt.Sprintf(msgExcludedResults, n),
		})
	}
	if r.threshold.IsPositive() && report.EUTransactions.TotalValue.GreaterThan(r.threshold) {
		c.Recommendations = append(c.Recommendations, compliancedomain.Finding{
			Code:    compliancedomain.RecommendationEUOSS,
			Message: msgEUOSS,
		})
	}
	c.IsCompliant = len(c.Issues) == 0
}
