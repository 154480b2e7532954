package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/internal/cache"
	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/dixis/taxengine/internal/tenantcontext"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("taxengine/compliance")

var errEmptySnapshot = errors.New("empty tax snapshot")

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Reporter compliancedomain.Reporter
	Repo     compliancedomain.Repository
	Cache    cache.ReportCache   `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	reporter compliancedomain.Reporter
	repo     compliancedomain.Repository
	cache    cache.ReportCache
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) compliancedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("compliance.service"),
		reporter: p.Reporter,
		repo:     p.Repo,
		cache:    p.Cache,
		metrics:  p.Metrics,
	}
}

// Generate reports over caller supplied results.
func (s *Service) Generate(ctx context.Context, results []taxdomain.TaxCalculationResult, start, end time.Time) (compliancedomain.Report, error) {
	ctx, span := tracer.Start(ctx, "compliance.Generate")
	defer span.End()
	span.SetAttributes(attribute.Int("compliance.results", len(results)))

	report, err := s.reporter.Generate(results, start, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return compliancedomain.Report{}, err
	}
	s.metrics.RecordComplianceReport(ctx, report.Compliance.IsCompliant)
	return report, nil
}

// GenerateForTenant reports over the issued invoices of the context tenant.
// Reports are cached per tenant and period until an invoice changes status.
func (s *Service) GenerateForTenant(ctx context.Context, start, end time.Time) (compliancedomain.Report, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return compliancedomain.Report{}, compliancedomain.ErrInvalidTenant
	}

	ctx, span := tracer.Start(ctx, "compliance.GenerateForTenant")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID.String()))

	if s.cache != nil {
		if report, ok := s.cache.Get(tenantID, start, end); ok {
			span.SetAttributes(attribute.Bool("compliance.cache_hit", true))
			return report, nil
		}
	}

	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return compliancedomain.Report{}, taxdomain.NewInvalidInput(-1, "period", compliancedomain.ErrInvalidPeriod)
	}

	snapshots, err := s.repo.ListIssuedSnapshots(ctx, s.db, tenantID, start, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return compliancedomain.Report{}, err
	}

	txns := make([]compliancedomain.Transaction, len(snapshots))
	for i, snapshot := range snapshots {
		txns[i] = decodeSnapshot(snapshot)
		if txns[i].Err != nil {
			s.log.Warn("invoice tax snapshot excluded from report",
				zap.String("invoice_id", snapshot.InvoiceID.String()),
				zap.String("invoice_number", snapshot.InvoiceNumber),
				zap.Error(txns[i].Err),
			)
		}
	}

	credits, err := s.repo.ListIssuedCreditItems(ctx, s.db, tenantID, start, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return compliancedomain.Report{}, err
	}
	txns = append(txns, creditTransactions(credits)...)

	report, err := s.reporter.GenerateTransactions(txns, start, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return compliancedomain.Report{}, err
	}
	span.SetAttributes(
		attribute.Int("compliance.transactions", report.TransactionCount),
		attribute.Int("compliance.credit_notes", report.Credits.Count),
		attribute.Int("compliance.excluded", len(report.Excluded)),
	)
	s.metrics.RecordComplianceReport(ctx, report.Compliance.IsCompliant)

	if s.cache != nil {
		s.cache.Set(tenantID, start, end, report)
	}
	return report, nil
}

func decodeSnapshot(snapshot compliancedomain.Snapshot) compliancedomain.Transaction {
	txn := compliancedomain.Transaction{Reference: snapshot.InvoiceNumber}
	if len(snapshot.TaxSnapshot) == 0 {
		txn.Err = errEmptySnapshot
		return txn
	}
	if err := json.Unmarshal(snapshot.TaxSnapshot, &txn.Result); err != nil {
		txn.Err = fmt.Errorf("decode tax snapshot: %w", err)
	}
	return txn
}

// creditTransactions turns credit note lines into one transaction per credit
// note. Amounts are made positive; the reporter subtracts them.
func creditTransactions(items []compliancedomain.CreditItem) []compliancedomain.Transaction {
	var (
		txns []compliancedomain.Transaction
		last snowflake.ID
	)
	for _, item := range items {
		if len(txns) == 0 || item.InvoiceID != last {
			last = item.InvoiceID
			txns = append(txns, compliancedomain.Transaction{
				Reference: item.InvoiceNumber,
				Credit:    true,
				Result: taxdomain.TaxCalculationResult{
					Subtotal:  decimal.Zero,
					VATAmount: decimal.Zero,
					Total:     decimal.Zero,
				},
			})
		}
		result := &txns[len(txns)-1].Result

		amount := taxdomain.RoundMoney(item.Quantity.Mul(item.UnitPrice)).Abs()
		vat := item.TaxAmount.Abs()
		entry := taxdomain.TaxBreakdownEntry{
			ItemID:      item.ItemID.String(),
			Description: item.Description,
			Amount:      amount,
			VATRate:     item.TaxRate,
			VATAmount:   vat,
		}
		if taxdomain.ExemptionType(item.ExemptionType) == taxdomain.ExemptionReverseCharge {
			exemption := taxdomain.TaxExemption{
				ItemID:       entry.ItemID,
				Type:         taxdomain.ExemptionReverseCharge,
				OriginalRate: item.TaxRate,
				AppliedRate:  item.TaxRate,
				SavedAmount:  decimal.Zero,
			}
			entry.Exemption = &exemption
			result.Exemptions = append(result.Exemptions, exemption)
		}
		result.TaxBreakdown = append(result.TaxBreakdown, entry)
		result.Subtotal = result.Subtotal.Add(amount)
		result.VATAmount = result.VATAmount.Add(vat)
		result.Total = result.Subtotal.Add(result.VATAmount)
	}
	return txns
}
