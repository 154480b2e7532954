package service

import (
	"context"
	"strings"

	"github.com/dixis/taxengine/internal/config"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("taxengine/tax")

type calculatorParam struct {
	fx.In

	Log       *zap.Logger
	Resolver  taxdomain.RateResolver
	Exemption taxdomain.ExemptionEngine
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type calculator struct {
	log       *zap.Logger
	resolver  taxdomain.RateResolver
	exemption taxdomain.ExemptionEngine
	metrics   *obsmetrics.Metrics
}

func NewCalculator(p calculatorParam) taxdomain.Calculator {
	return &calculator{
		log:       p.Log.Named("tax.calculator"),
		resolver:  p.Resolver,
		exemption: p.Exemption,
		metrics:   p.Metrics,
	}
}

func (c *calculator) Calculate(ctx context.Context, items []taxdomain.TaxableItem, buyer taxdomain.Buyer) (taxdomain.TaxCalculationResult, error) {
	ctx, span := tracer.Start(ctx, "tax.Calculate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("tax.items", len(items)),
		attribute.Bool("tax.business_buyer", buyer.IsBusiness),
		attribute.Bool("tax.postcode_given", buyer.Postcode != ""),
	)

	if err := validateItems(items); err != nil {
		span.SetStatus(codes.Error, "invalid input")
		c.metrics.RecordTaxCalculation(ctx, obsmetrics.OutcomeRejected)
		return taxdomain.TaxCalculationResult{}, err
	}

	result := taxdomain.TaxCalculationResult{
		Subtotal:           decimal.Zero,
		VATAmount:          decimal.Zero,
		TaxBreakdown:       make([]taxdomain.TaxBreakdownEntry, 0, len(items)),
		IsBusinessCustomer: buyer.IsBusiness,
		VATNumber:          strings.TrimSpace(buyer.VATNumber),
		BuyerCountry:       buyer.NormalizedCountry(),
	}

	for _, item := range items {
		baseRate, err := c.resolver.Resolve(item.Category, item.TaxCategory)
		if err != nil {
			return taxdomain.TaxCalculationResult{}, err
		}

		itemTotal := item.Total()
		rate := baseRate
		exemption := c.exemption.Check(item, baseRate, buyer)
		if exemption != nil {
			rate = exemption.AppliedRate
			result.Exemptions = append(result.Exemptions, *exemption)
		}
		itemTax := taxdomain.LineTax(itemTotal, rate)
		description := c.resolver.Describe(rate)
		if exemption != nil && exemption.Type == taxdomain.ExemptionReducedVAT {
			description = exemption.Reason
		}

		result.Subtotal = result.Subtotal.Add(itemTotal)
		result.VATAmount = result.VATAmount.Add(itemTax)
		result.TaxBreakdown = append(result.TaxBreakdown, taxdomain.TaxBreakdownEntry{
			ItemID:      item.ID,
			Category:    item.Category,
			Amount:      itemTotal,
			VATRate:     rate,
			VATAmount:   itemTax,
			Description: description,
			Exemption:   exemption,
		})
	}

	result.Subtotal = taxdomain.RoundMoney(result.Subtotal)
	result.VATAmount = taxdomain.RoundMoney(result.VATAmount)
	result.Total = taxdomain.RoundMoney(result.Subtotal.Add(result.VATAmount))
	result.VATRate = taxdomain.BlendedRate(result.VATAmount, result.Subtotal)

	c.metrics.RecordTaxCalculation(ctx, obsmetrics.OutcomeSuccess)
	for _, e := range result.Exemptions {
		c.metrics.RecordExemption(ctx, string(e.Type))
	}
	c.log.Debug("tax calculated",
		zap.Int("items", len(items)),
		zap.String("subtotal", result.Subtotal.StringFixed(2)),
		zap.String("vat_amount", result.VATAmount.StringFixed(2)),
		zap.String("total", result.Total.StringFixed(2)),
		zap.Int("exemptions", len(result.Exemptions)),
	)
	return result, nil
}

func validateItems(items []taxdomain.TaxableItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return taxdomain.NewInvalidInput(i, "id", taxdomain.ErrInvalidItemID)
		}
		if item.Price.IsNegative() {
			return taxdomain.NewInvalidInput(i, "price", taxdomain.ErrInvalidPrice)
		}
		if !item.Quantity.IsPositive() {
			return taxdomain.NewInvalidInput(i, "quantity", taxdomain.ErrInvalidQuantity)
		}
		if !item.TaxCategory.Valid() {
			return taxdomain.NewInvalidInput(i, "tax_category", taxdomain.ErrInvalidTaxCategory)
		}
	}
	return nil
}

// NewDefaultCalculator wires a calculator with the built-in rules outside of
// fx, in the same order as Module: reverse charge, island rate, then rules.
func NewDefaultCalculator(cfg config.TaxConfig, log *zap.Logger, rules ...taxdomain.ExemptionRule) taxdomain.Calculator {
	if log == nil {
		log = zap.NewNop()
	}
	builtin := []taxdomain.ExemptionRule{NewIslandReducedRule(cfg)}
	return NewCalculator(calculatorParam{
		Log:       log,
		Resolver:  newResolver(cfg),
		Exemption: NewExemptionEngine(exemptionParam{Config: cfg, Rules: append(builtin, rules...)}),
	})
}

// NewDefaultResolver builds the resolver outside of fx.
func NewDefaultResolver(cfg config.TaxConfig) taxdomain.RateResolver {
	return newResolver(cfg)
}
