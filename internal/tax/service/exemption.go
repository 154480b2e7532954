package service

import (
	"strings"

	"github.com/dixis/taxengine/internal/config"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

const reverseChargeReason = "EU B2B Reverse Charge - VAT να καταβληθεί από αγοραστή"

type exemptionParam struct {
	fx.In

	Config config.TaxConfig
	Rules  []taxdomain.ExemptionRule `group:"tax.exemption_rules"`
}

type engine struct {
	rules []taxdomain.ExemptionRule
}

// NewExemptionEngine evaluates rules in order; the reverse-charge rule is
// always first, extra rules come from the tax.exemption_rules group.
func NewExemptionEngine(p exemptionParam) taxdomain.ExemptionEngine {
	rules := []taxdomain.ExemptionRule{NewReverseChargeRule(p.Config)}
	for _, rule := range p.Rules {
		if rule != nil {
			rules = append(rules, rule)
		}
	}
	return newEngine(rules...)
}

func newEngine(rules ...taxdomain.ExemptionRule) *engine {
	return &engine{rules: rules}
}

func (e *engine) Check(item taxdomain.TaxableItem, baseRate decimal.Decimal, buyer taxdomain.Buyer) *taxdomain.TaxExemption {
	for _, rule := range e.rules {
		if exemption := rule.Apply(item, baseRate, buyer); exemption != nil {
			return exemption
		}
	}
	return nil
}

// ReverseChargeRule zero-rates sales to VAT-registered businesses in another
// EU member state.
type ReverseChargeRule struct {
	homeCountry string
	eu          map[string]struct{}
}

func NewReverseChargeRule(cfg config.TaxConfig) *ReverseChargeRule {
	eu := make(map[string]struct{}, len(cfg.EUCountries))
	for _, c := range cfg.EUCountries {
		eu[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &ReverseChargeRule{
		homeCountry: strings.ToUpper(strings.TrimSpace(cfg.HomeCountry)),
		eu:          eu,
	}
}

func (r *ReverseChargeRule) Name() string { return string(taxdomain.ExemptionReverseCharge) }

func (r *ReverseChargeRule) Apply(item taxdomain.TaxableItem, baseRate decimal.Decimal, buyer taxdomain.Buyer) *taxdomain.TaxExemption {
	if !buyer.IsBusiness || strings.TrimSpace(buyer.VATNumber) == "" {
		return nil
	}
	country := buyer.NormalizedCountry()
	if country == "" || country == r.homeCountry {
		return nil
	}
	if _, ok := r.eu[country]; !ok {
		return nil
	}

	return &taxdomain.TaxExemption{
		ItemID:       item.ID,
		Type:         taxdomain.ExemptionReverseCharge,
		Reason:       reverseChargeReason,
		OriginalRate: baseRate,
		AppliedRate:  decimal.Zero,
		SavedAmount:  taxdomain.LineTax(item.Total(), baseRate),
	}
}
