package service

import (
	"fmt"
	"strings"

	"github.com/dixis/taxengine/internal/config"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

type resolverParam struct {
	fx.In

	Config config.TaxConfig
}

type resolver struct {
	rates        config.RateTable
	reduced      []string
	superReduced []string
	homeCountry  string
	currency     string
	islands      islandPostcodes
}

func NewResolver(p resolverParam) taxdomain.RateResolver {
	return newResolver(p.Config)
}

func newResolver(cfg config.TaxConfig) *resolver {
	return &resolver{
		rates:        cfg.Rates,
		reduced:      normalizeCategories(cfg.ReducedCategories),
		superReduced: normalizeCategories(cfg.SuperReducedCategories),
		homeCountry:  cfg.HomeCountry,
		currency:     cfg.Currency,
		islands:      newIslandPostcodes(cfg.IslandPostcodePrefixes),
	}
}

func (r *resolver) Resolve(category string, taxCategory taxdomain.TaxCategory) (decimal.Decimal, error) {
	switch taxCategory {
	case taxdomain.TaxCategoryExempt:
		return r.rates.Exempt, nil
	case taxdomain.TaxCategoryReduced:
		return r.rates.Reduced, nil
	case taxdomain.TaxCategoryStandard:
	default:
		return decimal.Zero, taxdomain.NewInvalidInput(-1, "tax_category", taxdomain.ErrInvalidTaxCategory)
	}

	key := normalizeCategory(category)
	if key == "" {
		return r.rates.Standard, nil
	}
	if contains(r.reduced, key) {
		return r.rates.Reduced, nil
	}
	if contains(r.superReduced, key) {
		return r.rates.SuperReduced, nil
	}
	return r.rates.Standard, nil
}

func (r *resolver) Describe(rate decimal.Decimal) string {
	switch {
	case rate.IsZero():
		return "Απαλλαγή ΦΠΑ"
	case rate.Equal(r.rates.SuperReduced):
		return fmt.Sprintf("Υπερμειωμένος συντελεστής ΦΠΑ (%s%%)", rate)
	case rate.Equal(r.rates.Reduced):
		return fmt.Sprintf("Μειωμένος συντελεστής ΦΠΑ (%s%%) - Αγροτικά προϊόντα", rate)
	case rate.Equal(r.rates.Standard):
		return fmt.Sprintf("Κανονικός συντελεστής ΦΠΑ (%s%%)", rate)
	default:
		return fmt.Sprintf("ΦΠΑ %s%%", rate)
	}
}

func (r *resolver) Summary() taxdomain.RateSummary {
	return taxdomain.RateSummary{
		Standard:               r.rates.Standard,
		Reduced:                r.rates.Reduced,
		SuperReduced:           r.rates.SuperReduced,
		Exempt:                 r.rates.Exempt,
		ReducedCategories:      append([]string(nil), r.reduced...),
		SuperReducedCategories: append([]string(nil), r.superReduced...),
		HomeCountry:            r.homeCountry,
		Currency:               r.currency,
		IslandPostcodePrefixes: r.islands.list(),
	}
}

// ForPostcode reports the standard rate for a domestic delivery postcode.
// Island postcodes get the reduced rate; basic goods keep the super-reduced
// rate everywhere.
func (r *resolver) ForPostcode(postcode string) taxdomain.LocationRate {
	out := taxdomain.LocationRate{
		Postcode:     strings.TrimSpace(postcode),
		LocationType: locationMainland,
		StandardRate: r.rates.Standard,
		SuperReduced: r.rates.SuperReduced,
	}
	if r.islands.match(taxdomain.Buyer{Postcode: postcode}.PostcodeDigits()) {
		out.IsIsland = true
		out.LocationType = locationIsland
		out.StandardRate = r.rates.Reduced
	}
	return out
}

func normalizeCategories(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = normalizeCategory(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeCategory(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func contains(values []string, key string) bool {
	for _, v := range values {
		if v == key {
			return true
		}
	}
	return false
}
