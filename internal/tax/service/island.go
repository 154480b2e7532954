package service

import (
	"strings"

	"github.com/dixis/taxengine/internal/config"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
)

const (
	locationMainland = "mainland"
	locationIsland   = "island"

	islandReducedReason = "Μειωμένος συντελεστής ΦΠΑ νησιών"
)

type islandPostcodes []string

func newIslandPostcodes(prefixes []string) islandPostcodes {
	out := make(islandPostcodes, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p islandPostcodes) match(digits string) bool {
	if digits == "" {
		return false
	}
	for _, prefix := range p {
		if strings.HasPrefix(digits, prefix) {
			return true
		}
	}
	return false
}

func (p islandPostcodes) list() []string {
	return append([]string(nil), p...)
}

// IslandReducedRule taxes standard-rated domestic sales shipped to an island
// postcode at the reduced rate. Items already on a lower rate are untouched.
type IslandReducedRule struct {
	homeCountry string
	standard    decimal.Decimal
	reduced     decimal.Decimal
	islands     islandPostcodes
}

func NewIslandReducedRule(cfg config.TaxConfig) *IslandReducedRule {
	return &IslandReducedRule{
		homeCountry: strings.ToUpper(strings.TrimSpace(cfg.HomeCountry)),
		standard:    cfg.Rates.Standard,
		reduced:     cfg.Rates.Reduced,
		islands:     newIslandPostcodes(cfg.IslandPostcodePrefixes),
	}
}

func (r *IslandReducedRule) Name() string { return "island_reduced_vat" }

func (r *IslandReducedRule) Apply(item taxdomain.TaxableItem, baseRate decimal.Decimal, buyer taxdomain.Buyer) *taxdomain.TaxExemption {
	if !baseRate.Equal(r.standard) || !r.reduced.LessThan(r.standard) {
		return nil
	}
	if country := buyer.NormalizedCountry(); country != "" && country != r.homeCountry {
		return nil
	}
	if !r.islands.match(buyer.PostcodeDigits()) {
		return nil
	}

	total := item.Total()
	return &taxdomain.TaxExemption{
		ItemID:       item.ID,
		Type:         taxdomain.ExemptionReducedVAT,
		Reason:       islandReducedReason,
		OriginalRate: baseRate,
		AppliedRate:  r.reduced,
		SavedAmount:  taxdomain.LineTax(total, baseRate).Sub(taxdomain.LineTax(total, r.reduced)),
	}
}
