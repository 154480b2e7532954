package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TaxCategory is the coarse tax classification carried by a sellable item.
type TaxCategory string

const (
	TaxCategoryStandard TaxCategory = "standard"
	TaxCategoryReduced  TaxCategory = "reduced"
	TaxCategoryExempt   TaxCategory = "exempt"
)

func (c TaxCategory) Valid() bool {
	switch c {
	case TaxCategoryStandard, TaxCategoryReduced, TaxCategoryExempt:
		return true
	default:
		return false
	}
}

// ExemptionType identifies the rule that overrode an item's base rate.
type ExemptionType string

const (
	ExemptionReducedVAT    ExemptionType = "reduced_vat"
	ExemptionExempt        ExemptionType = "exempt"
	ExemptionReverseCharge ExemptionType = "reverse_charge"
)

// TaxableItem is a priced line submitted for calculation.
type TaxableItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Category    string          `json:"category"`
	TaxCategory TaxCategory     `json:"tax_category"`
}

// Total is price * quantity rounded to cents.
func (i TaxableItem) Total() decimal.Decimal {
	return RoundMoney(i.Price.Mul(i.Quantity))
}

// Buyer carries the buyer context relevant to exemptions.
type Buyer struct {
	IsBusiness bool   `json:"is_business"`
	VATNumber  string `json:"vat_number,omitempty"`
	Country    string `json:"country,omitempty"`
	Postcode   string `json:"postcode,omitempty"`
}

func (b Buyer) NormalizedCountry() string {
	return strings.ToUpper(strings.TrimSpace(b.Country))
}

// PostcodeDigits strips everything but digits, so "847 00" becomes "84700".
func (b Buyer) PostcodeDigits() string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, b.Postcode)
}

// TaxExemption records a rate override and the tax it removed.
type TaxExemption struct {
	ItemID       string          `json:"item_id"`
	Type         ExemptionType   `json:"type"`
	Reason       string          `json:"reason"`
	OriginalRate decimal.Decimal `json:"original_rate"`
	AppliedRate  decimal.Decimal `json:"applied_rate"`
	SavedAmount  decimal.Decimal `json:"saved_amount"`
}

type TaxBreakdownEntry struct {
	ItemID      string          `json:"item_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	Description string          `json:"description"`
	Exemption   *TaxExemption   `json:"exemption,omitempty"`
}

// TaxCalculationResult is the immutable outcome of one calculation.
type TaxCalculationResult struct {
	Subtotal           decimal.Decimal     `json:"subtotal"`
	VATAmount          decimal.Decimal     `json:"vat_amount"`
	VATRate            decimal.Decimal     `json:"vat_rate"`
	Total              decimal.Decimal     `json:"total"`
	TaxBreakdown       []TaxBreakdownEntry `json:"tax_breakdown"`
	IsBusinessCustomer bool                `json:"is_business_customer"`
	VATNumber          string              `json:"vat_number,omitempty"`
	BuyerCountry       string              `json:"buyer_country,omitempty"`
	Exemptions         []TaxExemption      `json:"exemptions,omitempty"`
}

// HasExemption reports whether any line carries an exemption of type t.
func (r TaxCalculationResult) HasExemption(t ExemptionType) bool {
	for _, e := range r.Exemptions {
		if e.Type == t {
			return true
		}
	}
	return false
}

// RateSummary describes the active rate table.
type RateSummary struct {
	Standard               decimal.Decimal `json:"standard"`
	Reduced                decimal.Decimal `json:"reduced"`
	SuperReduced           decimal.Decimal `json:"super_reduced"`
	Exempt                 decimal.Decimal `json:"exempt"`
	ReducedCategories      []string        `json:"reduced_categories"`
	SuperReducedCategories []string        `json:"super_reduced_categories"`
	HomeCountry            string          `json:"home_country"`
	Currency               string          `json:"currency"`
	IslandPostcodePrefixes []string        `json:"island_postcode_prefixes"`
}

// LocationRate is the standard rate that applies at a delivery postcode.
type LocationRate struct {
	Postcode     string          `json:"postcode"`
	IsIsland     bool            `json:"is_island"`
	LocationType string          `json:"location_type"`
	StandardRate decimal.Decimal `json:"standard_rate"`
	SuperReduced decimal.Decimal `json:"super_reduced_rate"`
}

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero to cents.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// LineTax is amount * rate / 100 rounded to cents. Invoice recalculation
// and the calculator share it so both paths round identically.
func LineTax(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(rate).Div(hundred))
}

// BlendedRate is tax / subtotal * 100 rounded to two places, 0 for an empty subtotal.
func BlendedRate(tax, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() {
		return decimal.Zero
	}
	return tax.Mul(hundred).Div(subtotal).Round(2)
}
