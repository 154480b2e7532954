package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateResolver maps an item's category to its base VAT rate.
type RateResolver interface {
	Resolve(category string, taxCategory TaxCategory) (decimal.Decimal, error)
	Describe(rate decimal.Decimal) string
	Summary() RateSummary
	ForPostcode(postcode string) LocationRate
}

// ExemptionRule is one strategy in the exemption chain. It returns nil when
// it does not apply to the item.
type ExemptionRule interface {
	Name() string
	Apply(item TaxableItem, baseRate decimal.Decimal, buyer Buyer) *TaxExemption
}

type ExemptionEngine interface {
	Check(item TaxableItem, baseRate decimal.Decimal, buyer Buyer) *TaxExemption
}

type Calculator interface {
	Calculate(ctx context.Context, items []TaxableItem, buyer Buyer) (TaxCalculationResult, error)
}
