package service

import (
	"context"
	"testing"

	"github.com/dixis/taxengine/internal/config"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func laptop() taxdomain.TaxableItem {
	return taxdomain.TaxableItem{
		ID:          "item-2",
		Name:        "Φορητός υπολογιστής",
		Price:       decimal.RequireFromString("100.00"),
		Quantity:    decimal.NewFromInt(1),
		Category:    "Ηλεκτρονικά",
		TaxCategory: taxdomain.TaxCategoryStandard,
	}
}

func TestIslandReducedRule(t *testing.T) {
	rule := NewIslandReducedRule(config.DefaultTaxConfig())
	standard := decimal.NewFromInt(24)

	cases := []struct {
		name     string
		baseRate decimal.Decimal
		buyer    taxdomain.Buyer
		want     bool
	}{
		{"santorini", standard, taxdomain.Buyer{Postcode: "84700"}, true},
		{"heraklion with space", standard, taxdomain.Buyer{Postcode: "713 05", Country: "GR"}, true},
		{"corfu lowercase country", standard, taxdomain.Buyer{Postcode: "49100", Country: " gr "}, true},
		{"rhodes business", standard, taxdomain.Buyer{Postcode: "85100", IsBusiness: true, VATNumber: "EL1"}, true},
		{"athens", standard, taxdomain.Buyer{Postcode: "10557"}, false},
		{"thessaloniki", standard, taxdomain.Buyer{Postcode: "54624", Country: "GR"}, false},
		{"no postcode", standard, taxdomain.Buyer{Country: "GR"}, false},
		{"letters only", standard, taxdomain.Buyer{Postcode: "N/A"}, false},
		{"foreign island prefix", standard, taxdomain.Buyer{Postcode: "70173", Country: "DE"}, false},
		{"super reduced item kept", decimal.NewFromInt(6), taxdomain.Buyer{Postcode: "84700"}, false},
		{"reduced item kept", decimal.NewFromInt(13), taxdomain.Buyer{Postcode: "84700"}, false},
		{"exempt item kept", decimal.Zero, taxdomain.Buyer{Postcode: "84700"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exemption := rule.Apply(laptop(), tc.baseRate, tc.buyer)
			if !tc.want {
				assert.Nil(t, exemption)
				return
			}
			require.NotNil(t, exemption)
			assert.Equal(t, taxdomain.ExemptionReducedVAT, exemption.Type)
			assert.Equal(t, "item-2", exemption.ItemID)
			assert.Equal(t, "24", exemption.OriginalRate.String())
			assert.Equal(t, "13", exemption.AppliedRate.String())
			assert.Equal(t, "11.00", exemption.SavedAmount.StringFixed(2))
		})
	}
}

func TestIslandRuleRunsAfterReverseCharge(t *testing.T) {
	cfg := config.DefaultTaxConfig()
	e := NewExemptionEngine(exemptionParam{
		Config: cfg,
		Rules:  []taxdomain.ExemptionRule{NewIslandReducedRule(cfg)},
	})

	// EU business buyer with a postcode that looks like an island one.
	got := e.Check(laptop(), decimal.NewFromInt(24), taxdomain.Buyer{IsBusiness: true, VATNumber: "DE1", Country: "DE", Postcode: "84700"})
	require.NotNil(t, got)
	assert.Equal(t, taxdomain.ExemptionReverseCharge, got.Type)

	got = e.Check(laptop(), decimal.NewFromInt(24), taxdomain.Buyer{Country: "GR", Postcode: "84700"})
	require.NotNil(t, got)
	assert.Equal(t, taxdomain.ExemptionReducedVAT, got.Type)
}

func TestCalculateIslandDelivery(t *testing.T) {
	calc := NewDefaultCalculator(config.DefaultTaxConfig(), zap.NewNop())
	items := []taxdomain.TaxableItem{laptop(), vegetables()}
	items[1].Category = "Φάρμακα"

	result, err := calc.Calculate(context.Background(), items, taxdomain.Buyer{Postcode: "84100"})
	require.NoError(t, err)

	require.Len(t, result.TaxBreakdown, 2)
	assert.Equal(t, "13", result.TaxBreakdown[0].VATRate.String())
	assert.Equal(t, "13.00", result.TaxBreakdown[0].VATAmount.StringFixed(2))
	assert.Equal(t, islandReducedReason, result.TaxBreakdown[0].Description)
	assert.Equal(t, "6", result.TaxBreakdown[1].VATRate.String())
	assert.Nil(t, result.TaxBreakdown[1].Exemption)
	require.Len(t, result.Exemptions, 1)
	assert.True(t, result.HasExemption(taxdomain.ExemptionReducedVAT))
	assert.Equal(t, "109.00", result.Subtotal.StringFixed(2))
	assert.Equal(t, "13.54", result.VATAmount.StringFixed(2))
	assert.Equal(t, "122.54", result.Total.StringFixed(2))

	mainland, err := calc.Calculate(context.Background(), items, taxdomain.Buyer{Postcode: "10557"})
	require.NoError(t, err)
	assert.Empty(t, mainland.Exemptions)
	assert.Equal(t, "24.54", mainland.VATAmount.StringFixed(2))
}

func TestResolverForPostcode(t *testing.T) {
	r := newResolver(config.DefaultTaxConfig())

	island := r.ForPostcode("740 52")
	assert.True(t, island.IsIsland)
	assert.Equal(t, locationIsland, island.LocationType)
	assert.Equal(t, "13", island.StandardRate.String())
	assert.Equal(t, "6", island.SuperReduced.String())

	mainland := r.ForPostcode("10557")
	assert.False(t, mainland.IsIsland)
	assert.Equal(t, locationMainland, mainland.LocationType)
	assert.Equal(t, "24", mainland.StandardRate.String())

	assert.Contains(t, r.Summary().IslandPostcodePrefixes, "28")
}
