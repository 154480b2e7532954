package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/dixis/taxengine/internal/config"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCalculator(t *testing.T) taxdomain.Calculator {
	t.Helper()
	cfg := config.DefaultTaxConfig()
	return NewCalculator(calculatorParam{
		Log:       zap.NewNop(),
		Resolver:  newResolver(cfg),
		Exemption: newEngine(NewReverseChargeRule(cfg)),
	})
}

func TestCalculateDomesticReducedRate(t *testing.T) {
	calc := newTestCalculator(t)

	result, err := calc.Calculate(context.Background(), []taxdomain.TaxableItem{vegetables()}, taxdomain.Buyer{})
	require.NoError(t, err)

	assert.Equal(t, "9.00", result.Subtotal.StringFixed(2))
	assert.Equal(t, "1.17", result.VATAmount.StringFixed(2))
	assert.Equal(t, "10.17", result.Total.StringFixed(2))
	assert.Equal(t, "13", result.VATRate.String())
	require.Len(t, result.TaxBreakdown, 1)
	assert.Equal(t, "13", result.TaxBreakdown[0].VATRate.String())
	assert.Nil(t, result.TaxBreakdown[0].Exemption)
	assert.Empty(t, result.Exemptions)
	assert.False(t, result.IsBusinessCustomer)
}

func TestCalculateReverseCharge(t *testing.T) {
	calc := newTestCalculator(t)
	buyer := taxdomain.Buyer{IsBusiness: true, VATNumber: "DE123456789", Country: "DE"}

	result, err := calc.Calculate(context.Background(), []taxdomain.TaxableItem{vegetables()}, buyer)
	require.NoError(t, err)

	assert.Equal(t, "9.00", result.Subtotal.StringFixed(2))
	assert.True(t, result.VATAmount.IsZero())
	assert.Equal(t, "9.00", result.Total.StringFixed(2))
	assert.True(t, result.VATRate.IsZero())
	require.Len(t, result.Exemptions, 1)
	assert.Equal(t, "1.17", result.Exemptions[0].SavedAmount.StringFixed(2))
	require.NotNil(t, result.TaxBreakdown[0].Exemption)
	assert.Equal(t, "Απαλλαγή ΦΠΑ", result.TaxBreakdown[0].Description)
	assert.True(t, result.IsBusinessCustomer)
	assert.Equal(t, "DE123456789", result.VATNumber)
	assert.Equal(t, "DE", result.BuyerCountry)

	domestic := buyer
	domestic.Country = "GR"
	result, err = calc.Calculate(context.Background(), []taxdomain.TaxableItem{vegetables()}, domestic)
	require.NoError(t, err)
	assert.Empty(t, result.Exemptions)
	assert.Equal(t, "1.17", result.VATAmount.StringFixed(2))
}

func TestCalculatePreservesInputOrder(t *testing.T) {
	calc := newTestCalculator(t)
	items := []taxdomain.TaxableItem{
		{ID: "c", Price: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(1), Category: "Ηλεκτρονικά", TaxCategory: taxdomain.TaxCategoryStandard},
		{ID: "a", Price: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(1), Category: "Φάρμακα", TaxCategory: taxdomain.TaxCategoryStandard},
		{ID: "b", Price: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(1), TaxCategory: taxdomain.TaxCategoryExempt},
	}

	result, err := calc.Calculate(context.Background(), items, taxdomain.Buyer{})
	require.NoError(t, err)

	ids := []string{}
	rates := []string{}
	for _, entry := range result.TaxBreakdown {
		ids = append(ids, entry.ItemID)
		rates = append(rates, entry.VATRate.String())
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, []string{"24", "6", "0"}, rates)
	assert.Equal(t, "30.00", result.Subtotal.StringFixed(2))
	assert.Equal(t, "3.00", result.VATAmount.StringFixed(2))
	assert.Equal(t, "10", result.VATRate.String())
}

func TestCalculateRoundingClosure(t *testing.T) {
	calc := newTestCalculator(t)
	items := make([]taxdomain.TaxableItem, 0, 40)
	categories := []string{"Φρούτα", "Φάρμακα", "Ηλεκτρονικά", "Αυγά"}
	for i := 0; i < 40; i++ {
		items = append(items, taxdomain.TaxableItem{
			ID:          fmt.Sprintf("item-%d", i),
			Price:       decimal.New(int64(101+i*37), -2),
			Quantity:    decimal.New(int64(3+i%7), -1),
			Category:    categories[i%len(categories)],
			TaxCategory: taxdomain.TaxCategoryStandard,
		})
	}

	first, err := calc.Calculate(context.Background(), items, taxdomain.Buyer{})
	require.NoError(t, err)

	sumVAT := decimal.Zero
	sumAmount := decimal.Zero
	for _, entry := range first.TaxBreakdown {
		sumVAT = sumVAT.Add(entry.VATAmount)
		sumAmount = sumAmount.Add(entry.Amount)
		assert.True(t, entry.VATAmount.Equal(entry.VATAmount.Round(2)))
	}
	assert.True(t, sumVAT.Round(2).Equal(first.VATAmount))
	assert.True(t, sumAmount.Equal(first.Subtotal))
	assert.True(t, first.Subtotal.Add(first.VATAmount).Equal(first.Total))

	second, err := calc.Calculate(context.Background(), items, taxdomain.Buyer{})
	require.NoError(t, err)
	assert.True(t, first.VATAmount.Equal(second.VATAmount))
	assert.True(t, first.Total.Equal(second.Total))
}

func TestCalculateRoundsHalfAwayFromZero(t *testing.T) {
	calc := newTestCalculator(t)
	item := taxdomain.TaxableItem{
		ID:          "half",
		Price:       decimal.RequireFromString("0.125"),
		Quantity:    decimal.NewFromInt(1),
		TaxCategory: taxdomain.TaxCategoryExempt,
	}

	result, err := calc.Calculate(context.Background(), []taxdomain.TaxableItem{item}, taxdomain.Buyer{})
	require.NoError(t, err)
	assert.Equal(t, "0.13", result.Subtotal.StringFixed(2))
}

func TestCalculateZeroSubtotal(t *testing.T) {
	calc := newTestCalculator(t)

	result, err := calc.Calculate(context.Background(), nil, taxdomain.Buyer{})
	require.NoError(t, err)
	assert.True(t, result.Subtotal.IsZero())
	assert.True(t, result.VATRate.IsZero())
	assert.Empty(t, result.TaxBreakdown)

	free := vegetables()
	free.Price = decimal.Zero
	result, err = calc.Calculate(context.Background(), []taxdomain.TaxableItem{free}, taxdomain.Buyer{})
	require.NoError(t, err)
	assert.True(t, result.VATRate.IsZero())
	assert.True(t, result.Total.IsZero())
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	calc := newTestCalculator(t)

	cases := []struct {
		name   string
		mutate func(*taxdomain.TaxableItem)
		want   error
	}{
		{"negative price", func(i *taxdomain.TaxableItem) { i.Price = decimal.NewFromInt(-1) }, taxdomain.ErrInvalidPrice},
		{"zero quantity", func(i *taxdomain.TaxableItem) { i.Quantity = decimal.Zero }, taxdomain.ErrInvalidQuantity},
		{"negative quantity", func(i *taxdomain.TaxableItem) { i.Quantity = decimal.NewFromInt(-2) }, taxdomain.ErrInvalidQuantity},
		{"unknown tax category", func(i *taxdomain.TaxableItem) { i.TaxCategory = "luxury" }, taxdomain.ErrInvalidTaxCategory},
		{"missing id", func(i *taxdomain.TaxableItem) { i.ID = " " }, taxdomain.ErrInvalidItemID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := vegetables()
			tc.mutate(&bad)

			_, err := calc.Calculate(context.Background(), []taxdomain.TaxableItem{vegetables(), bad}, taxdomain.Buyer{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, taxdomain.ErrInvalidInput))
			assert.True(t, errors.Is(err, tc.want))

			var inputErr *taxdomain.InvalidInputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, 1, inputErr.Index)
		})
	}
}

func TestCalculationResultJSONShape(t *testing.T) {
	calc := newTestCalculator(t)
	buyer := taxdomain.Buyer{IsBusiness: true, VATNumber: "DE123456789", Country: "DE"}

	result, err := calc.Calculate(context.Background(), []taxdomain.TaxableItem{vegetables()}, buyer)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "9", payload["subtotal"])
	assert.Equal(t, true, payload["is_business_customer"])
	assert.Contains(t, payload, "tax_breakdown")
	assert.Contains(t, payload, "exemptions")
}
