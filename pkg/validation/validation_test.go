package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type order struct {
	Terms *int   `json:"payment_terms_days" validate:"omitempty,gte=0,lte=365"`
	Lines []line `json:"lines" validate:"required,min=1,dive"`
}

func TestStructAcceptsValidRequest(t *testing.T) {
	terms := 30
	req := order{
		Terms: &terms,
		Lines: []line{{Description: "Λάδι", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("8.50")}},
	}
	assert.NoError(t, New().Struct(req))
}

func TestStructReportsFields(t *testing.T) {
	terms := 400
	req := order{
		Terms: &terms,
		Lines: []line{{Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(-1)}},
	}

	err := New().Struct(req)
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))

	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Tag
	}
	assert.Equal(t, "lte", fields["payment_terms_days"])
	assert.Equal(t, "required", fields["lines[0].description"])
	assert.Equal(t, "gt", fields["lines[0].quantity"])
	assert.Equal(t, "gte", fields["lines[0].unit_price"])
}
