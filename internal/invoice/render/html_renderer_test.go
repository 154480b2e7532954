package render

import (
	"testing"
	"time"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderInvoiceEmail(t *testing.T) {
	inv := &invoicedomain.Invoice{
		InvoiceNumber: "INV-202503-0001",
		Type:          invoicedomain.InvoiceTypeStandard,
		IssueDate:     time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2025, time.April, 13, 10, 0, 0, 0, time.UTC),
		Currency:      "EUR",
		BuyerName:     "Μαρία <script>",
		Subtotal:      decimal.RequireFromString("19.00"),
		TaxAmount:     decimal.RequireFromString("2.57"),
		TotalAmount:   decimal.RequireFromString("21.57"),
		Items: []invoicedomain.InvoiceItem{{
			Description:   "Ντομάτες",
			UnitOfMeasure: "kg",
			Quantity:      decimal.RequireFromString("2"),
			TaxRate:       decimal.RequireFromString("13"),
			Total:         decimal.RequireFromString("10.17"),
		}},
	}
	r := NewRenderer()
	input := Input{SellerName: "Dixis Fresh", SellerVATNumber: "EL123456789", Invoice: inv}

	assert.Equal(t, "Τιμολόγιο INV-202503-0001 - Dixis Fresh", r.Subject(input))

	html, err := r.RenderHTML(input)
	require.NoError(t, err)
	assert.Contains(t, html, "€21.57")
	assert.Contains(t, html, "14/03/2025")
	assert.Contains(t, html, "2 kg")
	assert.Contains(t, html, "13%")
	assert.Contains(t, html, "ΑΦΜ EL123456789")
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "Έκπτωση")

	_, err = r.RenderHTML(Input{})
	assert.Error(t, err)
}
