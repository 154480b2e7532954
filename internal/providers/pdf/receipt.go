package pdf

import (
	"context"
	"fmt"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var errNotPaid = fmt.Errorf("invoice is not paid: %w", invoicedomain.ErrInvalidTransition)

// GenerateReceipt renders the payment confirmation of a paid invoice.
func (p *PDFProvider) GenerateReceipt(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, error) {
	if inv == nil {
		return nil, errNilInvoice
	}
	if inv.Status != invoicedomain.InvoiceStatusPaid || inv.PaidAt == nil {
		return nil, errNotPaid
	}
	data := NewInvoiceData(inv)
	datePaid := inv.PaidAt.Format(dateLayout)

	m, err := newDocument()
	if err != nil {
		return nil, err
	}
	m.AddRow(12,
		text.NewCol(12, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	p.addHeader(m, data, []string{
		"Invoice number: " + data.InvoiceNumber,
		"Date paid: " + datePaid,
		"Payment method: " + inv.PaymentMethod,
		"Payment reference: " + inv.PaymentReference,
	})

	m.AddRow(15,
		text.NewCol(12, data.Total+" paid on "+datePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	addItems(m, data.Items)
	addTotals(m, data)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", inv.InvoiceNumber, err)
	}
	return doc.GetBytes(), nil
}
