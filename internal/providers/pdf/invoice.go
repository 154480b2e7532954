package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/core/entity"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const dateLayout = "02/01/2006"

var errNilInvoice = errors.New("invoice is required")

// InvoiceData is the printable view of an invoice.
type InvoiceData struct {
	Title         string
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Reference     string

	BillToName    string
	BillToVAT     string
	BillToCountry string

	Items []InvoiceItem

	Subtotal string
	Discount string
	Tax      string
	Total    string
	Notes    string
}

type InvoiceItem struct {
	Description string
	Qty         string
	UnitPrice   string
	TaxRate     string
	Amount      string
}

// NewInvoiceData formats inv for rendering.
func NewInvoiceData(inv *invoicedomain.Invoice) InvoiceData {
	title := "Invoice"
	switch inv.Type {
	case invoicedomain.InvoiceTypeCreditNote:
		title = "Credit note"
	case invoicedomain.InvoiceTypeDebitNote:
		title = "Debit note"
	case invoicedomain.InvoiceTypeProforma:
		title = "Proforma invoice"
	}

	data := InvoiceData{
		Title:         title,
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     inv.IssueDate.Format(dateLayout),
		DueDate:       inv.DueDate.Format(dateLayout),
		Reference:     inv.OrderReference,
		BillToName:    inv.BuyerName,
		BillToVAT:     inv.BuyerVATNumber,
		BillToCountry: inv.BuyerCountry,
		Subtotal:      money(inv.Subtotal.StringFixed(2), inv.Currency),
		Discount:      money(inv.DiscountAmount.StringFixed(2), inv.Currency),
		Tax:           money(inv.TaxAmount.StringFixed(2), inv.Currency),
		Total:         money(inv.TotalAmount.StringFixed(2), inv.Currency),
		Notes:         inv.Notes,
	}
	for _, item := range inv.Items {
		description := item.Description
		if item.ExemptionType != "" {
			description += " (" + item.ExemptionType + ")"
		}
		data.Items = append(data.Items, InvoiceItem{
			Description: description,
			Qty:         item.Quantity.String() + " " + item.UnitOfMeasure,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			TaxRate:     item.TaxRate.StringFixed(0) + "%",
			Amount:      item.Total.StringFixed(2),
		})
	}
	return data
}

func money(amount, currency string) string {
	return strings.TrimSpace(amount + " " + currency)
}

func documentConfig() (*entity.Config, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	return config.NewBuilder().
		WithCustomFonts(fonts).
		WithDefaultFont(&props.Font{Family: fontFamily, Size: 10}).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
			Family:  fontFamily,
		}).
		Build(), nil
}

func newDocument() (core.Maroto, error) {
	cfg, err := documentConfig()
	if err != nil {
		return nil, err
	}
	return maroto.New(cfg), nil
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, error) {
	if inv == nil {
		return nil, errNilInvoice
	}
	data := NewInvoiceData(inv)

	m, err := newDocument()
	if err != nil {
		return nil, err
	}
	m.AddRow(12,
		text.NewCol(12, data.Title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	p.addHeader(m, data, []string{
		"Invoice number: " + data.InvoiceNumber,
		"Date of issue: " + data.IssueDate,
		"Date due: " + data.DueDate,
		"Order reference: " + data.Reference,
	})

	m.AddRow(15,
		text.NewCol(12, data.Total+" due "+data.DueDate, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	addItems(m, data.Items)
	addTotals(m, data)

	if data.Notes != "" {
		m.AddRow(15, text.NewCol(12, data.Notes, props.Text{Size: 9, Top: 5}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return doc.GetBytes(), nil
}

func (p *PDFProvider) addHeader(m core.Maroto, data InvoiceData, meta []string) {
	metaCol := col.New(6)
	for i, line := range meta {
		metaCol.Add(text.New(line, props.Text{Top: float64(i * 4)}))
	}
	m.AddRow(20, metaCol, col.New(6))

	m.AddRow(30,
		col.New(6).Add(
			text.New(p.seller.Name, props.Text{Style: fontstyle.Bold}),
			text.New(p.seller.Address, props.Text{Top: 5}),
			text.New("VAT: "+p.seller.VATNumber, props.Text{Top: 10}),
			text.New(p.seller.Email, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(data.BillToName, props.Text{Top: 5}),
			text.New("VAT: "+data.BillToVAT, props.Text{Top: 10}),
			text.New(data.BillToCountry, props.Text{Top: 15}),
		),
	)
}

func addItems(m core.Maroto, items []InvoiceItem) {
	m.AddRow(10,
		text.NewCol(5, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "VAT", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range items {
		m.AddRow(10,
			text.NewCol(5, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.Qty, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, item.TaxRate, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}
}

func addTotals(m core.Maroto, data InvoiceData) {
	rows := [][2]string{
		{"Subtotal", data.Subtotal},
		{"Discount", data.Discount},
		{"VAT", data.Tax},
	}
	for _, row := range rows {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, row[0], props.Text{Size: 9}),
			text.NewCol(2, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
}
