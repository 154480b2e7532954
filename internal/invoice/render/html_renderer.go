package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

const invoiceEmailTemplate = `<!doctype html>
<html lang="el">
<head>
  <meta charset="utf-8" />
  <title>{{.Title}} {{.Invoice.InvoiceNumber}}</title>
  <style>
    body { margin: 0; padding: 32px; font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    .card { background: #ffffff; max-width: 640px; margin: 0 auto; padding: 40px; border-radius: 4px; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; font-weight: 600; }
    .amount { font-size: 28px; font-weight: 700; margin: 8px 0 24px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 24px; }
    th { text-align: left; font-size: 11px; color: #8792a2; border-bottom: 1px solid #e3e8ee; padding: 8px 0; }
    td { padding: 10px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; }
    .right { text-align: right; }
    .footer { margin-top: 32px; font-size: 12px; color: #8792a2; }
  </style>
</head>
<body>
  <div class="card">
    <p>{{if .Invoice.BuyerName}}Αγαπητέ/ή {{.Invoice.BuyerName}},{{else}}Αγαπητέ πελάτη,{{end}}</p>
    <p>Σας αποστέλλουμε το {{.Title}} <strong>{{.Invoice.InvoiceNumber}}</strong> από {{.SellerName}}. Θα το βρείτε συνημμένο σε μορφή PDF.</p>

    <div class="label">Σύνολο</div>
    <div class="amount">{{formatMoney .Invoice.TotalAmount .Invoice.Currency}}</div>

    <div class="label">Ημερομηνία έκδοσης</div>
    <p>{{formatDate .Invoice.IssueDate}}</p>
    <div class="label">Ημερομηνία λήξης</div>
    <p>{{formatDate .Invoice.DueDate}}</p>

    <table>
      <thead>
        <tr><th>Περιγραφή</th><th class="right">Ποσότητα</th><th class="right">ΦΠΑ</th><th class="right">Σύνολο</th></tr>
      </thead>
      <tbody>
        {{range .Invoice.Items}}
        <tr>
          <td>{{.Description}}</td>
          <td class="right">{{formatQuantity .Quantity}} {{.UnitOfMeasure}}</td>
          <td class="right">{{formatRate .TaxRate}}</td>
          <td class="right">{{formatMoney .Total $.Invoice.Currency}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <table>
      <tr><td>Καθαρή αξία</td><td class="right">{{formatMoney .Invoice.Subtotal .Invoice.Currency}}</td></tr>
      {{if .Invoice.DiscountAmount.IsPositive}}<tr><td>Έκπτωση</td><td class="right">-{{formatMoney .Invoice.DiscountAmount .Invoice.Currency}}</td></tr>{{end}}
      <tr><td>ΦΠΑ</td><td class="right">{{formatMoney .Invoice.TaxAmount .Invoice.Currency}}</td></tr>
      <tr><td><strong>Σύνολο</strong></td><td class="right"><strong>{{formatMoney .Invoice.TotalAmount .Invoice.Currency}}</strong></td></tr>
    </table>

    {{if .Invoice.Notes}}<p>{{.Invoice.Notes}}</p>{{end}}
    <div class="footer">
      {{.SellerName}}{{if .SellerVATNumber}} · ΑΦΜ {{.SellerVATNumber}}{{end}}
    </div>
  </div>
</body>
</html>
`

var errNilInvoice = errors.New("invoice is required")

// Input is the data an invoice email is rendered from.
type Input struct {
	SellerName      string
	SellerVATNumber string
	Invoice         *invoicedomain.Invoice
}

type view struct {
	Input
	Title string
}

type Renderer interface {
	Subject(input Input) string
	RenderHTML(input Input) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"formatMoney":    formatMoney,
		"formatDate":     formatDate,
		"formatQuantity": formatQuantity,
		"formatRate":     formatRate,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice_email").Funcs(funcs).Parse(invoiceEmailTemplate)),
	}
}

func (r *HTMLRenderer) Subject(input Input) string {
	if input.Invoice == nil {
		return ""
	}
	return fmt.Sprintf("%s %s - %s", documentTitle(input.Invoice.Type), input.Invoice.InvoiceNumber, input.SellerName)
}

func (r *HTMLRenderer) RenderHTML(input Input) (string, error) {
	if input.Invoice == nil {
		return "", errNilInvoice
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, view{Input: input, Title: strings.ToLower(documentTitle(input.Invoice.Type))}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func documentTitle(t invoicedomain.InvoiceType) string {
	switch t {
	case invoicedomain.InvoiceTypeCreditNote:
		return "Πιστωτικό"
	case invoicedomain.InvoiceTypeDebitNote:
		return "Χρεωστικό"
	case invoicedomain.InvoiceTypeProforma:
		return "Προτιμολόγιο"
	default:
		return "Τιμολόγιο"
	}
}

func formatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "EUR" {
		return "€" + amount.StringFixed(2)
	}
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("02/01/2006")
}

func formatQuantity(value decimal.Decimal) string {
	return value.String()
}

func formatRate(value decimal.Decimal) string {
	return value.String() + "%"
}
