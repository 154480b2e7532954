package service

import (
	"context"
	"fmt"
	"strings"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateCreditNote issues a draft credit note against an issued invoice. The
// lines copy the original rates with negated quantities; the tax calculator
// is not consulted so the credit mirrors what was charged.
func (s *Service) CreateCreditNote(ctx context.Context, originalID string, req invoicedomain.CreditNoteRequest) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(originalID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}

	original, err := s.loadWithItems(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if original.Type == invoicedomain.InvoiceTypeCreditNote ||
		original.Type == invoicedomain.InvoiceTypeProforma ||
		!original.Status.Issued() {
		return nil, invoicedomain.ErrCreditNoteNotAllowed
	}

	selected, err := selectCreditLines(original.Items, req.Lines)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	d := draft{
		invoice: invoicedomain.Invoice{
			ID:                s.genID.Generate(),
			TenantID:          tenantID,
			OrderReference:    original.OrderReference,
			Type:              invoicedomain.InvoiceTypeCreditNote,
			Status:            invoicedomain.InvoiceStatusDraft,
			IssueDate:         now,
			DueDate:           now,
			Currency:          original.Currency,
			PaymentTermsDays:  0,
			Notes:             fmt.Sprintf("Credit note for invoice %s", original.InvoiceNumber),
			BuyerName:         original.BuyerName,
			BuyerIsBusiness:   original.BuyerIsBusiness,
			BuyerVATNumber:    original.BuyerVATNumber,
			BuyerCountry:      original.BuyerCountry,
			BuyerPostcode:     original.BuyerPostcode,
			CreatedBy:         strings.TrimSpace(req.CreatedBy),
			OriginalInvoiceID: &original.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
	for i, line := range selected {
		item := line.item
		d.items = append(d.items, invoicedomain.InvoiceItem{
			ID:             s.genID.Generate(),
			TenantID:       tenantID,
			InvoiceID:      d.invoice.ID,
			Position:       i,
			ProductSKU:     item.ProductSKU,
			Description:    item.Description,
			Category:       item.Category,
			TaxCategory:    item.TaxCategory,
			UnitOfMeasure:  item.UnitOfMeasure,
			Quantity:       line.quantity.Neg(),
			UnitPrice:      item.UnitPrice,
			DiscountAmount: proratedDiscount(item, line.quantity).Neg(),
			TaxRate:        item.TaxRate,
			ExemptionType:  item.ExemptionType,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	created, err := s.insertWithRetry(ctx, d)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordInvoiceEvent(ctx, "credit_note_created")
	s.log.Info("credit note created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("invoice_number", created.InvoiceNumber),
		zap.String("original_invoice_number", original.InvoiceNumber),
		zap.String("total_amount", created.TotalAmount.StringFixed(2)),
	)
	return created, nil
}

type creditLine struct {
	item     invoicedomain.InvoiceItem
	quantity decimal.Decimal
}

func selectCreditLines(items []invoicedomain.InvoiceItem, lines []invoicedomain.CreditNoteLine) ([]creditLine, error) {
	if len(lines) == 0 {
		if len(items) == 0 {
			return nil, invoicedomain.ErrEmptyItems
		}
		out := make([]creditLine, 0, len(items))
		for _, item := range items {
			out = append(out, creditLine{item: item, quantity: item.Quantity})
		}
		return out, nil
	}

	byID := make(map[string]invoicedomain.InvoiceItem, len(items))
	for _, item := range items {
		byID[item.ID.String()] = item
	}

	out := make([]creditLine, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		key := strings.TrimSpace(line.ItemID)
		item, ok := byID[key]
		if !ok {
			return nil, invoicedomain.ErrItemNotFound
		}
		if seen[key] {
			return nil, invalid(fmt.Errorf("item %s credited twice", key))
		}
		seen[key] = true

		quantity := item.Quantity
		if line.Quantity != nil {
			quantity = *line.Quantity
		}
		if !quantity.IsPositive() || quantity.GreaterThan(item.Quantity) || !quantity.Equal(quantity.Round(3)) {
			return nil, invoicedomain.ErrInvalidQuantity
		}
		out = append(out, creditLine{item: item, quantity: quantity})
	}
	return out, nil
}

// proratedDiscount gives the share of an item's discount that belongs to the
// credited quantity.
func proratedDiscount(item invoicedomain.InvoiceItem, quantity decimal.Decimal) decimal.Decimal {
	if item.DiscountAmount.IsZero() || item.Quantity.IsZero() {
		return item.DiscountAmount
	}
	if quantity.Equal(item.Quantity) {
		return item.DiscountAmount
	}
	return taxdomain.RoundMoney(item.DiscountAmount.Mul(quantity).Div(item.Quantity))
}
