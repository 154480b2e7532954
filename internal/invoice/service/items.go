package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type draftMutation func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error)

func (s *Service) mutateDraft(ctx context.Context, id, action string, fn draftMutation) (*invoicedomain.Invoice, error) {
	return s.mutateDraftActor(ctx, id, "", action, fn)
}

// mutateDraftActor locks a draft invoice, applies fn and recalculates in one
// transaction. fn returns audit metadata, or nil when nothing changed.
func (s *Service) mutateDraftActor(ctx context.Context, id, actorID, action string, fn draftMutation) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	var updated *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.LockByID(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if inv.Status != invoicedomain.InvoiceStatusDraft {
			return invoicedomain.ErrInvoiceNotEditable
		}

		metadata, err := fn(tx, inv)
		if err != nil {
			return err
		}
		recalculated, err := s.recalculate(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if metadata != nil {
			if err := s.audit(ctx, tx, actorID, action, recalculated, metadata); err != nil {
				return err
			}
		}
		updated = recalculated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// retax reruns the calculator over the invoice's current items and persists
// the new rates, exemptions and snapshot.
func (s *Service) retax(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) error {
	if inv.Type == invoicedomain.InvoiceTypeCreditNote {
		return invoicedomain.ErrInvoiceNotEditable
	}
	items, err := s.repo.ListItems(ctx, tx, inv.TenantID, inv.ID)
	if err != nil {
		return err
	}
	if err := s.applyTax(ctx, inv, items); err != nil {
		return err
	}
	if err := s.repo.SaveItems(ctx, tx, items); err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, tx, inv.TenantID, inv.ID, map[string]any{
		"tax_snapshot": inv.TaxSnapshot,
	})
}

func (s *Service) AddItem(ctx context.Context, id string, input invoicedomain.ItemInput) (*invoicedomain.Invoice, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalid(err)
	}
	if err := checkAmounts(input.Quantity, input.UnitPrice, input.DiscountAmount); err != nil {
		return nil, invalid(err)
	}

	return s.mutateDraft(ctx, id, "invoice.item_added", func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		if inv.Type == invoicedomain.InvoiceTypeCreditNote {
			return nil, invoicedomain.ErrInvoiceNotEditable
		}
		existing, err := s.repo.ListItems(ctx, tx, inv.TenantID, inv.ID)
		if err != nil {
			return nil, err
		}
		position := 0
		for _, item := range existing {
			if item.Position >= position {
				position = item.Position + 1
			}
		}

		item := s.newItem(inv.TenantID, position, input, s.clock.Now().UTC())
		item.ID = s.genID.Generate()
		item.InvoiceID = inv.ID
		if err := s.repo.InsertItems(ctx, tx, []invoicedomain.InvoiceItem{item}); err != nil {
			return nil, err
		}
		if err := s.retax(ctx, tx, inv); err != nil {
			return nil, err
		}
		return map[string]any{"item_id": item.ID.String()}, nil
	})
}

func (s *Service) UpdateItem(ctx context.Context, id, itemID string, req invoicedomain.UpdateItemRequest) (*invoicedomain.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	lineID, err := parseID(itemID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidItemID
	}

	return s.mutateDraft(ctx, id, "invoice.item_updated", func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		item, err := s.repo.FindItem(ctx, tx, inv.TenantID, inv.ID, lineID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, invoicedomain.ErrItemNotFound
		}

		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			item.UnitPrice = *req.UnitPrice
		}
		if req.DiscountAmount != nil {
			item.DiscountAmount = *req.DiscountAmount
		}
		if err := checkAmounts(item.Quantity, item.UnitPrice, item.DiscountAmount); err != nil {
			return nil, invalid(err)
		}
		item.UpdatedAt = s.clock.Now().UTC()

		if err := s.repo.SaveItems(ctx, tx, []invoicedomain.InvoiceItem{*item}); err != nil {
			return nil, err
		}
		if err := s.retax(ctx, tx, inv); err != nil {
			return nil, err
		}
		return map[string]any{"item_id": item.ID.String()}, nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, id, itemID string) (*invoicedomain.Invoice, error) {
	lineID, err := parseID(itemID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidItemID
	}

	return s.mutateDraft(ctx, id, "invoice.item_removed", func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		item, err := s.repo.FindItem(ctx, tx, inv.TenantID, inv.ID, lineID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, invoicedomain.ErrItemNotFound
		}
		if err := s.repo.DeleteItem(ctx, tx, inv.TenantID, inv.ID, lineID); err != nil {
			return nil, err
		}
		if err := s.retax(ctx, tx, inv); err != nil {
			return nil, err
		}
		return map[string]any{"item_id": lineID.String()}, nil
	})
}

// Recalculate recomputes stored totals from the items. Running it twice
// leaves the invoice unchanged.
func (s *Service) Recalculate(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	var out *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.recalculate(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type totals struct {
	subtotal decimal.Decimal
	tax      decimal.Decimal
	discount decimal.Decimal
}

func (t totals) total() decimal.Decimal {
	return t.subtotal.Add(t.tax).Sub(t.discount)
}

func lineAmount(item invoicedomain.InvoiceItem) decimal.Decimal {
	return taxdomain.RoundMoney(item.Quantity.Mul(item.UnitPrice))
}

func sumItems(items []invoicedomain.InvoiceItem) totals {
	t := totals{subtotal: decimal.Zero, tax: decimal.Zero, discount: decimal.Zero}
	for _, item := range items {
		t.subtotal = t.subtotal.Add(lineAmount(item))
		t.tax = t.tax.Add(item.TaxAmount)
		t.discount = t.discount.Add(item.DiscountAmount)
	}
	return t
}

// recalculate must run inside tx. It holds the invoice row lock while it
// rewrites item and header amounts, then verifies them from a fresh read.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.LockByID(ctx, tx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	items, err := s.repo.ListItems(ctx, tx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	for i := range items {
		line := lineAmount(items[i])
		items[i].TaxAmount = taxdomain.LineTax(line, items[i].TaxRate)
		items[i].Total = line.Sub(items[i].DiscountAmount).Add(items[i].TaxAmount)
		items[i].UpdatedAt = now
	}
	if err := s.repo.SaveItems(ctx, tx, items); err != nil {
		s.ledger.IncRecalculation(obsmetrics.RecalculationFailed)
		return nil, err
	}

	sum := sumItems(items)
	if err := s.repo.UpdateFields(ctx, tx, tenantID, invoiceID, map[string]any{
		"subtotal":        sum.subtotal,
		"tax_amount":      sum.tax,
		"discount_amount": sum.discount,
		"total_amount":    sum.total(),
		"updated_at":      now,
	}); err != nil {
		s.ledger.IncRecalculation(obsmetrics.RecalculationFailed)
		return nil, err
	}

	stored, err := s.loadWithItems(ctx, tx, tenantID, invoiceID)
	if err != nil {
		s.ledger.IncRecalculation(obsmetrics.RecalculationFailed)
		return nil, err
	}
	if err := verifyTotals(stored); err != nil {
		var violation *invoicedomain.InvariantViolationError
		if errors.As(err, &violation) {
			s.ledger.IncInvariantViolation(violation.Field)
		}
		s.ledger.IncRecalculation(obsmetrics.RecalculationViolation)
		s.log.Error("invoice totals diverge from items",
			zap.String("invoice_id", invoiceID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.ledger.IncRecalculation(obsmetrics.RecalculationOK)
	return stored, nil
}

// verifyTotals checks the stored header and items against each other.
func verifyTotals(inv *invoicedomain.Invoice) error {
	violation := func(field string, expected, actual decimal.Decimal) error {
		return &invoicedomain.InvariantViolationError{
			InvoiceID: inv.ID,
			Field:     field,
			Expected:  expected,
			Actual:    actual,
		}
	}

	for i, item := range inv.Items {
		line := lineAmount(item)
		if tax := taxdomain.LineTax(line, item.TaxRate); !item.TaxAmount.Equal(tax) {
			return violation(fmt.Sprintf("items[%d].tax_amount", i), tax, item.TaxAmount)
		}
		if total := line.Sub(item.DiscountAmount).Add(item.TaxAmount); !item.Total.Equal(total) {
			return violation(fmt.Sprintf("items[%d].total", i), total, item.Total)
		}
	}

	sum := sumItems(inv.Items)
	switch {
	case !inv.Subtotal.Equal(sum.subtotal):
		return violation("subtotal", sum.subtotal, inv.Subtotal)
	case !inv.TaxAmount.Equal(sum.tax):
		return violation("tax_amount", sum.tax, inv.TaxAmount)
	case !inv.DiscountAmount.Equal(sum.discount):
		return violation("discount_amount", sum.discount, inv.DiscountAmount)
	case !inv.TotalAmount.Equal(sum.total()):
		return violation("total_amount", sum.total(), inv.TotalAmount)
	}
	return nil
}
