package service

import (
	"context"
	"errors"
	"strings"
	"time"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type transitionFunc func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time, fields map[string]any) error

// transition moves an invoice to next under a row lock. fn may add columns
// to fields and write related rows on tx.
func (s *Service) transition(ctx context.Context, id string, next invoicedomain.InvoiceStatus, actorID string, metadata map[string]any, fn transitionFunc) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	var (
		updated  *invoicedomain.Invoice
		previous invoicedomain.InvoiceStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.LockByID(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if !inv.Status.CanTransitionTo(next) {
			return invoicedomain.ErrInvalidTransition
		}
		previous = inv.Status

		now := s.clock.Now().UTC()
		fields := map[string]any{
			"status":     next,
			"updated_at": now,
		}
		if fn != nil {
			if err := fn(tx, inv, now, fields); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateFields(ctx, tx, tenantID, invoiceID, fields); err != nil {
			return err
		}

		reloaded, err := s.loadWithItems(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		extra := map[string]any{"previous_status": string(previous)}
		for k, v := range metadata {
			extra[k] = v
		}
		if err := s.audit(ctx, tx, actorID, "invoice."+string(next), reloaded, extra); err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.reports != nil {
		s.reports.InvalidateTenant(tenantID)
	}
	s.metrics.RecordInvoiceEvent(ctx, string(next))
	s.log.Info("invoice status changed",
		zap.String("invoice_id", updated.ID.String()),
		zap.String("invoice_number", updated.InvoiceNumber),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	return updated, nil
}

// MarkSent records that the invoice was emailed to the buyer.
func (s *Service) MarkSent(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusSent, "", nil,
		func(_ *gorm.DB, _ *invoicedomain.Invoice, now time.Time, fields map[string]any) error {
			fields["sent_at"] = now
			return nil
		})
}

func (s *Service) MarkViewed(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusViewed, "", nil,
		func(_ *gorm.DB, _ *invoicedomain.Invoice, now time.Time, fields map[string]any) error {
			fields["viewed_at"] = now
			return nil
		})
}

// MarkPaid settles the full invoice total and records the payment.
func (s *Service) MarkPaid(ctx context.Context, id string, req invoicedomain.MarkPaidRequest) (*invoicedomain.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, invoicedomain.ErrInvalidPaymentMethod
	}
	metadata := map[string]any{"payment_method": method}
	if ref := strings.TrimSpace(req.PaymentReference); ref != "" {
		metadata["payment_reference"] = ref
	}

	return s.transition(ctx, id, invoicedomain.InvoiceStatusPaid, "", metadata,
		func(tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time, fields map[string]any) error {
			paidAt := now
			if req.PaidAt != nil {
				paidAt = req.PaidAt.UTC()
			}
			fields["paid_at"] = paidAt
			fields["payment_method"] = method
			fields["payment_reference"] = strings.TrimSpace(req.PaymentReference)

			return s.repo.InsertPayment(ctx, tx, &invoicedomain.InvoicePayment{
				ID:            s.genID.Generate(),
				TenantID:      inv.TenantID,
				InvoiceID:     inv.ID,
				Method:        method,
				Amount:        inv.TotalAmount,
				Currency:      inv.Currency,
				TransactionID: strings.TrimSpace(req.PaymentReference),
				Notes:         strings.TrimSpace(req.Notes),
				Status:        invoicedomain.PaymentStatusCompleted,
				PaidAt:        paidAt,
				CreatedAt:     now,
			})
		})
}

func (s *Service) Cancel(ctx context.Context, id string, reason string) (*invoicedomain.Invoice, error) {
	var metadata map[string]any
	if reason = strings.TrimSpace(reason); reason != "" {
		metadata = map[string]any{"reason": reason}
	}
	return s.transition(ctx, id, invoicedomain.InvoiceStatusCancelled, "", metadata,
		func(_ *gorm.DB, _ *invoicedomain.Invoice, now time.Time, fields map[string]any) error {
			fields["cancelled_at"] = now
			return nil
		})
}

func (s *Service) Refund(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusRefunded, "", nil,
		func(_ *gorm.DB, _ *invoicedomain.Invoice, now time.Time, fields map[string]any) error {
			fields["refunded_at"] = now
			return nil
		})
}

// Approve records who signed off a draft. It does not change the status.
func (s *Service) Approve(ctx context.Context, id string, approverID string) (*invoicedomain.Invoice, error) {
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return nil, invalid(errors.New("approver is required"))
	}
	return s.mutateDraftActor(ctx, id, approverID, "invoice.approved", func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		now := s.clock.Now().UTC()
		if err := s.repo.UpdateFields(ctx, tx, inv.TenantID, inv.ID, map[string]any{
			"approved_by": approverID,
			"approved_at": now,
			"updated_at":  now,
		}); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	})
}

// Delete soft deletes a draft. Issued invoices are cancelled, never deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.ErrInvalidInvoiceID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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
		if err := s.repo.SoftDelete(ctx, tx, tenantID, invoiceID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "", "invoice.deleted", inv, nil)
	})
}
