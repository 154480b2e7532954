package service

import (
	"context"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

// ListOverdue returns payable invoices whose due date has passed.
func (s *Service) ListOverdue(ctx context.Context) ([]invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOverdue(ctx, s.db, tenantID, s.clock.Now().UTC())
}

// Statistics rolls invoices up per status. Outstanding covers invoices that
// were sent to the buyer and are not yet settled.
func (s *Service) Statistics(ctx context.Context) (invoicedomain.Statistics, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return invoicedomain.Statistics{}, err
	}

	aggregates, err := s.repo.AggregateByStatus(ctx, s.db, tenantID)
	if err != nil {
		return invoicedomain.Statistics{}, err
	}
	overdue, err := s.repo.CountOverdue(ctx, s.db, tenantID, s.clock.Now().UTC())
	if err != nil {
		return invoicedomain.Statistics{}, err
	}

	stats := invoicedomain.Statistics{
		CountByStatus:     make(map[invoicedomain.InvoiceStatus]int64, len(aggregates)),
		OverdueCount:      overdue,
		TotalAmount:       decimal.Zero,
		PaidAmount:        decimal.Zero,
		OutstandingAmount: decimal.Zero,
	}
	for _, agg := range aggregates {
		stats.TotalInvoices += agg.Count
		stats.CountByStatus[agg.Status] = agg.Count
		stats.TotalAmount = stats.TotalAmount.Add(agg.Total)
		switch agg.Status {
		case invoicedomain.InvoiceStatusPaid:
			stats.PaidAmount = stats.PaidAmount.Add(agg.Total)
		case invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusViewed:
			stats.OutstandingAmount = stats.OutstandingAmount.Add(agg.Total)
		}
	}
	return stats, nil
}

func (s *Service) ListPayments(ctx context.Context, id string) ([]invoicedomain.InvoicePayment, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if _, err := s.loadWithItems(ctx, s.db, tenantID, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, s.db, tenantID, invoiceID)
}
