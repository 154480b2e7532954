package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"gorm.io/gorm"
)

var (
	reportableStatuses = []invoicedomain.InvoiceStatus{
		invoicedomain.InvoiceStatusSent,
		invoicedomain.InvoiceStatusViewed,
		invoicedomain.InvoiceStatusPaid,
	}
	reportableTypes = []invoicedomain.InvoiceType{
		invoicedomain.InvoiceTypeStandard,
		invoicedomain.InvoiceTypeDebitNote,
	}
)

type repo struct{}

func Provide() compliancedomain.Repository {
	return &repo{}
}

// ListIssuedSnapshots returns the tax snapshots of issued, non-deleted
// invoices with an issue date in [start, end).
func (r *repo) ListIssuedSnapshots(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, start, end time.Time) ([]compliancedomain.Snapshot, error) {
	var rows []compliancedomain.Snapshot
	err := db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Select("id AS invoice_id, invoice_number, tax_snapshot").
		Where("tenant_id = ?", tenantID).
		Where("status IN ?", reportableStatuses).
		Where("type IN ?", reportableTypes).
		Where("issue_date >= ? AND issue_date < ?", start.UTC(), end.UTC()).
		Order("issue_date asc, id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListIssuedCreditItems returns the lines of issued credit notes with an
// issue date in [start, end), grouped by credit note.
func (r *repo) ListIssuedCreditItems(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, start, end time.Time) ([]compliancedomain.CreditItem, error) {
	var rows []compliancedomain.CreditItem
	err := db.WithContext(ctx).
		Table("invoice_items AS ii").
		Select("inv.id AS invoice_id, inv.invoice_number, ii.id AS item_id, ii.description, ii.quantity, ii.unit_price, ii.tax_rate, ii.tax_amount, ii.exemption_type").
		Joins("JOIN invoices AS inv ON inv.id = ii.invoice_id AND inv.tenant_id = ii.tenant_id").
		Where("inv.tenant_id = ?", tenantID).
		Where("inv.deleted_at IS NULL").
		Where("inv.status IN ?", reportableStatuses).
		Where("inv.type = ?", invoicedomain.InvoiceTypeCreditNote).
		Where("inv.issue_date >= ? AND inv.issue_date < ?", start.UTC(), end.UTC()).
		Order("inv.issue_date asc, inv.id asc, ii.position asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
