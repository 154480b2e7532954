package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(invoice).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Invoice, error) {
	return r.first(db.WithContext(ctx), tenantID, id)
}

// LockByID reads the invoice with SELECT ... FOR UPDATE where the dialect supports it.
func (r *repo) LockByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Invoice, error) {
	stmt := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(stmt, tenantID, id)
}

func (r *repo) first(stmt *gorm.DB, tenantID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := stmt.Where("tenant_id = ? AND id = ?", tenantID, id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, tenantID, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("position asc, id asc").
		Find(&items).Error
	return items, err
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, tenantID, invoiceID, itemID snowflake.ID) (*domain.InvoiceItem, error) {
	var item domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ? AND id = ?", tenantID, invoiceID, itemID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) SaveItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	for i := range items {
		if err := db.WithContext(ctx).Save(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, tenantID, invoiceID, itemID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ? AND id = ?", tenantID, invoiceID, itemID).
		Delete(&domain.InvoiceItem{}).Error
}

// UpdateFields expects the caller to have locked the row already.
func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(fields).Error
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error {
	res := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&domain.Invoice{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		stmt = stmt.Where("type = ?", *filter.Type)
	}
	if filter.BuyerVAT != "" {
		stmt = stmt.Where("buyer_vat_number = ?", filter.BuyerVAT)
	}
	if filter.OverdueAt != nil {
		stmt = overdue(stmt, *filter.OverdueAt)
	}
	if filter.IssuedFrom != nil {
		stmt = stmt.Where("issue_date >= ?", *filter.IssuedFrom)
	}
	if filter.IssuedTo != nil {
		stmt = stmt.Where("issue_date < ?", *filter.IssuedTo)
	}

	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, err
	}

	var invoices []*domain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, now time.Time) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := overdue(db.WithContext(ctx).Where("tenant_id = ?", tenantID), now).
		Order("due_date asc, id asc").
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) CountOverdue(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, now time.Time) (int64, error) {
	var count int64
	err := overdue(db.WithContext(ctx).Model(&domain.Invoice{}).Where("tenant_id = ?", tenantID), now).
		Count(&count).Error
	return count, err
}

func overdue(stmt *gorm.DB, now time.Time) *gorm.DB {
	return stmt.
		Where("status IN ?", []domain.InvoiceStatus{
			domain.InvoiceStatusDraft,
			domain.InvoiceStatusSent,
			domain.InvoiceStatusViewed,
		}).
		Where("due_date < ?", now)
}

type statusRow struct {
	Status domain.InvoiceStatus
	Count  int64
	Total  decimal.NullDecimal
}

func (r *repo) AggregateByStatus(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.StatusAggregate, error) {
	var rows []statusRow
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Order("status asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.StatusAggregate, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.StatusAggregate{
			Status: row.Status,
			Count:  row.Count,
			Total:  row.Total.Decimal,
		})
	}
	return out, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.InvoicePayment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, tenantID, invoiceID snowflake.ID) ([]domain.InvoicePayment, error) {
	var payments []domain.InvoicePayment
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("paid_at asc, id asc").
		Find(&payments).Error
	return payments, err
}
