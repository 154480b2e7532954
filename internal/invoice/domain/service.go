package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service is the invoice ledger. The tenant is always taken from the context.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	UpdateDraft(ctx context.Context, id string, req UpdateDraftRequest) (*Invoice, error)

	AddItem(ctx context.Context, id string, item ItemInput) (*Invoice, error)
	UpdateItem(ctx context.Context, id, itemID string, req UpdateItemRequest) (*Invoice, error)
	RemoveItem(ctx context.Context, id, itemID string) (*Invoice, error)
	Recalculate(ctx context.Context, id string) (*Invoice, error)

	MarkSent(ctx context.Context, id string) (*Invoice, error)
	MarkViewed(ctx context.Context, id string) (*Invoice, error)
	MarkPaid(ctx context.Context, id string, req MarkPaidRequest) (*Invoice, error)
	Cancel(ctx context.Context, id string, reason string) (*Invoice, error)
	Refund(ctx context.Context, id string) (*Invoice, error)
	Approve(ctx context.Context, id string, approverID string) (*Invoice, error)
	Delete(ctx context.Context, id string) error

	CreateCreditNote(ctx context.Context, originalID string, req CreditNoteRequest) (*Invoice, error)
	ListOverdue(ctx context.Context) ([]Invoice, error)
	Statistics(ctx context.Context) (Statistics, error)
	ListPayments(ctx context.Context, id string) ([]InvoicePayment, error)
}

// BuyerInput is the customer the invoice is issued to.
type BuyerInput struct {
	Name       string `json:"name" validate:"max=255"`
	IsBusiness bool   `json:"is_business"`
	VATNumber  string `json:"vat_number" validate:"max=32"`
	Country    string `json:"country" validate:"omitempty,len=2,alpha"`
	Postcode   string `json:"postcode" validate:"max=16"`
}

// ItemInput is one order line fed to the tax calculator.
type ItemInput struct {
	ProductSKU     string          `json:"product_sku" validate:"max=64"`
	Description    string          `json:"description" validate:"required,max=1000"`
	Category       string          `json:"category" validate:"max=128"`
	TaxCategory    string          `json:"tax_category" validate:"omitempty,oneof=standard reduced exempt"`
	UnitOfMeasure  string          `json:"unit_of_measure" validate:"max=16"`
	Quantity       decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price" validate:"gte=0"`
	DiscountAmount decimal.Decimal `json:"discount_amount" validate:"gte=0"`
}

type CreateInvoiceRequest struct {
	OrderReference   string      `json:"order_reference" validate:"max=128"`
	Type             InvoiceType `json:"type" validate:"omitempty,oneof=standard proforma debit_note"`
	IssueDate        *time.Time  `json:"issue_date"`
	PaymentTermsDays *int        `json:"payment_terms_days" validate:"omitempty,gte=0,lte=365"`
	Currency         string      `json:"currency" validate:"omitempty,len=3"`
	Notes            string      `json:"notes" validate:"max=1000"`
	CreatedBy        string      `json:"created_by" validate:"max=128"`
	Buyer            BuyerInput  `json:"buyer"`
	Items            []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// UpdateDraftRequest carries the header fields editable while in draft.
type UpdateDraftRequest struct {
	PaymentTermsDays *int       `json:"payment_terms_days" validate:"omitempty,gte=0,lte=365"`
	DueDate          *time.Time `json:"due_date"`
	Notes            *string    `json:"notes" validate:"omitempty,max=1000"`
}

type UpdateItemRequest struct {
	Description    *string          `json:"description" validate:"omitempty,min=1,max=1000"`
	Quantity       *decimal.Decimal `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice      *decimal.Decimal `json:"unit_price" validate:"omitempty,gte=0"`
	DiscountAmount *decimal.Decimal `json:"discount_amount" validate:"omitempty,gte=0"`
}

type MarkPaidRequest struct {
	PaymentMethod    string     `json:"payment_method" validate:"required,max=64"`
	PaymentReference string     `json:"payment_reference" validate:"max=128"`
	PaidAt           *time.Time `json:"paid_at"`
	Notes            string     `json:"notes" validate:"max=1000"`
}

// CreditNoteLine selects an original item, optionally crediting part of its quantity.
type CreditNoteLine struct {
	ItemID   string           `json:"item_id" validate:"required"`
	Quantity *decimal.Decimal `json:"quantity" validate:"omitempty,gt=0"`
}

type CreditNoteRequest struct {
	Lines     []CreditNoteLine `json:"lines" validate:"dive"`
	CreatedBy string           `json:"created_by" validate:"max=128"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status     *InvoiceStatus
	Type       *InvoiceType
	BuyerVAT   string
	Overdue    bool
	IssuedFrom *time.Time
	IssuedTo   *time.Time
}

type ListInvoiceResponse struct {
	Invoices []Invoice            `json:"invoices"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// ListInvoiceFilter is the repository form of ListInvoiceRequest.
type ListInvoiceFilter struct {
	Status     *InvoiceStatus
	Type       *InvoiceType
	BuyerVAT   string
	OverdueAt  *time.Time
	IssuedFrom *time.Time
	IssuedTo   *time.Time
}

// StatusAggregate is one row of the per status rollup.
type StatusAggregate struct {
	Status InvoiceStatus
	Count  int64
	Total  decimal.Decimal
}

type Statistics struct {
	TotalInvoices     int64                   `json:"total_invoices"`
	CountByStatus     map[InvoiceStatus]int64 `json:"count_by_status"`
	OverdueCount      int64                   `json:"overdue_count"`
	TotalAmount       decimal.Decimal         `json:"total_amount"`
	PaidAmount        decimal.Decimal         `json:"paid_amount"`
	OutstandingAmount decimal.Decimal         `json:"outstanding_amount"`
}

// Repository persists invoices. Methods run on the given db so the service
// controls transaction scope.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	LockByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, tenantID, invoiceID snowflake.ID) ([]InvoiceItem, error)
	FindItem(ctx context.Context, db *gorm.DB, tenantID, invoiceID, itemID snowflake.ID) (*InvoiceItem, error)
	SaveItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, tenantID, invoiceID, itemID snowflake.ID) error
	UpdateFields(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, fields map[string]any) error
	SoftDelete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	ListOverdue(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, now time.Time) ([]Invoice, error)
	AggregateByStatus(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]StatusAggregate, error)
	CountOverdue(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, now time.Time) (int64, error)
	InsertPayment(ctx context.Context, db *gorm.DB, payment *InvoicePayment) error
	ListPayments(ctx context.Context, db *gorm.DB, tenantID, invoiceID snowflake.ID) ([]InvoicePayment, error)
}
