// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InvoiceType distinguishes regular invoices from corrective documents.
type InvoiceType string

const (
	InvoiceTypeStandard   InvoiceType = "standard"
	InvoiceTypeProforma   InvoiceType = "proforma"
	InvoiceTypeCreditNote InvoiceType = "credit_note"
	InvoiceTypeDebitNote  InvoiceType = "debit_note"
)

func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceTypeStandard, InvoiceTypeProforma, InvoiceTypeCreditNote, InvoiceTypeDebitNote:
		return true
	default:
		return false
	}
}

const (
	DefaultUnitOfMeasure = "τεμ."
	DefaultCurrency      = "EUR"
)

// Invoice is the persisted header of an issued or draft invoice. Monetary
// columns are kept consistent with the items by Recalculate only.
type Invoice struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_invoices_tenant_number,priority:1" json:"tenant_id"`
	InvoiceNumber     string          `gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_tenant_number,priority:2" json:"invoice_number"`
	NumberPeriod      string          `gorm:"type:varchar(6);not null;index" json:"-"`
	OrderReference    string          `gorm:"type:varchar(128);index" json:"order_reference,omitempty"`
	Type              InvoiceType     `gorm:"type:varchar(32);not null;default:'standard'" json:"type"`
	Status            InvoiceStatus   `gorm:"type:varchar(32);not null;default:'draft';index" json:"status"`
	IssueDate         time.Time       `gorm:"not null;index" json:"issue_date"`
	DueDate           time.Time       `gorm:"not null;index" json:"due_date"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	ViewedAt          *time.Time      `json:"viewed_at,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty"`
	Subtotal          decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"subtotal"`
	TaxAmount         decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"tax_amount"`
	DiscountAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"discount_amount"`
	TotalAmount       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"total_amount"`
	Currency          string          `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentTermsDays  int             `gorm:"not null;default:30" json:"payment_terms_days"`
	PaymentMethod     string          `gorm:"type:varchar(64)" json:"payment_method,omitempty"`
	PaymentReference  string          `gorm:"type:varchar(128)" json:"payment_reference,omitempty"`
	Notes             string          `gorm:"type:text" json:"notes,omitempty"`
	BuyerName         string          `gorm:"type:varchar(255)" json:"buyer_name,omitempty"`
	BuyerIsBusiness   bool            `gorm:"not null;default:false" json:"buyer_is_business"`
	BuyerVATNumber    string          `gorm:"type:varchar(32)" json:"buyer_vat_number,omitempty"`
	BuyerCountry      string          `gorm:"type:varchar(2)" json:"buyer_country,omitempty"`
	BuyerPostcode     string          `gorm:"type:varchar(16)" json:"buyer_postcode,omitempty"`
	TaxSnapshot       datatypes.JSON  `gorm:"type:jsonb" json:"tax_snapshot,omitempty"`
	CreatedBy         string          `gorm:"type:varchar(128)" json:"created_by,omitempty"`
	ApprovedBy        string          `gorm:"type:varchar(128)" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	OriginalInvoiceID *snowflake.ID   `gorm:"index" json:"original_invoice_id,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`

	Items []InvoiceItem `gorm:"-" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// IsOverdue is derived, never stored: a payable invoice past its due date.
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.Status.Payable() && i.DueDate.Before(now)
}

// InvoiceItem is one persisted line. Total = line amount - discount + tax.
type InvoiceItem struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	InvoiceID      snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Position       int             `gorm:"not null;default:0" json:"position"`
	ProductSKU     string          `gorm:"type:varchar(64)" json:"product_sku,omitempty"`
	Description    string          `gorm:"type:text;not null" json:"description"`
	Category       string          `gorm:"type:varchar(128)" json:"category,omitempty"`
	TaxCategory    string          `gorm:"type:varchar(16);not null;default:'standard'" json:"tax_category"`
	UnitOfMeasure  string          `gorm:"type:varchar(16);not null" json:"unit_of_measure"`
	Quantity       decimal.Decimal `gorm:"type:numeric(14,3);not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"discount_amount"`
	TaxRate        decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"tax_rate"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"tax_amount"`
	Total          decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"total"`
	ExemptionType  string          `gorm:"type:varchar(32)" json:"exemption_type,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// PaymentStatus of a recorded payment.
type PaymentStatus string

const PaymentStatusCompleted PaymentStatus = "completed"

// InvoicePayment records the settlement that moved an invoice to paid.
type InvoicePayment struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	InvoiceID     snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Method        string          `gorm:"type:varchar(64);not null" json:"method"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	TransactionID string          `gorm:"type:varchar(128)" json:"transaction_id,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	Status        PaymentStatus   `gorm:"type:varchar(32);not null" json:"status"`
	PaidAt        time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (InvoicePayment) TableName() string { return "invoice_payments" }

// InvoiceSequence is the per tenant and month counter behind invoice numbers.
type InvoiceSequence struct {
	TenantID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Period    string       `gorm:"primaryKey;type:varchar(6)"`
	LastValue int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
