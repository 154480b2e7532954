package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Bucket names a compliance aggregation group.
type Bucket string

const (
	BucketStandard      Bucket = "standard"
	BucketReduced       Bucket = "reduced"
	BucketSuperReduced  Bucket = "super_reduced"
	BucketExempt        Bucket = "exempt"
	BucketReverseCharge Bucket = "reverse_charge"
)

// Buckets lists every bucket in report order.
var Buckets = []Bucket{BucketStandard, BucketReduced, BucketSuperReduced, BucketExempt, BucketReverseCharge}

// IssueCode identifies a compliance finding independent of its wording.
type IssueCode string

const (
	IssueZeroVATCollected IssueCode = "zero_vat_collected"
	IssueExcludedResults  IssueCode = "excluded_results"
	RecommendationEUOSS   IssueCode = "eu_oss_scheme"
)

type Period struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

type Summary struct {
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalVATCollected decimal.Decimal `json:"total_vat_collected"`
	TotalVATPayable   decimal.Decimal `json:"total_vat_payable"`
	NetVATPosition    decimal.Decimal `json:"net_vat_position"`
}

type BucketTotals struct {
	Sales decimal.Decimal `json:"sales"`
	VAT   decimal.Decimal `json:"vat"`
}

type Breakdown struct {
	StandardRate     BucketTotals `json:"standard_rate"`
	ReducedRate      BucketTotals `json:"reduced_rate"`
	SuperReducedRate BucketTotals `json:"super_reduced_rate"`
	Exempt           BucketTotals `json:"exempt"`
	ReverseCharge    BucketTotals `json:"reverse_charge"`
}

// Bucket returns a pointer to the totals of b, or nil for an unknown bucket.
func (b *Breakdown) Bucket(name Bucket) *BucketTotals {
	switch name {
	case BucketStandard:
		return &b.StandardRate
	case BucketReduced:
		return &b.ReducedRate
	case BucketSuperReduced:
		return &b.SuperReducedRate
	case BucketExempt:
		return &b.Exempt
	case BucketReverseCharge:
		return &b.ReverseCharge
	default:
		return nil
	}
}

type EUTransactions struct {
	TotalValue       decimal.Decimal `json:"total_value"`
	VATSaved         decimal.Decimal `json:"vat_saved"`
	TransactionCount int             `json:"transaction_count"`
}

// CreditTotals sums the issued credit notes netted out of the report.
type CreditTotals struct {
	Count int             `json:"count"`
	Sales decimal.Decimal `json:"sales"`
	VAT   decimal.Decimal `json:"vat"`
}

// Finding is an issue or recommendation surfaced to a human reviewer.
type Finding struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

type Compliance struct {
	IsCompliant     bool      `json:"is_compliant"`
	Issues          []Finding `json:"issues"`
	Recommendations []Finding `json:"recommendations"`
}

// Excluded records a transaction left out of the totals and why.
type Excluded struct {
	Index     int    `json:"index"`
	Reference string `json:"reference,omitempty"`
	Reason    string `json:"reason"`
}

// Report is the advisory VAT summary for a period.
type Report struct {
	Period           Period         `json:"period"`
	Summary          Summary        `json:"summary"`
	Breakdown        Breakdown      `json:"breakdown"`
	EUTransactions   EUTransactions `json:"eu_transactions"`
	Credits          CreditTotals   `json:"credits"`
	Compliance       Compliance     `json:"compliance"`
	TransactionCount int            `json:"transaction_count"`
	Excluded         []Excluded     `json:"excluded,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// Transaction is one calculation fed to the reporter. Reference names its
// source, such as an invoice number, for the excluded list.
type Transaction struct {
	Reference string
	Result    taxdomain.TaxCalculationResult
	// Credit marks a credit note. Its Result holds positive amounts that are
	// subtracted from the totals.
	Credit bool
	// Err is set when the source could not be turned into a result.
	Err error
}

// Snapshot is the stored tax calculation of an issued invoice.
type Snapshot struct {
	InvoiceID     snowflake.ID
	InvoiceNumber string
	TaxSnapshot   []byte
}

// CreditItem is one line of an issued credit note. Quantity and TaxAmount
// are stored negative.
type CreditItem struct {
	InvoiceID     snowflake.ID
	InvoiceNumber string
	ItemID        snowflake.ID
	Description   string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	TaxRate       decimal.Decimal
	TaxAmount     decimal.Decimal
	ExemptionType string
}

type Reporter interface {
	Generate(results []taxdomain.TaxCalculationResult, start, end time.Time) (Report, error)
	GenerateTransactions(txns []Transaction, start, end time.Time) (Report, error)
}

type Service interface {
	Generate(ctx context.Context, results []taxdomain.TaxCalculationResult, start, end time.Time) (Report, error)
	GenerateForTenant(ctx context.Context, start, end time.Time) (Report, error)
}

type Repository interface {
	ListIssuedSnapshots(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, start, end time.Time) ([]Snapshot, error)
	ListIssuedCreditItems(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, start, end time.Time) ([]CreditItem, error)
}

var (
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrInvalidTenant = errors.New("invalid_tenant")
)
