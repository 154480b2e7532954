package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	auditdomain "github.com/dixis/taxengine/internal/audit/domain"
	auditrepository "github.com/dixis/taxengine/internal/audit/repository"
	auditservice "github.com/dixis/taxengine/internal/audit/service"
	"github.com/dixis/taxengine/internal/cache"
	"github.com/dixis/taxengine/internal/clock"
	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/dixis/taxengine/internal/config"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/internal/invoice/repository"
	"github.com/dixis/taxengine/internal/invoice/sequence"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	taxservice "github.com/dixis/taxengine/internal/tax/service"
	"github.com/dixis/taxengine/internal/tenantcontext"
	"github.com/dixis/taxengine/pkg/db/pagination"
	"github.com/dixis/taxengine/pkg/validation"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testTenant = snowflake.ID(777)

var march14 = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	svc    *Service
	ledger *obsmetrics.LedgerMetrics
	ctx    context.Context
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoicePayment{},
		&invoicedomain.InvoiceSequence{},
		&auditdomain.AuditLog{},
	))
	return db
}

func newFixture(t *testing.T, allocator func(db *gorm.DB) sequence.Allocator, seedDB bool) *fixture {
	t.Helper()
	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.DefaultTaxConfig()
	ledger := obsmetrics.NewLedgerMetrics(prometheus.NewRegistry(), obsmetrics.Config{})

	var seedConn *gorm.DB
	if seedDB {
		seedConn = db
	}
	numberer, err := sequence.NewNumberer(allocator(db), seedConn, cfg.Invoice, zap.NewNop(), ledger)
	require.NoError(t, err)

	clk := clock.NewFakeClock(march14)
	svc := newService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Config:     cfg,
		Repo:       repository.Provide(),
		Numberer:   numberer,
		Calculator: taxservice.NewDefaultCalculator(cfg, zap.NewNop()),
		Validator:  validation.New(),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Repo:  auditrepository.Provide(),
		}),
		Ledger: ledger,
	})
	svc.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return &fixture{
		db:     db,
		clock:  clk,
		svc:    svc,
		ledger: ledger,
		ctx:    tenantcontext.WithTenantID(context.Background(), testTenant),
	}
}

func newDefaultFixture(t *testing.T) *fixture {
	return newFixture(t, func(db *gorm.DB) sequence.Allocator {
		return sequence.NewDatabaseAllocator(db, time.Second)
	}, true)
}

func money(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

func groceryOrder() invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{
		OrderReference: "ORD-1001",
		CreatedBy:      "producer-17",
		Buyer:          invoicedomain.BuyerInput{Name: "Μαρία Παπαδοπούλου", Country: "GR"},
		Items: []invoicedomain.ItemInput{
			{
				ProductSKU:  "VEG-TOM",
				Description: "Ντομάτες",
				Category:    "Φρέσκα Λαχανικά",
				Quantity:    decimal.NewFromInt(2),
				UnitPrice:   money("4.50"),
			},
			{
				ProductSKU:     "CRAFT-01",
				Description:    "Κεραμικό βάζο",
				Category:       "Χειροτεχνία",
				Quantity:       decimal.NewFromInt(1),
				UnitPrice:      money("10.00"),
				DiscountAmount: money("1.00"),
			},
		},
	}
}

func TestCreateInvoiceComputesTaxAndNumbers(t *testing.T) {
	f := newDefaultFixture(t)

	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)

	assert.Equal(t, "INV-202503-0001", inv.InvoiceNumber)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, invoicedomain.InvoiceTypeStandard, inv.Type)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, march14.AddDate(0, 0, 30), inv.DueDate.UTC())
	assertMoney(t, "19.00", inv.Subtotal)
	assertMoney(t, "3.57", inv.TaxAmount)
	assertMoney(t, "1.00", inv.DiscountAmount)
	assertMoney(t, "21.57", inv.TotalAmount)

	require.Len(t, inv.Items, 2)
	assertMoney(t, "13.00", inv.Items[0].TaxRate)
	assertMoney(t, "1.17", inv.Items[0].TaxAmount)
	assertMoney(t, "10.17", inv.Items[0].Total)
	assertMoney(t, "24.00", inv.Items[1].TaxRate)
	assertMoney(t, "2.40", inv.Items[1].TaxAmount)
	assertMoney(t, "11.40", inv.Items[1].Total)
	assert.Equal(t, invoicedomain.DefaultUnitOfMeasure, inv.Items[0].UnitOfMeasure)

	var snapshot taxdomain.TaxCalculationResult
	require.NoError(t, json.Unmarshal(inv.TaxSnapshot, &snapshot))
	assertMoney(t, "19.00", snapshot.Subtotal)
	assertMoney(t, "3.57", snapshot.VATAmount)
	require.Len(t, snapshot.TaxBreakdown, 2)
	assert.Equal(t, inv.Items[0].ID.String(), snapshot.TaxBreakdown[0].ItemID)

	second, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	assert.Equal(t, "INV-202503-0002", second.InvoiceNumber)
}

func TestCreateInvoiceReverseCharge(t *testing.T) {
	f := newDefaultFixture(t)
	req := groceryOrder()
	req.Buyer = invoicedomain.BuyerInput{Name: "Gemüse GmbH", IsBusiness: true, VATNumber: "DE123456789", Country: "de"}

	inv, err := f.svc.Create(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "DE", inv.BuyerCountry)
	assertMoney(t, "0.00", inv.TaxAmount)
	assertMoney(t, "18.00", inv.TotalAmount)
	for _, item := range inv.Items {
		assert.Equal(t, string(taxdomain.ExemptionReverseCharge), item.ExemptionType)
		assert.True(t, item.TaxRate.IsZero())
	}

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("target_id = ?", inv.ID.String()).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "invoice.created", logs[0].Action)
	assert.Equal(t, "producer-17", logs[0].ActorID)
	assert.Equal(t, "DE****6789", logs[0].Metadata["buyer_vat_number"])
}

func TestCreateInvoiceIslandDelivery(t *testing.T) {
	f := newDefaultFixture(t)
	req := groceryOrder()
	req.Buyer.Postcode = " 847 00 "

	inv, err := f.svc.Create(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "847 00", inv.BuyerPostcode)
	assertMoney(t, "13.00", inv.Items[0].TaxRate)
	assert.Empty(t, inv.Items[0].ExemptionType)
	assertMoney(t, "13.00", inv.Items[1].TaxRate)
	assertMoney(t, "1.30", inv.Items[1].TaxAmount)
	assert.Equal(t, string(taxdomain.ExemptionReducedVAT), inv.Items[1].ExemptionType)
	assertMoney(t, "2.47", inv.TaxAmount)
	assertMoney(t, "20.47", inv.TotalAmount)

	recalculated, err := f.svc.Recalculate(f.ctx, inv.ID.String())
	require.NoError(t, err)
	assertMoney(t, "2.47", recalculated.TaxAmount)
}

func TestCreateInvoiceRejectsInvalidInput(t *testing.T) {
	f := newDefaultFixture(t)

	_, err := f.svc.Create(context.Background(), groceryOrder())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTenant)

	req := groceryOrder()
	req.Items[1].Quantity = decimal.Zero
	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidRequest)

	req = groceryOrder()
	req.Items[0].DiscountAmount = money("50.00")
	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDiscount)

	req = groceryOrder()
	terms := 400
	req.PaymentTermsDays = &terms
	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidRequest)

	req = groceryOrder()
	req.Items = nil
	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidRequest)

	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateInvoiceRetriesNumberingConflict(t *testing.T) {
	// The memory allocator starts at zero without seeding, so its first
	// number collides with the invoice already on record.
	f := newFixture(t, func(*gorm.DB) sequence.Allocator { return sequence.NewMemoryAllocator() }, false)
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID:            snowflake.ID(1),
		TenantID:      testTenant,
		InvoiceNumber: "INV-202503-0001",
		NumberPeriod:  "202503",
		Type:          invoicedomain.InvoiceTypeStandard,
		Status:        invoicedomain.InvoiceStatusSent,
		IssueDate:     march14,
		DueDate:       march14,
		Currency:      "EUR",
		CreatedAt:     march14,
		UpdatedAt:     march14,
	}).Error)

	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	assert.Equal(t, "INV-202503-0002", inv.InvoiceNumber)
}

func TestDraftItemEditsRecalculate(t *testing.T) {
	f := newDefaultFixture(t)
	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	id := inv.ID.String()

	inv, err = f.svc.AddItem(f.ctx, id, invoicedomain.ItemInput{
		Description: "Ασπιρίνη",
		Category:    "Φάρμακα",
		Quantity:    decimal.NewFromInt(3),
		UnitPrice:   money("2.00"),
	})
	require.NoError(t, err)
	require.Len(t, inv.Items, 3)
	assertMoney(t, "6.00", inv.Items[2].TaxRate)
	assertMoney(t, "0.36", inv.Items[2].TaxAmount)
	assertMoney(t, "25.00", inv.Subtotal)
	assertMoney(t, "3.93", inv.TaxAmount)
	assertMoney(t, "27.93", inv.TotalAmount)

	qty := decimal.NewFromInt(4)
	inv, err = f.svc.UpdateItem(f.ctx, id, inv.Items[0].ID.String(), invoicedomain.UpdateItemRequest{Quantity: &qty})
	require.NoError(t, err)
	assertMoney(t, "18.00", lineAmount(inv.Items[0]))
	assertMoney(t, "2.34", inv.Items[0].TaxAmount)
	assertMoney(t, "34.00", inv.Subtotal)
	assertMoney(t, "5.10", inv.TaxAmount)

	inv, err = f.svc.RemoveItem(f.ctx, id, inv.Items[1].ID.String())
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	assertMoney(t, "24.00", inv.Subtotal)
	assertMoney(t, "2.70", inv.TaxAmount)
	assertMoney(t, "0.00", inv.DiscountAmount)
	assertMoney(t, "26.70", inv.TotalAmount)

	var snapshot taxdomain.TaxCalculationResult
	require.NoError(t, json.Unmarshal(inv.TaxSnapshot, &snapshot))
	assertMoney(t, "24.00", snapshot.Subtotal)

	_, err = f.svc.RemoveItem(f.ctx, id, "123")
	assert.ErrorIs(t, err, invoicedomain.ErrItemNotFound)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := newDefaultFixture(t)
	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)

	first, err := f.svc.Recalculate(f.ctx, inv.ID.String())
	require.NoError(t, err)
	second, err := f.svc.Recalculate(f.ctx, inv.ID.String())
	require.NoError(t, err)

	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
	assert.True(t, first.TaxAmount.Equal(second.TaxAmount))
	assert.True(t, inv.TotalAmount.Equal(second.TotalAmount))
}

func TestVerifyTotalsDetectsDrift(t *testing.T) {
	inv := &invoicedomain.Invoice{
		ID:             snowflake.ID(9),
		Subtotal:       money("9.00"),
		TaxAmount:      money("1.17"),
		DiscountAmount: decimal.Zero,
		TotalAmount:    money("10.18"),
		Items: []invoicedomain.InvoiceItem{{
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: money("4.50"),
			TaxRate:   money("13"),
			TaxAmount: money("1.17"),
			Total:     money("10.17"),
		}},
	}

	err := verifyTotals(inv)
	require.ErrorIs(t, err, invoicedomain.ErrInvariantViolation)
	var violation *invoicedomain.InvariantViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "total_amount", violation.Field)
	assertMoney(t, "10.17", violation.Expected)

	inv.TotalAmount = money("10.17")
	assert.NoError(t, verifyTotals(inv))

	inv.Items[0].TaxAmount = money("1.16")
	err = verifyTotals(inv)
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "items[0].tax_amount", violation.Field)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newDefaultFixture(t)
	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	id := inv.ID.String()

	_, err = f.svc.Refund(f.ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	inv, err = f.svc.MarkSent(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, inv.Status)
	require.NotNil(t, inv.SentAt)

	_, err = f.svc.AddItem(f.ctx, id, invoicedomain.ItemInput{Description: "x", Quantity: decimal.NewFromInt(1), UnitPrice: money("1")})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotEditable)

	f.clock.Advance(time.Hour)
	inv, err = f.svc.MarkViewed(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, inv.ViewedAt)

	_, err = f.svc.MarkPaid(f.ctx, id, invoicedomain.MarkPaidRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidRequest)

	inv, err = f.svc.MarkPaid(f.ctx, id, invoicedomain.MarkPaidRequest{PaymentMethod: "bank_transfer", PaymentReference: "TRX-42"})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, "bank_transfer", inv.PaymentMethod)
	require.NotNil(t, inv.PaidAt)

	payments, err := f.svc.ListPayments(f.ctx, id)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assertMoney(t, "21.57", payments[0].Amount)
	assert.Equal(t, invoicedomain.PaymentStatusCompleted, payments[0].Status)

	_, err = f.svc.Cancel(f.ctx, id, "late")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
	assert.True(t, inv.Status.Terminal())
}

func TestTransitionInvalidatesReportCache(t *testing.T) {
	f := newDefaultFixture(t)
	reports := cache.NewReportCache(time.Minute)
	f.svc.reports = reports
	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	reports.Set(testTenant, start, end, compliancedomain.Report{})
	reports.Set(snowflake.ID(1), start, end, compliancedomain.Report{})

	_, err = f.svc.MarkSent(f.ctx, inv.ID.String())
	require.NoError(t, err)

	_, ok := reports.Get(testTenant, start, end)
	assert.False(t, ok)
	_, ok = reports.Get(snowflake.ID(1), start, end)
	assert.True(t, ok)
}

func TestApproveAndDeleteDraft(t *testing.T) {
	f := newDefaultFixture(t)
	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	id := inv.ID.String()

	_, err = f.svc.Approve(f.ctx, id, " ")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidRequest)

	inv, err = f.svc.Approve(f.ctx, id, "accountant-3")
	require.NoError(t, err)
	assert.Equal(t, "accountant-3", inv.ApprovedBy)
	require.NotNil(t, inv.ApprovedAt)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)

	require.NoError(t, f.svc.Delete(f.ctx, id))
	_, err = f.svc.Get(f.ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	var kept int64
	require.NoError(t, f.db.Unscoped().Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).Count(&kept).Error)
	assert.Equal(t, int64(1), kept)

	sent, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	_, err = f.svc.MarkSent(f.ctx, sent.ID.String())
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Delete(f.ctx, sent.ID.String()), invoicedomain.ErrInvoiceNotEditable)
}

func TestCreateCreditNote(t *testing.T) {
	f := newDefaultFixture(t)
	inv, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)

	_, err = f.svc.CreateCreditNote(f.ctx, inv.ID.String(), invoicedomain.CreditNoteRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrCreditNoteNotAllowed)

	_, err = f.svc.MarkSent(f.ctx, inv.ID.String())
	require.NoError(t, err)

	full, err := f.svc.CreateCreditNote(f.ctx, inv.ID.String(), invoicedomain.CreditNoteRequest{})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceTypeCreditNote, full.Type)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, full.Status)
	assert.Equal(t, "INV-202503-0002", full.InvoiceNumber)
	require.NotNil(t, full.OriginalInvoiceID)
	assert.Equal(t, inv.ID, *full.OriginalInvoiceID)
	assertMoney(t, "-19.00", full.Subtotal)
	assertMoney(t, "-3.57", full.TaxAmount)
	assertMoney(t, "-1.00", full.DiscountAmount)
	assertMoney(t, "-21.57", full.TotalAmount)

	one := decimal.NewFromInt(1)
	partial, err := f.svc.CreateCreditNote(f.ctx, inv.ID.String(), invoicedomain.CreditNoteRequest{
		Lines: []invoicedomain.CreditNoteLine{{ItemID: inv.Items[0].ID.String(), Quantity: &one}},
	})
	require.NoError(t, err)
	require.Len(t, partial.Items, 1)
	assertMoney(t, "-4.50", partial.Subtotal)
	assertMoney(t, "-0.59", partial.TaxAmount)
	assertMoney(t, "-5.09", partial.TotalAmount)

	three := decimal.NewFromInt(3)
	_, err = f.svc.CreateCreditNote(f.ctx, inv.ID.String(), invoicedomain.CreditNoteRequest{
		Lines: []invoicedomain.CreditNoteLine{{ItemID: inv.Items[0].ID.String(), Quantity: &three}},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)

	_, err = f.svc.AddItem(f.ctx, full.ID.String(), invoicedomain.ItemInput{Description: "x", Quantity: one, UnitPrice: money("1")})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotEditable)
}

func TestOverdueAndStatistics(t *testing.T) {
	f := newDefaultFixture(t)

	sent, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	_, err = f.svc.MarkSent(f.ctx, sent.ID.String())
	require.NoError(t, err)

	paid, err := f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(f.ctx, paid.ID.String(), invoicedomain.MarkPaidRequest{PaymentMethod: "card"})
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, groceryOrder())
	require.NoError(t, err)

	overdue, err := f.svc.ListOverdue(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.clock.Advance(31 * 24 * time.Hour)
	overdue, err = f.svc.ListOverdue(f.ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	for _, inv := range overdue {
		assert.True(t, inv.IsOverdue(f.clock.Now()))
	}

	stats, err := f.svc.Statistics(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalInvoices)
	assert.Equal(t, int64(1), stats.CountByStatus[invoicedomain.InvoiceStatusSent])
	assert.Equal(t, int64(1), stats.CountByStatus[invoicedomain.InvoiceStatusPaid])
	assert.Equal(t, int64(1), stats.CountByStatus[invoicedomain.InvoiceStatusDraft])
	assert.Equal(t, int64(2), stats.OverdueCount)
	assertMoney(t, "64.71", stats.TotalAmount)
	assertMoney(t, "21.57", stats.PaidAmount)
	assertMoney(t, "21.57", stats.OutstandingAmount)
}

func TestListPaginates(t *testing.T) {
	f := newDefaultFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(f.ctx, groceryOrder())
		require.NoError(t, err)
	}

	page, err := f.svc.List(f.ctx, invoicedomain.ListInvoiceRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 2)
	require.True(t, page.PageInfo.HasMore)
	assert.Equal(t, "INV-202503-0003", page.Invoices[0].InvoiceNumber)

	next, err := f.svc.List(f.ctx, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, next.Invoices, 1)
	assert.False(t, next.PageInfo.HasMore)
	assert.Equal(t, "INV-202503-0001", next.Invoices[0].InvoiceNumber)

	other := tenantcontext.WithTenantID(context.Background(), snowflake.ID(778))
	empty, err := f.svc.List(other, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, empty.Invoices)
}
