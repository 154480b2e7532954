package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	auditdomain "github.com/dixis/taxengine/internal/audit/domain"
	"github.com/dixis/taxengine/internal/cache"
	"github.com/dixis/taxengine/internal/clock"
	"github.com/dixis/taxengine/internal/config"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/internal/invoice/format"
	"github.com/dixis/taxengine/internal/invoice/sequence"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/dixis/taxengine/internal/tenantcontext"
	"github.com/dixis/taxengine/pkg/db"
	"github.com/dixis/taxengine/pkg/db/pagination"
	"github.com/dixis/taxengine/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.TaxConfig
	Repo       invoicedomain.Repository
	Numberer   *sequence.Numberer
	Calculator taxdomain.Calculator
	Validator  *validation.Validator
	AuditSvc   auditdomain.Service       `optional:"true"`
	Metrics    *obsmetrics.Metrics       `optional:"true"`
	Ledger     *obsmetrics.LedgerMetrics `optional:"true"`
	Reports    cache.ReportCache         `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.TaxConfig
	repo       invoicedomain.Repository
	numberer   *sequence.Numberer
	calculator taxdomain.Calculator
	validator  *validation.Validator
	auditSvc   auditdomain.Service
	metrics    *obsmetrics.Metrics
	ledger     *obsmetrics.LedgerMetrics
	reports    cache.ReportCache

	newBackOff func() backoff.BackOff
}

func NewService(p ServiceParam) invoicedomain.Service {
	return newService(p)
}

func newService(p ServiceParam) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		repo:       p.Repo,
		numberer:   p.Numberer,
		calculator: p.Calculator,
		validator:  p.Validator,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
		ledger:     p.Ledger,
		reports:    p.Reports,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

// draft is an invoice with its items before it is numbered and stored.
type draft struct {
	invoice invoicedomain.Invoice
	items   []invoicedomain.InvoiceItem
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	if err := checkItems(req.Items); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	issueDate := now
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}
	terms := s.cfg.Invoice.PaymentTermsDays
	if req.PaymentTermsDays != nil {
		terms = *req.PaymentTermsDays
	}
	invoiceType := req.Type
	if invoiceType == "" {
		invoiceType = invoicedomain.InvoiceTypeStandard
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}

	d := draft{
		invoice: invoicedomain.Invoice{
			ID:               s.genID.Generate(),
			TenantID:         tenantID,
			OrderReference:   strings.TrimSpace(req.OrderReference),
			Type:             invoiceType,
			Status:           invoicedomain.InvoiceStatusDraft,
			IssueDate:        issueDate,
			DueDate:          issueDate.AddDate(0, 0, terms),
			Currency:         currency,
			PaymentTermsDays: terms,
			Notes:            strings.TrimSpace(req.Notes),
			BuyerName:        strings.TrimSpace(req.Buyer.Name),
			BuyerIsBusiness:  req.Buyer.IsBusiness,
			BuyerVATNumber:   strings.TrimSpace(req.Buyer.VATNumber),
			BuyerCountry:     strings.ToUpper(strings.TrimSpace(req.Buyer.Country)),
			BuyerPostcode:    strings.TrimSpace(req.Buyer.Postcode),
			CreatedBy:        strings.TrimSpace(req.CreatedBy),
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}
	for i, input := range req.Items {
		item := s.newItem(tenantID, i, input, now)
		item.ID = s.genID.Generate()
		item.InvoiceID = d.invoice.ID
		d.items = append(d.items, item)
	}
	if err := s.applyTax(ctx, &d.invoice, d.items); err != nil {
		return nil, err
	}

	start := time.Now()
	created, err := s.insertWithRetry(ctx, d)
	if err != nil {
		s.metrics.ObserveInvoiceCreate(ctx, time.Since(start), obsmetrics.OutcomeFailed)
		return nil, err
	}
	s.metrics.ObserveInvoiceCreate(ctx, time.Since(start), obsmetrics.OutcomeSuccess)
	s.metrics.RecordInvoiceEvent(ctx, "created")

	s.log.Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("invoice_number", created.InvoiceNumber),
		zap.String("type", string(created.Type)),
		zap.String("total_amount", created.TotalAmount.StringFixed(2)),
	)
	return created, nil
}

// insertWithRetry numbers and stores d. A numbering conflict burns the
// allocated number and restarts with a fresh one.
func (s *Service) insertWithRetry(ctx context.Context, d draft) (*invoicedomain.Invoice, error) {
	retries := s.cfg.Invoice.CreateRetries
	if retries < 0 {
		retries = 0
	}

	var created *invoicedomain.Invoice
	attempt := 0
	operation := func() error {
		attempt++
		inv, err := s.insertOnce(ctx, d)
		if err != nil {
			if errors.Is(err, invoicedomain.ErrNumberingConflict) {
				s.log.Warn("retrying invoice creation after numbering conflict",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		created = inv
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(retries)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) insertOnce(ctx context.Context, d draft) (*invoicedomain.Invoice, error) {
	number, err := s.numberer.NextNumber(ctx, d.invoice.TenantID, d.invoice.IssueDate)
	if err != nil {
		return nil, err
	}

	// Ids are reused across attempts; a failed attempt rolled back its rows.
	invoice := d.invoice
	invoice.InvoiceNumber = number
	invoice.NumberPeriod = format.PeriodKey(invoice.IssueDate)

	items := make([]invoicedomain.InvoiceItem, len(d.items))
	copy(items, d.items)

	var created *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			if db.IsDuplicateKeyErr(err) {
				s.ledger.IncNumberingConflict(s.numberer.Backend(), db.ReasonUniqueViolation)
				return &invoicedomain.NumberingConflictError{Key: number, Reason: db.ReasonUniqueViolation, Err: err}
			}
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		recalculated, err := s.recalculate(ctx, tx, invoice.TenantID, invoice.ID)
		if err != nil {
			return err
		}
		if err := s.audit(ctx, tx, invoice.CreatedBy, "invoice.created", recalculated, map[string]any{
			"type": string(recalculated.Type),
		}); err != nil {
			return err
		}
		created = recalculated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) newItem(tenantID snowflake.ID, position int, input invoicedomain.ItemInput, now time.Time) invoicedomain.InvoiceItem {
	unit := strings.TrimSpace(input.UnitOfMeasure)
	if unit == "" {
		unit = invoicedomain.DefaultUnitOfMeasure
	}
	taxCategory := strings.TrimSpace(input.TaxCategory)
	if taxCategory == "" {
		taxCategory = string(taxdomain.TaxCategoryStandard)
	}
	return invoicedomain.InvoiceItem{
		TenantID:       tenantID,
		Position:       position,
		ProductSKU:     strings.TrimSpace(input.ProductSKU),
		Description:    strings.TrimSpace(input.Description),
		Category:       strings.TrimSpace(input.Category),
		TaxCategory:    taxCategory,
		UnitOfMeasure:  unit,
		Quantity:       input.Quantity,
		UnitPrice:      input.UnitPrice,
		DiscountAmount: input.DiscountAmount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// applyTax runs the tax calculator over items, stamps each item's effective
// rate and exemption, and stores the calculation as the invoice snapshot.
func (s *Service) applyTax(ctx context.Context, invoice *invoicedomain.Invoice, items []invoicedomain.InvoiceItem) error {
	taxable := make([]taxdomain.TaxableItem, len(items))
	for i, item := range items {
		taxable[i] = taxdomain.TaxableItem{
			ID:          item.ID.String(),
			Name:        item.Description,
			Price:       item.UnitPrice,
			Quantity:    item.Quantity,
			Category:    item.Category,
			TaxCategory: taxdomain.TaxCategory(item.TaxCategory),
		}
	}

	result, err := s.calculator.Calculate(ctx, taxable, buyerOf(invoice))
	if err != nil {
		if errors.Is(err, taxdomain.ErrInvalidInput) {
			return invalid(err)
		}
		return err
	}

	for i, entry := range result.TaxBreakdown {
		items[i].TaxRate = entry.VATRate
		items[i].ExemptionType = ""
		if entry.Exemption != nil {
			items[i].ExemptionType = string(entry.Exemption.Type)
		}
	}

	snapshot, err := json.Marshal(result)
	if err != nil {
		return err
	}
	invoice.TaxSnapshot = datatypes.JSON(snapshot)
	return nil
}

func buyerOf(invoice *invoicedomain.Invoice) taxdomain.Buyer {
	return taxdomain.Buyer{
		IsBusiness: invoice.BuyerIsBusiness,
		VATNumber:  invoice.BuyerVATNumber,
		Country:    invoice.BuyerCountry,
		Postcode:   invoice.BuyerPostcode,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	return s.loadWithItems(ctx, s.db, tenantID, invoiceID)
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	filter := invoicedomain.ListInvoiceFilter{
		Status:     req.Status,
		Type:       req.Type,
		BuyerVAT:   strings.TrimSpace(req.BuyerVAT),
		IssuedFrom: req.IssuedFrom,
		IssuedTo:   req.IssuedTo,
	}
	if req.Overdue {
		now := s.clock.Now().UTC()
		filter.OverdueAt = &now
	}

	items, err := s.repo.List(ctx, s.db, tenantID, filter, req.Pagination)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, req.Pagination.Size(), func(inv *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{Invoices: invoices, PageInfo: pageInfo}, nil
}

func (s *Service) UpdateDraft(ctx context.Context, id string, req invoicedomain.UpdateDraftRequest) (*invoicedomain.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err)
	}
	return s.mutateDraft(ctx, id, "invoice.updated", func(tx *gorm.DB, inv *invoicedomain.Invoice) (map[string]any, error) {
		fields := map[string]any{}
		if req.PaymentTermsDays != nil {
			fields["payment_terms_days"] = *req.PaymentTermsDays
			fields["due_date"] = inv.IssueDate.AddDate(0, 0, *req.PaymentTermsDays)
		}
		if req.DueDate != nil {
			due := req.DueDate.UTC()
			if due.Before(inv.IssueDate) {
				return nil, invalid(errors.New("due_date is before issue_date"))
			}
			fields["due_date"] = due
		}
		if req.Notes != nil {
			fields["notes"] = strings.TrimSpace(*req.Notes)
		}
		if len(fields) == 0 {
			return nil, nil
		}
		fields["updated_at"] = s.clock.Now().UTC()
		if err := s.repo.UpdateFields(ctx, tx, inv.TenantID, inv.ID, fields); err != nil {
			return nil, err
		}
		return map[string]any{"fields": fieldNames(fields)}, nil
	})
}

func (s *Service) loadWithItems(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, conn, tenantID, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	items, err := s.repo.ListItems(ctx, conn, tenantID, id)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return invoice, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, actorID, action string, invoice *invoicedomain.Invoice, extra map[string]any) error {
	if s.auditSvc == nil || invoice == nil {
		return nil
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"status":         string(invoice.Status),
		"currency":       invoice.Currency,
		"total_amount":   invoice.TotalAmount.StringFixed(2),
	}
	if invoice.BuyerVATNumber != "" {
		metadata["buyer_vat_number"] = invoice.BuyerVATNumber
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		ActorID:    actorID,
		Action:     action,
		TargetType: "invoice",
		TargetID:   invoice.ID.String(),
		Metadata:   metadata,
	})
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return 0, invoicedomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", invoicedomain.ErrInvalidRequest, err)
}

// checkItems enforces what struct tags cannot express on decimals.
func checkItems(items []invoicedomain.ItemInput) error {
	for i, item := range items {
		if err := checkAmounts(item.Quantity, item.UnitPrice, item.DiscountAmount); err != nil {
			return invalid(fmt.Errorf("items[%d]: %w", i, err))
		}
	}
	return nil
}

func checkAmounts(quantity, unitPrice, discount decimal.Decimal) error {
	if !quantity.Equal(quantity.Round(3)) {
		return invoicedomain.ErrInvalidQuantity
	}
	if !unitPrice.Equal(taxdomain.RoundMoney(unitPrice)) || !discount.Equal(taxdomain.RoundMoney(discount)) {
		return errors.New("amounts must have at most two decimals")
	}
	if discount.GreaterThan(taxdomain.RoundMoney(quantity.Abs().Mul(unitPrice))) {
		return invoicedomain.ErrInvalidDiscount
	}
	return nil
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == "updated_at" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
