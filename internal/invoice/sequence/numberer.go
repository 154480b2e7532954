package sequence

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/internal/config"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/internal/invoice/format"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Numberer turns allocated sequence values into invoice numbers.
type Numberer struct {
	allocator Allocator
	db        *gorm.DB
	template  string
	log       *zap.Logger
	metrics   *obsmetrics.LedgerMetrics
}

func NewNumberer(allocator Allocator, conn *gorm.DB, cfg config.InvoiceConfig, log *zap.Logger, metrics *obsmetrics.LedgerMetrics) (*Numberer, error) {
	template := cfg.NumberTemplate
	if template == "" {
		template = format.DefaultInvoiceNumberTemplate
	}
	if err := format.ValidateTemplate(template); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Numberer{
		allocator: allocator,
		db:        conn,
		template:  template,
		log:       log.Named("invoice.sequence"),
		metrics:   metrics,
	}, nil
}

func (n *Numberer) Backend() string { return n.allocator.Backend() }

// NextNumber allocates the next number of the tenant's month containing period.
func (n *Numberer) NextNumber(ctx context.Context, tenantID snowflake.ID, period time.Time) (string, error) {
	if tenantID == 0 {
		return "", invoicedomain.ErrInvalidTenant
	}

	key := Key{TenantID: tenantID, Period: format.PeriodKey(period)}
	start := time.Now()
	seq, err := n.allocator.Next(ctx, key, n.seedFromInvoices(period))
	if err != nil {
		var conflict *invoicedomain.NumberingConflictError
		if errors.As(err, &conflict) {
			n.metrics.IncNumberingConflict(n.allocator.Backend(), conflict.Reason)
			n.log.Warn("invoice numbering conflict",
				zap.String("key", key.String()),
				zap.String("reason", conflict.Reason),
				zap.Error(err),
			)
		}
		return "", err
	}
	n.metrics.IncNumberAllocated(n.allocator.Backend(), time.Since(start))

	return format.FormatInvoiceNumber(n.template, period, seq)
}

// seedFromInvoices scans existing numbers, soft deleted ones included, so a
// fresh counter never reissues a number that is already on record.
func (n *Numberer) seedFromInvoices(period time.Time) SeedFunc {
	return func(ctx context.Context, key Key) (int64, error) {
		if n.db == nil {
			return 0, nil
		}
		var numbers []string
		err := n.db.WithContext(ctx).Unscoped().
			Model(&invoicedomain.Invoice{}).
			Where("tenant_id = ? AND number_period = ?", key.TenantID, key.Period).
			Pluck("invoice_number", &numbers).Error
		if err != nil {
			return 0, err
		}

		var highest int64
		for _, number := range numbers {
			if seq, ok := format.ParseSequence(n.template, period, number); ok && seq > highest {
				highest = seq
			}
		}
		if highest > 0 {
			n.log.Info("seeded invoice sequence",
				zap.String("key", key.String()),
				zap.Int64("highest", highest),
			)
		}
		return highest, nil
	}
}
