package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dixis/taxengine/internal/audit/domain"
	"github.com/dixis/taxengine/internal/clock"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	"github.com/dixis/taxengine/internal/ratelimit"
	"github.com/dixis/taxengine/internal/tenantcontext"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobOverdueSweep = "overdue_sweep"

	actionInvoiceOverdue = "invoice.overdue"
	schedulerActor       = "scheduler"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	AuditSvc auditdomain.Service
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
	Limiter  *ratelimit.Limiter           `optional:"true"`
	Config   Config                       `optional:"true"`
}

// Scheduler runs periodic ledger maintenance. Each job is claimed through
// the redis job lock when rate limiting is enabled, so only one replica
// runs it per tick.
type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	auditSvc auditdomain.Service
	metrics  *obsmetrics.SchedulerMetrics
	limiter  *ratelimit.Limiter
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.AuditSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		limiter:  p.Limiter,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (int, error)) error {
	release, owner, err := s.limiter.LockJob(parent, name, timeout)
	if err != nil {
		s.metrics.IncJobError(name, err)
		return fmt.Errorf("%s: lock: %w", name, err)
	}
	if !owner {
		s.metrics.IncJobSkipped(name)
		s.log.Debug("job held by another replica", zap.String("job", name))
		return nil
	}
	defer release()

	runID := ulid.Make().String()
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	s.metrics.IncJobRun(name)
	processed, err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	s.metrics.AddProcessed(name, processed)

	log := s.log.With(zap.String("job", name), zap.String("run_id", runID), zap.Int("processed", processed))
	if err == nil {
		log.Info("job finished", zap.Duration("duration", time.Since(start)))
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobOverdueSweep, s.cfg.JobTimeout, s.OverdueSweepJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type overdueCandidate struct {
	ID            snowflake.ID
	TenantID      snowflake.ID
	InvoiceNumber string
	DueDate       time.Time
	TotalAmount   decimal.Decimal
	Currency      string
}

// OverdueSweepJob records one invoice.overdue audit entry for every issued,
// unpaid invoice past its due date. Invoices already flagged are skipped, so
// reruns are idempotent.
func (s *Scheduler) OverdueSweepJob(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var cursor snowflake.ID
	flagged := 0
	var jobErr error

	for {
		if err := ctx.Err(); err != nil {
			return flagged, err
		}

		var batch []overdueCandidate
		err := s.db.WithContext(ctx).
			Model(&invoicedomain.Invoice{}).
			Select("id, tenant_id, invoice_number, due_date, total_amount, currency").
			Where("status IN ?", []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusViewed}).
			Where("type IN ?", []invoicedomain.InvoiceType{invoicedomain.InvoiceTypeStandard, invoicedomain.InvoiceTypeDebitNote}).
			Where("due_date < ?", now).
			Where("id > ?", cursor).
			Order("id ASC").
			Limit(s.cfg.BatchSize).
			Scan(&batch).Error
		if err != nil {
			return flagged, err
		}
		if len(batch) == 0 {
			return flagged, jobErr
		}

		for _, inv := range batch {
			cursor = inv.ID
			ok, err := s.flagOverdue(ctx, inv, now)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("failed to flag overdue invoice",
					zap.String("tenant_id", inv.TenantID.String()),
					zap.String("invoice_id", inv.ID.String()),
					zap.Error(err),
				)
				continue
			}
			if ok {
				flagged++
			}
		}
	}
}

func (s *Scheduler) flagOverdue(ctx context.Context, inv overdueCandidate, now time.Time) (bool, error) {
	var existing int64
	err := s.db.WithContext(ctx).
		Model(&auditdomain.AuditLog{}).
		Where("tenant_id = ? AND action = ? AND target_id = ?", inv.TenantID, actionInvoiceOverdue, inv.ID.String()).
		Count(&existing).Error
	if err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}

	tenantCtx := tenantcontext.WithTenantID(ctx, inv.TenantID)
	err = s.auditSvc.Record(tenantCtx, s.db, auditdomain.Entry{
		ActorID:    schedulerActor,
		Action:     actionInvoiceOverdue,
		TargetType: "invoice",
		TargetID:   inv.ID.String(),
		Metadata: map[string]any{
			"invoice_number": inv.InvoiceNumber,
			"due_date":       inv.DueDate.UTC().Format(time.RFC3339),
			"days_overdue":   int(now.Sub(inv.DueDate).Hours() / 24),
			"total_amount":   inv.TotalAmount.StringFixed(2),
			"currency":       inv.Currency,
		},
	})
	if err != nil {
		return false, err
	}

	s.log.Info("invoice.overdue",
		zap.String("tenant_id", inv.TenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
	)
	return true, nil
}
