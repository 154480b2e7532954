package metricspush

import (
	"context"
	"time"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// outstandingStatuses are the issued, unpaid states reported on the gauge.
var outstandingStatuses = []invoicedomain.InvoiceStatus{
	invoicedomain.InvoiceStatusSent,
	invoicedomain.InvoiceStatusViewed,
}

// Worker refreshes the outstanding-amount gauge and pushes the ledger
// metrics on a fixed interval.
type Worker struct {
	db       *gorm.DB
	ledger   *obsmetrics.LedgerMetrics
	pusher   Pusher
	gatherer prometheus.Gatherer
	interval time.Duration
	log      *zap.Logger
}

func NewWorker(db *gorm.DB, ledger *obsmetrics.LedgerMetrics, pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Worker{
		db:       db,
		ledger:   ledger,
		pusher:   pusher,
		gatherer: gatherer,
		interval: interval,
		log:      log.Named("metrics.push"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runLogged(ctx, "initial")
	for {
		select {
		case <-ticker.C:
			w.runLogged(ctx, "periodic")
		case <-ctx.Done():
			w.log.Info("stopping metrics push worker")
			return
		}
	}
}

func (w *Worker) runLogged(ctx context.Context, phase string) {
	if err := w.RunOnce(ctx); err != nil {
		w.log.Error(phase+" metrics push failed", zap.Error(err))
	}
}

// RunOnce refreshes the gauge across all tenants and pushes once.
func (w *Worker) RunOnce(ctx context.Context) error {
	if err := w.refreshOutstanding(ctx); err != nil {
		return err
	}
	if w.pusher == nil {
		return nil
	}
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	return w.pusher.Push(pushCtx, w.gatherer)
}

func (w *Worker) refreshOutstanding(ctx context.Context) error {
	var rows []struct {
		Status invoicedomain.InvoiceStatus
		Amount decimal.Decimal
	}
	err := w.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Select("status, COALESCE(SUM(total_amount), 0) AS amount").
		Where("status IN ?", outstandingStatuses).
		Where("type <> ?", invoicedomain.InvoiceTypeCreditNote).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	amounts := make(map[invoicedomain.InvoiceStatus]float64, len(outstandingStatuses))
	for _, row := range rows {
		amounts[row.Status] = row.Amount.InexactFloat64()
	}
	for _, status := range outstandingStatuses {
		w.ledger.SetOutstanding(string(status), amounts[status])
	}
	return nil
}
