package metricspush

import (
	"context"

	"github.com/dixis/taxengine/internal/config"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, pusher Pusher, ledger *obsmetrics.LedgerMetrics, db *gorm.DB, logger *zap.Logger) {
		if pusher == nil {
			return
		}
		w := NewWorker(db, ledger, pusher, prometheus.DefaultGatherer, cfg.MetricsPush.Interval, logger)

		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting metrics push worker")
				go w.Run(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)
