package sequence

import (
	"fmt"

	"github.com/dixis/taxengine/internal/config"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("invoice.sequence",
	fx.Provide(NewAllocator),
	fx.Provide(provideNumberer),
)

type allocatorParam struct {
	fx.In

	Config config.TaxConfig
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
}

// NewAllocator selects the backend configured by invoice.sequenceBackend.
func NewAllocator(p allocatorParam) (Allocator, error) {
	switch p.Config.Invoice.SequenceBackend {
	case "", config.SequenceBackendDatabase:
		return NewDatabaseAllocator(p.DB, 0), nil
	case config.SequenceBackendRedis:
		if p.Redis == nil {
			return nil, fmt.Errorf("sequence backend redis requires a redis client")
		}
		return NewRedisAllocator(p.Redis), nil
	case config.SequenceBackendMemory:
		return NewMemoryAllocator(), nil
	default:
		return nil, fmt.Errorf("unknown sequence backend %q", p.Config.Invoice.SequenceBackend)
	}
}

type numbererParam struct {
	fx.In

	Allocator Allocator
	Config    config.TaxConfig
	DB        *gorm.DB
	Log       *zap.Logger
	Metrics   *obsmetrics.LedgerMetrics `optional:"true"`
}

func provideNumberer(p numbererParam) (*Numberer, error) {
	return NewNumberer(p.Allocator, p.DB, p.Config.Invoice, p.Log, p.Metrics)
}
