package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/dixis/taxengine/internal/config"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/fx"
)

const (
	defaultReportTTL    = 5 * time.Minute
	reportCleanupFactor = 2
)

// ReportCache keeps generated compliance reports per tenant and period.
type ReportCache interface {
	Get(tenantID snowflake.ID, start, end time.Time) (compliancedomain.Report, bool)
	Set(tenantID snowflake.ID, start, end time.Time, report compliancedomain.Report)
	InvalidateTenant(tenantID snowflake.ID)
}

type reportCache struct {
	store *gocache.Cache
}

var Module = fx.Module("cache",
	fx.Provide(func(cfg config.Config) ReportCache { return NewReportCache(cfg.ReportCacheTTL) }),
)

// NewReportCache returns an in-process report cache. A non-positive ttl
// falls back to five minutes.
func NewReportCache(ttl time.Duration) ReportCache {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &reportCache{store: gocache.New(ttl, reportCleanupFactor*ttl)}
}

func (c *reportCache) Get(tenantID snowflake.ID, start, end time.Time) (compliancedomain.Report, bool) {
	v, ok := c.store.Get(reportKey(tenantID, start, end))
	if !ok {
		return compliancedomain.Report{}, false
	}
	report, ok := v.(compliancedomain.Report)
	return report, ok
}

func (c *reportCache) Set(tenantID snowflake.ID, start, end time.Time, report compliancedomain.Report) {
	c.store.SetDefault(reportKey(tenantID, start, end), report)
}

// InvalidateTenant drops every cached period of tenantID.
func (c *reportCache) InvalidateTenant(tenantID snowflake.ID) {
	prefix := tenantPrefix(tenantID)
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

func tenantPrefix(tenantID snowflake.ID) string {
	return fmt.Sprintf("compliance|%s|", tenantID.String())
}

func reportKey(tenantID snowflake.ID, start, end time.Time) string {
	return tenantPrefix(tenantID) + start.UTC().Format(time.RFC3339) + "|" + end.UTC().Format(time.RFC3339)
}
