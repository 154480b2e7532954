package cache

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCacheScopesByTenantAndPeriod(t *testing.T) {
	c := NewReportCache(time.Minute)
	march := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	april := march.AddDate(0, 1, 0)

	c.Set(1, march, april, compliancedomain.Report{TransactionCount: 3})
	c.Set(2, march, april, compliancedomain.Report{TransactionCount: 7})

	got, ok := c.Get(1, march, april)
	require.True(t, ok)
	assert.Equal(t, 3, got.TransactionCount)

	_, ok = c.Get(1, march, april.AddDate(0, 0, 1))
	assert.False(t, ok)

	c.InvalidateTenant(snowflake.ID(1))
	_, ok = c.Get(1, march, april)
	assert.False(t, ok)

	got, ok = c.Get(2, march, april)
	require.True(t, ok)
	assert.Equal(t, 7, got.TransactionCount)
}
