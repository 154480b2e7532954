// Package sequence allocates gap-tolerant, never reused invoice sequence
// numbers per tenant and month.
package sequence

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

const (
	BackendDatabase = "database"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Key identifies one monthly counter of a tenant.
type Key struct {
	TenantID snowflake.ID
	Period   string // YYYYMM
}

func (k Key) String() string {
	return fmt.Sprintf("invoice:seq:%s:%s", k.TenantID, k.Period)
}

func (k Key) valid() bool {
	return k.TenantID != 0 && len(k.Period) == 6
}

// SeedFunc returns the highest sequence already used for a key. It is called
// once, when a key is allocated from for the first time.
type SeedFunc func(ctx context.Context, key Key) (int64, error)

// Allocator hands out the next value of a key. Returned values are unique per
// key; a value handed to a caller that later fails is lost, never reissued.
type Allocator interface {
	Next(ctx context.Context, key Key, seed SeedFunc) (int64, error)
	Backend() string
}

func noSeed(context.Context, Key) (int64, error) { return 0, nil }
