package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	redis "github.com/redis/go-redis/v9"
)

// Keys outlive their month so late, backdated invoices still see the counter.
const redisKeyTTL = 400 * 24 * time.Hour

const incrExistingScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.call("INCR", KEYS[1])
end
return false
`

const seedAndIncrScript = `
redis.call("SET", KEYS[1], ARGV[1], "NX")
local v = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return v
`

// RedisAllocator keeps counters in redis under invoice:seq:{tenant}:{yyyymm}.
type RedisAllocator struct {
	client   redis.UniversalClient
	incr     *redis.Script
	seedIncr *redis.Script
}

func NewRedisAllocator(client redis.UniversalClient) *RedisAllocator {
	return &RedisAllocator{
		client:   client,
		incr:     redis.NewScript(incrExistingScript),
		seedIncr: redis.NewScript(seedAndIncrScript),
	}
}

func (a *RedisAllocator) Backend() string { return BackendRedis }

func (a *RedisAllocator) Next(ctx context.Context, key Key, seed SeedFunc) (int64, error) {
	if a == nil || a.client == nil {
		return 0, errors.New("redis allocator not configured")
	}
	if !key.valid() {
		return 0, invoicedomain.ErrUnsupportedSequenceKey
	}
	if seed == nil {
		seed = noSeed
	}

	redisKey := key.String()
	value, err := a.incr.Run(ctx, a.client, []string{redisKey}).Int64()
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, a.wrap(redisKey, err)
	}

	base, err := seed(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", redisKey, err)
	}
	value, err = a.seedIncr.Run(ctx, a.client, []string{redisKey}, base, redisKeyTTL.Milliseconds()).Int64()
	if err != nil {
		return 0, a.wrap(redisKey, err)
	}
	return value, nil
}

func (a *RedisAllocator) wrap(key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &invoicedomain.NumberingConflictError{Key: key, Reason: "deadline_exceeded", Err: err}
	}
	return err
}
