package sequence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/internal/config"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	obsmetrics "github.com/dixis/taxengine/internal/observability/metrics"
	"github.com/dixis/taxengine/pkg/db"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var (
	tenantA = snowflake.ID(1001)
	tenantB = snowflake.ID(1002)
	march   = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)
	april   = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}, &invoicedomain.InvoiceSequence{}))
	return db
}

func newTestNumberer(t *testing.T, allocator Allocator, db *gorm.DB) *Numberer {
	t.Helper()
	metrics := obsmetrics.NewLedgerMetrics(prometheus.NewRegistry(), obsmetrics.Config{})
	n, err := NewNumberer(allocator, db, config.DefaultTaxConfig().Invoice, zaptest.NewLogger(t), metrics)
	require.NoError(t, err)
	return n
}

var nextInvoiceID int64

func seedInvoice(t *testing.T, db *gorm.DB, tenant snowflake.ID, number string, deleted bool) {
	t.Helper()
	nextInvoiceID++
	inv := invoicedomain.Invoice{
		ID:            snowflake.ID(nextInvoiceID),
		TenantID:      tenant,
		InvoiceNumber: number,
		NumberPeriod:  "202503",
		Type:          invoicedomain.InvoiceTypeStandard,
		Status:        invoicedomain.InvoiceStatusSent,
		IssueDate:     march,
		DueDate:       march.AddDate(0, 0, 30),
		Currency:      "EUR",
	}
	require.NoError(t, db.Create(&inv).Error)
	if deleted {
		require.NoError(t, db.Delete(&inv).Error)
	}
}

func TestNumbererSequentialMonth(t *testing.T) {
	backends := map[string]func(t *testing.T) Allocator{
		BackendMemory: func(*testing.T) Allocator { return NewMemoryAllocator() },
		BackendDatabase: func(t *testing.T) Allocator {
			return NewDatabaseAllocator(openTestDB(t), time.Second)
		},
		BackendRedis: func(t *testing.T) Allocator {
			mr := miniredis.RunT(t)
			return NewRedisAllocator(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			n := newTestNumberer(t, build(t), nil)
			ctx := context.Background()

			first, err := n.NextNumber(ctx, tenantA, march)
			require.NoError(t, err)
			second, err := n.NextNumber(ctx, tenantA, march)
			require.NoError(t, err)
			otherTenant, err := n.NextNumber(ctx, tenantB, march)
			require.NoError(t, err)
			nextMonth, err := n.NextNumber(ctx, tenantA, april)
			require.NoError(t, err)

			assert.Equal(t, "INV-202503-0001", first)
			assert.Equal(t, "INV-202503-0002", second)
			assert.Equal(t, "INV-202503-0001", otherTenant)
			assert.Equal(t, "INV-202504-0001", nextMonth)
		})
	}
}

func TestNumbererSeedsFromExistingInvoices(t *testing.T) {
	db := openTestDB(t)
	seedInvoice(t, db, tenantA, "INV-202503-0007", false)
	seedInvoice(t, db, tenantA, "INV-202503-0011", true)
	seedInvoice(t, db, tenantA, "LEGACY-42", false)
	seedInvoice(t, db, tenantB, "INV-202503-0500", false)

	n := newTestNumberer(t, NewDatabaseAllocator(db, time.Second), db)

	number, err := n.NextNumber(context.Background(), tenantA, march)
	require.NoError(t, err)
	assert.Equal(t, "INV-202503-0012", number)

	var row invoicedomain.InvoiceSequence
	require.NoError(t, db.Where("tenant_id = ? AND period = ?", tenantA, "202503").First(&row).Error)
	assert.Equal(t, int64(12), row.LastValue)
}

func TestDatabaseAllocatorSeedsOnce(t *testing.T) {
	db := openTestDB(t)
	alloc := NewDatabaseAllocator(db, time.Second)
	key := Key{TenantID: tenantA, Period: "202503"}

	calls := 0
	seed := func(context.Context, Key) (int64, error) {
		calls++
		return 41, nil
	}

	for want := int64(42); want <= 44; want++ {
		got, err := alloc.Next(context.Background(), key, seed)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 1, calls)
}

func TestMemoryAllocatorConcurrent(t *testing.T) {
	alloc := NewMemoryAllocator()
	key := Key{TenantID: tenantA, Period: "202503"}

	const workers = 50
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := alloc.Next(context.Background(), key, nil)
			assert.NoError(t, err)
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, workers)
	for v := range results {
		assert.False(t, seen[v], "duplicate sequence %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers)
	for v := int64(1); v <= workers; v++ {
		assert.True(t, seen[v], "missing sequence %d", v)
	}
}

// openFileDB opens a file-backed sqlite database so concurrent transactions
// contend on real locks instead of a shared in-memory cache.
func openFileDB(t *testing.T, busyTimeout time.Duration) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sequences.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate", path, busyTimeout.Milliseconds())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&invoicedomain.InvoiceSequence{}))
	return conn
}

// allocateConcurrently runs workers calls of Next on one fresh key, all
// seeded from base, and returns the values handed out.
func allocateConcurrently(t *testing.T, alloc Allocator, workers int, base int64) []int64 {
	t.Helper()
	key := Key{TenantID: tenantA, Period: "202503"}
	seed := func(context.Context, Key) (int64, error) { return base, nil }

	start := make(chan struct{})
	type outcome struct {
		value int64
		err   error
	}
	results := make(chan outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := alloc.Next(context.Background(), key, seed)
			results <- outcome{value: v, err: err}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	values := make([]int64, 0, workers)
	for r := range results {
		if r.err != nil {
			var conflict *invoicedomain.NumberingConflictError
			assert.True(t, errors.As(r.err, &conflict), "unexpected error: %v", r.err)
			continue
		}
		values = append(values, r.value)
	}
	return values
}

func assertContiguous(t *testing.T, values []int64, from int64) {
	t.Helper()
	seen := make(map[int64]bool, len(values))
	for _, v := range values {
		assert.False(t, seen[v], "duplicate sequence %d", v)
		seen[v] = true
	}
	for v := from; v < from+int64(len(values)); v++ {
		assert.True(t, seen[v], "missing sequence %d", v)
	}
}

func TestDatabaseAllocatorConcurrent(t *testing.T) {
	conn := openFileDB(t, 5*time.Second)
	alloc := NewDatabaseAllocator(conn, time.Second)

	const workers = 20
	values := allocateConcurrently(t, alloc, workers, 100)
	assert.NotEmpty(t, values)
	assertContiguous(t, values, 101)

	var row invoicedomain.InvoiceSequence
	require.NoError(t, conn.Where("tenant_id = ? AND period = ?", tenantA, "202503").First(&row).Error)
	assert.Equal(t, int64(100+len(values)), row.LastValue)

	var rows int64
	require.NoError(t, conn.Model(&invoicedomain.InvoiceSequence{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestDatabaseAllocatorBusyIsNumberingConflict(t *testing.T) {
	conn := openFileDB(t, 50*time.Millisecond)
	alloc := NewDatabaseAllocator(conn, time.Second)
	key := Key{TenantID: tenantA, Period: "202503"}

	_, err := alloc.Next(context.Background(), key, nil)
	require.NoError(t, err)

	holder := conn.Begin()
	require.NoError(t, holder.Error)
	require.NoError(t, holder.Exec("UPDATE invoice_sequences SET last_value = last_value").Error)

	_, err = alloc.Next(context.Background(), key, nil)
	require.NoError(t, holder.Rollback().Error)

	var conflict *invoicedomain.NumberingConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, db.ReasonLockTimeout, conflict.Reason)
	assert.ErrorIs(t, err, invoicedomain.ErrNumberingConflict)

	v, err := alloc.Next(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestRedisAllocatorConcurrent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 16})
	t.Cleanup(func() { _ = client.Close() })
	alloc := NewRedisAllocator(client)

	const workers = 30
	values := allocateConcurrently(t, alloc, workers, 100)
	require.Len(t, values, workers)
	assertContiguous(t, values, 101)

	stored, err := mr.Get(Key{TenantID: tenantA, Period: "202503"}.String())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", 100+workers), stored)
}

func TestRedisAllocatorSeedsAbsentKey(t *testing.T) {
	mr := miniredis.RunT(t)
	alloc := NewRedisAllocator(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	key := Key{TenantID: tenantA, Period: "202503"}

	v, err := alloc.Next(context.Background(), key, func(context.Context, Key) (int64, error) { return 9, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	stored, err := mr.Get(key.String())
	require.NoError(t, err)
	assert.Equal(t, "10", stored)
	assert.True(t, mr.TTL(key.String()) > 0)
}

func TestAllocatorRejectsInvalidKey(t *testing.T) {
	_, err := NewMemoryAllocator().Next(context.Background(), Key{Period: "202503"}, nil)
	assert.ErrorIs(t, err, invoicedomain.ErrUnsupportedSequenceKey)
}

func TestNumberingConflictErrorIs(t *testing.T) {
	err := fmt.Errorf("create: %w", &invoicedomain.NumberingConflictError{Key: "k", Reason: "db_lock_timeout", Err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, invoicedomain.ErrNumberingConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
