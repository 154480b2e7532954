package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultLockTimeout = 2 * time.Second

// DatabaseAllocator keeps counters in the invoice_sequences table. Each call
// runs its own short transaction, committed before the invoice is written,
// so the counter row stays locked only for the read-increment-write.
type DatabaseAllocator struct {
	db          *gorm.DB
	lockTimeout time.Duration
	now         func() time.Time
}

func NewDatabaseAllocator(conn *gorm.DB, lockTimeout time.Duration) *DatabaseAllocator {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &DatabaseAllocator{
		db:          conn,
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (a *DatabaseAllocator) Backend() string { return BackendDatabase }

func (a *DatabaseAllocator) Next(ctx context.Context, key Key, seed SeedFunc) (int64, error) {
	if !key.valid() {
		return 0, invoicedomain.ErrUnsupportedSequenceKey
	}
	if seed == nil {
		seed = noSeed
	}

	// The seed scan runs before the transaction so the counter row lock is
	// never held across it. Losing the seeding race is resolved by ON CONFLICT.
	base, err := a.seedIfMissing(ctx, key, seed)
	if err != nil {
		return 0, err
	}

	var value int64
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", a.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}

		bumped, err := a.increment(tx, key)
		if err != nil {
			return err
		}
		if !bumped {
			now := a.now()
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&invoicedomain.InvoiceSequence{
				TenantID:  key.TenantID,
				Period:    key.Period,
				LastValue: base + 1,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				if bumped, err = a.increment(tx, key); err != nil {
					return err
				}
				if !bumped {
					return errors.New("sequence row vanished after seeding")
				}
			}
		}

		return tx.Model(&invoicedomain.InvoiceSequence{}).
			Select("last_value").
			Where("tenant_id = ? AND period = ?", key.TenantID, key.Period).
			Scan(&value).Error
	})
	if err != nil {
		if reason := db.ConflictReason(err); reason != "" {
			return 0, &invoicedomain.NumberingConflictError{Key: key.String(), Reason: reason, Err: err}
		}
		return 0, err
	}
	return value, nil
}

func (a *DatabaseAllocator) seedIfMissing(ctx context.Context, key Key, seed SeedFunc) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&invoicedomain.InvoiceSequence{}).
		Where("tenant_id = ? AND period = ?", key.TenantID, key.Period).
		Count(&count).Error
	if err != nil || count > 0 {
		return 0, err
	}
	base, err := seed(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", key, err)
	}
	return base, nil
}

func (a *DatabaseAllocator) increment(tx *gorm.DB, key Key) (bool, error) {
	res := tx.Model(&invoicedomain.InvoiceSequence{}).
		Where("tenant_id = ? AND period = ?", key.TenantID, key.Period).
		Updates(map[string]any{
			"last_value": gorm.Expr("last_value + 1"),
			"updated_at": a.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
