package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestConflictReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("allocate: %w", context.DeadlineExceeded), ReasonDeadlineExceeded},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, ReasonLockTimeout},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), ReasonLockTimeout},
		{"serialization", &pgconn.PgError{Code: "40001"}, ReasonSerializationFailure},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ReasonSerializationFailure},
		{"gorm duplicate", gorm.ErrDuplicatedKey, ReasonUniqueViolation},
		{"sqlite duplicate", errors.New("UNIQUE constraint failed: invoices.invoice_number"), ReasonUniqueViolation},
		{"other", errors.New("boom"), ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ConflictReason(tc.err))
		})
	}
}
