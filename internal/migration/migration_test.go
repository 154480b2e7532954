package migration

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	src, err := newSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	r, ident, err := src.ReadUp(next)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "audit_logs", ident)

	last, err := src.Next(next)
	require.NoError(t, err)
	assert.Equal(t, uint(3), last)
}

func TestAutoMigrateCreatesLedgerTables(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db))
	for _, table := range []string{"invoices", "invoice_items", "invoice_payments", "invoice_sequences", "audit_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
