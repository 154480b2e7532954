package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/dixis/taxengine/internal/audit/domain"
	"github.com/dixis/taxengine/internal/audit/repository"
	obscontext "github.com/dixis/taxengine/internal/observability/context"
	"github.com/dixis/taxengine/internal/tenantcontext"
	"github.com/dixis/taxengine/pkg/db/pagination"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return NewService(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()}), db
}

func TestRecordMasksSensitiveMetadata(t *testing.T) {
	svc, db := newTestService(t)
	ctx := tenantcontext.WithTenantID(context.Background(), snowflake.ID(5))
	ctx = obscontext.WithRequestID(ctx, "req-1")

	err := svc.Record(ctx, nil, auditdomain.Entry{
		Action:     "invoice.paid",
		TargetType: "invoice",
		TargetID:   "42",
		Metadata: map[string]any{
			"payment_reference": "TRX-0000991234",
			"buyer": map[string]any{
				"vat_number": "DE123456789",
			},
			"total_amount": "21.57",
		},
	})
	require.NoError(t, err)

	var row auditdomain.AuditLog
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, snowflake.ID(5), row.TenantID)
	assert.Equal(t, auditdomain.ActorSystem, row.ActorID)
	assert.Equal(t, "req-1", row.RequestID)
	assert.Equal(t, "21.57", row.Metadata["total_amount"])
	assert.NotContains(t, fmt.Sprint(row.Metadata["payment_reference"]), "0000991")
	buyer, ok := row.Metadata["buyer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DE****6789", buyer["vat_number"])
}

func TestRecordRejectsMissingTenantOrAction(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Record(context.Background(), nil, auditdomain.Entry{Action: "invoice.sent"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	ctx := tenantcontext.WithTenantID(context.Background(), snowflake.ID(5))
	err = svc.Record(ctx, nil, auditdomain.Entry{Action: "  "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	svc, db := newTestService(t)
	ctx := tenantcontext.WithTenantID(context.Background(), snowflake.ID(5))

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Record(ctx, tx, auditdomain.Entry{Action: "invoice.created", TargetID: "1"}))
		return fmt.Errorf("abort")
	})

	var count int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListFiltersByTenantAndAction(t *testing.T) {
	svc, _ := newTestService(t)
	tenantA := tenantcontext.WithTenantID(context.Background(), snowflake.ID(5))
	tenantB := tenantcontext.WithTenantID(context.Background(), snowflake.ID(6))

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(tenantA, nil, auditdomain.Entry{Action: "invoice.created", TargetID: fmt.Sprint(i)}))
	}
	require.NoError(t, svc.Record(tenantA, nil, auditdomain.Entry{Action: "invoice.sent", TargetID: "0"}))
	require.NoError(t, svc.Record(tenantB, nil, auditdomain.Entry{Action: "invoice.created", TargetID: "9"}))

	page, err := svc.List(tenantA, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Action:     "invoice.created",
	})
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	assert.True(t, page.PageInfo.HasMore)

	rest, err := svc.List(tenantA, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.PageInfo.NextPageToken},
		Action:     "invoice.created",
	})
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	assert.False(t, rest.PageInfo.HasMore)

	other, err := svc.List(tenantB, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, other.AuditLogs, 1)
	assert.Equal(t, "9", other.AuditLogs[0].TargetID)
}
