package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ActorSystem = "system"

// AuditLog is an append-only record of a ledger event.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	ActorID    string            `gorm:"type:varchar(128);not null" json:"actor_id"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"target_type"`
	TargetID   string            `gorm:"type:varchar(64);not null;index" json:"target_id"`
	RequestID  string            `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what callers record; tenant and request come from the context.
type Entry struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action   string
	TargetID string
}

type ListAuditLogResponse struct {
	AuditLogs []AuditLog           `json:"audit_logs"`
	PageInfo  *pagination.PageInfo `json:"page_info"`
}

type ListFilter struct {
	TenantID snowflake.ID
	Action   string
	TargetID string
}

type Service interface {
	Record(ctx context.Context, db *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*AuditLog, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
