package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/pkg/db/pagination"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem     ActorType = "system"
	ActorTypeAdminToken ActorType = "admin_token"
)

// Target types. A user target id is the tenant principal, "user@provider".
const (
	TargetTypeUser    = "user"
	TargetTypePlan    = "plan"
	TargetTypeSubject = "subject"
)

// AuditLog records one administrative change.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	ActorType  string            `gorm:"size:32;not null" json:"actor_type"`
	ActorID    *string           `gorm:"size:255" json:"actor_id,omitempty"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	TargetType string            `gorm:"size:64;not null" json:"target_type"`
	TargetID   *string           `gorm:"size:512" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"size:512" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	// Tenant narrows the list to changes made to one tenant.
	Tenant  *tenantdomain.Principal
	StartAt *time.Time
	EndAt   *time.Time
	Cursor  *AuditCursor
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, entry *AuditLog) error
	// List returns up to Limit+1 entries, newest first, so callers can tell
	// whether another page exists.
	List(ctx context.Context, filter ListFilter) ([]*AuditLog, error)
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	Tenant     *tenantdomain.Principal
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, action, targetType, targetID string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = ierr.NewError("invalid page token").Mark(ierr.ErrValidation)
	ErrInvalidTimeRange = ierr.NewError("invalid time range").Mark(ierr.ErrValidation)
	ErrInvalidAction    = ierr.NewError("invalid action").Mark(ierr.ErrValidation)
	ErrInvalidTenant    = ierr.NewError("tenant filter needs both user_id and provider").Mark(ierr.ErrValidation)
)
