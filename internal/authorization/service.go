package authorization

import (
	"context"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

const (
	ObjectPlan         = "plan"
	ObjectUser         = "user"
	ObjectFinanceState = "finance_state"
	ObjectPolicy       = "policy"
	ObjectReload       = "reload"
	ObjectAudit        = "audit"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

const (
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
)

var (
	ErrInvalidSubject = ierr.NewError("invalid subject").Mark(ierr.ErrValidation)
	ErrInvalidObject  = ierr.NewError("invalid object").Mark(ierr.ErrValidation)
	ErrInvalidAction  = ierr.NewError("invalid action").Mark(ierr.ErrValidation)
	ErrUnknownRole    = ierr.NewError("unknown role").Mark(ierr.ErrValidation)
	ErrForbidden      = ierr.NewError("forbidden").Mark(ierr.ErrPermissionDenied)
)

// Service decides whether an admin subject may act on an object.
type Service interface {
	Authorize(ctx context.Context, subject, object, action string) error
	GrantRole(ctx context.Context, subject, role string) error
	RevokeRole(ctx context.Context, subject, role string) error
	Roles(subject string) ([]string, error)
}
