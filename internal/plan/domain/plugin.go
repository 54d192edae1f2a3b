package domain

import (
	"context"
	"strings"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

type PlanType string

const (
	PlanTypePrePaid  PlanType = "prepaid"
	PlanTypePostPaid PlanType = "postpaid"
)

func ParsePlanType(s string) (PlanType, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(s)))
	switch PlanType(normalized) {
	case PlanTypePrePaid:
		return PlanTypePrePaid, nil
	case PlanTypePostPaid:
		return PlanTypePostPaid, nil
	default:
		return "", ierr.NewErrorf("unknown plan type %q", s).
			WithHint("plan type must be prepaid or postpaid").
			Mark(ierr.ErrValidation)
	}
}

// Plugin is one registered finance plan. Implementations own the billing
// and stop-service runners of the plan.
type Plugin interface {
	Name() string
	Type() PlanType

	IsRegisteredUser(p tenantdomain.Principal) (bool, error)
	IsAuthorized(p tenantdomain.Principal, op Operation) (bool, error)

	RegisterUser(ctx context.Context, p tenantdomain.Principal) error
	UnregisterUser(ctx context.Context, p tenantdomain.Principal) error
	PurgeUser(ctx context.Context, p tenantdomain.Principal) error
	ChangePlan(ctx context.Context, p tenantdomain.Principal, newPlan string) error

	// Admit runs fn unless the plan is being removed. Every path that moves
	// a tenant into the plan goes through it.
	Admit(fn func() error) error
	Retire()
	Reinstate()

	GetFinanceStateProperty(p tenantdomain.Principal, property string) (string, error)
	UpdateFinanceState(ctx context.Context, p tenantdomain.Principal, state map[string]string) error

	SetOptions(options map[string]string) error
	Options() map[string]string

	StartThreads()
	StopThreads()
	IsStarted() bool
}

// Factory builds plugins from persisted plan definitions.
type Factory interface {
	Build(plan Plan) (Plugin, error)
}
