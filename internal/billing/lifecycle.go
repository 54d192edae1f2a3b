package billing

import (
	"context"
	"time"

	"github.com/smallbiznis/fedbill/internal/clock"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"go.uber.org/zap"
)

// ResourceManager controls the cloud resources of a tenant.
type ResourceManager interface {
	HibernateResourcesByUser(ctx context.Context, p tenantdomain.Principal) error
	StopResourcesByUser(ctx context.Context, p tenantdomain.Principal) error
	ResumeResourcesByUser(ctx context.Context, p tenantdomain.Principal) error
	PurgeUser(ctx context.Context, p tenantdomain.Principal) error
}

// PaymentStatus reports whether a locked tenant is in good standing.
type PaymentStatus interface {
	HasPaid(u *tenantdomain.FinanceUser) bool
}

type PaymentStatusFunc func(u *tenantdomain.FinanceUser) bool

func (f PaymentStatusFunc) HasPaid(u *tenantdomain.FinanceUser) bool { return f(u) }

// DebtsChecker reports whether debts left by ended subscriptions are settled.
type DebtsChecker struct{}

func (DebtsChecker) HasPaid(u *tenantdomain.FinanceUser) bool {
	return u.PastDebtsPaid()
}

type LifecycleConfig struct {
	Plan               string
	Resources          ResourceManager
	Payments           PaymentStatus
	WaitBeforeStopping time.Duration
	Clock              clock.Clock
	Log                *zap.Logger
	Metrics            *metrics.RunnerMetrics
}

// LifecyclePolicy throttles and resumes a tenant's resources according to
// its payment standing.
type LifecyclePolicy struct {
	cfg   LifecycleConfig
	debts DebtsChecker
	log   *zap.Logger
}

func NewLifecyclePolicy(cfg LifecycleConfig) *LifecyclePolicy {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &LifecyclePolicy{
		cfg: cfg,
		log: cfg.Log.Named("lifecycle").With(zap.String("plan", cfg.Plan)),
	}
}

// UpdateUserState moves u at most one step through the lifecycle and
// reports whether its state changed. u must be locked by the caller. A
// failed resource-manager call leaves the state as it was.
func (p *LifecyclePolicy) UpdateUserState(ctx context.Context, u *tenantdomain.FinanceUser) (bool, error) {
	paid := p.debts.HasPaid(u) && p.cfg.Payments.HasPaid(u)
	from := u.State

	var err error
	switch u.State {
	case tenantdomain.UserStateDefault:
		if !paid {
			u.WaitStart = p.cfg.Clock.Now()
			u.State = tenantdomain.UserStateWaitingForStop
		}
	case tenantdomain.UserStateWaitingForStop:
		if paid {
			u.State = tenantdomain.UserStateDefault
		} else if p.cfg.Clock.Now().Sub(u.WaitStart) >= p.cfg.WaitBeforeStopping {
			u.State = tenantdomain.UserStateStopping
		}
	case tenantdomain.UserStateStopping:
		if paid {
			u.State = tenantdomain.UserStateDefault
		} else if err = p.stopResources(ctx, u.Principal()); err == nil {
			u.State = tenantdomain.UserStateStopped
		}
	case tenantdomain.UserStateStopped:
		if paid {
			u.State = tenantdomain.UserStateResuming
		}
	case tenantdomain.UserStateResuming:
		if !paid {
			u.State = tenantdomain.UserStateStopped
		} else if err = p.cfg.Resources.ResumeResourcesByUser(ctx, u.Principal()); err == nil {
			u.State = tenantdomain.UserStateDefault
		}
	default:
		return false, ierr.NewErrorf("unknown state %q for user %s", u.State, u.Principal()).
			Mark(ierr.ErrInternal)
	}

	if err != nil {
		return false, ierr.WithError(err).
			WithMessagef("user %s in state %s", u.Principal(), from).
			Err()
	}
	if u.State == from {
		return false, nil
	}

	p.log.Info("user state changed",
		zap.String("user_id", u.UserID),
		zap.String("provider", u.Provider),
		zap.String("from", string(from)),
		zap.String("to", string(u.State)),
	)
	p.cfg.Metrics.IncLifecycleTransition(p.cfg.Plan, string(from), string(u.State))
	return true, nil
}

// stopResources hibernates the tenant's resources, or stops them where
// hibernation is not supported.
func (p *LifecyclePolicy) stopResources(ctx context.Context, principal tenantdomain.Principal) error {
	err := p.cfg.Resources.HibernateResourcesByUser(ctx, principal)
	if err == nil || !ierr.IsNotSupported(err) {
		return err
	}
	p.log.Debug("hibernation not supported, stopping resources", zap.String("user", principal.String()))
	return p.cfg.Resources.StopResourcesByUser(ctx, principal)
}
