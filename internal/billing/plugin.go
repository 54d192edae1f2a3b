package billing

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/fedbill/internal/accounting"
	"github.com/smallbiznis/fedbill/internal/clock"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/smallbiznis/fedbill/internal/pricing"
	"github.com/smallbiznis/fedbill/internal/runlock"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"go.uber.org/zap"
)

// Deps are the collaborators every plan plugin needs.
type Deps struct {
	Users     *store.Store
	Resources ResourceManager
	Records   accounting.Client
	Clock     clock.Clock
	Log       *zap.Logger
	Metrics   *metrics.RunnerMetrics
	Lock      *runlock.Locker
}

// PluginConfig describes one plan. Type, Ledger and IntervalOption are set by
// the plan type.
type PluginConfig struct {
	Deps

	Name   string
	Type   plandomain.PlanType
	Ledger Ledger
	// IntervalOption is the option holding the payment runner tick interval.
	IntervalOption string
	// Booked runs after each persisted booking of the payment runner.
	Booked func()
}

// Plugin implements the plan behavior shared by every plan type: options,
// pricing policy, runner threads and tenant registration.
type Plugin struct {
	plandomain.Admission

	cfg    PluginConfig
	log    *zap.Logger
	policy *pricing.Policy
	debts  DebtsChecker

	mu              sync.Mutex
	opts            Options
	paymentInterval time.Duration
	payments        *Payments
	runners         []*Runner
	started         bool
}

func NewPlugin(cfg PluginConfig, options map[string]string) (*Plugin, error) {
	if cfg.Name == "" {
		return nil, ierr.NewError("plan name is required").Mark(ierr.ErrValidation)
	}
	if cfg.Users == nil || cfg.Resources == nil || cfg.Records == nil || cfg.Ledger == nil {
		return nil, ierr.NewErrorf("plan %s is missing collaborators", cfg.Name).Mark(ierr.ErrInternal)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	opts, interval, err := parsePluginOptions(options, cfg.IntervalOption)
	if err != nil {
		return nil, err
	}
	policy, err := pricing.NewPolicy(opts.DefaultValue, opts.Rules)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		cfg:             cfg,
		log:             cfg.Log.Named("plan").With(zap.String("plan", cfg.Name), zap.String("plan_type", string(cfg.Type))),
		policy:          policy,
		opts:            opts,
		paymentInterval: interval,
	}
	p.payments = p.newPayments()
	return p, nil
}

func parsePluginOptions(options map[string]string, intervalKey string) (Options, time.Duration, error) {
	opts, err := ParseOptions(options)
	if err != nil {
		return Options{}, 0, err
	}
	interval, err := RequiredDuration(options, intervalKey)
	if err != nil {
		return Options{}, 0, err
	}
	return opts, interval, nil
}

func (p *Plugin) Name() string              { return p.cfg.Name }
func (p *Plugin) Type() plandomain.PlanType { return p.cfg.Type }

// Users is the tenant store the plan's tenants live in.
func (p *Plugin) Users() *store.Store { return p.cfg.Users }

// Policy is the live pricing policy. SetOptions updates it in place.
func (p *Plugin) Policy() *pricing.Policy { return p.policy }

// Log is the plan's logger.
func (p *Plugin) Log() *zap.Logger { return p.log }

// Payments bills with the current options.
func (p *Plugin) Payments() *Payments {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payments
}

func (p *Plugin) newPayments() *Payments {
	return NewPayments(PaymentConfig{
		Plan:            p.cfg.Name,
		Users:           p.cfg.Users,
		Records:         p.cfg.Records,
		Policy:          p.policy,
		Ledger:          p.cfg.Ledger,
		BillingInterval: p.opts.BillingInterval,
		Clock:           p.cfg.Clock,
		Metrics:         p.cfg.Metrics,
		Booked:          p.cfg.Booked,
	})
}

// Options returns the options in canonical form.
func (p *Plugin) Options() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.opts.Map()
	out[p.cfg.IntervalOption] = FormatDuration(p.paymentInterval)
	return out
}

// SetOptions validates and applies options. On error nothing changes. Running
// threads are restarted with the new intervals.
func (p *Plugin) SetOptions(options map[string]string) error {
	opts, interval, err := parsePluginOptions(options, p.cfg.IntervalOption)
	if err != nil {
		return err
	}
	if err := p.policy.Update(opts.DefaultValue, opts.Rules); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = opts
	p.paymentInterval = interval
	p.payments = p.newPayments()
	if p.started {
		p.stopLocked()
		p.startLocked()
	}
	p.log.Info("plan options updated", zap.Any("options", options))
	return nil
}

func (p *Plugin) StartThreads() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.startLocked()
	}
}

// StopThreads stops both runners, waiting for in-flight ticks.
func (p *Plugin) StopThreads() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.stopLocked()
	}
}

func (p *Plugin) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Plugin) startLocked() {
	p.runners = []*Runner{
		p.newRunner(metrics.RunnerPayment, p.paymentInterval, p.payments.Tick),
		p.newRunner(metrics.RunnerStopService, p.opts.StopServiceWaitTime, p.stopServiceLocked()),
	}
	for _, r := range p.runners {
		r.Start()
	}
	p.started = true
}

// StopService returns one stop-service tick built from the current options.
func (p *Plugin) StopService() TickFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopServiceLocked()
}

func (p *Plugin) stopServiceLocked() TickFunc {
	policy := NewLifecyclePolicy(LifecycleConfig{
		Plan:               p.cfg.Name,
		Resources:          p.cfg.Resources,
		Payments:           p.cfg.Ledger,
		WaitBeforeStopping: p.opts.WaitBeforeStopping,
		Clock:              p.cfg.Clock,
		Log:                p.log,
		Metrics:            p.cfg.Metrics,
	})
	return NewStopServiceTick(p.cfg.Users, p.cfg.Name, policy, p.cfg.Metrics)
}

func (p *Plugin) stopLocked() {
	for _, r := range p.runners {
		r.Stop()
	}
	p.runners = nil
	p.started = false
}

func (p *Plugin) newRunner(name string, interval time.Duration, tick TickFunc) *Runner {
	return NewRunner(RunnerConfig{
		Plan:     p.cfg.Name,
		Name:     name,
		Interval: interval,
		Tick:     tick,
		Clock:    p.cfg.Clock,
		Log:      p.log,
		Metrics:  p.cfg.Metrics,
		Lock:     p.cfg.Lock,
	})
}

func (p *Plugin) IsRegisteredUser(principal tenantdomain.Principal) (bool, error) {
	return p.cfg.Users.IsRegisteredInPlan(principal, p.cfg.Name)
}

// IsAuthorized lets a tenant act while its past debts are paid. Creating
// resources also needs the current period to be paid.
func (p *Plugin) IsAuthorized(principal tenantdomain.Principal, op plandomain.Operation) (bool, error) {
	var authorized bool
	err := p.cfg.Users.View(principal, func(u *tenantdomain.FinanceUser) error {
		if u.PlanName() != p.cfg.Name {
			return notInPlan(principal, p.cfg.Name)
		}
		authorized = p.debts.HasPaid(u)
		if authorized && op.IsCreation() {
			authorized = p.cfg.Ledger.HasPaid(u)
		}
		return nil
	})
	return authorized, err
}

// RegisterUser subscribes the tenant and resumes its resources once. A
// failed resume is logged only.
func (p *Plugin) RegisterUser(ctx context.Context, principal tenantdomain.Principal) error {
	err := p.Admit(func() error {
		return p.cfg.Users.RegisterUser(ctx, principal, p.cfg.Name)
	})
	if err != nil {
		return err
	}
	if err := p.cfg.Resources.ResumeResourcesByUser(ctx, principal); err != nil {
		p.log.Warn("failed to resume resources of registered user",
			zap.String("user_id", principal.UserID),
			zap.String("provider", principal.Provider),
			zap.Error(err),
		)
	}
	return nil
}

// PurgeUser deletes every resource of the tenant.
func (p *Plugin) PurgeUser(ctx context.Context, principal tenantdomain.Principal) error {
	return p.cfg.Resources.PurgeUser(ctx, principal)
}

// UpdateUser runs fn on a tenant of this plan with its record locked.
func (p *Plugin) UpdateUser(ctx context.Context, principal tenantdomain.Principal, fn func(tx *store.Tx) error) error {
	return p.cfg.Users.Update(ctx, principal, func(tx *store.Tx) error {
		if tx.User().PlanName() != p.cfg.Name {
			return notInPlan(principal, p.cfg.Name)
		}
		return fn(tx)
	})
}

// ViewUser runs fn on a tenant of this plan with its record locked.
func (p *Plugin) ViewUser(principal tenantdomain.Principal, fn func(u *tenantdomain.FinanceUser) error) error {
	return p.cfg.Users.View(principal, func(u *tenantdomain.FinanceUser) error {
		if u.PlanName() != p.cfg.Name {
			return notInPlan(principal, p.cfg.Name)
		}
		return fn(u)
	})
}

func notInPlan(principal tenantdomain.Principal, plan string) error {
	return ierr.NewErrorf("user %s is not registered in plan %s", principal, plan).
		WithHintf("user is not registered in plan %s", plan).
		Mark(ierr.ErrNotFound)
}
