// Package finance routes federation requests to the plan that manages each
// user and owns the plan lifecycle.
package finance

import (
	"context"
	"sync"

	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/smallbiznis/fedbill/internal/plan/registry"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxParallelPlugins = 8

type Params struct {
	fx.In

	Registry *registry.Registry
	Users    *store.Store
	Factory  plandomain.Factory
	Plans    *config.PlansConfigHolder
	Config   config.Config
	Metrics  *metrics.Metrics `optional:"true"`
	Log      *zap.Logger
}

type Manager struct {
	registry *registry.Registry
	users    *store.Store
	factory  plandomain.Factory
	plans    *config.PlansConfigHolder
	metrics  *metrics.Metrics
	log      *zap.Logger

	defaultPlanName string
	defaultPlanType string

	// reloadMu keeps a reload from interleaving with another one or with
	// the start-up bootstrap.
	reloadMu sync.Mutex
}

func New(p Params) *Manager {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	plans := p.Plans
	if plans == nil {
		plans = config.NewStaticPlansConfigHolder(config.PlansConfig{})
	}
	return &Manager{
		registry:        p.Registry,
		users:           p.Users,
		factory:         p.Factory,
		plans:           plans,
		metrics:         p.Metrics,
		log:             log.Named("finance_manager").With(zap.String("component", "finance_manager")),
		defaultPlanName: p.Config.DefaultPlanName,
		defaultPlanType: p.Config.DefaultPlanType,
	}
}

func (m *Manager) IsAuthorized(ctx context.Context, p tenantdomain.Principal, op plandomain.Operation) (bool, error) {
	plugin, err := m.registry.GetUserPlan(p)
	if err != nil {
		return false, err
	}
	authorized, err := plugin.IsAuthorized(p, op)
	if err != nil {
		return false, err
	}
	m.metrics.RecordAuthorization(ctx, string(op.Type), authorized)
	return authorized, nil
}

func (m *Manager) GetFinanceStateProperty(p tenantdomain.Principal, property string) (string, error) {
	plugin, err := m.registry.GetUserPlan(p)
	if err != nil {
		return "", err
	}
	return plugin.GetFinanceStateProperty(p, property)
}

func (m *Manager) UpdateFinanceState(ctx context.Context, p tenantdomain.Principal, state map[string]string) error {
	plugin, err := m.registry.GetUserPlan(p)
	if err != nil {
		return err
	}
	return plugin.UpdateFinanceState(ctx, p, state)
}

// ChangePlan moves p from its current plan to newPlan.
func (m *Manager) ChangePlan(ctx context.Context, p tenantdomain.Principal, newPlan string) error {
	target, err := m.registry.GetFinancePlan(newPlan)
	if err != nil {
		return err
	}
	plugin, err := m.registry.GetUserPlan(p)
	if err != nil {
		return err
	}
	err = target.Admit(func() error {
		return plugin.ChangePlan(ctx, p, newPlan)
	})
	if err != nil {
		return err
	}
	m.log.Info("user changed plan",
		zap.String("user_id", p.UserID),
		zap.String("provider", p.Provider),
		zap.String("from", plugin.Name()),
		zap.String("to", newPlan),
	)
	return nil
}

func (m *Manager) UnregisterUser(ctx context.Context, p tenantdomain.Principal) error {
	plugin, err := m.registry.GetUserPlan(p)
	if err != nil {
		return err
	}
	return plugin.UnregisterUser(ctx, p)
}

// AddUser subscribes p to the plan called planName.
func (m *Manager) AddUser(ctx context.Context, p tenantdomain.Principal, planName string) error {
	plugin, err := m.registry.GetFinancePlan(planName)
	if err != nil {
		return err
	}
	return plugin.RegisterUser(ctx, p)
}

// RemoveUser deletes the record of an unsubscribed user.
func (m *Manager) RemoveUser(ctx context.Context, p tenantdomain.Principal) error {
	if plugin, err := m.registry.GetUserPlan(p); err == nil {
		return ierr.NewErrorf("user %s is still subscribed to plan %s", p, plugin.Name()).
			WithHint("unregister the user before removing it").
			Mark(ierr.ErrInvalidOperation)
	} else if !ierr.IsNotFound(err) {
		return err
	}
	return m.users.RemoveUser(ctx, p)
}

func (m *Manager) GetUserPlan(p tenantdomain.Principal) (string, error) {
	plugin, err := m.registry.GetUserPlan(p)
	if err != nil {
		return "", err
	}
	return plugin.Name(), nil
}

// GetInvoice returns a copy of invoice id of p.
func (m *Manager) GetInvoice(p tenantdomain.Principal, id string) (tenantdomain.Invoice, error) {
	var out tenantdomain.Invoice
	err := m.users.View(p, func(u *tenantdomain.FinanceUser) error {
		inv, ok := u.Invoice(id)
		if !ok {
			return ierr.NewErrorf("invoice %s of user %s not found", id, p).Mark(ierr.ErrNotFound)
		}
		out = *inv
		out.Items = append([]tenantdomain.InvoiceItem(nil), inv.Items...)
		return nil
	})
	return out, err
}

// CreateFinancePlan builds, registers and starts a new plan.
func (m *Manager) CreateFinancePlan(ctx context.Context, name, planType string, options map[string]string) error {
	typ, err := plandomain.ParsePlanType(planType)
	if err != nil {
		return err
	}
	if name == "" {
		return ierr.NewError("plan name is required").Mark(ierr.ErrValidation)
	}
	plugin, err := m.factory.Build(plandomain.Plan{Name: name, Type: typ, Options: options})
	if err != nil {
		return err
	}
	if err := m.registry.RegisterFinancePlan(ctx, plugin); err != nil {
		return err
	}
	plugin.StartThreads()
	m.metrics.RecordPlanOperation(ctx, "create", string(typ))
	return nil
}

func (m *Manager) GetFinancePlanOptions(name string) (map[string]string, error) {
	return m.registry.GetFinancePlanOptions(name)
}

func (m *Manager) ChangeOptions(ctx context.Context, name string, options map[string]string) error {
	if err := m.registry.UpdateFinancePlan(ctx, name, options); err != nil {
		return err
	}
	m.metrics.RecordPlanOperation(ctx, "update", "")
	return nil
}

func (m *Manager) RemoveFinancePlan(ctx context.Context, name string) error {
	if err := m.registry.RemoveFinancePlan(ctx, name); err != nil {
		return err
	}
	m.metrics.RecordPlanOperation(ctx, "remove", "")
	return nil
}

// Plans returns the registered plan names in registry order.
func (m *Manager) Plans() []string {
	plugins := m.registry.ListPlans()
	names := make([]string, 0, len(plugins))
	for _, plugin := range plugins {
		names = append(names, plugin.Name())
	}
	return names
}

func (m *Manager) StartPlugins(ctx context.Context) error {
	return m.forEachPlugin(ctx, "plugins started", func(plugin plandomain.Plugin) {
		if !plugin.IsStarted() {
			plugin.StartThreads()
		}
	})
}

func (m *Manager) StopPlugins(ctx context.Context) error {
	return m.forEachPlugin(ctx, "plugins stopped", func(plugin plandomain.Plugin) {
		if plugin.IsStarted() {
			plugin.StopThreads()
		}
	})
}

// forEachPlugin collects every plan with a restarting scan, then runs fn on
// each of them in parallel.
func (m *Manager) forEachPlugin(ctx context.Context, done string, fn func(plandomain.Plugin)) error {
	seen := map[string]plandomain.Plugin{}
	var order []plandomain.Plugin
	err := scanlist.Process(m.registry.Plans(), func(plugin plandomain.Plugin) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := seen[plugin.Name()]; !ok {
			seen[plugin.Name()] = plugin
			order = append(order, plugin)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p := pool.New().WithMaxGoroutines(maxParallelPlugins)
	for _, plugin := range order {
		p.Go(func() { fn(plugin) })
	}
	p.Wait()

	m.log.Info(done, zap.Int("plans", len(order)))
	return nil
}

// Bootstrap creates the default plan on an empty registry and any plan of
// the plans file that is not registered yet.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	return m.bootstrap(ctx)
}

func (m *Manager) bootstrap(ctx context.Context) error {
	defs := m.plans.Get()

	if m.registry.Plans().IsEmpty() && m.defaultPlanName != "" {
		var options map[string]string
		if def, ok := defs.Lookup(m.defaultPlanName); ok {
			options = def.Options
		}
		if err := m.CreateFinancePlan(ctx, m.defaultPlanName, m.defaultPlanType, options); err != nil {
			return ierr.WithError(err).WithHintf("failed to create default plan %s", m.defaultPlanName).Err()
		}
		m.log.Info("default plan created", zap.String("plan", m.defaultPlanName), zap.String("type", m.defaultPlanType))
	}

	for _, def := range defs.Plans {
		if _, err := m.registry.GetFinancePlan(def.Name); err == nil {
			continue
		} else if !ierr.IsNotFound(err) {
			return err
		}
		if err := m.CreateFinancePlan(ctx, def.Name, def.Type, def.Options); err != nil {
			return ierr.WithError(err).WithHintf("failed to create bootstrap plan %s", def.Name).Err()
		}
		m.log.Info("bootstrap plan created", zap.String("plan", def.Name), zap.String("type", def.Type))
	}
	return nil
}

// Reload stops every plan, reloads users and plans from storage, applies
// the plans file and starts everything again.
func (m *Manager) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	if err := m.StopPlugins(ctx); err != nil {
		return err
	}
	if err := m.users.Reset(ctx); err != nil {
		return err
	}
	if err := m.registry.Reset(ctx); err != nil {
		return err
	}
	if err := m.bootstrap(ctx); err != nil {
		return err
	}
	if err := m.StartPlugins(ctx); err != nil {
		return err
	}
	m.log.Info("configuration reloaded", zap.Strings("plans", m.Plans()))
	return nil
}
