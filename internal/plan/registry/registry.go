package registry

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"github.com/smallbiznis/fedbill/internal/clock"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type PlanList = scanlist.List[plandomain.Plugin]

type Params struct {
	fx.In

	Repo    plandomain.Repository
	Users   *store.Store
	Factory plandomain.Factory
	Clock   clock.Clock
	Log     *zap.Logger
}

// Registry owns the set of registered plans. Plan names are unique.
type Registry struct {
	repo    plandomain.Repository
	users   *store.Store
	factory plandomain.Factory
	clock   clock.Clock
	log     *zap.Logger

	mu    sync.RWMutex
	plans *PlanList

	// writeMu serializes registration and removal so name checks hold.
	writeMu sync.Mutex
}

func New(ctx context.Context, p Params) (*Registry, error) {
	if p.Repo == nil || p.Users == nil || p.Factory == nil || p.Clock == nil {
		return nil, ierr.NewError("plan registry requires a repository, tenant store, factory and clock").
			Mark(ierr.ErrInternal)
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		repo:    p.Repo,
		users:   p.Users,
		factory: p.Factory,
		clock:   p.Clock,
		log:     log.Named("plan_registry").With(zap.String("component", "plan_registry")),
	}
	if err := r.Reset(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reset discards in-memory plans and rebuilds them from storage. Running
// plugins are not stopped here.
func (r *Registry) Reset(ctx context.Context) error {
	records, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	plugins := make([]plandomain.Plugin, 0, len(records))
	for _, rec := range records {
		plugin, err := r.factory.Build(rec)
		if err != nil {
			return ierr.WithError(err).WithHintf("failed to load plan %s", rec.Name).Mark(ierr.ErrInternal)
		}
		plugins = append(plugins, plugin)
	}

	r.mu.Lock()
	r.plans = scanlist.New(plugins...)
	r.mu.Unlock()

	r.log.Info("plans loaded", zap.Int("plans", len(plugins)))
	return nil
}

// Plans returns the live plan list.
func (r *Registry) Plans() *PlanList {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plans
}

func (r *Registry) ListPlans() []plandomain.Plugin {
	return r.Plans().Items()
}

// RegisterFinancePlan adds and persists plugin. The name must be free.
func (r *Registry) RegisterFinancePlan(ctx context.Context, plugin plandomain.Plugin) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, err := r.GetFinancePlan(plugin.Name()); err == nil {
		return ierr.NewErrorf("plan %s already exists", plugin.Name()).
			WithHint("plan name is already in use").
			Mark(ierr.ErrAlreadyExists)
	} else if !ierr.IsNotFound(err) {
		return err
	}

	now := r.clock.Now()
	if err := r.repo.Create(ctx, plandomain.Plan{
		Name:      plugin.Name(),
		Type:      plugin.Type(),
		Options:   plugin.Options(),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	r.Plans().Add(plugin)
	r.log.Info("plan registered", zap.String("plan", plugin.Name()), zap.String("type", string(plugin.Type())))
	return nil
}

// GetFinancePlan returns the plan called name.
func (r *Registry) GetFinancePlan(name string) (plandomain.Plugin, error) {
	plugin, found, err := scanlist.Select(r.Plans(), func(p plandomain.Plugin) bool {
		return p.Name() == name
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ierr.NewErrorf("plan %s not found", name).
			WithHint("unknown plan").
			Mark(ierr.ErrNotFound)
	}
	return plugin, nil
}

// RemoveFinancePlan removes a plan that has no subscribed tenants and stops its runners.
func (r *Registry) RemoveFinancePlan(ctx context.Context, name string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	plugin, err := r.GetFinancePlan(name)
	if err != nil {
		return err
	}
	// Retire waits for in-flight subscriptions, so the emptiness check below
	// cannot be invalidated before the plan is gone.
	plugin.Retire()
	if !r.users.RegisteredUsersByPlan(name).IsEmpty() {
		plugin.Reinstate()
		return ierr.NewErrorf("plan %s still has subscribed users", name).
			WithHint("unregister or move every user before removing the plan").
			Mark(ierr.ErrValidation)
	}

	if err := r.repo.Delete(ctx, name); err != nil {
		plugin.Reinstate()
		return err
	}
	r.Plans().Remove(plugin)
	plugin.StopThreads()

	r.log.Info("plan removed", zap.String("plan", name))
	return nil
}

// UpdateFinancePlan replaces a plan's options and persists them.
func (r *Registry) UpdateFinancePlan(ctx context.Context, name string, options map[string]string) error {
	plugin, err := r.GetFinancePlan(name)
	if err != nil {
		return err
	}

	previous := plugin.Options()
	if err := plugin.SetOptions(options); err != nil {
		return err
	}

	if err := r.repo.Save(ctx, plandomain.Plan{
		Name:      plugin.Name(),
		Type:      plugin.Type(),
		Options:   plugin.Options(),
		UpdatedAt: r.clock.Now(),
	}); err != nil {
		if restoreErr := plugin.SetOptions(previous); restoreErr != nil {
			r.log.Error("failed to restore plan options", zap.String("plan", name), zap.Error(restoreErr))
		}
		return err
	}

	r.log.Info("plan options updated", zap.String("plan", name), zap.Strings("keys", lo.Keys(options)))
	return nil
}

func (r *Registry) GetFinancePlanOptions(name string) (map[string]string, error) {
	plugin, err := r.GetFinancePlan(name)
	if err != nil {
		return nil, err
	}
	return plugin.Options(), nil
}

// GetUserPlan returns the first plan that reports p as registered.
func (r *Registry) GetUserPlan(p tenantdomain.Principal) (plandomain.Plugin, error) {
	plugin, found, err := scanlist.SelectE(r.Plans(), func(plugin plandomain.Plugin) (bool, error) {
		return plugin.IsRegisteredUser(p)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ierr.NewErrorf("user %s is not managed by any plan", p).
			WithHint("user is not registered in any plan").
			Mark(ierr.ErrNotFound)
	}
	return plugin, nil
}
