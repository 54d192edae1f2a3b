package finance

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fedbill/internal/accounting"
	"github.com/smallbiznis/fedbill/internal/billing"
	"github.com/smallbiznis/fedbill/internal/billing/plugins"
	"github.com/smallbiznis/fedbill/internal/clock"
	"github.com/smallbiznis/fedbill/internal/config"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/smallbiznis/fedbill/internal/plan/registry"
	planrepo "github.com/smallbiznis/fedbill/internal/plan/repository"
	"github.com/smallbiznis/fedbill/internal/peer"
	"github.com/smallbiznis/fedbill/internal/ras"
	"github.com/smallbiznis/fedbill/internal/runlock"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/fedbill/internal/tenant/repository"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("finance",
	fx.Provide(
		clock.New,
		providePeers,
		provideAccounting,
		provideResources,
		provideTenantRepository,
		planrepo.Provide,
		provideStore,
		provideDeps,
		provideFactory,
		provideRegistry,
		config.NewPlansConfigHolder,
		New,
	),
	fx.Invoke(registerHooks),
)

// Peers groups the clients of the federation services.
type Peers struct {
	Accounting peer.Client
	RAS        peer.Client
	Tokens     *peer.TokenSource
}

func providePeers(cfg config.Config, m *metrics.Metrics, log *zap.Logger) Peers {
	newClient := func(name string) *peer.RetryingClient {
		return peer.NewClient(peer.ClientConfig{Peer: name, RetryMax: cfg.Peers.RetryMax}, m, log)
	}
	return Peers{
		Accounting: newClient("accs"),
		RAS:        newClient("ras"),
		Tokens: peer.NewTokenSource(newClient("as"), peer.TokenSourceConfig{
			AuthURL:  cfg.Peers.AuthURL,
			Username: cfg.Peers.Username,
			Password: cfg.Peers.Password,
			TTL:      cfg.Peers.TokenTTL,
		}, log),
	}
}

func provideAccounting(cfg config.Config, peers Peers) accounting.Client {
	return accounting.NewHTTPClient(accounting.Config{
		BaseURL:       cfg.Peers.AccountingURL,
		LocalProvider: cfg.Peers.LocalProvider,
	}, peers.Accounting, peers.Tokens)
}

func provideResources(cfg config.Config, peers Peers, log *zap.Logger) billing.ResourceManager {
	return ras.NewClient(ras.Config{BaseURL: cfg.Peers.RASURL}, peers.RAS, peers.Tokens, log)
}

func provideTenantRepository(db *gorm.DB, node *snowflake.Node) tenantdomain.Repository {
	return tenantrepo.Provide(db, node)
}

func provideStore(p store.Params) (*store.Store, error) {
	return store.New(context.Background(), p)
}

type depsParams struct {
	fx.In

	Users     *store.Store
	Resources billing.ResourceManager
	Records   accounting.Client
	Clock     clock.Clock
	Log       *zap.Logger
	Metrics   *metrics.RunnerMetrics
	Lock      *runlock.Locker `optional:"true"`
}

func provideDeps(p depsParams) billing.Deps {
	return billing.Deps{
		Users:     p.Users,
		Resources: p.Resources,
		Records:   p.Records,
		Clock:     p.Clock,
		Log:       p.Log,
		Metrics:   p.Metrics,
		Lock:      p.Lock,
	}
}

func provideFactory(deps billing.Deps) plandomain.Factory {
	return plugins.NewFactory(deps)
}

func provideRegistry(p registry.Params) (*registry.Registry, error) {
	return registry.New(context.Background(), p)
}

func registerHooks(lc fx.Lifecycle, m *Manager, plans *config.PlansConfigHolder) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := m.Bootstrap(ctx); err != nil {
				return err
			}
			if err := m.StartPlugins(ctx); err != nil {
				return err
			}
			plans.OnReload(func(config.PlansConfig) {
				if err := m.Reload(context.Background()); err != nil {
					m.log.Error("reload after plans file change failed", zap.Error(err))
				}
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return m.StopPlugins(ctx)
		},
	})
}
