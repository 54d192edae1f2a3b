package billing

import (
	"context"
	"time"

	"github.com/smallbiznis/fedbill/internal/accounting"
	"github.com/smallbiznis/fedbill/internal/clock"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	"github.com/smallbiznis/fedbill/internal/pricing"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"go.uber.org/zap"
)

// Ledger books priced usage on a tenant. Post-paid plans write invoices,
// pre-paid plans draw down credits.
type Ledger interface {
	PaymentStatus
	// Apply books charges for [start, end) on the locked tenant u. The
	// returned undo reverts u when the write that follows fails.
	Apply(u *tenantdomain.FinanceUser, charges []Charge, start, end time.Time) (undo func(), err error)
}

type PaymentConfig struct {
	Plan            string
	Users           *store.Store
	Records         accounting.Client
	Policy          *pricing.Policy
	Ledger          Ledger
	BillingInterval time.Duration
	Clock           clock.Clock
	Metrics         *metrics.RunnerMetrics
	// Booked runs after a tenant's booking is persisted.
	Booked func()
}

// Payments bills a plan's tenants once per billing interval.
type Payments struct {
	cfg PaymentConfig
}

func NewPayments(cfg PaymentConfig) *Payments {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Booked == nil {
		cfg.Booked = func() {}
	}
	return &Payments{cfg: cfg}
}

// Tick bills every tenant whose billing interval has elapsed. It is the
// TickFunc of the plan's payment runner.
func (p *Payments) Tick(ctx context.Context, log *zap.Logger) (scanlist.Status, error) {
	return ScanPlanTenants(ctx, p.cfg.Users, p.cfg.Plan, metrics.RunnerPayment, log, p.cfg.Metrics, func(ctx context.Context, tx *store.Tx) error {
		u := tx.User()
		if p.cfg.Clock.Now().Sub(u.LastBillingTime) < p.cfg.BillingInterval {
			return nil
		}
		undo, err := p.Bill(ctx, u, p.cfg.Ledger)
		if err != nil {
			return err
		}
		if err := tx.Save(); err != nil {
			undo()
			return err
		}
		p.cfg.Booked()
		log.Debug("user billed",
			zap.String("user_id", u.UserID),
			zap.String("provider", u.Provider),
			zap.Time("billed_until", u.LastBillingTime),
		)
		return nil
	})
}

// Bill books u's usage since its last billing time up to now with ledger and
// advances the billing time. u must be locked. Nothing is persisted.
func (p *Payments) Bill(ctx context.Context, u *tenantdomain.FinanceUser, ledger Ledger) (undo func(), err error) {
	start, end := u.LastBillingTime, p.cfg.Clock.Now()

	records, err := p.cfg.Records.GetUserRecords(ctx, u.Principal(), start, end)
	if err != nil {
		return nil, err
	}
	charges, err := PriceRecords(p.cfg.Policy, records, start, end)
	if err != nil {
		return nil, err
	}
	undoLedger, err := ledger.Apply(u, charges, start, end)
	if err != nil {
		return nil, err
	}

	u.LastBillingTime = end
	return func() {
		undoLedger()
		u.LastBillingTime = start
	}, nil
}
