package billing

import (
	"context"

	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"go.uber.org/zap"
)

// TenantFunc handles one tenant inside its record transaction.
type TenantFunc func(ctx context.Context, tx *store.Tx) error

// ScanPlanTenants makes one pass over plan's tenants. Each tenant is handled
// with its record locked, and skipped if it left plan in the meantime.
// Tenant errors are logged and the pass goes on. A list change ends the pass
// early with StatusModified; it is not restarted.
func ScanPlanTenants(
	ctx context.Context,
	users *store.Store,
	plan, runner string,
	log *zap.Logger,
	m *metrics.RunnerMetrics,
	fn TenantFunc,
) (scanlist.Status, error) {
	return scanlist.Scan(users.RegisteredUsersByPlan(plan), func(u *tenantdomain.FinanceUser) error {
		err := users.UpdateRecord(ctx, u, func(tx *store.Tx) error {
			if tx.User().PlanName() != plan {
				return nil
			}
			return fn(ctx, tx)
		})
		if err != nil {
			log.Warn("failed to process user",
				zap.String("user_id", u.UserID),
				zap.String("provider", u.Provider),
				zap.Error(err),
			)
			m.IncTenantError(plan, runner, err)
		}
		return nil
	})
}
