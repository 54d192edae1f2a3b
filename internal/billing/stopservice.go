package billing

import (
	"context"

	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"go.uber.org/zap"
)

// NewStopServiceTick returns the tick that walks plan's tenants through the
// lifecycle, persisting each tenant whose state moved. A failed save rolls
// the in-memory state back so the step is retried.
func NewStopServiceTick(users *store.Store, plan string, policy *LifecyclePolicy, m *metrics.RunnerMetrics) TickFunc {
	return func(ctx context.Context, log *zap.Logger) (scanlist.Status, error) {
		return ScanPlanTenants(ctx, users, plan, metrics.RunnerStopService, log, m, func(ctx context.Context, tx *store.Tx) error {
			u := tx.User()
			prevState, prevWait := u.State, u.WaitStart
			changed, err := policy.UpdateUserState(ctx, u)
			if err != nil || !changed {
				return err
			}
			if err := tx.Save(); err != nil {
				u.State, u.WaitStart = prevState, prevWait
				return err
			}
			return nil
		})
	}
}
