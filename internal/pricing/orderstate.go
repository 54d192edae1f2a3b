package pricing

import (
	"strings"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

// OrderState is the lifecycle state of a resource order at the time its
// usage is charged.
type OrderState string

const (
	OrderStateOpen                         OrderState = "open"
	OrderStateSelected                     OrderState = "selected"
	OrderStateFailedOnRequest              OrderState = "failed_on_request"
	OrderStateSpawning                     OrderState = "spawning"
	OrderStateFulfilled                    OrderState = "fulfilled"
	OrderStateFailedAfterSuccessfulRequest OrderState = "failed_after_successful_request"
	OrderStateUnableToCheckStatus          OrderState = "unable_to_check_status"
	OrderStatePending                      OrderState = "pending"
	OrderStatePausing                      OrderState = "pausing"
	OrderStatePaused                       OrderState = "paused"
	OrderStateHibernating                  OrderState = "hibernating"
	OrderStateHibernated                   OrderState = "hibernated"
	OrderStateStopping                     OrderState = "stopping"
	OrderStateStopped                      OrderState = "stopped"
	OrderStateResuming                     OrderState = "resuming"
	OrderStateDeactivated                  OrderState = "deactivated"
	OrderStateCheckingDeletion             OrderState = "checking_deletion"
	OrderStateAssignedForDeletion          OrderState = "assigned_for_deletion"
	OrderStateClosed                       OrderState = "closed"
)

var orderStates = map[OrderState]struct{}{
	OrderStateOpen:                         {},
	OrderStateSelected:                     {},
	OrderStateFailedOnRequest:              {},
	OrderStateSpawning:                     {},
	OrderStateFulfilled:                    {},
	OrderStateFailedAfterSuccessfulRequest: {},
	OrderStateUnableToCheckStatus:          {},
	OrderStatePending:                      {},
	OrderStatePausing:                      {},
	OrderStatePaused:                       {},
	OrderStateHibernating:                  {},
	OrderStateHibernated:                   {},
	OrderStateStopping:                     {},
	OrderStateStopped:                      {},
	OrderStateResuming:                     {},
	OrderStateDeactivated:                  {},
	OrderStateCheckingDeletion:             {},
	OrderStateAssignedForDeletion:          {},
	OrderStateClosed:                       {},
}

// ParseOrderState is case-insensitive.
func ParseOrderState(s string) (OrderState, error) {
	state := OrderState(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := orderStates[state]; !ok {
		return "", ierr.NewErrorf("unknown order state %q", s).Mark(ierr.ErrValidation)
	}
	return state, nil
}
