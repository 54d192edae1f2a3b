package store

import (
	"context"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"go.uber.org/zap"
)

// Tx is an open record transaction. It holds the tenant's record lock until
// the callback passed to Update or UpdateRecord returns.
type Tx struct {
	ctx   context.Context
	store *Store
	user  *tenantdomain.FinanceUser
}

// User returns the locked record.
func (tx *Tx) User() *tenantdomain.FinanceUser {
	return tx.user
}

// Save writes the record through to storage.
func (tx *Tx) Save() error {
	return tx.store.repo.Save(tx.ctx, tx.user)
}

// ChangePlan moves the tenant from its active plan to newPlan.
func (tx *Tx) ChangePlan(newPlan string) error {
	u := tx.user
	if !u.IsSubscribed() {
		return ierr.NewErrorf("user %s is not subscribed to any plan", u.Principal()).
			Mark(ierr.ErrInvalidOperation)
	}
	oldPlan := u.PlanName()
	if oldPlan == newPlan {
		return ierr.NewErrorf("user %s is already subscribed to plan %s", u.Principal(), newPlan).
			Mark(ierr.ErrValidation)
	}

	prevActive := u.ActiveSubscription
	prevInactive := u.InactiveSubscriptions

	now := tx.store.clock.Now()
	if err := u.Unsubscribe(now); err != nil {
		return err
	}
	if err := u.Subscribe(newPlan, now); err != nil {
		return err
	}
	if err := tx.Save(); err != nil {
		u.ActiveSubscription = prevActive
		u.InactiveSubscriptions = prevInactive
		return err
	}

	tx.store.move(u, tx.store.RegisteredUsersByPlan(oldPlan), tx.store.RegisteredUsersByPlan(newPlan))
	tx.store.log.Info("user changed plan",
		zap.String("user_id", u.UserID),
		zap.String("provider", u.Provider),
		zap.String("from", oldPlan),
		zap.String("to", newPlan),
	)
	return nil
}

// Unregister ends the active subscription and moves the tenant to the inactive list.
func (tx *Tx) Unregister() error {
	u := tx.user
	if !u.IsSubscribed() {
		return ierr.NewErrorf("user %s is not subscribed to any plan", u.Principal()).
			Mark(ierr.ErrInvalidOperation)
	}
	plan := u.PlanName()
	prevActive := u.ActiveSubscription
	prevInactive := u.InactiveSubscriptions

	if err := u.Unsubscribe(tx.store.clock.Now()); err != nil {
		return err
	}
	if err := tx.Save(); err != nil {
		u.ActiveSubscription = prevActive
		u.InactiveSubscriptions = prevInactive
		return err
	}

	tx.store.move(u, tx.store.RegisteredUsersByPlan(plan), tx.store.InactiveUsers())
	tx.store.log.Info("user unregistered",
		zap.String("user_id", u.UserID),
		zap.String("provider", u.Provider),
		zap.String("plan", plan),
	)
	return nil
}

// Update locks p's record for the duration of fn.
func (s *Store) Update(ctx context.Context, p tenantdomain.Principal, fn func(tx *Tx) error) error {
	u, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}
	return s.UpdateRecord(ctx, u, fn)
}

// UpdateRecord is Update for a record already obtained from a scan.
func (s *Store) UpdateRecord(ctx context.Context, u *tenantdomain.FinanceUser, fn func(tx *Tx) error) error {
	u.Lock()
	defer u.Unlock()
	if err := s.refresh(ctx, u); err != nil {
		return err
	}
	return fn(&Tx{ctx: ctx, store: s, user: u})
}

// View runs fn with p's record locked, for reads.
func (s *Store) View(p tenantdomain.Principal, fn func(u *tenantdomain.FinanceUser) error) error {
	ctx := context.Background()
	u, err := s.lookup(ctx, p)
	if err != nil {
		return err
	}
	u.Lock()
	defer u.Unlock()
	if err := s.refresh(ctx, u); err != nil {
		return err
	}
	return fn(u)
}

// SaveUser locks and persists p's record.
func (s *Store) SaveUser(ctx context.Context, p tenantdomain.Principal) error {
	return s.Update(ctx, p, func(tx *Tx) error { return tx.Save() })
}
