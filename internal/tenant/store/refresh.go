package store

import (
	"context"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"go.uber.org/zap"
)

// listOf is the list u belongs in given its current subscription.
func (s *Store) listOf(u *tenantdomain.FinanceUser) *UserList {
	if !u.IsSubscribed() {
		return s.InactiveUsers()
	}
	return s.RegisteredUsersByPlan(u.PlanName())
}

// refresh replaces u with its stored revision when storage is shared, and
// moves it to the list its stored subscription calls for. A record deleted
// elsewhere is dropped and reported as not found. The caller holds u's lock.
func (s *Store) refresh(ctx context.Context, u *tenantdomain.FinanceUser) error {
	if !s.shared || u.Version == 0 {
		return nil
	}

	fresh, err := s.repo.Get(ctx, u.Principal())
	if ierr.IsNotFound(err) {
		s.listOf(u).Remove(u)
		return err
	}
	if err != nil {
		return err
	}

	changed := fresh.Version != u.Version
	from := s.listOf(u)
	u.Adopt(fresh)
	if to := s.listOf(u); to != from {
		s.move(u, from, to)
	}
	if changed {
		s.log.Debug("user reloaded from storage",
			zap.String("user_id", u.UserID),
			zap.String("provider", u.Provider),
			zap.Int64("version", u.Version),
		)
	}
	return nil
}

// lookup is GetUserByID that, on shared storage, also finds tenants another
// replica created after this one loaded.
func (s *Store) lookup(ctx context.Context, p tenantdomain.Principal) (*tenantdomain.FinanceUser, error) {
	u, err := s.GetUserByID(p)
	if err == nil || !s.shared || !ierr.IsNotFound(err) {
		return u, err
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()
	return s.findLocked(ctx, p)
}

// findLocked runs with registerMu held.
func (s *Store) findLocked(ctx context.Context, p tenantdomain.Principal) (*tenantdomain.FinanceUser, error) {
	u, err := s.GetUserByID(p)
	if err == nil || !s.shared || !ierr.IsNotFound(err) {
		return u, err
	}

	stored, err := s.repo.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	s.listOf(stored).Add(stored)
	return stored, nil
}
