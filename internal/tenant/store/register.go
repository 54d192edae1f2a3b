package store

import (
	"context"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"go.uber.org/zap"
)

// RegisterUser subscribes p to plan. An inactive tenant is resubscribed; an
// unknown one is created.
func (s *Store) RegisterUser(ctx context.Context, p tenantdomain.Principal, plan string) error {
	if p.UserID == "" || p.Provider == "" || plan == "" {
		return ierr.NewError("user id, provider and plan are required").Mark(ierr.ErrValidation)
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	existing, err := s.findLocked(ctx, p)
	switch {
	case err == nil:
		return s.resubscribe(ctx, existing, plan)
	case ierr.IsNotFound(err):
		return s.create(ctx, p, plan)
	default:
		return err
	}
}

func (s *Store) resubscribe(ctx context.Context, u *tenantdomain.FinanceUser, plan string) error {
	u.Lock()
	defer u.Unlock()

	if err := s.refresh(ctx, u); err != nil {
		return err
	}

	if u.IsSubscribed() {
		return ierr.NewErrorf("user %s is already subscribed to plan %s", u.Principal(), u.PlanName()).
			WithHint("user is already registered").
			Mark(ierr.ErrAlreadyExists)
	}

	prevBilling := u.LastBillingTime
	now := s.clock.Now()
	if err := u.Subscribe(plan, now); err != nil {
		return err
	}
	u.LastBillingTime = now

	if err := s.repo.Save(ctx, u); err != nil {
		u.ActiveSubscription = nil
		u.LastBillingTime = prevBilling
		return err
	}

	s.move(u, s.InactiveUsers(), s.RegisteredUsersByPlan(plan))
	s.log.Info("user resubscribed", zap.String("user_id", u.UserID), zap.String("provider", u.Provider), zap.String("plan", plan))
	return nil
}

func (s *Store) create(ctx context.Context, p tenantdomain.Principal, plan string) error {
	u := tenantdomain.NewFinanceUser(p)
	now := s.clock.Now()
	if err := u.Subscribe(plan, now); err != nil {
		return err
	}
	u.LastBillingTime = now

	u.Lock()
	defer u.Unlock()

	list := s.RegisteredUsersByPlan(plan)
	list.Add(u)
	if err := s.repo.Save(ctx, u); err != nil {
		list.Remove(u)
		return err
	}

	s.log.Info("user registered", zap.String("user_id", p.UserID), zap.String("provider", p.Provider), zap.String("plan", plan))
	return nil
}

// RemoveUser deletes an inactive tenant.
func (s *Store) RemoveUser(ctx context.Context, p tenantdomain.Principal) error {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	u, err := s.findLocked(ctx, p)
	if err != nil {
		return err
	}

	u.Lock()
	defer u.Unlock()

	if err := s.refresh(ctx, u); err != nil {
		return err
	}
	if u.IsSubscribed() {
		return ierr.NewErrorf("user %s is still subscribed to plan %s", p, u.PlanName()).
			WithHint("unregister the user before removing it").
			Mark(ierr.ErrInvalidOperation)
	}

	if err := s.repo.Delete(ctx, p); err != nil {
		return err
	}
	s.InactiveUsers().Remove(u)

	s.log.Info("user removed", zap.String("user_id", p.UserID), zap.String("provider", p.Provider))
	return nil
}

// ListUsers returns every known tenant.
func (s *Store) ListUsers() []*tenantdomain.FinanceUser {
	var out []*tenantdomain.FinanceUser
	seen := map[*tenantdomain.FinanceUser]struct{}{}
	for _, list := range s.allLists() {
		_ = scanlist.Process(list, func(u *tenantdomain.FinanceUser) error {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				out = append(out, u)
			}
			return nil
		})
	}
	return out
}
