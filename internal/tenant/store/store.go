package store

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/smallbiznis/fedbill/internal/clock"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type UserList = scanlist.List[*tenantdomain.FinanceUser]

type Params struct {
	fx.In

	Repo   tenantdomain.Repository
	Clock  clock.Clock
	Log    *zap.Logger
	Config config.Config `optional:"true"`
}

// Store owns every tenant record. Each tenant sits in exactly one list: the
// list of its active plan or the inactive list.
type Store struct {
	repo  tenantdomain.Repository
	clock clock.Clock
	log   *zap.Logger

	// shared is set when other replicas write the same rows. Locked records
	// are then reloaded from storage before use.
	shared bool

	// mu guards the list references, never a scan.
	mu       sync.RWMutex
	plans    map[string]*UserList
	inactive *UserList

	// registerMu serializes creation and deletion of tenant records.
	registerMu sync.Mutex

	// moving counts list moves in flight and moves counts finished ones, so
	// a lookup can tell a real miss from a tenant caught between lists.
	moving atomic.Int64
	moves  atomic.Uint64
}

func New(ctx context.Context, p Params) (*Store, error) {
	if p.Repo == nil || p.Clock == nil {
		return nil, ierr.NewError("tenant store requires a repository and a clock").Mark(ierr.ErrInternal)
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		repo:   p.Repo,
		clock:  p.Clock,
		log:    log.Named("tenant_store").With(zap.String("component", "tenant_store")),
		shared: p.Config.SharedStorage(),
	}
	if err := s.Reset(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset reloads every tenant from storage and rebuilds the lists.
func (s *Store) Reset(ctx context.Context) error {
	users, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	plans := map[string]*UserList{}
	inactive := scanlist.New[*tenantdomain.FinanceUser]()
	for _, u := range users {
		if !u.IsSubscribed() {
			inactive.Add(u)
			continue
		}
		list, ok := plans[u.PlanName()]
		if !ok {
			list = scanlist.New[*tenantdomain.FinanceUser]()
			plans[u.PlanName()] = list
		}
		list.Add(u)
	}

	s.mu.Lock()
	s.plans = plans
	s.inactive = inactive
	s.mu.Unlock()

	s.log.Info("tenants loaded", zap.Int("users", len(users)), zap.Int("plans", len(plans)))
	return nil
}

// RegisteredUsersByPlan returns the list of tenants subscribed to plan.
func (s *Store) RegisteredUsersByPlan(plan string) *UserList {
	s.mu.RLock()
	list, ok := s.plans[plan]
	s.mu.RUnlock()
	if ok {
		return list
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if list, ok = s.plans[plan]; !ok {
		list = scanlist.New[*tenantdomain.FinanceUser]()
		s.plans[plan] = list
	}
	return list
}

// InactiveUsers returns the list of tenants without an active subscription.
func (s *Store) InactiveUsers() *UserList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inactive
}

func (s *Store) allLists() []*UserList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lists := make([]*UserList, 0, len(s.plans)+1)
	for _, l := range s.plans {
		lists = append(lists, l)
	}
	return append(lists, s.inactive)
}

// GetUserByID finds a tenant in any plan list or the inactive list.
func (s *Store) GetUserByID(p tenantdomain.Principal) (*tenantdomain.FinanceUser, error) {
	for {
		gen := s.moves.Load()
		busy := s.moving.Load() > 0

		for _, list := range s.allLists() {
			u, found, err := scanlist.Select(list, func(u *tenantdomain.FinanceUser) bool { return u.Is(p) })
			if err != nil {
				return nil, err
			}
			if found {
				return u, nil
			}
		}

		if !busy && s.moving.Load() == 0 && s.moves.Load() == gen {
			return nil, ierr.NewErrorf("user %s not found", p).
				WithHint("unknown user").
				Mark(ierr.ErrNotFound)
		}
		runtime.Gosched()
	}
}

// IsRegisteredInPlan reports whether p is in plan's list. On shared storage
// the stored subscription decides.
func (s *Store) IsRegisteredInPlan(p tenantdomain.Principal, plan string) (bool, error) {
	if s.shared {
		var registered bool
		err := s.View(p, func(u *tenantdomain.FinanceUser) error {
			registered = u.PlanName() == plan
			return nil
		})
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return registered, err
	}
	_, found, err := scanlist.Select(s.RegisteredUsersByPlan(plan), func(u *tenantdomain.FinanceUser) bool {
		return u.Is(p)
	})
	return found, err
}

func (s *Store) move(u *tenantdomain.FinanceUser, from, to *UserList) {
	s.moving.Add(1)
	from.Remove(u)
	to.Add(u)
	s.moves.Add(1)
	s.moving.Add(-1)
}
