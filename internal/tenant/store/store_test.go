package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/fedbill/internal/clock"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRepo struct {
	mu      sync.Mutex
	users   map[tenantdomain.Principal]*tenantdomain.FinanceUser
	saves   int
	failErr error
}

func newFakeRepo(users ...*tenantdomain.FinanceUser) *fakeRepo {
	r := &fakeRepo{users: map[tenantdomain.Principal]*tenantdomain.FinanceUser{}}
	for _, u := range users {
		r.users[u.Principal()] = u
	}
	return r
}

func (r *fakeRepo) List(context.Context) ([]*tenantdomain.FinanceUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*tenantdomain.FinanceUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeRepo) Get(_ context.Context, p tenantdomain.Principal) (*tenantdomain.FinanceUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[p]
	if !ok {
		return nil, ierr.NewError("missing").Mark(ierr.ErrNotFound)
	}
	return u.Clone(), nil
}

func (r *fakeRepo) Save(_ context.Context, u *tenantdomain.FinanceUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.saves++
	u.Version++
	r.users[u.Principal()] = u
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, p tenantdomain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[p]; !ok {
		return ierr.NewError("missing").Mark(ierr.ErrNotFound)
	}
	delete(r.users, p)
	return nil
}

func newTestStore(t *testing.T, repo *fakeRepo) (*Store, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.UnixMilli(0))
	s, err := New(context.Background(), Params{Repo: repo, Clock: clk, Log: zap.NewNop()})
	require.NoError(t, err)
	return s, clk
}

func membership(s *Store, p tenantdomain.Principal, plans ...string) int {
	count := 0
	lists := []*UserList{s.InactiveUsers()}
	for _, plan := range plans {
		lists = append(lists, s.RegisteredUsersByPlan(plan))
	}
	for _, l := range lists {
		for _, u := range l.Items() {
			if u.Is(p) {
				count++
			}
		}
	}
	return count
}

var u1 = tenantdomain.Principal{UserID: "u1", Provider: "p1"}

func TestRegisterUserCreatesRecord(t *testing.T) {
	repo := newFakeRepo()
	s, clk := newTestStore(t, repo)
	clk.Advance(5 * time.Second)

	require.NoError(t, s.RegisterUser(context.Background(), u1, "plan-a"))

	u, err := s.GetUserByID(u1)
	require.NoError(t, err)
	assert.Equal(t, "plan-a", u.PlanName())
	assert.Equal(t, clk.Now(), u.LastBillingTime)
	assert.Equal(t, tenantdomain.UserStateDefault, u.State)
	assert.Equal(t, 1, s.RegisteredUsersByPlan("plan-a").Len())
	assert.Equal(t, 1, repo.saves)

	err = s.RegisterUser(context.Background(), u1, "plan-b")
	assert.True(t, ierr.IsAlreadyExists(err))
	assert.Equal(t, 1, membership(s, u1, "plan-a", "plan-b"))
}

func TestRegisterUserRejectsEmptyIdentity(t *testing.T) {
	s, _ := newTestStore(t, newFakeRepo())
	err := s.RegisterUser(context.Background(), tenantdomain.Principal{UserID: "u"}, "plan")
	assert.True(t, ierr.IsValidation(err))
}

func TestUnregisterAndResubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, newFakeRepo())
	require.NoError(t, s.RegisterUser(ctx, u1, "plan-a"))
	original, _ := s.GetUserByID(u1)

	require.NoError(t, s.Update(ctx, u1, func(tx *Tx) error { return tx.Unregister() }))
	assert.True(t, s.RegisteredUsersByPlan("plan-a").IsEmpty())
	assert.Equal(t, 1, s.InactiveUsers().Len())
	assert.Equal(t, 1, membership(s, u1, "plan-a"))

	require.NoError(t, s.RegisterUser(ctx, u1, "plan-b"))
	again, err := s.GetUserByID(u1)
	require.NoError(t, err)
	assert.Same(t, original, again)
	assert.Equal(t, "plan-b", again.PlanName())
	assert.Len(t, again.InactiveSubscriptions, 1)
	assert.True(t, s.InactiveUsers().IsEmpty())
}

func TestChangePlanMovesMembership(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, newFakeRepo())
	require.NoError(t, s.RegisterUser(ctx, u1, "plan-a"))

	require.NoError(t, s.Update(ctx, u1, func(tx *Tx) error { return tx.ChangePlan("plan-b") }))

	assert.True(t, s.RegisteredUsersByPlan("plan-a").IsEmpty())
	assert.Equal(t, 1, s.RegisteredUsersByPlan("plan-b").Len())
	assert.Equal(t, 1, membership(s, u1, "plan-a", "plan-b"))

	err := s.Update(ctx, u1, func(tx *Tx) error { return tx.ChangePlan("plan-b") })
	assert.True(t, ierr.IsValidation(err))
}

func TestChangePlanSaveFailureLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s, _ := newTestStore(t, repo)
	require.NoError(t, s.RegisterUser(ctx, u1, "plan-a"))

	repo.failErr = ierr.WithError(errors.New("disk full")).Mark(ierr.ErrDatabase)
	err := s.Update(ctx, u1, func(tx *Tx) error { return tx.ChangePlan("plan-b") })
	assert.True(t, ierr.IsDatabase(err))

	u, _ := s.GetUserByID(u1)
	assert.Equal(t, "plan-a", u.PlanName())
	assert.Empty(t, u.InactiveSubscriptions)
	assert.Equal(t, 1, s.RegisteredUsersByPlan("plan-a").Len())
}

func TestGetUserByIDNotFound(t *testing.T) {
	s, _ := newTestStore(t, newFakeRepo())
	_, err := s.GetUserByID(u1)
	assert.True(t, ierr.IsNotFound(err))
}

func TestResetPartitionsByPlan(t *testing.T) {
	active := tenantdomain.NewFinanceUser(u1)
	require.NoError(t, active.Subscribe("plan-a", time.UnixMilli(0)))
	idle := tenantdomain.NewFinanceUser(tenantdomain.Principal{UserID: "u2", Provider: "p1"})

	s, _ := newTestStore(t, newFakeRepo(active, idle))

	assert.Equal(t, 1, s.RegisteredUsersByPlan("plan-a").Len())
	assert.Equal(t, 1, s.InactiveUsers().Len())
	ok, err := s.IsRegisteredInPlan(u1, "plan-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, s.ListUsers(), 2)
}

func TestRemoveUser(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s, _ := newTestStore(t, repo)
	require.NoError(t, s.RegisterUser(ctx, u1, "plan-a"))

	err := s.RemoveUser(ctx, u1)
	assert.True(t, ierr.IsInvalidOperation(err))

	require.NoError(t, s.Update(ctx, u1, func(tx *Tx) error { return tx.Unregister() }))
	require.NoError(t, s.RemoveUser(ctx, u1))

	_, err = s.GetUserByID(u1)
	assert.True(t, ierr.IsNotFound(err))
	assert.Empty(t, repo.users)
	assert.True(t, ierr.IsNotFound(s.RemoveUser(ctx, u1)))
}

func TestLookupsNeverMissDuringPlanChanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, newFakeRepo())
	require.NoError(t, s.RegisterUser(ctx, u1, "plan-a"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		plans := []string{"plan-b", "plan-a"}
		for i := 0; i < 200; i++ {
			target := plans[i%2]
			assert.NoError(t, s.Update(ctx, u1, func(tx *Tx) error { return tx.ChangePlan(target) }))
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				u, err := s.GetUserByID(u1)
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, u.Is(u1))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, membership(s, u1, "plan-a", "plan-b"))
}
