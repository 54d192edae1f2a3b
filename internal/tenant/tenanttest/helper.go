// Package tenanttest provides in-memory tenant storage for tests.
package tenanttest

import (
	"context"
	"sync"
	"testing"

	"github.com/smallbiznis/fedbill/internal/clock"
	"github.com/smallbiznis/fedbill/internal/config"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Repository is an in-memory tenantdomain.Repository. It keeps copies, so
// several stores over one Repository behave like replicas over one database.
type Repository struct {
	mu    sync.Mutex
	users map[tenantdomain.Principal]*tenantdomain.FinanceUser
	saves int
	err   error
}

func NewRepository(users ...*tenantdomain.FinanceUser) *Repository {
	r := &Repository{users: map[tenantdomain.Principal]*tenantdomain.FinanceUser{}}
	for _, u := range users {
		r.users[u.Principal()] = u.Clone()
	}
	return r
}

func (r *Repository) List(context.Context) ([]*tenantdomain.FinanceUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*tenantdomain.FinanceUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.Clone())
	}
	return out, nil
}

func (r *Repository) Get(_ context.Context, p tenantdomain.Principal) (*tenantdomain.FinanceUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[p]
	if !ok {
		return nil, ierr.NewErrorf("user %s not found", p).Mark(ierr.ErrNotFound)
	}
	return u.Clone(), nil
}

func (r *Repository) Save(_ context.Context, u *tenantdomain.FinanceUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	var stored int64
	if prev, ok := r.users[u.Principal()]; ok {
		stored = prev.Version
	}
	if u.Version != stored {
		return ierr.NewErrorf("user %s is at revision %d, not %d", u.Principal(), stored, u.Version).
			Mark(ierr.ErrConflict)
	}
	r.saves++
	u.Version = stored + 1
	r.users[u.Principal()] = u.Clone()
	return nil
}

func (r *Repository) Delete(_ context.Context, p tenantdomain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.users[p]; !ok {
		return ierr.NewErrorf("user %s not found", p).Mark(ierr.ErrNotFound)
	}
	delete(r.users, p)
	return nil
}

// FailWith makes every later write return err. A nil err heals the repository.
func (r *Repository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Saves counts successful writes.
func (r *Repository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// NewStore builds a tenant store over repo.
func NewStore(t testing.TB, repo *Repository, clk clock.Clock) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), store.Params{Repo: repo, Clock: clk, Log: zap.NewNop()})
	require.NoError(t, err)
	return s
}

// NewReplica builds a tenant store that shares repo with other replicas and
// reloads records from it under lock.
func NewReplica(t testing.TB, repo *Repository, clk clock.Clock) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), store.Params{
		Repo:   repo,
		Clock:  clk,
		Log:    zap.NewNop(),
		Config: config.Config{Redis: config.RedisConfig{Addr: "redis:6379"}},
	})
	require.NoError(t, err)
	return s
}

// Register subscribes a new tenant to plan.
func Register(t testing.TB, s *store.Store, p tenantdomain.Principal, plan string) {
	t.Helper()
	require.NoError(t, s.RegisterUser(context.Background(), p, plan))
}

// State reads p's lifecycle state under the record lock.
func State(t testing.TB, s *store.Store, p tenantdomain.Principal) tenantdomain.UserState {
	t.Helper()
	var state tenantdomain.UserState
	require.NoError(t, s.View(p, func(u *tenantdomain.FinanceUser) error {
		state = u.State
		return nil
	}))
	return state
}
