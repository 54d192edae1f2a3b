package ras

import (
	"context"
	"sync"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

// Call records one request made to a FakeClient.
type Call struct {
	Action    string
	Principal tenantdomain.Principal
}

// FakeClient records calls and fails them on demand.
type FakeClient struct {
	mu    sync.Mutex
	calls []Call
	// failures maps an action to the error its next calls return.
	failures map[string]error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{failures: map[string]error{}}
}

// Fail makes action return err until cleared with a nil err.
func (f *FakeClient) Fail(action string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, action)
		return
	}
	f.failures[action] = err
}

// NotSupported makes action report that the cloud cannot perform it.
func (f *FakeClient) NotSupported(action string) {
	f.Fail(action, ierr.NewErrorf("%s not supported", action).Mark(ierr.ErrNotSupported))
}

func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Actions lists the actions called, in order.
func (f *FakeClient) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Action
	}
	return out
}

func (f *FakeClient) HibernateResourcesByUser(_ context.Context, p tenantdomain.Principal) error {
	return f.record(ActionHibernate, p)
}

func (f *FakeClient) StopResourcesByUser(_ context.Context, p tenantdomain.Principal) error {
	return f.record(ActionStop, p)
}

func (f *FakeClient) ResumeResourcesByUser(_ context.Context, p tenantdomain.Principal) error {
	return f.record(ActionResume, p)
}

func (f *FakeClient) PauseResourcesByUser(_ context.Context, p tenantdomain.Principal) error {
	return f.record(ActionPause, p)
}

func (f *FakeClient) PurgeUser(_ context.Context, p tenantdomain.Principal) error {
	return f.record(ActionPurge, p)
}

func (f *FakeClient) record(action string, p tenantdomain.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Action: action, Principal: p})
	return f.failures[action]
}
