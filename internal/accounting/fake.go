package accounting

import (
	"context"
	"sync"
	"time"

	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

// FakeClient serves canned records per tenant.
type FakeClient struct {
	mu      sync.Mutex
	records map[tenantdomain.Principal][]Record
	errs    map[tenantdomain.Principal]error
	Calls   []FakeCall
}

type FakeCall struct {
	Principal  tenantdomain.Principal
	Start, End time.Time
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		records: map[tenantdomain.Principal][]Record{},
		errs:    map[tenantdomain.Principal]error{},
	}
}

func (f *FakeClient) SetRecords(p tenantdomain.Principal, records ...Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[p] = records
}

func (f *FakeClient) SetError(p tenantdomain.Principal, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[p] = err
}

func (f *FakeClient) GetUserRecords(_ context.Context, p tenantdomain.Principal, start, end time.Time) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Principal: p, Start: start, End: end})
	if err := f.errs[p]; err != nil {
		return nil, err
	}
	return f.records[p], nil
}

func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
