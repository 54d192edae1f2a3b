package domain

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceTransitions(t *testing.T) {
	cases := []struct {
		from InvoiceState
		to   InvoiceState
		ok   bool
	}{
		{InvoiceStateWaiting, InvoiceStatePaid, true},
		{InvoiceStateWaiting, InvoiceStateDefaulting, true},
		{InvoiceStateDefaulting, InvoiceStatePaid, true},
		{InvoiceStateWaiting, InvoiceStateWaiting, false},
		{InvoiceStatePaid, InvoiceStatePaid, false},
		{InvoiceStatePaid, InvoiceStateDefaulting, false},
		{InvoiceStatePaid, InvoiceStateWaiting, false},
		{InvoiceStateDefaulting, InvoiceStateDefaulting, false},
		{InvoiceStateDefaulting, InvoiceStateWaiting, false},
	}
	for _, tc := range cases {
		inv := &Invoice{ID: "i", State: tc.from}
		err := inv.SetState(tc.to)
		if tc.ok {
			require.NoError(t, err, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.to, inv.State)
		} else {
			require.Error(t, err, "%s -> %s", tc.from, tc.to)
			assert.True(t, ierr.IsInvalidOperation(err))
			assert.Equal(t, tc.from, inv.State)
		}
	}
}

func TestInvoiceJSON(t *testing.T) {
	start := time.UnixMilli(0).UTC()
	end := time.UnixMilli(30000).UTC()
	inv := NewInvoice("inv-1", Principal{UserID: "u1", Provider: "p1"}, []InvoiceItem{
		{Item: pricing.ComputeItem{VCPU: 2, RAM: 4}, State: pricing.OrderStateFulfilled, Value: decimal.NewFromInt(150)},
		{Item: pricing.VolumeItem{Size: 5}, State: pricing.OrderStatePaused, Value: decimal.RequireFromString("0.25")},
	}, start, end)

	assert.True(t, decimal.RequireFromString("150.25").Equal(inv.Total))

	data, err := json.Marshal(inv)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"invoiceTotal":"150.250"`)
	assert.Contains(t, string(data), `"value":"150.000"`)
	assert.Contains(t, string(data), `"state":"WAITING"`)

	var back Invoice
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, inv.ID, back.ID)
	assert.Equal(t, inv.Items[0].Item, back.Items[0].Item)
	assert.True(t, inv.Total.Equal(back.Total))
	assert.Equal(t, end, back.EndTime)
}

func TestUserCredits(t *testing.T) {
	c := NewUserCredits()
	item := pricing.ComputeItem{VCPU: 1, RAM: 1}

	require.NoError(t, c.AddCredits(decimal.NewFromInt(10)))
	require.NoError(t, c.Deduct(item, decimal.NewFromInt(3), 4))
	assert.True(t, decimal.NewFromInt(-2).Equal(c.Value()))

	assert.True(t, ierr.IsValidation(c.AddCredits(decimal.NewFromInt(-1))))
	assert.True(t, ierr.IsValidation(c.Deduct(item, decimal.NewFromInt(-1), 1)))
	assert.True(t, ierr.IsValidation(c.Deduct(item, decimal.NewFromInt(1), -1)))
	assert.True(t, decimal.NewFromInt(-2).Equal(c.Value()))
}

func TestCreditsSumUnderRecordLock(t *testing.T) {
	u := NewFinanceUser(Principal{UserID: "u", Provider: "p"})
	item := pricing.VolumeItem{Size: 1}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			u.Lock()
			defer u.Unlock()
			_ = u.Credits.AddCredits(decimal.NewFromInt(3))
		}()
		go func() {
			defer wg.Done()
			u.Lock()
			defer u.Unlock()
			_ = u.Credits.Deduct(item, decimal.NewFromInt(1), 2)
		}()
	}
	wg.Wait()

	assert.True(t, decimal.NewFromInt(50).Equal(u.Credits.Value()))
}

func TestSubscriptionLifecycle(t *testing.T) {
	u := NewFinanceUser(Principal{UserID: "u", Provider: "p"})
	now := time.UnixMilli(1000).UTC()

	require.NoError(t, u.Subscribe("plan-a", now))
	assert.Equal(t, "plan-a", u.PlanName())
	assert.True(t, ierr.IsAlreadyExists(u.Subscribe("plan-b", now)))

	require.NoError(t, u.Unsubscribe(now.Add(time.Second)))
	assert.False(t, u.IsSubscribed())
	require.Len(t, u.InactiveSubscriptions, 1)
	assert.Equal(t, now.Add(time.Second), u.InactiveSubscriptions[0].EndTime)
	assert.True(t, ierr.IsInvalidOperation(u.Unsubscribe(now)))

	data, err := json.Marshal(Subscription{PlanName: "x", StartTime: now})
	require.NoError(t, err)
	assert.JSONEq(t, `{"planName":"x","startTime":1000,"endTime":-1}`, string(data))

	var back Subscription
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsActive())
}

func TestDebtTracking(t *testing.T) {
	u := NewFinanceUser(Principal{UserID: "u", Provider: "p"})
	debt := NewInvoice("d1", u.Principal(), nil, time.Time{}, time.Time{})
	u.AddInvoiceAsDebt(debt)
	assert.True(t, u.PastDebtsPaid())
	assert.False(t, u.InvoicesArePaid())

	require.NoError(t, u.SetInvoiceState("d1", InvoiceStateDefaulting))
	assert.False(t, u.PastDebtsPaid())
	assert.True(t, u.HasDefaultingInvoice())

	require.NoError(t, u.SetInvoiceState("d1", InvoiceStatePaid))
	assert.True(t, u.PastDebtsPaid())
	assert.Empty(t, u.LastSubscriptionsDebts)
	assert.True(t, u.InvoicesArePaid())

	assert.True(t, ierr.IsNotFound(u.SetInvoiceState("missing", InvoiceStatePaid)))
}
