package domain

import (
	"sync"
	"time"

	"github.com/samber/lo"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

// UserState is the position of a tenant in the resource lifecycle.
type UserState string

const (
	UserStateDefault        UserState = "DEFAULT"
	UserStateWaitingForStop UserState = "WAITING_FOR_STOP"
	UserStateStopping       UserState = "STOPPING"
	UserStateStopped        UserState = "STOPPED"
	UserStateResuming       UserState = "RESUMING"
)

// Principal identifies a tenant. UserID is unique per Provider.
type Principal struct {
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
}

func (p Principal) String() string {
	return p.UserID + "@" + p.Provider
}

// FinanceUser is the billing record of one tenant.
//
// Fields are guarded by the record lock. Callers outside the tenant store
// receive a FinanceUser only inside a store transaction, which holds the lock.
type FinanceUser struct {
	mu sync.Mutex

	ID       int64
	UserID   string
	Provider string
	// Version is the stored revision this record was read or last saved at.
	// Zero means the record was never stored.
	Version int64

	State UserState
	// WaitStart marks when the tenant entered WAITING_FOR_STOP.
	WaitStart       time.Time
	LastBillingTime time.Time

	Credits  *UserCredits
	Invoices []*Invoice

	ActiveSubscription    *Subscription
	InactiveSubscriptions []Subscription
	// LastSubscriptionsDebts holds invoice ids left unpaid by ended subscriptions.
	LastSubscriptionsDebts []string

	Properties map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewFinanceUser returns a tenant in DEFAULT state with an empty ledger.
func NewFinanceUser(p Principal) *FinanceUser {
	return &FinanceUser{
		UserID:     p.UserID,
		Provider:   p.Provider,
		State:      UserStateDefault,
		Credits:    NewUserCredits(),
		Invoices:   []*Invoice{},
		Properties: map[string]string{},
	}
}

// Clone returns a deep copy of the record, without its lock.
func (u *FinanceUser) Clone() *FinanceUser {
	c := &FinanceUser{}
	c.copyFrom(u)
	return c
}

// Adopt replaces the record's fields with those of fresh, keeping the lock.
// The caller holds the lock of u.
func (u *FinanceUser) Adopt(fresh *FinanceUser) {
	u.copyFrom(fresh)
}

func (u *FinanceUser) copyFrom(src *FinanceUser) {
	u.ID = src.ID
	u.UserID = src.UserID
	u.Provider = src.Provider
	u.Version = src.Version
	u.State = src.State
	u.WaitStart = src.WaitStart
	u.LastBillingTime = src.LastBillingTime
	u.Credits = nil
	if src.Credits != nil {
		u.Credits = UserCreditsFrom(src.Credits.Value())
	}
	u.Invoices = lo.Map(src.Invoices, func(inv *Invoice, _ int) *Invoice {
		c := *inv
		c.Items = append([]InvoiceItem(nil), inv.Items...)
		return &c
	})
	u.ActiveSubscription = nil
	if src.ActiveSubscription != nil {
		sub := *src.ActiveSubscription
		u.ActiveSubscription = &sub
	}
	u.InactiveSubscriptions = append([]Subscription(nil), src.InactiveSubscriptions...)
	u.LastSubscriptionsDebts = append([]string(nil), src.LastSubscriptionsDebts...)
	u.Properties = lo.Assign(src.Properties)
	u.CreatedAt = src.CreatedAt
	u.UpdatedAt = src.UpdatedAt
}

// Lock acquires the record lock.
func (u *FinanceUser) Lock() { u.mu.Lock() }

// Unlock releases the record lock.
func (u *FinanceUser) Unlock() { u.mu.Unlock() }

func (u *FinanceUser) Principal() Principal {
	return Principal{UserID: u.UserID, Provider: u.Provider}
}

func (u *FinanceUser) Is(p Principal) bool {
	return u.UserID == p.UserID && u.Provider == p.Provider
}

func (u *FinanceUser) IsSubscribed() bool {
	return u.ActiveSubscription != nil
}

// PlanName returns the active plan, or "" for an inactive tenant.
func (u *FinanceUser) PlanName() string {
	if u.ActiveSubscription == nil {
		return ""
	}
	return u.ActiveSubscription.PlanName
}

// Subscribe starts a subscription to plan at the given time.
func (u *FinanceUser) Subscribe(plan string, at time.Time) error {
	if u.ActiveSubscription != nil {
		return ierr.NewErrorf("user %s is already subscribed to plan %s", u.Principal(), u.ActiveSubscription.PlanName).
			Mark(ierr.ErrAlreadyExists)
	}
	u.ActiveSubscription = &Subscription{PlanName: plan, StartTime: at}
	return nil
}

// Unsubscribe ends the active subscription at the given time.
func (u *FinanceUser) Unsubscribe(at time.Time) error {
	if u.ActiveSubscription == nil {
		return ierr.NewErrorf("user %s has no active subscription", u.Principal()).
			Mark(ierr.ErrInvalidOperation)
	}
	ended := *u.ActiveSubscription
	ended.EndTime = at
	u.InactiveSubscriptions = append(u.InactiveSubscriptions, ended)
	u.ActiveSubscription = nil
	return nil
}

func (u *FinanceUser) AddInvoice(inv *Invoice) {
	u.Invoices = append(u.Invoices, inv)
}

// AddInvoiceAsDebt appends inv and tracks it as debt of an ended subscription.
func (u *FinanceUser) AddInvoiceAsDebt(inv *Invoice) {
	u.AddInvoice(inv)
	u.LastSubscriptionsDebts = append(u.LastSubscriptionsDebts, inv.ID)
}

func (u *FinanceUser) Invoice(id string) (*Invoice, bool) {
	return lo.Find(u.Invoices, func(inv *Invoice) bool { return inv.ID == id })
}

// SetInvoiceState moves an invoice to state. Paying an invoice clears its debt marker.
func (u *FinanceUser) SetInvoiceState(id string, state InvoiceState) error {
	inv, ok := u.Invoice(id)
	if !ok {
		return ierr.NewErrorf("invoice %s not found", id).Mark(ierr.ErrNotFound)
	}
	if err := inv.SetState(state); err != nil {
		return err
	}
	if state == InvoiceStatePaid {
		u.LastSubscriptionsDebts = lo.Without(u.LastSubscriptionsDebts, id)
	}
	return nil
}

// InvoicesArePaid reports whether every invoice is PAID.
func (u *FinanceUser) InvoicesArePaid() bool {
	return lo.EveryBy(u.Invoices, func(inv *Invoice) bool { return inv.State == InvoiceStatePaid })
}

// HasDefaultingInvoice reports whether any invoice is DEFAULTING.
func (u *FinanceUser) HasDefaultingInvoice() bool {
	return lo.SomeBy(u.Invoices, func(inv *Invoice) bool { return inv.State == InvoiceStateDefaulting })
}

// PastDebtsPaid reports whether no invoice carried over from an ended
// subscription is DEFAULTING.
func (u *FinanceUser) PastDebtsPaid() bool {
	for _, id := range u.LastSubscriptionsDebts {
		if inv, ok := u.Invoice(id); ok && inv.State == InvoiceStateDefaulting {
			return false
		}
	}
	return true
}
