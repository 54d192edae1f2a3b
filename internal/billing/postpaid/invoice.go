package postpaid

import (
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/fedbill/internal/billing"
	"github.com/smallbiznis/fedbill/internal/pricing"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

// InvoiceBuilder sums charges into one line per order, resource and state.
type InvoiceBuilder struct {
	principal  tenantdomain.Principal
	start, end time.Time
	lines      []tenantdomain.InvoiceItem
	index      map[lineKey]int
}

type lineKey struct {
	orderID string
	item    string
	state   pricing.OrderState
}

func NewInvoiceBuilder(p tenantdomain.Principal, start, end time.Time) *InvoiceBuilder {
	return &InvoiceBuilder{principal: p, start: start, end: end, index: map[lineKey]int{}}
}

func (b *InvoiceBuilder) Add(c billing.Charge) {
	key := lineKey{orderID: c.OrderID, item: c.Item.Key(), state: c.State}
	if i, ok := b.index[key]; ok {
		b.lines[i].Value = b.lines[i].Value.Add(c.Value())
		return
	}
	b.index[key] = len(b.lines)
	b.lines = append(b.lines, tenantdomain.InvoiceItem{
		OrderID: c.OrderID,
		Item:    c.Item,
		State:   c.State,
		Value:   c.Value(),
	})
}

// Build returns a WAITING invoice with a fresh id.
func (b *InvoiceBuilder) Build() *tenantdomain.Invoice {
	return tenantdomain.NewInvoice(uuid.NewString(), b.principal, b.lines, b.start, b.end)
}

// InvoiceLedger books usage as invoices. A tenant is in good standing while
// none of its invoices is DEFAULTING.
type InvoiceLedger struct {
	// AsDebt books invoices as debt of the ending subscription.
	AsDebt bool
}

func (InvoiceLedger) HasPaid(u *tenantdomain.FinanceUser) bool {
	return !u.HasDefaultingInvoice()
}

func (l InvoiceLedger) Apply(u *tenantdomain.FinanceUser, charges []billing.Charge, start, end time.Time) (func(), error) {
	b := NewInvoiceBuilder(u.Principal(), start, end)
	for _, c := range charges {
		b.Add(c)
	}
	inv := b.Build()

	prevInvoices, prevDebts := u.Invoices, u.LastSubscriptionsDebts
	if l.AsDebt {
		u.AddInvoiceAsDebt(inv)
	} else {
		u.AddInvoice(inv)
	}
	return func() {
		u.Invoices, u.LastSubscriptionsDebts = prevInvoices, prevDebts
	}, nil
}
