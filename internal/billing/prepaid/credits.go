package prepaid

import (
	"time"

	"github.com/smallbiznis/fedbill/internal/billing"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

// CreditsLedger books usage by deducting it from the tenant's credits. A
// tenant is in good standing while its balance is not negative.
type CreditsLedger struct{}

func (CreditsLedger) HasPaid(u *tenantdomain.FinanceUser) bool {
	return !u.Credits.Value().IsNegative()
}

func (CreditsLedger) Apply(u *tenantdomain.FinanceUser, charges []billing.Charge, _, _ time.Time) (func(), error) {
	prev := u.Credits.Value()
	undo := func() { u.Credits = tenantdomain.UserCreditsFrom(prev) }
	for _, c := range charges {
		if err := u.Credits.Deduct(c.Item, c.Price, c.Units); err != nil {
			undo()
			return nil, err
		}
	}
	return undo, nil
}
