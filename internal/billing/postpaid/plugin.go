// Package postpaid implements plans that bill usage through invoices.
package postpaid

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/lo"
	"github.com/smallbiznis/fedbill/internal/billing"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"github.com/smallbiznis/fedbill/internal/tenant/store"
	"go.uber.org/zap"
)

type Plugin struct {
	*billing.Plugin
}

var _ plandomain.Plugin = (*Plugin)(nil)

func New(name string, deps billing.Deps, options map[string]string) (*Plugin, error) {
	base, err := billing.NewPlugin(billing.PluginConfig{
		Deps:           deps,
		Name:           name,
		Type:           plandomain.PlanTypePostPaid,
		Ledger:         InvoiceLedger{},
		IntervalOption: plandomain.OptionInvoiceWaitTime,
		Booked:         func() { deps.Metrics.IncInvoiceGenerated(name) },
	}, options)
	if err != nil {
		return nil, err
	}
	return &Plugin{Plugin: base}, nil
}

// ChangePlan bills the tenant up to now as debt of the old plan and moves it
// to newPlan. Every invoice must be paid first.
func (p *Plugin) ChangePlan(ctx context.Context, principal tenantdomain.Principal, newPlan string) error {
	return p.UpdateUser(ctx, principal, func(tx *store.Tx) error {
		if err := requireInvoicesPaid(tx.User()); err != nil {
			return err
		}
		undo, err := p.RunLastPayment(ctx, tx.User())
		if err != nil {
			return err
		}
		if err := tx.ChangePlan(newPlan); err != nil {
			undo()
			return err
		}
		return nil
	})
}

// UnregisterUser purges the tenant's resources, bills it up to now as debt
// and ends its subscription. Every invoice must be paid first.
func (p *Plugin) UnregisterUser(ctx context.Context, principal tenantdomain.Principal) error {
	return p.UpdateUser(ctx, principal, func(tx *store.Tx) error {
		if err := requireInvoicesPaid(tx.User()); err != nil {
			return err
		}
		if err := p.PurgeUser(ctx, principal); err != nil {
			return err
		}
		undo, err := p.RunLastPayment(ctx, tx.User())
		if err != nil {
			return err
		}
		if err := tx.Unregister(); err != nil {
			undo()
			return err
		}
		return nil
	})
}

// RunLastPayment invoices u's usage since its last billing and books the
// invoice as debt. u must be locked; the caller persists it.
func (p *Plugin) RunLastPayment(ctx context.Context, u *tenantdomain.FinanceUser) (func(), error) {
	undo, err := p.Payments().Bill(ctx, u, InvoiceLedger{AsDebt: true})
	if err != nil {
		return nil, err
	}
	p.Log().Info("last payment booked",
		zap.String("user_id", u.UserID),
		zap.String("provider", u.Provider),
		zap.Strings("debts", u.LastSubscriptionsDebts),
	)
	return undo, nil
}

func requireInvoicesPaid(u *tenantdomain.FinanceUser) error {
	if u.InvoicesArePaid() {
		return nil
	}
	return ierr.NewErrorf("user %s has unpaid invoices", u.Principal()).
		WithHint("all invoices must be paid first").
		Mark(ierr.ErrValidation)
}

// GetFinanceStateProperty supports ALL_USER_INVOICES, the tenant's invoices
// as a JSON array.
func (p *Plugin) GetFinanceStateProperty(principal tenantdomain.Principal, property string) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(property), tenantdomain.PropertyAllUserInvoices) {
		return "", unknownProperty(property)
	}
	var out string
	err := p.ViewUser(principal, func(u *tenantdomain.FinanceUser) error {
		invoices := u.Invoices
		if invoices == nil {
			invoices = []*tenantdomain.Invoice{}
		}
		raw, err := json.Marshal(invoices)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrInternal)
		}
		out = string(raw)
		return nil
	})
	return out, err
}

// UpdateFinanceState sets invoice states. Every key other than
// PROPERTY_TYPE is an invoice id mapped to PAID or DEFAULTING. Either every
// state is applied and persisted or none is.
func (p *Plugin) UpdateFinanceState(ctx context.Context, principal tenantdomain.Principal, state map[string]string) error {
	if !strings.EqualFold(state[tenantdomain.PropertyType], tenantdomain.PropertyTypeInvoice) {
		return ierr.NewErrorf("plan %s only accepts %s updates", p.Name(), tenantdomain.PropertyTypeInvoice).
			WithHintf("%s must be %s", tenantdomain.PropertyType, tenantdomain.PropertyTypeInvoice).
			Mark(ierr.ErrValidation)
	}
	updates := lo.OmitByKeys(state, []string{tenantdomain.PropertyType})
	parsed := make(map[string]tenantdomain.InvoiceState, len(updates))
	for id, raw := range updates {
		s, err := tenantdomain.ParseInvoiceState(raw)
		if err != nil {
			return err
		}
		parsed[id] = s
	}

	return p.UpdateUser(ctx, principal, func(tx *store.Tx) error {
		u := tx.User()
		undo := snapshotInvoices(u)
		for _, id := range lo.Keys(parsed) {
			if err := u.SetInvoiceState(id, parsed[id]); err != nil {
				undo()
				return err
			}
		}
		if err := tx.Save(); err != nil {
			undo()
			return err
		}
		return nil
	})
}

// snapshotInvoices returns a func restoring u's invoice states and debts.
func snapshotInvoices(u *tenantdomain.FinanceUser) func() {
	states := lo.SliceToMap(u.Invoices, func(inv *tenantdomain.Invoice) (*tenantdomain.Invoice, tenantdomain.InvoiceState) {
		return inv, inv.State
	})
	debts := append([]string(nil), u.LastSubscriptionsDebts...)
	return func() {
		for inv, s := range states {
			inv.State = s
		}
		u.LastSubscriptionsDebts = debts
	}
}

func unknownProperty(property string) error {
	return ierr.NewErrorf("unknown finance state property %q", property).
		WithHintf("supported property is %s", tenantdomain.PropertyAllUserInvoices).
		Mark(ierr.ErrValidation)
}
