// Package prepaid implements plans that draw usage from a credits balance.
package prepaid

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
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
		Type:           plandomain.PlanTypePrePaid,
		Ledger:         CreditsLedger{},
		IntervalOption: plandomain.OptionCreditsDeductionWaitTime,
		Booked:         func() { deps.Metrics.IncCreditsDeduction(name) },
	}, options)
	if err != nil {
		return nil, err
	}
	return &Plugin{Plugin: base}, nil
}

func (p *Plugin) ChangePlan(ctx context.Context, principal tenantdomain.Principal, newPlan string) error {
	return p.UpdateUser(ctx, principal, func(tx *store.Tx) error {
		return tx.ChangePlan(newPlan)
	})
}

// UnregisterUser purges the tenant's resources and ends its subscription.
func (p *Plugin) UnregisterUser(ctx context.Context, principal tenantdomain.Principal) error {
	// fails unless the tenant is in this plan
	if err := p.ViewUser(principal, func(*tenantdomain.FinanceUser) error { return nil }); err != nil {
		return err
	}
	if err := p.PurgeUser(ctx, principal); err != nil {
		return err
	}
	return p.UpdateUser(ctx, principal, func(tx *store.Tx) error {
		return tx.Unregister()
	})
}

// GetFinanceStateProperty supports USER_CREDITS, the balance as a decimal string.
func (p *Plugin) GetFinanceStateProperty(principal tenantdomain.Principal, property string) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(property), tenantdomain.PropertyUserCredits) {
		return "", ierr.NewErrorf("unknown finance state property %q", property).
			WithHintf("supported property is %s", tenantdomain.PropertyUserCredits).
			Mark(ierr.ErrValidation)
	}
	var out string
	err := p.ViewUser(principal, func(u *tenantdomain.FinanceUser) error {
		out = u.Credits.Value().String()
		return nil
	})
	return out, err
}

// UpdateFinanceState adds CREDITS_TO_ADD to the tenant's balance.
func (p *Plugin) UpdateFinanceState(ctx context.Context, principal tenantdomain.Principal, state map[string]string) error {
	if !strings.EqualFold(state[tenantdomain.PropertyType], tenantdomain.PropertyTypeCredits) {
		return ierr.NewErrorf("plan %s only accepts %s updates", p.Name(), tenantdomain.PropertyTypeCredits).
			WithHintf("%s must be %s", tenantdomain.PropertyType, tenantdomain.PropertyTypeCredits).
			Mark(ierr.ErrValidation)
	}
	raw, ok := state[tenantdomain.PropertyCreditsToAdd]
	if !ok {
		return ierr.NewErrorf("missing %s", tenantdomain.PropertyCreditsToAdd).
			WithHintf("%s is required", tenantdomain.PropertyCreditsToAdd).
			Mark(ierr.ErrValidation)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return ierr.WithError(err).
			WithHintf("%s must be a decimal", tenantdomain.PropertyCreditsToAdd).
			Mark(ierr.ErrValidation)
	}

	return p.UpdateUser(ctx, principal, func(tx *store.Tx) error {
		u := tx.User()
		prev := u.Credits.Value()
		if err := u.Credits.AddCredits(amount); err != nil {
			return err
		}
		if err := tx.Save(); err != nil {
			u.Credits = tenantdomain.UserCreditsFrom(prev)
			return err
		}
		p.Log().Info("credits added",
			zap.String("user_id", u.UserID),
			zap.String("provider", u.Provider),
			zap.String("amount", amount.String()),
			zap.String("balance", u.Credits.Value().String()),
		)
		return nil
	})
}
