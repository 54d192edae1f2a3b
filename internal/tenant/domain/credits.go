package domain

import (
	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/pricing"
)

// UserCredits is a signed balance. It may go negative, which is debt.
type UserCredits struct {
	value decimal.Decimal
}

func NewUserCredits() *UserCredits {
	return &UserCredits{value: decimal.Zero}
}

// UserCreditsFrom restores a persisted balance.
func UserCreditsFrom(value decimal.Decimal) *UserCredits {
	return &UserCredits{value: value}
}

func (c *UserCredits) Value() decimal.Decimal {
	return c.value
}

// Deduct subtracts price * timeUsed for item.
func (c *UserCredits) Deduct(item pricing.ResourceItem, price decimal.Decimal, timeUsed int64) error {
	if price.IsNegative() {
		return ierr.NewErrorf("negative price %s for %s", price, item).Mark(ierr.ErrValidation)
	}
	if timeUsed < 0 {
		return ierr.NewErrorf("negative time used %d for %s", timeUsed, item).Mark(ierr.ErrValidation)
	}
	c.value = c.value.Sub(price.Mul(decimal.NewFromInt(timeUsed)))
	return nil
}

func (c *UserCredits) AddCredits(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ierr.NewErrorf("cannot add negative credits %s", amount).Mark(ierr.ErrValidation)
	}
	c.value = c.value.Add(amount)
	return nil
}
