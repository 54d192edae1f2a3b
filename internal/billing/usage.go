package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fedbill/internal/accounting"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/pricing"
)

// Charge is the cost of one resource staying in one state for a stretch of
// the billing window.
type Charge struct {
	OrderID string
	Item    pricing.ResourceItem
	State   pricing.OrderState
	// Price is charged per Unit; Units is the stretch rounded up to whole units.
	Price decimal.Decimal
	Unit  pricing.TimeUnit
	Units int64
}

func (c Charge) Value() decimal.Decimal {
	return c.Price.Mul(decimal.NewFromInt(c.Units))
}

// PriceRecords prices every state interval of records inside [start, end).
func PriceRecords(policy *pricing.Policy, records []accounting.Record, start, end time.Time) ([]Charge, error) {
	var charges []Charge
	for _, r := range records {
		item, err := r.Item()
		if err != nil {
			return nil, err
		}
		history, err := r.HistoryOnPeriod(start, end)
		if err != nil {
			return nil, err
		}

		for i := 0; i+1 < len(history); i++ {
			from, to := history[i], history[i+1]
			price, unit := policy.Price(item, from.State)
			units, err := unit.RoundUp(to.At.Sub(from.At))
			if err != nil {
				return nil, ierr.WithError(err).
					WithHintf("invalid history in record %s", r.OrderID).
					Mark(ierr.ErrValidation)
			}
			charges = append(charges, Charge{
				OrderID: r.OrderID,
				Item:    item,
				State:   from.State,
				Price:   price,
				Unit:    unit,
				Units:   units,
			})
		}
	}
	return charges, nil
}
