package domain

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/pricing"
)

type InvoiceState string

const (
	InvoiceStateWaiting    InvoiceState = "WAITING"
	InvoiceStatePaid       InvoiceState = "PAID"
	InvoiceStateDefaulting InvoiceState = "DEFAULTING"
)

// ParseInvoiceState accepts the upper or lower case state name.
func ParseInvoiceState(s string) (InvoiceState, error) {
	switch InvoiceState(upper(s)) {
	case InvoiceStateWaiting:
		return InvoiceStateWaiting, nil
	case InvoiceStatePaid:
		return InvoiceStatePaid, nil
	case InvoiceStateDefaulting:
		return InvoiceStateDefaulting, nil
	default:
		return "", ierr.NewErrorf("unknown invoice state %q", s).Mark(ierr.ErrValidation)
	}
}

var invoiceTransitions = map[InvoiceState][]InvoiceState{
	InvoiceStateWaiting:    {InvoiceStatePaid, InvoiceStateDefaulting},
	InvoiceStateDefaulting: {InvoiceStatePaid},
}

// InvoiceItem is one priced (resource, state) line.
type InvoiceItem struct {
	OrderID string
	Item    pricing.ResourceItem
	State   pricing.OrderState
	Value   decimal.Decimal
}

type Invoice struct {
	ID        string
	UserID    string
	Provider  string
	Items     []InvoiceItem
	Total     decimal.Decimal
	StartTime time.Time
	EndTime   time.Time
	State     InvoiceState
}

// NewInvoice builds a WAITING invoice for [start, end).
func NewInvoice(id string, p Principal, items []InvoiceItem, start, end time.Time) *Invoice {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Value)
	}
	return &Invoice{
		ID:        id,
		UserID:    p.UserID,
		Provider:  p.Provider,
		Items:     items,
		Total:     total,
		StartTime: start,
		EndTime:   end,
		State:     InvoiceStateWaiting,
	}
}

// SetState applies a transition. Only WAITING->PAID, WAITING->DEFAULTING and
// DEFAULTING->PAID are legal.
func (i *Invoice) SetState(next InvoiceState) error {
	if !lo.Contains(invoiceTransitions[i.State], next) {
		return ierr.NewErrorf("invoice %s cannot go from %s to %s", i.ID, i.State, next).
			WithHint("invalid invoice state transition").
			Mark(ierr.ErrInvalidOperation)
	}
	i.State = next
	return nil
}

type invoiceItemJSON struct {
	OrderID  string             `json:"orderId,omitempty"`
	Resource pricing.ItemSpec   `json:"resource"`
	State    pricing.OrderState `json:"state"`
	Value    string             `json:"value"`
}

type invoiceJSON struct {
	ID        string            `json:"invoiceId"`
	UserID    string            `json:"userId"`
	Provider  string            `json:"providerId"`
	Items     []invoiceItemJSON `json:"invoiceItems"`
	Total     string            `json:"invoiceTotal"`
	StartTime int64             `json:"startTime"`
	EndTime   int64             `json:"endTime"`
	State     InvoiceState      `json:"state"`
}

// MarshalJSON renders money with three decimal places and times as epoch milliseconds.
func (i *Invoice) MarshalJSON() ([]byte, error) {
	out := invoiceJSON{
		ID:        i.ID,
		UserID:    i.UserID,
		Provider:  i.Provider,
		Items:     make([]invoiceItemJSON, 0, len(i.Items)),
		Total:     i.Total.StringFixed(3),
		StartTime: i.StartTime.UnixMilli(),
		EndTime:   i.EndTime.UnixMilli(),
		State:     i.State,
	}
	for _, it := range i.Items {
		out.Items = append(out.Items, invoiceItemJSON{
			OrderID:  it.OrderID,
			Resource: pricing.SpecOf(it.Item),
			State:    it.State,
			Value:    it.Value.StringFixed(3),
		})
	}
	return json.Marshal(out)
}

func (i *Invoice) UnmarshalJSON(data []byte) error {
	var in invoiceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	total, err := decimal.NewFromString(in.Total)
	if err != nil {
		return ierr.WithError(err).WithHint("invalid invoice total").Mark(ierr.ErrValidation)
	}
	items := make([]InvoiceItem, 0, len(in.Items))
	for _, it := range in.Items {
		item, err := it.Resource.Item()
		if err != nil {
			return err
		}
		value, err := decimal.NewFromString(it.Value)
		if err != nil {
			return ierr.WithError(err).WithHint("invalid invoice item value").Mark(ierr.ErrValidation)
		}
		items = append(items, InvoiceItem{OrderID: it.OrderID, Item: item, State: it.State, Value: value})
	}

	*i = Invoice{
		ID:        in.ID,
		UserID:    in.UserID,
		Provider:  in.Provider,
		Items:     items,
		Total:     total,
		StartTime: time.UnixMilli(in.StartTime).UTC(),
		EndTime:   time.UnixMilli(in.EndTime).UTC(),
		State:     in.State,
	}
	return nil
}
