package accounting

import (
	"encoding/json"
	"sort"
	"time"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/pricing"
)

// Spec is the resource shape reported by the accounting service.
type Spec struct {
	VCPU int `json:"vCpu,omitempty"`
	RAM  int `json:"ram,omitempty"`
	Size int `json:"size,omitempty"`
}

// StateChange is one entry of an order's state history.
type StateChange struct {
	At    time.Time
	State pricing.OrderState
}

// Record is the usage of one resource order.
type Record struct {
	ID           int64
	OrderID      string
	ResourceType pricing.ResourceType
	Spec         Spec
	StartTime    time.Time
	EndTime      time.Time
	// History is sorted by time.
	History []StateChange
}

type recordJSON struct {
	ID           int64  `json:"id"`
	OrderID      string `json:"orderId"`
	ResourceType string `json:"resourceType"`
	Spec         Spec   `json:"spec"`
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime,omitempty"`
	StateHistory struct {
		// epoch milliseconds to state
		History map[int64]string `json:"history"`
	} `json:"stateHistory"`
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	history := make([]StateChange, 0, len(raw.StateHistory.History))
	for at, s := range raw.StateHistory.History {
		state, err := pricing.ParseOrderState(s)
		if err != nil {
			return err
		}
		history = append(history, StateChange{At: time.UnixMilli(at).UTC(), State: state})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].At.Before(history[j].At) })

	*r = Record{
		ID:           raw.ID,
		OrderID:      raw.OrderID,
		ResourceType: pricing.ResourceType(raw.ResourceType),
		Spec:         raw.Spec,
		StartTime:    time.UnixMilli(raw.StartTime).UTC(),
		History:      history,
	}
	if raw.EndTime > 0 {
		r.EndTime = time.UnixMilli(raw.EndTime).UTC()
	}
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	raw := recordJSON{
		ID:           r.ID,
		OrderID:      r.OrderID,
		ResourceType: string(r.ResourceType),
		Spec:         r.Spec,
		StartTime:    r.StartTime.UnixMilli(),
	}
	if !r.EndTime.IsZero() {
		raw.EndTime = r.EndTime.UnixMilli()
	}
	raw.StateHistory.History = make(map[int64]string, len(r.History))
	for _, c := range r.History {
		raw.StateHistory.History[c.At.UnixMilli()] = string(c.State)
	}
	return json.Marshal(raw)
}

// Item returns the priced resource of the record.
func (r Record) Item() (pricing.ResourceItem, error) {
	switch r.ResourceType {
	case pricing.ResourceTypeCompute:
		return pricing.NewComputeItem(r.Spec.VCPU, r.Spec.RAM)
	case pricing.ResourceTypeVolume:
		return pricing.NewVolumeItem(r.Spec.Size)
	default:
		return nil, ierr.NewErrorf("unknown resource type %q in record %s", r.ResourceType, r.OrderID).
			Mark(ierr.ErrValidation)
	}
}

// HistoryOnPeriod returns the states the order went through in
// [start, end). The first entry opens the window at the later of start and
// the state in force at start; the last entry closes it at end unless the
// order was closed inside the window. Fewer than two entries mean nothing
// is billable.
func (r Record) HistoryOnPeriod(start, end time.Time) ([]StateChange, error) {
	if len(r.History) == 0 {
		return nil, ierr.NewErrorf("record %s has no state history", r.OrderID).
			Mark(ierr.ErrValidation)
	}

	reference, ok := latestBefore(r.History, start)
	if !ok {
		reference = r.History[0]
	}
	last, ok := latestBefore(r.History, end)
	if !ok {
		// the order only starts after the window
		return nil, nil
	}

	opensAt := reference.At
	if opensAt.Before(start) {
		opensAt = start
	}
	window := []StateChange{{At: opensAt, State: reference.State}}
	for _, c := range r.History {
		if c.At.Before(start) || !c.At.Before(end) {
			continue
		}
		if c.At.Equal(opensAt) {
			window[0] = c
			continue
		}
		window = append(window, c)
	}
	if last.State != pricing.OrderStateClosed {
		window = append(window, StateChange{At: end, State: last.State})
	}
	return window, nil
}

func latestBefore(history []StateChange, t time.Time) (StateChange, bool) {
	var (
		found StateChange
		ok    bool
	)
	for _, c := range history {
		if !c.At.Before(t) {
			break
		}
		found, ok = c, true
	}
	return found, ok
}
