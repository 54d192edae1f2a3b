package domain

import (
	"encoding/json"
	"time"
)

// Subscription binds a tenant to a plan. EndTime is zero while active.
type Subscription struct {
	PlanName  string
	StartTime time.Time
	EndTime   time.Time
}

func (s Subscription) IsActive() bool {
	return s.EndTime.IsZero()
}

type subscriptionJSON struct {
	PlanName  string `json:"planName"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// MarshalJSON writes times as epoch milliseconds, with -1 for an open end.
func (s Subscription) MarshalJSON() ([]byte, error) {
	end := int64(-1)
	if !s.EndTime.IsZero() {
		end = s.EndTime.UnixMilli()
	}
	return json.Marshal(subscriptionJSON{
		PlanName:  s.PlanName,
		StartTime: s.StartTime.UnixMilli(),
		EndTime:   end,
	})
}

func (s *Subscription) UnmarshalJSON(data []byte) error {
	var in subscriptionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.PlanName = in.PlanName
	s.StartTime = time.UnixMilli(in.StartTime).UTC()
	s.EndTime = time.Time{}
	if in.EndTime >= 0 {
		s.EndTime = time.UnixMilli(in.EndTime).UTC()
	}
	return nil
}
