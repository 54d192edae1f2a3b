package clock

import "time"

// Clock abstracts the wall clock so billing decisions can be driven in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// New returns the process wall clock truncated to milliseconds.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
