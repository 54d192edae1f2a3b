package pricing

import (
	"strings"
	"time"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

type TimeUnit string

const (
	Millisecond TimeUnit = "ms"
	Second      TimeUnit = "s"
	Minute      TimeUnit = "m"
	Hour        TimeUnit = "h"
)

func ParseTimeUnit(s string) (TimeUnit, error) {
	switch TimeUnit(strings.ToLower(strings.TrimSpace(s))) {
	case Millisecond:
		return Millisecond, nil
	case Second:
		return Second, nil
	case Minute:
		return Minute, nil
	case Hour:
		return Hour, nil
	default:
		return "", ierr.NewErrorf("unknown time unit %q", s).
			WithHint("time unit must be one of ms, s, m, h").
			Mark(ierr.ErrValidation)
	}
}

func (u TimeUnit) Duration() time.Duration {
	switch u {
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return time.Millisecond
	}
}

// RoundUp converts d into whole units, rounding partial units up.
func (u TimeUnit) RoundUp(d time.Duration) (int64, error) {
	if d < 0 {
		return 0, ierr.NewErrorf("negative period %s", d).Mark(ierr.ErrValidation)
	}
	unit := u.Duration()
	n := int64(d / unit)
	if d%unit != 0 {
		n++
	}
	return n, nil
}
