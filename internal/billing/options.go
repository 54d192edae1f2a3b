package billing

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/smallbiznis/fedbill/internal/pricing"
)

const DefaultStopServiceWaitTime = time.Minute

// Options holds the settings every plan type shares.
type Options struct {
	BillingInterval     time.Duration
	WaitBeforeStopping  time.Duration
	StopServiceWaitTime time.Duration
	DefaultValue        decimal.Decimal
	Rules               []pricing.Rule
}

// ParseOptions validates the shared plan options. Nothing is applied by the
// caller until every key has parsed.
func ParseOptions(options map[string]string) (Options, error) {
	var (
		opts Options
		err  error
	)
	if opts.BillingInterval, err = RequiredDuration(options, plandomain.OptionBillingInterval); err != nil {
		return Options{}, err
	}
	if opts.WaitBeforeStopping, err = RequiredDuration(options, plandomain.OptionTimeToWaitBeforeStopping); err != nil {
		return Options{}, err
	}
	if opts.StopServiceWaitTime, err = OptionalDuration(options, plandomain.OptionStopServiceWaitTime, DefaultStopServiceWaitTime); err != nil {
		return Options{}, err
	}
	if opts.DefaultValue, err = parseDefaultValue(options); err != nil {
		return Options{}, err
	}
	if opts.Rules, err = parseRuleSource(options); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Map renders o in its canonical persisted form.
func (o Options) Map() map[string]string {
	return map[string]string{
		plandomain.OptionBillingInterval:          FormatDuration(o.BillingInterval),
		plandomain.OptionTimeToWaitBeforeStopping: FormatDuration(o.WaitBeforeStopping),
		plandomain.OptionStopServiceWaitTime:      FormatDuration(o.StopServiceWaitTime),
		plandomain.OptionDefaultResourceValue:     o.DefaultValue.String(),
		plandomain.OptionFinancePlanRules:         pricing.FormatRules(o.Rules),
	}
}

// RequiredDuration reads key as a positive duration.
func RequiredDuration(options map[string]string, key string) (time.Duration, error) {
	raw, ok := options[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, ierr.NewErrorf("missing plan option %s", key).
			WithHintf("plan option %s is required", key).
			Mark(ierr.ErrValidation)
	}
	return ParseDuration(key, raw)
}

// OptionalDuration reads key as a positive duration, falling back to def.
func OptionalDuration(options map[string]string, key string, def time.Duration) (time.Duration, error) {
	raw, ok := options[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return ParseDuration(key, raw)
}

// ParseDuration accepts integer milliseconds or a Go duration string.
func ParseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	var d time.Duration
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if parsed, err := time.ParseDuration(raw); err == nil {
		d = parsed
	} else {
		return 0, ierr.NewErrorf("invalid duration %q for %s", raw, key).
			WithHintf("%s must be milliseconds or a duration such as 30s", key).
			Mark(ierr.ErrValidation)
	}
	if d <= 0 {
		return 0, ierr.NewErrorf("non-positive duration %q for %s", raw, key).
			WithHintf("%s must be positive", key).
			Mark(ierr.ErrValidation)
	}
	return d, nil
}

func FormatDuration(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func parseDefaultValue(options map[string]string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(options[plandomain.OptionDefaultResourceValue])
	if raw == "" {
		return decimal.Decimal{}, ierr.NewErrorf("missing plan option %s", plandomain.OptionDefaultResourceValue).
			WithHint("a default resource value is required").
			Mark(ierr.ErrValidation)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		return decimal.Decimal{}, ierr.NewErrorf("invalid default resource value %q", raw).
			WithHint("default resource value must be a non-negative decimal").
			Mark(ierr.ErrValidation)
	}
	return value, nil
}

func parseRuleSource(options map[string]string) ([]pricing.Rule, error) {
	text, hasText := options[plandomain.OptionFinancePlanRules]
	path, hasPath := options[plandomain.OptionFinancePlanFilePath]
	hasPath = hasPath && strings.TrimSpace(path) != ""

	switch {
	case hasText && hasPath:
		return nil, ierr.NewErrorf("both %s and %s are set", plandomain.OptionFinancePlanRules, plandomain.OptionFinancePlanFilePath).
			WithHint("use either inline rules or a rules file").
			Mark(ierr.ErrValidation)
	case hasPath:
		content, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("cannot read rules file %s", path).
				Mark(ierr.ErrValidation)
		}
		return pricing.ParseRules(string(content))
	case hasText:
		return pricing.ParseRules(text)
	default:
		return nil, ierr.NewErrorf("missing plan option %s", plandomain.OptionFinancePlanRules).
			WithHintf("set %s or %s", plandomain.OptionFinancePlanRules, plandomain.OptionFinancePlanFilePath).
			Mark(ierr.ErrValidation)
	}
}
