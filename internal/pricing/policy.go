package pricing

import (
	"sync"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

// DefaultTimeUnit applies to items priced with the policy default value.
const DefaultTimeUnit = Millisecond

type ruleKey struct {
	item  ResourceItem
	state OrderState
}

// Policy maps (item, state) to a price per time unit. Unknown pairs are
// priced with the default value per millisecond. A Policy is safe for
// concurrent use; Update swaps the whole rule set at once.
type Policy struct {
	mu           sync.RWMutex
	defaultValue decimal.Decimal
	byName       map[string]Rule
	byKey        map[ruleKey]Rule
}

func NewPolicy(defaultValue decimal.Decimal, rules []Rule) (*Policy, error) {
	p := &Policy{}
	if err := p.Update(defaultValue, rules); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPolicyFromText parses rule text and builds a policy from it.
func NewPolicyFromText(defaultValue decimal.Decimal, text string) (*Policy, error) {
	rules, err := ParseRules(text)
	if err != nil {
		return nil, err
	}
	return NewPolicy(defaultValue, rules)
}

// Update replaces the default value and every rule. On error the policy is unchanged.
func (p *Policy) Update(defaultValue decimal.Decimal, rules []Rule) error {
	if defaultValue.IsNegative() {
		return ierr.NewError("default resource value must not be negative").Mark(ierr.ErrValidation)
	}

	byName := make(map[string]Rule, len(rules))
	byKey := make(map[ruleKey]Rule, len(rules))
	for _, r := range rules {
		if r.Item == nil {
			return ierr.NewErrorf("rule %q has no resource", r.Name).Mark(ierr.ErrValidation)
		}
		if r.Value.IsNegative() {
			return ierr.NewErrorf("rule %q has a negative value", r.Name).Mark(ierr.ErrValidation)
		}
		if _, dup := byName[r.Name]; dup {
			return ierr.NewErrorf("duplicate rule name %q", r.Name).Mark(ierr.ErrAlreadyExists)
		}
		key := ruleKey{item: r.Item, state: r.State}
		if prev, dup := byKey[key]; dup {
			return ierr.NewErrorf("rules %q and %q price the same resource and state", prev.Name, r.Name).
				Mark(ierr.ErrValidation)
		}
		byName[r.Name] = r
		byKey[key] = r
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultValue = defaultValue
	p.byName = byName
	p.byKey = byKey
	return nil
}

// Price returns the value and time unit for (item, state).
func (p *Policy) Price(item ResourceItem, state OrderState) (decimal.Decimal, TimeUnit) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if r, ok := p.byKey[ruleKey{item: item, state: state}]; ok {
		return r.Value, r.Unit
	}
	return p.defaultValue, DefaultTimeUnit
}

func (p *Policy) FinancialValue(item ResourceItem, state OrderState) decimal.Decimal {
	v, _ := p.Price(item, state)
	return v
}

func (p *Policy) FinancialTimeUnit(item ResourceItem, state OrderState) TimeUnit {
	_, u := p.Price(item, state)
	return u
}

func (p *Policy) DefaultValue() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultValue
}

// Rules returns the rules sorted by name.
func (p *Policy) Rules() []Rule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Rule, 0, len(p.byName))
	for _, r := range p.byName {
		out = append(out, r)
	}
	sortRules(out)
	return out
}

// RulesAsMap returns rule name to rule body.
func (p *Policy) RulesAsMap() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.byName))
	for name, r := range p.byName {
		out[name] = r.body()
	}
	return out
}

// String renders the rules in rule text form.
func (p *Policy) String() string {
	return FormatRules(p.Rules())
}
