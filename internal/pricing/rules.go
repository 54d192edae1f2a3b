package pricing

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

const (
	ruleNameSeparator  = "="
	ruleFieldSeparator = ","
	ruleUnitSeparator  = "/"

	computeRuleFields = 5
	volumeRuleFields  = 4
)

// Rule prices one (item, state) pair.
type Rule struct {
	Name  string
	Item  ResourceItem
	State OrderState
	Value decimal.Decimal
	Unit  TimeUnit
}

// String renders r in rule text form: name=type,state,<fields>,value/unit.
func (r Rule) String() string {
	return r.Name + ruleNameSeparator + r.body()
}

func (r Rule) body() string {
	fields := []string{string(r.Item.Type()), string(r.State)}
	switch it := r.Item.(type) {
	case ComputeItem:
		fields = append(fields, strconv.Itoa(it.VCPU), strconv.Itoa(it.RAM))
	case VolumeItem:
		fields = append(fields, strconv.Itoa(it.Size))
	}
	fields = append(fields, r.Value.String()+ruleUnitSeparator+string(r.Unit))
	return strings.Join(fields, ruleFieldSeparator)
}

// ParseRules parses rule text, one rule per line. Blank lines and lines
// starting with '#' are ignored.
func ParseRules(text string) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := ParseRule(line)
		if err != nil {
			return nil, ierr.WithError(err).
				WithMessage(fmt.Sprintf("line %d", lineNo)).
				Mark(ierr.ErrValidation)
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrValidation)
	}
	return rules, nil
}

// ParseRule parses a single name=type,state,<fields>,value/unit line.
func ParseRule(line string) (Rule, error) {
	name, body, ok := strings.Cut(strings.TrimSpace(line), ruleNameSeparator)
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Rule{}, invalidRule(line, "expected name=body")
	}

	fields := strings.Split(body, ruleFieldSeparator)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	resourceType, err := ParseResourceType(fields[0])
	if err != nil {
		return Rule{}, err
	}

	var (
		item       ResourceItem
		valueField string
		stateField string
	)
	switch resourceType {
	case ResourceTypeCompute:
		if len(fields) != computeRuleFields {
			return Rule{}, invalidRule(line, "compute rules need type,state,vcpu,ram,value/unit")
		}
		vcpu, err := parseInt(fields[2], "vcpu")
		if err != nil {
			return Rule{}, err
		}
		ram, err := parseInt(fields[3], "ram")
		if err != nil {
			return Rule{}, err
		}
		compute, err := NewComputeItem(vcpu, ram)
		if err != nil {
			return Rule{}, err
		}
		item, stateField, valueField = compute, fields[1], fields[4]
	case ResourceTypeVolume:
		if len(fields) != volumeRuleFields {
			return Rule{}, invalidRule(line, "volume rules need type,state,size,value/unit")
		}
		size, err := parseInt(fields[2], "size")
		if err != nil {
			return Rule{}, err
		}
		volume, err := NewVolumeItem(size)
		if err != nil {
			return Rule{}, err
		}
		item, stateField, valueField = volume, fields[1], fields[3]
	}

	state, err := ParseOrderState(stateField)
	if err != nil {
		return Rule{}, err
	}

	parts := strings.Split(valueField, ruleUnitSeparator)
	if len(parts) != 2 {
		return Rule{}, invalidRule(line, "price must be value/unit")
	}
	value, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return Rule{}, invalidRule(line, "price value is not a decimal")
	}
	if value.IsNegative() {
		return Rule{}, invalidRule(line, "price value must not be negative")
	}
	unit, err := ParseTimeUnit(parts[1])
	if err != nil {
		return Rule{}, err
	}

	return Rule{Name: name, Item: item, State: state, Value: value, Unit: unit}, nil
}

// FormatRules renders rules as text, sorted by name.
func FormatRules(rules []Rule) string {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sortRules(sorted)

	var b strings.Builder
	for _, r := range sorted {
		b.WriteString(r.String())
		b.WriteString("\n")
	}
	return b.String()
}

func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
}

func parseInt(s, field string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ierr.NewErrorf("%s %q is not an integer", field, s).Mark(ierr.ErrValidation)
	}
	return n, nil
}

func invalidRule(line, reason string) error {
	return ierr.NewErrorf("invalid finance rule %q", line).
		WithHint(reason).
		Mark(ierr.ErrValidation)
}
