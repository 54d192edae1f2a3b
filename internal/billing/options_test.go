package billing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	plandomain "github.com/smallbiznis/fedbill/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = "c1=compute,fulfilled,2,4,5/s\n"

func validOptions() map[string]string {
	return map[string]string{
		plandomain.OptionBillingInterval:          "60000",
		plandomain.OptionTimeToWaitBeforeStopping: "30s",
		plandomain.OptionDefaultResourceValue:     "0.01",
		plandomain.OptionFinancePlanRules:         testRules,
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(validOptions())
	require.NoError(t, err)

	assert.Equal(t, time.Minute, opts.BillingInterval)
	assert.Equal(t, 30*time.Second, opts.WaitBeforeStopping)
	assert.Equal(t, DefaultStopServiceWaitTime, opts.StopServiceWaitTime)
	assert.True(t, decimal.RequireFromString("0.01").Equal(opts.DefaultValue))
	require.Len(t, opts.Rules, 1)
	assert.Equal(t, "c1", opts.Rules[0].Name)

	m := opts.Map()
	assert.Equal(t, "30000", m[plandomain.OptionTimeToWaitBeforeStopping])
	assert.Equal(t, "60000", m[plandomain.OptionStopServiceWaitTime])
}

func TestParseOptionsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing interval", func(m map[string]string) { delete(m, plandomain.OptionBillingInterval) }},
		{"zero interval", func(m map[string]string) { m[plandomain.OptionBillingInterval] = "0" }},
		{"garbage wait", func(m map[string]string) { m[plandomain.OptionTimeToWaitBeforeStopping] = "soon" }},
		{"negative default", func(m map[string]string) { m[plandomain.OptionDefaultResourceValue] = "-1" }},
		{"missing default", func(m map[string]string) { delete(m, plandomain.OptionDefaultResourceValue) }},
		{"no rules", func(m map[string]string) { delete(m, plandomain.OptionFinancePlanRules) }},
		{"bad rule", func(m map[string]string) { m[plandomain.OptionFinancePlanRules] = "c1=compute" }},
		{"two rule sources", func(m map[string]string) { m[plandomain.OptionFinancePlanFilePath] = "/tmp/rules" }},
		{"missing file", func(m map[string]string) {
			delete(m, plandomain.OptionFinancePlanRules)
			m[plandomain.OptionFinancePlanFilePath] = filepath.Join(t.TempDir(), "nope")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := validOptions()
			tt.mutate(options)
			_, err := ParseOptions(options)
			assert.True(t, ierr.IsValidation(err), "got %v", err)
		})
	}
}

func TestParseOptionsReadsRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte(testRules), 0o600))

	options := validOptions()
	delete(options, plandomain.OptionFinancePlanRules)
	options[plandomain.OptionFinancePlanFilePath] = path

	opts, err := ParseOptions(options)
	require.NoError(t, err)
	require.Len(t, opts.Rules, 1)
}
