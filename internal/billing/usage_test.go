package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fedbill/internal/accounting"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v int64) time.Time { return time.UnixMilli(v) }

func computeRecord(history ...accounting.StateChange) accounting.Record {
	return accounting.Record{
		OrderID:      "order-1",
		ResourceType: pricing.ResourceTypeCompute,
		Spec:         accounting.Spec{VCPU: 2, RAM: 4},
		StartTime:    history[0].At,
		History:      history,
	}
}

func testPolicy(t *testing.T) *pricing.Policy {
	t.Helper()
	policy, err := pricing.NewPolicyFromText(decimal.RequireFromString("1"), testRules)
	require.NoError(t, err)
	return policy
}

func TestPriceRecords(t *testing.T) {
	record := computeRecord(
		accounting.StateChange{At: ms(0), State: pricing.OrderStateFulfilled},
		accounting.StateChange{At: ms(30_000), State: pricing.OrderStateClosed},
	)

	charges, err := PriceRecords(testPolicy(t), []accounting.Record{record}, ms(0), ms(31_000))
	require.NoError(t, err)
	require.Len(t, charges, 1)

	c := charges[0]
	assert.Equal(t, "order-1", c.OrderID)
	assert.Equal(t, pricing.OrderStateFulfilled, c.State)
	assert.Equal(t, pricing.Second, c.Unit)
	assert.EqualValues(t, 30, c.Units)
	assert.True(t, decimal.NewFromInt(150).Equal(c.Value()), "got %s", c.Value())
}

func TestPriceRecordsFallsBackToDefault(t *testing.T) {
	record := computeRecord(
		accounting.StateChange{At: ms(0), State: pricing.OrderStatePaused},
	)

	charges, err := PriceRecords(testPolicy(t), []accounting.Record{record}, ms(0), ms(2_000))
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, pricing.DefaultTimeUnit, charges[0].Unit)
	assert.EqualValues(t, 2_000, charges[0].Units)
}

func TestPriceRecordsRejectsUnknownResource(t *testing.T) {
	record := computeRecord(accounting.StateChange{At: ms(0), State: pricing.OrderStateFulfilled})
	record.ResourceType = "network"

	_, err := PriceRecords(testPolicy(t), []accounting.Record{record}, ms(0), ms(1_000))
	assert.True(t, ierr.IsValidation(err))
}
