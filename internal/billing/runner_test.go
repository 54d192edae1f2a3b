package billing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunnerRunOnceRecordsResult(t *testing.T) {
	m, registry := newTestMetrics()
	results := []struct {
		status scanlist.Status
		err    error
	}{
		{scanlist.StatusEnd, nil},
		{scanlist.StatusModified, nil},
		{scanlist.StatusOK, errors.New("accs down")},
	}
	calls := 0
	r := NewRunner(RunnerConfig{
		Plan:     "gold",
		Name:     metrics.RunnerPayment,
		Interval: time.Hour,
		Tick: func(context.Context, *zap.Logger) (scanlist.Status, error) {
			res := results[calls]
			calls++
			return res.status, res.err
		},
		Log:     zap.NewNop(),
		Metrics: m,
	})

	require.NoError(t, r.RunOnce(context.Background()))
	require.NoError(t, r.RunOnce(context.Background()))
	require.Error(t, r.RunOnce(context.Background()))

	labels := func(result string) map[string]string {
		return map[string]string{"plan": "gold", "runner": metrics.RunnerPayment, "result": result}
	}
	assert.Equal(t, 1.0, counterValue(t, registry, "fedbill_runner_ticks_total", labels(metrics.TickResultOK)))
	assert.Equal(t, 1.0, counterValue(t, registry, "fedbill_runner_ticks_total", labels(metrics.TickResultAborted)))
	assert.Equal(t, 1.0, counterValue(t, registry, "fedbill_runner_ticks_total", labels(metrics.TickResultError)))
	assert.Equal(t, 1.0, counterValue(t, registry, "fedbill_runner_scan_aborts_total", nil))
}

func TestRunnerStartStop(t *testing.T) {
	var ticks atomic.Int32
	r := NewRunner(RunnerConfig{
		Plan:     "gold",
		Name:     metrics.RunnerStopService,
		Interval: 5 * time.Millisecond,
		Tick: func(context.Context, *zap.Logger) (scanlist.Status, error) {
			ticks.Add(1)
			return scanlist.StatusEnd, nil
		},
	})

	r.Start()
	r.Start()
	assert.True(t, r.IsRunning())
	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())

	r.Stop()
}
