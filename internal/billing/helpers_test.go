package billing

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() (*metrics.RunnerMetrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return metrics.NewRunnerMetrics(registry, metrics.Config{ServiceName: "fedbill", Environment: "test"}), registry
}

// counterValue sums the counter samples of name whose labels include want.
func counterValue(t *testing.T, registry *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if hasLabels(m, want) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}
