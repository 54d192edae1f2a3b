package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"gorm.io/gorm"
)

func TestClassifyRunnerError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: RunnerErrorReasonDeadlineExceeded},
		{name: "not_supported", err: ierr.NewError("hibernate").Mark(ierr.ErrNotSupported), want: RunnerErrorReasonNotSupported},
		{name: "peer", err: ierr.NewError("accs down").Mark(ierr.ErrHTTPClient), want: RunnerErrorReasonPeer},
		{name: "validation", err: ierr.NewError("bad record").Mark(ierr.ErrValidation), want: RunnerErrorReasonValidation},
		{name: "pg", err: &pgconn.PgError{Code: "40001"}, want: RunnerErrorReasonDB},
		{name: "duplicate", err: gorm.ErrDuplicatedKey, want: RunnerErrorReasonDB},
		{name: "not_found_is_not_db", err: gorm.ErrRecordNotFound, want: RunnerErrorReasonUnknown},
		{name: "unknown", err: errors.New("boom"), want: RunnerErrorReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyRunnerError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveTick(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewRunnerMetrics(registry, Config{ServiceName: "fedbill", Environment: "test"})

	m.ObserveTick("gold", RunnerPayment, TickResultOK, 20*time.Millisecond)
	m.ObserveTick("gold", RunnerPayment, TickResultOK, 20*time.Millisecond)
	m.ObserveTick("gold", RunnerPayment, TickResultAborted, time.Millisecond)

	if got := testutil.ToFloat64(m.ticks.WithLabelValues("gold", RunnerPayment, TickResultOK)); got != 2 {
		t.Fatalf("expected 2 ok ticks, got %v", got)
	}
	if got := testutil.ToFloat64(m.ticks.WithLabelValues("gold", RunnerPayment, TickResultAborted)); got != 1 {
		t.Fatalf("expected 1 aborted tick, got %v", got)
	}
}

func TestLifecycleTransitionIgnoresSelfLoops(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewRunnerMetrics(registry, Config{})

	m.IncLifecycleTransition("gold", "DEFAULT", "DEFAULT")
	m.IncLifecycleTransition("gold", "DEFAULT", "WAITING_FOR_STOP")

	if got := testutil.ToFloat64(m.lifecycleTransitions.WithLabelValues("gold", "DEFAULT", "WAITING_FOR_STOP")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.CollectAndCount(m.lifecycleTransitions); got != 1 {
		t.Fatalf("expected a single series, got %d", got)
	}
}

func TestNilRunnerMetricsIsSafe(t *testing.T) {
	var m *RunnerMetrics
	m.ObserveTick("gold", RunnerPayment, TickResultOK, time.Second)
	m.IncTenantError("gold", RunnerPayment, errors.New("x"))
	m.IncScanAbort("gold", RunnerPayment)
	m.IncInvoiceGenerated("gold")
	m.IncCreditsDeduction("gold")
}
