package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"gorm.io/gorm"
)

const (
	RunnerPayment     = "payment"
	RunnerStopService = "stop_service"
)

const (
	TickResultOK       = "ok"
	TickResultAborted  = "aborted"
	TickResultError    = "error"
	TickResultSkipped  = "skipped"
	TickResultNotOwner = "not_owner"
)

const (
	RunnerErrorReasonDeadlineExceeded = "deadline_exceeded"
	RunnerErrorReasonPeer             = "peer"
	RunnerErrorReasonNotSupported     = "not_supported"
	RunnerErrorReasonValidation       = "validation"
	RunnerErrorReasonDB               = "db"
	RunnerErrorReasonUnknown          = "unknown"
)

// RunnerMetrics captures billing and stop-service runner health.
type RunnerMetrics struct {
	ticks                *prometheus.CounterVec
	tickDuration         *prometheus.HistogramVec
	tenantErrors         *prometheus.CounterVec
	scanAborts           *prometheus.CounterVec
	lifecycleTransitions *prometheus.CounterVec
	invoicesGenerated    *prometheus.CounterVec
	creditsDeductions    *prometheus.CounterVec
}

var (
	runnerMetricsOnce sync.Once
	runnerMetrics     *RunnerMetrics
)

// Runner returns the singleton runner metrics registered on the default registerer.
func Runner() *RunnerMetrics {
	return RunnerWithConfig(Config{})
}

// RunnerWithConfig returns the singleton runner metrics using config labels.
func RunnerWithConfig(cfg Config) *RunnerMetrics {
	runnerMetricsOnce.Do(func() {
		runnerMetrics = NewRunnerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return runnerMetrics
}

// NewRunnerMetrics registers a fresh set of runner collectors on registerer.
func NewRunnerMetrics(registerer prometheus.Registerer, cfg Config) *RunnerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fedbill"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fedbill_runner_ticks_total",
		Help:        "Runner ticks by plan, runner and result.",
		ConstLabels: constLabels,
	}, []string{"plan", "runner", "result"})
	tickDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fedbill_runner_tick_duration_seconds",
		Help:        "Runner tick latency.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"plan", "runner"})
	tenantErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fedbill_runner_tenant_errors_total",
		Help:        "Tenants skipped during a tick because of an error.",
		ConstLabels: constLabels,
	}, []string{"plan", "runner", "reason"})
	scanAborts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fedbill_runner_scan_aborts_total",
		Help:        "Ticks that stopped early because the tenant list changed.",
		ConstLabels: constLabels,
	}, []string{"plan", "runner"})
	lifecycleTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fedbill_lifecycle_transitions_total",
		Help:        "Resource lifecycle state transitions.",
		ConstLabels: constLabels,
	}, []string{"plan", "from", "to"})
	invoicesGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fedbill_invoices_generated_total",
		Help:        "Invoices generated by post-paid plans.",
		ConstLabels: constLabels,
	}, []string{"plan"})
	creditsDeductions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fedbill_credits_deductions_total",
		Help:        "Credit deductions applied by pre-paid plans.",
		ConstLabels: constLabels,
	}, []string{"plan"})

	registerer.MustRegister(
		ticks,
		tickDuration,
		tenantErrors,
		scanAborts,
		lifecycleTransitions,
		invoicesGenerated,
		creditsDeductions,
	)

	return &RunnerMetrics{
		ticks:                ticks,
		tickDuration:         tickDuration,
		tenantErrors:         tenantErrors,
		scanAborts:           scanAborts,
		lifecycleTransitions: lifecycleTransitions,
		invoicesGenerated:    invoicesGenerated,
		creditsDeductions:    creditsDeductions,
	}
}

// ObserveTick records the outcome and latency of one runner tick.
func (m *RunnerMetrics) ObserveTick(plan, runner, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(plan, runner, result).Inc()
	if result == TickResultSkipped || result == TickResultNotOwner {
		return
	}
	m.tickDuration.WithLabelValues(plan, runner).Observe(duration.Seconds())
}

func (m *RunnerMetrics) IncTenantError(plan, runner string, err error) {
	if m == nil || err == nil {
		return
	}
	m.tenantErrors.WithLabelValues(plan, runner, ClassifyRunnerError(err)).Inc()
}

func (m *RunnerMetrics) IncScanAbort(plan, runner string) {
	if m == nil {
		return
	}
	m.scanAborts.WithLabelValues(plan, runner).Inc()
}

func (m *RunnerMetrics) IncLifecycleTransition(plan, from, to string) {
	if m == nil || from == to {
		return
	}
	m.lifecycleTransitions.WithLabelValues(plan, from, to).Inc()
}

func (m *RunnerMetrics) IncInvoiceGenerated(plan string) {
	if m == nil {
		return
	}
	m.invoicesGenerated.WithLabelValues(plan).Inc()
}

func (m *RunnerMetrics) IncCreditsDeduction(plan string) {
	if m == nil {
		return
	}
	m.creditsDeductions.WithLabelValues(plan).Inc()
}

// ClassifyRunnerError maps runner errors to low-cardinality reasons.
func ClassifyRunnerError(err error) string {
	switch {
	case err == nil:
		return RunnerErrorReasonUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return RunnerErrorReasonDeadlineExceeded
	case ierr.IsNotSupported(err):
		return RunnerErrorReasonNotSupported
	case ierr.IsHTTPClient(err):
		return RunnerErrorReasonPeer
	case ierr.IsValidation(err):
		return RunnerErrorReasonValidation
	case isDBError(err):
		return RunnerErrorReasonDB
	default:
		return RunnerErrorReasonUnknown
	}
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if ierr.IsDatabase(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
