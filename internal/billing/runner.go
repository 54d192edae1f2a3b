package billing

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/fedbill/internal/clock"
	"github.com/smallbiznis/fedbill/internal/observability/metrics"
	"github.com/smallbiznis/fedbill/internal/runlock"
	"github.com/smallbiznis/fedbill/internal/scanlist"
	"github.com/smallbiznis/fedbill/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// TickFunc runs one pass of a runner. StatusModified means the pass stopped
// early because the scanned list changed.
type TickFunc func(ctx context.Context, log *zap.Logger) (scanlist.Status, error)

// RunnerConfig describes one periodic job of a plan.
type RunnerConfig struct {
	Plan     string
	Name     string
	Interval time.Duration
	Tick     TickFunc

	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *metrics.RunnerMetrics
	Lock    *runlock.Locker
}

// Runner runs a TickFunc on a fixed interval in its own goroutine.
type Runner struct {
	cfg RunnerConfig
	log *zap.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Runner{
		cfg: cfg,
		log: cfg.Log.Named(cfg.Name).With(
			zap.String("component", "runner"),
			zap.String("plan", cfg.Plan),
			zap.String("runner", cfg.Name),
		),
	}
}

func (r *Runner) Name() string { return r.cfg.Name }

func (r *Runner) Interval() time.Duration { return r.cfg.Interval }

// Start launches the loop. Calling Start on a running runner is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stop, r.done)
	r.log.Info("runner started", zap.Duration("interval", r.cfg.Interval))
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	<-done
	r.log.Info("runner stopped")
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Ticks are not interrupted by Stop; Stop waits for them instead.
			_ = r.RunOnce(context.Background())
		}
	}
}

// RunOnce executes a single tick synchronously.
func (r *Runner) RunOnce(ctx context.Context) error {
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := r.log.With(zap.String("run_id", runID))
	start := r.cfg.Clock.Now()

	key := runlock.Key(r.cfg.Plan, r.cfg.Name)
	token, ok, err := r.cfg.Lock.TryLock(ctx, key)
	if err != nil {
		log.Warn("runner lock unavailable, skipping tick", zap.Error(err))
		r.cfg.Metrics.ObserveTick(r.cfg.Plan, r.cfg.Name, metrics.TickResultSkipped, 0)
		return err
	}
	if !ok {
		log.Debug("runner lock held elsewhere, skipping tick")
		r.cfg.Metrics.ObserveTick(r.cfg.Plan, r.cfg.Name, metrics.TickResultNotOwner, 0)
		return nil
	}
	defer func() {
		if err := r.cfg.Lock.Release(context.Background(), key, token); err != nil {
			log.Warn("failed to release runner lock", zap.Error(err))
		}
	}()

	log.Debug("tick started")
	status, err := r.cfg.Tick(ctx, log)
	elapsed := r.cfg.Clock.Now().Sub(start)

	switch {
	case err != nil:
		log.Error("tick failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		r.cfg.Metrics.ObserveTick(r.cfg.Plan, r.cfg.Name, metrics.TickResultError, elapsed)
		return err
	case status == scanlist.StatusModified:
		log.Info("tenant list changed, tick aborted", zap.Duration("elapsed", elapsed))
		r.cfg.Metrics.IncScanAbort(r.cfg.Plan, r.cfg.Name)
		r.cfg.Metrics.ObserveTick(r.cfg.Plan, r.cfg.Name, metrics.TickResultAborted, elapsed)
	default:
		log.Debug("tick finished", zap.Duration("elapsed", elapsed))
		r.cfg.Metrics.ObserveTick(r.cfg.Plan, r.cfg.Name, metrics.TickResultOK, elapsed)
	}
	return nil
}
