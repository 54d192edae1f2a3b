package metricspush

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/fedbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(provide),
	fx.Invoke(register),
)

func provide(cfg config.Config, logger *zap.Logger) (Pusher, error) {
	return NewPusher(cfg.MetricsPush, cfg.AppName, cfg.Environment, logger)
}

func register(lc fx.Lifecycle, cfg config.Config, pusher Pusher, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	w := NewWorker(pusher, prometheus.DefaultGatherer, cfg.MetricsPush.Interval, logger)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	})
}

// Worker pushes gatherer to pusher on a fixed interval.
type Worker struct {
	pusher   Pusher
	gatherer prometheus.Gatherer
	interval time.Duration
	log      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		pusher:   pusher,
		gatherer: gatherer,
		interval: interval,
		log:      logger.Named("metrics_push").With(zap.String("component", "metrics_push")),
	}
}

func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.log.Info("starting metrics push worker", zap.Duration("interval", w.interval))
		for {
			select {
			case <-ticker.C:
				w.PushOnce(ctx)
			case <-ctx.Done():
				// final push so short-lived replicas still report
				w.PushOnce(context.Background())
				w.log.Info("stopping metrics push worker")
				return
			}
		}
	}()
}

func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) PushOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := w.pusher.Push(ctx, w.gatherer); err != nil {
		w.log.Warn("metrics push failed", zap.Error(err))
	}
}
