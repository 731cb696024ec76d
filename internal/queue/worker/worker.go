package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/events"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
)

// Source is where events come from: a Redis stream consumer group in
// production.
type Source interface {
	Poll(ctx context.Context, handle events.Handler) (int, error)
	Reclaim(ctx context.Context, handle events.Handler) (int, error)
}

type NotificationRecorder interface {
	ObserveNotification(eventType, result string)
}

type Config struct {
	// ReclaimInterval is how often stale pending messages are retried.
	ReclaimInterval time.Duration
	// Backoff computes the pause after consecutive source failures.
	Backoff func(attempt int) time.Duration
}

type Worker struct {
	cfg      Config
	source   Source
	notifier notifications.Notifier
	metrics  *observability.WorkerMetrics
	prom     NotificationRecorder
	log      *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, source Source, notifier notifications.Notifier, metrics *observability.WorkerMetrics, prom NotificationRecorder, log *slog.Logger) *Worker {
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = 30 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff
	}
	if metrics == nil {
		metrics = observability.NewWorkerMetrics()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:      cfg,
		source:   source,
		notifier: notifier,
		metrics:  metrics,
		prom:     prom,
		log:      log,
	}
}

// Run consumes events until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	failures := 0
	lastReclaim := time.Time{}

	for {
		if ctx.Err() != nil {
			w.log.Info("worker received shutdown signal")
			return nil
		}

		if time.Since(lastReclaim) >= w.cfg.ReclaimInterval {
			lastReclaim = time.Now()

			n, err := w.source.Reclaim(ctx, w.HandleEvent)
			if err != nil && ctx.Err() == nil {
				w.log.Warn("reclaim failed", "err", err)
			} else if n > 0 {
				w.log.Info("reclaimed pending events", "count", n)
			}
		}

		_, err := w.source.Poll(ctx, w.HandleEvent)
		w.metrics.IncPoll(err)

		if err == nil {
			failures = 0
			continue
		}

		if ctx.Err() != nil {
			continue
		}

		delay := w.cfg.Backoff(failures)
		failures++

		w.log.Error("poll failed", "err", err, "retry_in", delay.String())

		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
}

func (w *Worker) Metrics() *observability.WorkerMetrics {
	return w.metrics
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) isReady() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}
