package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/events"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/queue/redisclient"
	"github.com/geocoder89/userhub/internal/queue/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	if cfg.Redis.Addr == "" {
		log.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	rdb, err := redisclient.Open(ctx, cfg.Redis, "userhub-worker")
	if err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}

	defer rdb.Close()

	sub := events.NewSubscriber(rdb, events.SubscriberConfig{
		Stream:   events.UserStream,
		Group:    cfg.Worker.Group,
		Consumer: cfg.Worker.Consumer,
	}, log)

	if err := sub.EnsureGroup(ctx); err != nil {
		log.Error("consumer group setup failed", "err", err)
		os.Exit(1)
	}

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{},
	)

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	w := worker.New(worker.Config{}, sub, notifier, observability.NewWorkerMetrics(), prom, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", w.HealthHandler(redisclient.Ping(rdb)))

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health server starting", "port", cfg.Worker.HealthPort)

		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", "err", err)
		}
	}()

	log.Info("worker has started", "group", cfg.Worker.Group, "consumer", cfg.Worker.Consumer)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown failed", "err", err)
	}

	log.Info("worker shutdown complete", "stats", w.Metrics().Snapshot())
}
