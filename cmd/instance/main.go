// cmd/instance runs the scheduler loop (C5) and worker pool (C6) in a
// single process, matching the original system where both live in one
// service instance rather than the teacher's separate scheduler/worker
// binaries.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jobqueue/jobqueue/config"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/infrastructure/postgres"
	ctxlog "github.com/jobqueue/jobqueue/internal/log"
	"github.com/jobqueue/jobqueue/internal/metrics"
	"github.com/jobqueue/jobqueue/internal/scheduler"
	"github.com/lmittmann/tint"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())
	instanceID := domain.NewInstanceID()
	logger = logger.With("instance_id", instanceID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")
	metrics.Register()

	queueRepo := postgres.NewQueueRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool)
	instanceRepo := postgres.NewInstanceRepository(pool)

	loop := scheduler.NewLoop(
		queueRepo, instanceRepo, instanceID,
		time.Duration(cfg.SchedulerTickMS)*time.Millisecond,
		time.Duration(cfg.InstanceTTLSec)*time.Second,
		logger,
	)

	runner := scheduler.NewRunner(queueRepo, scheduleRepo, instanceID, logger)
	workerPool := scheduler.NewPool(
		queueRepo, runner, instanceID,
		cfg.Workers, cfg.Prefetch,
		time.Duration(cfg.PollIntervalMS)*time.Millisecond,
		logger,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		workerPool.Run(ctx)
	}()

	logger.Info("instance started", "workers", cfg.Workers, "prefetch", cfg.Prefetch)
	wg.Wait()
	logger.Info("instance shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
