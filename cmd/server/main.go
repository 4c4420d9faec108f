package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jobqueue/jobqueue/config"
	"github.com/jobqueue/jobqueue/internal/health"
	"github.com/jobqueue/jobqueue/internal/http/handler"
	httptransport "github.com/jobqueue/jobqueue/internal/http"
	"github.com/jobqueue/jobqueue/internal/infrastructure/postgres"
	ctxlog "github.com/jobqueue/jobqueue/internal/log"
	"github.com/jobqueue/jobqueue/internal/metrics"
	otelx "github.com/jobqueue/jobqueue/internal/otel"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "jobqueue"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	tp, err := otelx.Init(ctx, otelx.Config{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTELEndpoint,
		Enabled:     cfg.OTELEnabled,
	})
	if err != nil {
		stop()
		log.Fatalf("otel: %v", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	queueRepo := postgres.NewQueueRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool)
	instanceRepo := postgres.NewInstanceRepository(pool)

	ingestHandler := handler.NewIngestHandler(queueRepo, cfg.DefaultTimeoutMS, logger)
	jobHandler := handler.NewJobHandler(queueRepo, logger)
	scheduleHandler := handler.NewScheduleHandler(scheduleRepo, logger)
	instanceHandler := handler.NewInstanceHandler(instanceRepo, logger)
	healthHandler := handler.NewHealthHandler(checker)

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(
			logger, serviceName,
			ingestHandler, jobHandler, scheduleHandler, instanceHandler, healthHandler,
			[]byte(cfg.JWTSecret),
		),
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel shutdown", "error", err)
	}
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
