package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobqueue/jobqueue/internal/metrics"
	"github.com/jobqueue/jobqueue/internal/repository"
)

// Loop is the fused scheduler control loop (C5): one per instance, that
// heartbeats liveness, fences expired peers, and promotes due scheduled rows
// into the enqueued queue. Grounded on
// original_source/src/services/schedulerservice.rs, which runs all three
// steps in a single tick rather than the teacher's separate
// Dispatcher/Reaper tickers.
type Loop struct {
	queue      repository.QueueRepository
	instances  repository.InstanceRepository
	instanceID string
	logger     *slog.Logger

	tick       time.Duration
	instanceTTL time.Duration
}

func NewLoop(queue repository.QueueRepository, instances repository.InstanceRepository, instanceID string, tick, instanceTTL time.Duration, logger *slog.Logger) *Loop {
	return &Loop{
		queue:       queue,
		instances:   instances,
		instanceID:  instanceID,
		tick:        tick,
		instanceTTL: instanceTTL,
		logger:      logger.With("component", "scheduler_loop", "instance_id", instanceID),
	}
}

// Run ticks until ctx is cancelled. Missed ticks are coalesced: a long pause
// never causes a burst of catch-up ticks (time.Ticker's own semantics).
// On shutdown the instance marks itself dead before returning.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	l.logger.Info("scheduler loop started", "tick", l.tick, "instance_ttl", l.instanceTTL)

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case <-ticker.C:
			l.runTick(ctx)
		}
	}
}

func (l *Loop) runTick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds()) }()

	if err := l.instances.Live(ctx, l.instanceID); err != nil {
		l.logger.Error("heartbeat failed", "error", err)
	}

	rescued, err := l.instances.KillExpired(ctx, l.instanceTTL)
	if err != nil {
		l.logger.Error("kill expired failed", "error", err)
	} else if rescued > 0 {
		metrics.SchedulerFencedTotal.Add(float64(rescued))
		l.logger.Info("fenced expired peers", "leases_reopened", rescued)
	}

	promoted, err := l.queue.EnqueueScheduled(ctx, l.instanceID)
	if err != nil {
		l.logger.Error("enqueue scheduled failed", "error", err)
	} else if promoted > 0 {
		metrics.SchedulerPromotedTotal.Add(float64(promoted))
		l.logger.Info("promoted due jobs", "count", promoted)
	}
}

func (l *Loop) shutdown() {
	// Use a fresh context: the incoming ctx is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.instances.Kill(ctx, l.instanceID); err != nil {
		l.logger.Error("self kill on shutdown failed", "error", err)
	}
	l.logger.Info("scheduler loop shut down")
}
