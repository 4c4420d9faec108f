package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobqueue/jobqueue/internal/repository"
)

// Pool is the worker dispatch loop (C6): a single producer leases enqueued
// rows and feeds a bounded channel; a fixed number of workers drain it
// until it closes. Grounded on
// original_source/src/services/channelworkerservice.rs (producer/bounded
// channel/N workers, skip-missed-ticks polling) and the teacher's
// Worker.processBatch concurrency shape.
type Pool struct {
	queue        repository.QueueRepository
	runner       *Runner
	instanceID   string
	workers      int
	prefetch     int
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewPool(queue repository.QueueRepository, runner *Runner, instanceID string, workers, prefetch int, pollInterval time.Duration, logger *slog.Logger) *Pool {
	return &Pool{
		queue:        queue,
		runner:       runner,
		instanceID:   instanceID,
		workers:      workers,
		prefetch:     prefetch,
		pollInterval: pollInterval,
		logger:       logger.With("component", "worker_pool", "instance_id", instanceID),
	}
}

// Run starts the producer and the worker goroutines, and blocks until both
// have exited. A job already in flight is allowed to finish before a
// worker exits on shutdown; the producer stops leasing new work immediately.
func (p *Pool) Run(ctx context.Context) {
	ch := make(chan repository.LeasedJob, p.workers)

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func(id int) {
			defer wg.Done()
			p.work(id, ch)
		}(i)
	}

	p.produce(ctx, ch)
	close(ch)
	wg.Wait()
	p.logger.Info("worker pool shut down")
}

func (p *Pool) produce(ctx context.Context, ch chan<- repository.LeasedJob) {
	p.logger.Info("producer started", "workers", p.workers, "prefetch", p.prefetch)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		leased, err := p.queue.Lease(ctx, p.instanceID, p.prefetch)
		if err != nil {
			p.logger.Error("lease failed", "error", err)
			if !sleepInterruptible(ctx, p.pollInterval) {
				return
			}
			continue
		}

		if len(leased) == 0 {
			if !sleepInterruptible(ctx, p.pollInterval) {
				return
			}
			continue
		}

		for _, job := range leased {
			select {
			case ch <- job: // blocks when workers are saturated: natural backpressure
			case <-ctx.Done():
				return
			}
		}
	}
}

// work drains leased jobs until the channel closes. Each job runs on a
// detached context, never the producer's cancellable one: a job already
// handed to a worker runs to completion (retry or processed) even after
// shutdown is requested; only the producer stops leasing new work.
func (p *Pool) work(id int, ch <-chan repository.LeasedJob) {
	for job := range ch {
		p.runner.Run(context.Background(), job)
	}
	p.logger.Debug("worker exited", "worker", id)
}

// sleepInterruptible sleeps for d or returns false early if ctx is cancelled.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
