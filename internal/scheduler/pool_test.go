package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

type poolQueueStub struct {
	fakeQueue
	leaseCalls int32
	jobs       []repository.LeasedJob
	leased     int32
}

func (q *poolQueueStub) Lease(ctx context.Context, instanceID string, limit int) ([]repository.LeasedJob, error) {
	n := atomic.AddInt32(&q.leaseCalls, 1)
	if n == 1 {
		return q.jobs, nil
	}
	return nil, nil
}

func TestPool_Run_DispatchesLeasedJobsToWorkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var processed int32
	job := httpJob(1, srv.URL, "3|fixed|1", nil)
	q := &poolQueueStub{jobs: []repository.LeasedJob{{JobID: 1, Retry: 0}}}
	q.fakeQueue.getByIDFn = func(ctx context.Context, id int64) (*domain.Job, error) {
		atomic.AddInt32(&processed, 1)
		return job, nil
	}

	runner := NewRunner(q, &fakeSchedules{}, "inst-1", testLogger())
	pool := NewPool(q, runner, "inst-1", 2, 10, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not shut down after context cancellation")
	}

	if atomic.LoadInt32(&processed) == 0 {
		t.Fatal("expected the leased job to be dispatched to a worker")
	}
}

func TestPool_Run_InFlightJobSurvivesShutdown(t *testing.T) {
	release := make(chan struct{})
	var started int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&started, 1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var processedStatus domain.ProcessedStatus
	job := httpJob(1, srv.URL, "3|fixed|1", nil)
	q := &poolQueueStub{jobs: []repository.LeasedJob{{JobID: 1, Retry: 0}}}
	q.fakeQueue.getByIDFn = func(ctx context.Context, id int64) (*domain.Job, error) {
		return job, nil
	}
	q.fakeQueue.processedFn = func(ctx context.Context, jobID int64, instanceID string, result domain.Result) error {
		processedStatus = result.TerminalStatus()
		return nil
	}

	runner := NewRunner(q, &fakeSchedules{}, "inst-1", testLogger())
	pool := NewPool(q, runner, "inst-1", 1, 10, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	for atomic.LoadInt32(&started) == 0 {
		time.Sleep(time.Millisecond)
	}

	// Cancel while the request is in flight: the worker must still finish it.
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not shut down after the in-flight job completed")
	}

	if processedStatus != domain.StatusCompleted {
		t.Fatalf("expected the in-flight job to complete despite shutdown, got status %q", processedStatus)
	}
}

func TestPool_Run_ExitsPromptlyOnCancelWithNoWork(t *testing.T) {
	q := &poolQueueStub{}
	runner := NewRunner(q, &fakeSchedules{}, "inst-1", testLogger())
	pool := NewPool(q, runner, "inst-1", 1, 10, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not exit promptly when idle and cancelled")
	}
}
