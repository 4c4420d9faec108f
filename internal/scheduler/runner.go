package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/metrics"
	"github.com/jobqueue/jobqueue/internal/repository"
)

// Runner is the job runner (C7): per-entry fetch, dispatch, classify, and
// retry/recurrence decision. Grounded on
// original_source/src/services/jobrunner.rs (the retry-kind switch) and the
// teacher's Executor.Run (http.Client construction, context-deadline
// enforcement); classification is extended to the full 2xx/3xx/4xx/5xx/
// timeout/transport-error table the spec requires.
type Runner struct {
	queue      repository.QueueRepository
	schedules  repository.ScheduleRepository
	instanceID string
	client     *http.Client
	logger     *slog.Logger
}

func NewRunner(queue repository.QueueRepository, schedules repository.ScheduleRepository, instanceID string, logger *slog.Logger) *Runner {
	return &Runner{
		queue:      queue,
		schedules:  schedules,
		instanceID: instanceID,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("component", "runner", "instance_id", instanceID),
	}
}

// Run executes one leased (job_id, retry) entry to completion: fetch, build,
// classify, and apply the resulting transition.
func (r *Runner) Run(ctx context.Context, leased repository.LeasedJob) {
	start := time.Now()

	job, err := r.queue.GetByID(ctx, leased.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			r.logger.Warn("leased job vanished, treating as raced completion", "job_id", leased.JobID)
			return
		}
		r.logger.Error("fetch leased job failed", "job_id", leased.JobID, "error", err)
		return
	}

	result := r.execute(ctx, job)
	metrics.JobExecutionDuration.WithLabelValues(string(result.TerminalStatus())).Observe(time.Since(start).Seconds())

	if result.Retryable() {
		r.handleTransient(ctx, job, leased.Retry, result)
		return
	}

	r.handleTerminal(ctx, job, result)
}

// execute dispatches by protocol and classifies the outcome per the
// outcome table (§4.7): deadline exceeded -> Timeout (retryable); a failure
// to reach the remote endpoint at all -> TransportError (retryable, mirrors
// the original runner's Error::HyperError branch); a failure building the
// outbound request itself -> Error (terminal, not retryable); 5xx/4xx ->
// retryable http; 2xx/3xx -> terminal http.
func (r *Runner) execute(ctx context.Context, job *domain.Job) domain.Result {
	method, url, ok := job.BuildRequest()
	if !ok {
		if job.Meta.Protocol == domain.ProtocolNone || job.Meta.Protocol == "" {
			return domain.NoneResult()
		}
		return domain.ErrorResult("unsupported protocol")
	}

	timeout := time.Duration(job.Meta.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if len(job.Body) > 0 {
		bodyReader = strings.NewReader(string(job.Body))
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("build request: %v", err))
	}
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}

	r.logger.InfoContext(ctx, "executing job", "job_id", job.ID, "method", method, "url", url)

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return domain.TimeoutResult()
		}
		return domain.TransportErrorResult(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("read response body: %v", err))
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return domain.HTTPResult(resp.StatusCode, resp.Proto, headers, body)
}

// handleTransient applies the retry policy for a retryable outcome
// (timeout, transport error, 4xx, 5xx): exhausted -> processed/failed;
// Some(0) -> unlock for immediate re-dispatch; Some(d) -> scheduled retry.
func (r *Runner) handleTransient(ctx context.Context, job *domain.Job, retryIdx int32, result domain.Result) {
	policy, err := domain.ParseRetryPolicy(job.Meta.Retry)
	if err != nil {
		r.logger.Error("invalid retry policy on job, failing", "job_id", job.ID, "error", err)
		r.finish(ctx, job, domain.ErrorResult("invalid retry policy"))
		return
	}

	delay, hasNext := policy.NextRetryIn(uint32(retryIdx))
	if !hasNext {
		r.finish(ctx, job, result)
		return
	}

	if delay == 0 {
		if err := r.queue.Unlock(ctx, job.ID, r.instanceID); err != nil {
			r.logger.Error("unlock for immediate retry failed", "job_id", job.ID, "error", err)
		}
		return
	}

	at := time.Now().Unix() + int64(delay)
	if err := r.queue.Retry(ctx, job.ID, at); err != nil {
		r.logger.Error("schedule retry failed", "job_id", job.ID, "error", err)
	}
}

// finish persists a terminal outcome and, for a recurring job, advances the
// schedule. The spec advances on every terminal outcome, success or
// failure, unless the schedule is inactive or past until.
func (r *Runner) finish(ctx context.Context, job *domain.Job, result domain.Result) {
	r.handleTerminal(ctx, job, result)
}

func (r *Runner) handleTerminal(ctx context.Context, job *domain.Job, result domain.Result) {
	if err := r.queue.Processed(ctx, job.ID, r.instanceID, result); err != nil {
		r.logger.Error("processed write failed", "job_id", job.ID, "error", err)
		return
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(result.TerminalStatus())).Inc()

	if job.ScheduleID == nil {
		return
	}
	r.advanceSchedule(ctx, job)
}

func (r *Runner) advanceSchedule(ctx context.Context, job *domain.Job) {
	sched, err := r.schedules.GetByID(ctx, *job.ScheduleID)
	if err != nil {
		r.logger.Error("fetch schedule for recurrence failed", "schedule_id", *job.ScheduleID, "error", err)
		return
	}
	if sched.Inactive {
		return
	}

	policy, err := domain.ParseSchedulePolicy(sched.Schedule)
	if err != nil {
		r.logger.Error("invalid schedule policy", "schedule_id", sched.ScheduleID, "error", err)
		return
	}

	next, ok := policy.NextFire(time.Now().Unix(), sched.Until)
	if !ok {
		r.logger.Info("schedule exhausted, not advancing", "schedule_id", sched.ScheduleID)
		return
	}

	if _, err := r.queue.CloneScheduleAt(ctx, job.ID, next, r.instanceID); err != nil {
		r.logger.Error("clone schedule forward failed", "job_id", job.ID, "schedule_id", sched.ScheduleID, "error", err)
	}
}
