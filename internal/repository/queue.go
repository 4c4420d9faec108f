package repository

import (
	"context"

	"github.com/jobqueue/jobqueue/internal/domain"
)

// QueueInsert is the caller-supplied shape for a new job.
type QueueInsert struct {
	Meta       domain.Meta
	Headers    map[string]string
	Body       []byte
	ExternalID *string

	// At, when set, schedules the job for a single future instant instead
	// of enqueuing it immediately.
	At *int64

	// Recurrence fields: when Schedule is non-empty, the job is owned by a
	// new schedules row recurring on this policy.
	Schedule string
	Until    *int64
}

// LeasedJob is a single row returned by Lease: enough to dispatch without a
// second round-trip for the common case.
type LeasedJob struct {
	JobID int64
	Retry int32
}

// QueueRepository exposes the atomic transitions of the durable queue state
// machine (C3): jobs/scheduled/enqueued/processed/schedules/history.
type QueueRepository interface {
	// Create inserts a job and, depending on the insert shape, an enqueued,
	// scheduled, or schedule+scheduled row. Idempotent on ExternalID.
	Create(ctx context.Context, ins QueueInsert) (jobID int64, scheduleID *string, err error)

	// CloneScheduleAt clones job jobID's (meta, headers, body, schedule_id)
	// into a new job row due at "at", advances schedules.next_id/next_at,
	// and returns the new id.
	CloneScheduleAt(ctx context.Context, jobID int64, at int64, instanceID string) (newJobID int64, err error)

	// EnqueueScheduled moves up to 1000 due scheduled rows into enqueued,
	// ordered by (retry, id). Returns the number moved.
	EnqueueScheduled(ctx context.Context, instanceID string) (int, error)

	// Lease atomically claims up to limit free enqueued rows for instanceID.
	Lease(ctx context.Context, instanceID string, limit int) ([]LeasedJob, error)

	// Unlock clears a lease and increments retry, for immediate re-dispatch.
	Unlock(ctx context.Context, jobID int64, instanceID string) error

	// Retry moves an enqueued row back to scheduled, due at "at", with
	// retry+1.
	Retry(ctx context.Context, jobID int64, at int64) error

	// Processed deletes the enqueued row and writes the terminal record.
	Processed(ctx context.Context, jobID int64, instanceID string, result domain.Result) error

	GetByID(ctx context.Context, jobID int64) (*domain.Job, error)
	Delete(ctx context.Context, jobID int64) error
	History(ctx context.Context, jobID int64) ([]domain.History, error)
	Result(ctx context.Context, jobID int64) (*domain.Processed, error)
}
