package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type QueueRepository struct {
	pool *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

const sqlEnqueueImmediate = `
WITH j AS (
	INSERT INTO jobs (protocol, meta, headers, body, schedule_id, external_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id
),
ins AS (
	INSERT INTO enqueued (job_id, retry) SELECT id, 0 FROM j RETURNING job_id
),
hist AS (
	INSERT INTO history (job_id, retry, instance_id, status)
	SELECT job_id, 0, NULL, 'enqueued' FROM ins RETURNING job_id
)
SELECT job_id FROM ins`

const sqlEnqueueScheduledOnce = `
WITH j AS (
	INSERT INTO jobs (protocol, meta, headers, body, schedule_id, external_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id
),
ins AS (
	INSERT INTO scheduled (job_id, at, retry) SELECT id, $7, 0 FROM j RETURNING job_id
),
hist AS (
	INSERT INTO history (job_id, retry, instance_id, status)
	SELECT job_id, 0, NULL, 'scheduled' FROM ins RETURNING job_id
)
SELECT job_id FROM ins`

// Create inserts a jobs row and, depending on ins, an enqueued row, a
// scheduled row, or a schedules+scheduled pair for a new recurrence.
// Grounded on original_source/src/db/jobqueue.rs::enqueue, extended with the
// recurring path (a genuine cycle between jobs.schedule_id and
// schedules.next_id, handled as one transaction rather than a single CTE).
func (r *QueueRepository) Create(ctx context.Context, ins repository.QueueInsert) (int64, *string, error) {
	metaJSON, err := json.Marshal(ins.Meta)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal meta: %w", err)
	}
	headersJSON, err := domain.MarshalHeaders(ins.Headers)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal headers: %w", err)
	}

	var jobID int64
	var scheduleID *string

	if ins.Schedule != "" {
		jobID, scheduleID, err = r.createRecurring(ctx, ins, metaJSON, headersJSON)
	} else if ins.At != nil {
		err = r.pool.QueryRow(ctx, sqlEnqueueScheduledOnce,
			domain.ProtocolOf(ins.Meta), metaJSON, headersJSON, ins.Body, nil, ins.ExternalID, *ins.At,
		).Scan(&jobID)
	} else {
		err = r.pool.QueryRow(ctx, sqlEnqueueImmediate,
			domain.ProtocolOf(ins.Meta), metaJSON, headersJSON, ins.Body, nil, ins.ExternalID,
		).Scan(&jobID)
	}

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && ins.ExternalID != nil {
			return r.existingByExternalID(ctx, *ins.ExternalID)
		}
		return 0, nil, fmt.Errorf("create job: %w", err)
	}

	return jobID, scheduleID, nil
}

func (r *QueueRepository) createRecurring(ctx context.Context, ins repository.QueueInsert, metaJSON, headersJSON []byte) (int64, *string, error) {
	if ins.At == nil {
		return 0, nil, fmt.Errorf("recurring insert requires a resolved first fire time")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	scheduleID := domain.NewInstanceID()

	var jobID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (protocol, meta, headers, body, schedule_id, external_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		domain.ProtocolOf(ins.Meta), metaJSON, headersJSON, ins.Body, scheduleID, ins.ExternalID,
	).Scan(&jobID)
	if err != nil {
		return 0, nil, fmt.Errorf("insert job: %w", err)
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO schedules (schedule_id, schedule, until, next_id, next_at, inactive)
		VALUES ($1, $2, $3, $4, $5, false)`,
		scheduleID, ins.Schedule, ins.Until, jobID, *ins.At,
	); err != nil {
		return 0, nil, fmt.Errorf("insert schedule: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO scheduled (job_id, at, retry) VALUES ($1, $2, 0)`,
		jobID, *ins.At,
	); err != nil {
		return 0, nil, fmt.Errorf("insert scheduled: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO history (job_id, retry, instance_id, status) VALUES ($1, 0, NULL, 'scheduled')`,
		jobID,
	); err != nil {
		return 0, nil, fmt.Errorf("insert history: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit tx: %w", err)
	}
	return jobID, &scheduleID, nil
}

func (r *QueueRepository) existingByExternalID(ctx context.Context, externalID string) (int64, *string, error) {
	var jobID int64
	var scheduleID *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, schedule_id FROM jobs WHERE external_id = $1`, externalID,
	).Scan(&jobID, &scheduleID)
	if err != nil {
		return 0, nil, fmt.Errorf("lookup existing job: %w", err)
	}
	return jobID, scheduleID, nil
}

// CloneScheduleAt clones a terminated recurring job's jobs row into a fresh
// id due at "at", advances schedules.next_id/next_at, and writes the new
// scheduled row. Grounded on the spec's recurrence invariant; the cycle
// between jobs.schedule_id and schedules.next_id again forces a transaction.
func (r *QueueRepository) CloneScheduleAt(ctx context.Context, jobID int64, at int64, instanceID string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var protocol string
	var metaJSON, headersJSON, body []byte
	var scheduleID *string
	err = tx.QueryRow(ctx,
		`SELECT protocol, meta, headers, body, schedule_id FROM jobs WHERE id = $1`, jobID,
	).Scan(&protocol, &metaJSON, &headersJSON, &body, &scheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrJobNotFound
		}
		return 0, fmt.Errorf("fetch source job: %w", err)
	}

	var newID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (protocol, meta, headers, body, schedule_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		protocol, metaJSON, headersJSON, body, scheduleID,
	).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("insert cloned job: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`UPDATE schedules SET next_id = $2, next_at = $3, last_id = next_id, last_at = extract(epoch from now())::bigint WHERE schedule_id = $1`,
		scheduleID, newID, at,
	); err != nil {
		return 0, fmt.Errorf("advance schedule: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO scheduled (job_id, at, retry) VALUES ($1, $2, 0)`, newID, at,
	); err != nil {
		return 0, fmt.Errorf("insert scheduled: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO history (job_id, retry, instance_id, status) VALUES ($1, 0, $2, 'scheduled')`,
		newID, instanceID,
	); err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return newID, nil
}

const sqlEnqueueScheduled = `
WITH a AS (
	SELECT job_id, retry FROM scheduled
	WHERE at <= extract(epoch from now())::bigint
	ORDER BY retry, job_id LIMIT 1000 FOR UPDATE SKIP LOCKED
),
ins AS (
	INSERT INTO enqueued (job_id, retry) SELECT job_id, retry FROM a RETURNING job_id, retry
),
del AS (
	DELETE FROM scheduled WHERE job_id IN (SELECT job_id FROM a) RETURNING job_id
),
hist AS (
	INSERT INTO history (job_id, retry, instance_id, status)
	SELECT job_id, retry, $1, 'enqueued' FROM ins RETURNING job_id
)
SELECT count(*) FROM ins`

// EnqueueScheduled promotes up to 1000 due rows from scheduled to enqueued.
// Grounded on original_source/src/db/jobqueue.rs::enqueue_scheduled.
func (r *QueueRepository) EnqueueScheduled(ctx context.Context, instanceID string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, sqlEnqueueScheduled, instanceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("enqueue scheduled: %w", err)
	}
	return count, nil
}

const sqlLease = `
WITH a AS (
	SELECT job_id FROM enqueued WHERE lock_at IS NULL ORDER BY retry, job_id LIMIT $1 FOR UPDATE SKIP LOCKED
),
upd AS (
	UPDATE enqueued SET instance_id = $2, lock_at = now()
	WHERE job_id IN (SELECT job_id FROM a)
	RETURNING job_id, retry
),
hist AS (
	INSERT INTO history (job_id, retry, instance_id, status)
	SELECT job_id, retry, $2, 'assigned' FROM upd RETURNING job_id
)
SELECT job_id, retry FROM upd ORDER BY retry, job_id`

// Lease atomically claims up to limit free enqueued rows. Grounded on
// original_source/src/db/jobqueue.rs::fetch_enqueued.
func (r *QueueRepository) Lease(ctx context.Context, instanceID string, limit int) ([]repository.LeasedJob, error) {
	rows, err := r.pool.Query(ctx, sqlLease, limit, instanceID)
	if err != nil {
		return nil, fmt.Errorf("lease: %w", err)
	}
	defer rows.Close()

	var leased []repository.LeasedJob
	for rows.Next() {
		var l repository.LeasedJob
		if err := rows.Scan(&l.JobID, &l.Retry); err != nil {
			return nil, fmt.Errorf("scan leased job: %w", err)
		}
		leased = append(leased, l)
	}
	return leased, rows.Err()
}

const sqlUnlock = `
WITH upd AS (
	UPDATE enqueued SET instance_id = NULL, lock_at = NULL, retry = retry + 1
	WHERE job_id = $1 AND instance_id = $2
	RETURNING job_id, retry
),
hist AS (
	INSERT INTO history (job_id, retry, instance_id, status)
	SELECT job_id, retry, $2, 'retried' FROM upd RETURNING job_id
)
SELECT job_id FROM upd`

// Unlock clears a lease for immediate re-dispatch, mandatorily emitting a
// retried history row (spec open question, resolved as mandatory).
func (r *QueueRepository) Unlock(ctx context.Context, jobID int64, instanceID string) error {
	var id int64
	err := r.pool.QueryRow(ctx, sqlUnlock, jobID, instanceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("unlock: %w", err)
	}
	return nil
}

const sqlRetry = `
WITH del AS (
	DELETE FROM enqueued WHERE job_id = $1 RETURNING retry, instance_id
),
ins AS (
	INSERT INTO scheduled (job_id, at, retry)
	SELECT $1, $2, retry + 1 FROM del RETURNING job_id, retry
),
hist AS (
	INSERT INTO history (job_id, retry, instance_id, status)
	SELECT ins.job_id, ins.retry, del.instance_id, 'retried' FROM ins, del RETURNING ins.job_id
)
SELECT job_id FROM ins`

// Retry moves an enqueued row back to scheduled, due at "at", incrementing
// retry. Grounded on original_source/src/services/jobrunner.rs's Some(d) path.
func (r *QueueRepository) Retry(ctx context.Context, jobID int64, at int64) error {
	var id int64
	err := r.pool.QueryRow(ctx, sqlRetry, jobID, at).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

const sqlProcessed = `
WITH del AS (
	DELETE FROM enqueued WHERE job_id = $1 RETURNING retry
),
ins AS (
	INSERT INTO processed (job_id, retry, instance_id, status, result_meta, result_headers, result_body)
	SELECT $1, retry, $2, $3, $4, $5, $6 FROM del RETURNING job_id, retry
),
hist AS (
	INSERT INTO history (job_id, retry, instance_id, status)
	SELECT job_id, retry, $2, $7 FROM ins RETURNING job_id
)
SELECT job_id FROM ins`

// Processed deletes the enqueued row and writes the terminal processed +
// history record. Grounded on original_source/src/db/jobqueue.rs::succeed/fail.
func (r *QueueRepository) Processed(ctx context.Context, jobID int64, instanceID string, result domain.Result) error {
	metaJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result meta: %w", err)
	}
	headersJSON, err := domain.MarshalHeaders(result.Headers)
	if err != nil {
		return fmt.Errorf("marshal result headers: %w", err)
	}

	status := result.TerminalStatus()
	historyStatus := domain.HistoryStatus(status)

	var id int64
	err = r.pool.QueryRow(ctx, sqlProcessed,
		jobID, instanceID, status, metaJSON, headersJSON, result.Body, historyStatus,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("processed: %w", err)
	}
	return nil
}

func (r *QueueRepository) GetByID(ctx context.Context, jobID int64) (*domain.Job, error) {
	var j domain.Job
	var protocol string
	var metaJSON, headersJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, protocol, meta, headers, body, schedule_id, external_id, created_at FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &protocol, &metaJSON, &headersJSON, &j.Body, &j.ScheduleID, &j.ExternalID, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &j.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	headers, err := domain.UnmarshalHeaders(headersJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	j.Headers = headers
	return &j, nil
}

// Delete removes a job row outright. Grounded on
// original_source/src/db/jobqueue.rs::delete; only valid while the job is
// still scheduled or enqueued (never once processed).
func (r *QueueRepository) Delete(ctx context.Context, jobID int64) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed WHERE job_id = $1)`, jobID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check processed: %w", err)
	}
	if exists {
		return domain.ErrJobNotCancellable
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *QueueRepository) History(ctx context.Context, jobID int64) ([]domain.History, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT job_id, retry, instance_id, at, status, message FROM history WHERE job_id = $1 ORDER BY at ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []domain.History
	for rows.Next() {
		var h domain.History
		if err := rows.Scan(&h.JobID, &h.Retry, &h.InstanceID, &h.At, &h.Status, &h.Message); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *QueueRepository) Result(ctx context.Context, jobID int64) (*domain.Processed, error) {
	var p domain.Processed
	var metaJSON, headersJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT job_id, retry, instance_id, at, status, result_meta, result_headers, result_body FROM processed WHERE job_id = $1`,
		jobID,
	).Scan(&p.JobID, &p.Retry, &p.InstanceID, &p.At, &p.Status, &metaJSON, &headersJSON, &p.Result.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("result: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &p.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result meta: %w", err)
	}
	headers, err := domain.UnmarshalHeaders(headersJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal result headers: %w", err)
	}
	p.Result.Headers = headers
	return &p, nil
}
