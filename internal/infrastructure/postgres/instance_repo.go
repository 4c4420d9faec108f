package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobqueue/jobqueue/internal/domain"
)

type InstanceRepository struct {
	pool *pgxpool.Pool
}

func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{pool: pool}
}

// Live upserts the instance's heartbeat. Grounded on
// original_source/src/db/instances.rs::live.
func (r *InstanceRepository) Live(ctx context.Context, instanceID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instances (id, status, last_at) VALUES ($1, 'live', now())
		 ON CONFLICT (id) DO UPDATE SET status = 'live', last_at = now()`,
		instanceID,
	)
	if err != nil {
		return fmt.Errorf("instance live: %w", err)
	}
	return nil
}

const sqlKillExpired = `
WITH a AS (
	SELECT id FROM instances WHERE status = 'live' AND last_at < now() - $1::interval
	ORDER BY id FOR UPDATE SKIP LOCKED
),
dead AS (
	UPDATE instances SET status = 'dead' WHERE id = ANY(SELECT id FROM a) RETURNING id
)
UPDATE enqueued SET instance_id = NULL, lock_at = NULL, retry = retry + 1
WHERE instance_id = ANY(SELECT id FROM dead)
RETURNING job_id`

// KillExpired marks live instances whose last heartbeat is older than ttl
// dead, and re-opens the leases they held in the same statement. Grounded
// on original_source/src/db/instances.rs::kill_expired.
func (r *InstanceRepository) KillExpired(ctx context.Context, ttl time.Duration) (int, error) {
	interval := fmt.Sprintf("%d seconds", int64(ttl.Seconds()))
	rows, err := r.pool.Query(ctx, sqlKillExpired, interval)
	if err != nil {
		return 0, fmt.Errorf("kill expired: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

// Kill marks the instance dead on graceful shutdown. Grounded on
// original_source/src/db/instances.rs::kill.
func (r *InstanceRepository) Kill(ctx context.Context, instanceID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE instances SET status = 'dead' WHERE id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("kill instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) List(ctx context.Context) ([]domain.Instance, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, status, last_at FROM instances ORDER BY last_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []domain.Instance
	for rows.Next() {
		var i domain.Instance
		if err := rows.Scan(&i.ID, &i.Status, &i.LastAt); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
