package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

type ScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*repository.ScheduleRow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT schedule_id, schedule, until, last_id, last_at, next_id, next_at, inactive, created_at
		FROM schedules WHERE schedule_id = $1`, id)
	return scanSchedule(row)
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]repository.ScheduleRow, error) {
	args := []any{}
	where := "TRUE"
	if input.Cursor != nil {
		args = append(args, input.Cursor.CreatedAt, input.Cursor.ID)
		where = "(created_at, schedule_id) < ($1, $2)"
	}
	limit := input.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT schedule_id, schedule, until, last_id, last_at, next_id, next_at, inactive, created_at
		FROM schedules
		WHERE %s
		ORDER BY created_at DESC, schedule_id DESC
		LIMIT $%d`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []repository.ScheduleRow
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Deactivate marks a schedule inactive; the currently pending occurrence
// referenced by next_id runs to completion but no further clone is made
// (the job runner checks schedules.inactive before cloning forward).
func (r *ScheduleRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE schedules SET inactive = true WHERE schedule_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func scanSchedule(row rowScanner) (*repository.ScheduleRow, error) {
	var s repository.ScheduleRow
	err := row.Scan(
		&s.ScheduleID, &s.Schedule, &s.Until, &s.LastID, &s.LastAt,
		&s.NextID, &s.NextAt, &s.Inactive, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}
