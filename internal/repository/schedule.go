package repository

import (
	"context"
	"time"
)

// ScheduleCursor paginates ScheduleRepository.List on (created_at, id).
type ScheduleCursor struct {
	CreatedAt time.Time
	ID        string
}

type ListSchedulesInput struct {
	Cursor *ScheduleCursor
	Limit  int
}

// ScheduleRow mirrors the schedules table shape from the data model.
type ScheduleRow struct {
	ScheduleID string
	Schedule   string
	Until      *int64
	LastID     *int64
	LastAt     *int64
	NextID     *int64
	NextAt     *int64
	Inactive   bool
	CreatedAt  time.Time
}

// ScheduleRepository exposes read access and deactivation over the
// schedules table. Promotion of due rows lives in QueueRepository since it
// only touches scheduled/enqueued.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id string) (*ScheduleRow, error)
	List(ctx context.Context, input ListSchedulesInput) ([]ScheduleRow, error)
	Deactivate(ctx context.Context, id string) error
}
