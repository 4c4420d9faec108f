package repository

import (
	"context"
	"time"

	"github.com/jobqueue/jobqueue/internal/domain"
)

// InstanceRepository exposes the instance registry (C4): heartbeat and
// expiry-fencing of peers.
type InstanceRepository interface {
	Live(ctx context.Context, instanceID string) error
	KillExpired(ctx context.Context, ttl time.Duration) (int, error)
	Kill(ctx context.Context, instanceID string) error
	List(ctx context.Context) ([]domain.Instance, error)
}
