package domain

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// InstanceStatus is the liveness state of a process-wide identity.
type InstanceStatus string

const (
	InstanceLive InstanceStatus = "live"
	InstanceDead InstanceStatus = "dead"
)

// Instance is a registry row for a running process.
type Instance struct {
	ID     string
	Status InstanceStatus
	LastAt time.Time
}

// NewInstanceID builds a stable process identity: hostname + a random id.
// No ULID implementation is available; uuid is the pack's own identity
// primitive (see internal/requestid) and is substituted here.
func NewInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s:%s", hostname, uuid.NewString())
}
