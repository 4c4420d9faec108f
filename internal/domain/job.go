package domain

import (
	"encoding/json"
	"time"
)

// Protocol tags the kind of work a job performs. Only Http is implemented;
// None exists so the data model leaves a typed slot open for future protocols.
type Protocol string

const (
	ProtocolNone Protocol = "none"
	ProtocolHTTP Protocol = "http"
)

// HTTPMeta is the protocol-specific payload for an Http job.
type HTTPMeta struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Meta is the JSON blob stored alongside a job row: protocol payload, retry
// policy and an optional delay hint, plus the per-job timeout.
type Meta struct {
	Protocol  Protocol  `json:"protocol"`
	HTTP      *HTTPMeta `json:"http,omitempty"`
	Retry     string    `json:"retry,omitempty"`
	DelaySec  *int64    `json:"delay,omitempty"`
	TimeoutMS int       `json:"timeout_ms"`
}

// Job is the immutable request template. Store-assigned, monotonic id.
type Job struct {
	ID         int64
	Meta       Meta
	Headers    map[string]string
	Body       []byte
	ScheduleID *string
	ExternalID *string
	CreatedAt  time.Time
}

// ProtocolOf returns the protocol tag for a job's meta, defaulting to none.
func ProtocolOf(m Meta) Protocol {
	if m.Protocol == "" {
		return ProtocolNone
	}
	return m.Protocol
}

// BuildRequest returns the method/URL pair for an Http job, or false if the
// job's protocol carries no request to build.
func (j *Job) BuildRequest() (method, url string, ok bool) {
	if j.Meta.Protocol != ProtocolHTTP || j.Meta.HTTP == nil {
		return "", "", false
	}
	return j.Meta.HTTP.Method, j.Meta.HTTP.URL, true
}

// Scheduled is the row present while a job waits for its due time.
type Scheduled struct {
	JobID int64
	At    int64 // epoch seconds
	Retry int32
}

// Enqueued is the row present while a job is dispatchable or leased.
type Enqueued struct {
	JobID      int64
	Retry      int32
	InstanceID *string
	LockAt     *time.Time
}

// ProcessedStatus is the terminal status of a processed row.
type ProcessedStatus string

const (
	StatusCompleted ProcessedStatus = "completed"
	StatusFailed    ProcessedStatus = "failed"
	StatusCancelled ProcessedStatus = "cancelled"
)

// Processed is the terminal record for a job's final attempt.
type Processed struct {
	JobID      int64
	Retry      int32
	InstanceID string
	At         time.Time
	Status     ProcessedStatus
	Result     Result
}

// HistoryStatus enumerates every transition the journal records.
type HistoryStatus string

const (
	HistoryEnqueued  HistoryStatus = "enqueued"
	HistoryScheduled HistoryStatus = "scheduled"
	HistoryAssigned  HistoryStatus = "assigned"
	HistoryRetried   HistoryStatus = "retried"
	HistoryCompleted HistoryStatus = "completed"
	HistoryFailed    HistoryStatus = "failed"
	HistoryCancelled HistoryStatus = "cancelled"
)

// History is an append-only journal row.
type History struct {
	JobID      int64
	Retry      int32
	InstanceID *string
	At         time.Time
	Status     HistoryStatus
	Message    *string
}

// MarshalHeaders/UnmarshalHeaders round-trip the headers map through JSON for
// storage in a jsonb column.
func MarshalHeaders(h map[string]string) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func UnmarshalHeaders(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var h map[string]string
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, err
	}
	return h, nil
}
