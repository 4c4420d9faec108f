package domain

import "strings"

// ResultKind tags the variants of a job's outcome.
type ResultKind string

const (
	ResultNone           ResultKind = "none"
	ResultCancelled      ResultKind = "cancelled"
	ResultTimeout        ResultKind = "timeout"
	ResultError          ResultKind = "error"
	ResultTransportError ResultKind = "transport_error"
	ResultHTTP           ResultKind = "http"
)

// Result is the tagged-union outcome of executing a job, persisted as JSON
// across processed.meta/headers/body.
type Result struct {
	Kind       ResultKind        `json:"result"`
	Error      string            `json:"error,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	Version    string            `json:"version,omitempty"`
	Headers    map[string]string `json:"-"`
	Body       []byte            `json:"-"`
}

func NoneResult() Result      { return Result{Kind: ResultNone} }
func CancelledResult() Result { return Result{Kind: ResultCancelled} }
func TimeoutResult() Result   { return Result{Kind: ResultTimeout} }

func ErrorResult(message string) Result {
	return Result{Kind: ResultError, Error: message}
}

// TransportErrorResult is a failure to reach the remote endpoint at all
// (dial/DNS/TLS/connection-reset), as opposed to ErrorResult's non-retryable
// failures building the outbound request itself.
func TransportErrorResult(message string) Result {
	return Result{Kind: ResultTransportError, Error: message}
}

func HTTPResult(statusCode int, version string, headers map[string]string, body []byte) Result {
	return Result{Kind: ResultHTTP, StatusCode: statusCode, Version: version, Headers: headers, Body: body}
}

// TerminalStatus derives the processed.status value for this result, per the
// outcome -> status table: 2xx/3xx completed, 4xx/5xx/timeout/error failed,
// cancelled cancelled, none completed.
func (r Result) TerminalStatus() ProcessedStatus {
	switch r.Kind {
	case ResultHTTP:
		if r.StatusCode >= 200 && r.StatusCode < 400 {
			return StatusCompleted
		}
		return StatusFailed
	case ResultCancelled:
		return StatusCancelled
	case ResultNone:
		return StatusCompleted
	default: // timeout, error, transport error
		return StatusFailed
	}
}

// Retryable reports whether this outcome should be handed to the retry
// policy rather than persisted as a hard failure immediately: timeout,
// transport error, and 4xx/5xx all drive the retry path; a non-retryable
// build/invalid-URL error does not.
func (r Result) Retryable() bool {
	switch r.Kind {
	case ResultTimeout, ResultTransportError:
		return true
	case ResultHTTP:
		return r.StatusCode >= 400
	default:
		return false
	}
}

// IsTransportError reports a failure to reach the remote endpoint at all,
// as distinct from a non-retryable request-build failure.
func (r Result) IsTransportError() bool {
	return r.Kind == ResultTransportError
}

// FilterContentHeaders keeps only headers whose name starts with "content",
// case-insensitively, for replaying a raw HTTP response to a caller.
func FilterContentHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.HasPrefix(strings.ToLower(k), "content") {
			out[k] = v
		}
	}
	return out
}
