package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

// JobHandler exposes read access and cancellation over the queue's job
// rows. Response DTO shape grounded on the teacher's
// internal/http/handler/job.go (listJobsResponse{Jobs,NextCursor} pattern),
// generalized from the teacher's SaaS job model to this system's (meta,
// headers, body) job shape.
type JobHandler struct {
	queue  repository.QueueRepository
	logger *slog.Logger
}

func NewJobHandler(queue repository.QueueRepository, logger *slog.Logger) *JobHandler {
	return &JobHandler{queue: queue, logger: logger.With("component", "job_handler")}
}

type jobResponse struct {
	ID         int64             `json:"id"`
	Protocol   domain.Protocol   `json:"protocol"`
	Method     string            `json:"method,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ScheduleID *string           `json:"schedule_id,omitempty"`
	ExternalID *string           `json:"external_id,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

func toJobResponse(j *domain.Job) jobResponse {
	resp := jobResponse{
		ID:         j.ID,
		Protocol:   domain.ProtocolOf(j.Meta),
		Headers:    j.Headers,
		ScheduleID: j.ScheduleID,
		ExternalID: j.ExternalID,
		CreatedAt:  j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if j.Meta.HTTP != nil {
		resp.Method = j.Meta.HTTP.Method
		resp.URL = j.Meta.HTTP.URL
	}
	return resp
}

func (h *JobHandler) GetByID(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		writeProblem(c, err)
		return
	}

	job, err := h.queue.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeProblem(c, err)
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get job", "job_id", jobID, "error", err)
		writeProblem(c, err)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}

// Delete removes a job row outright. Only valid while it is still scheduled
// or enqueued (never on a processed terminal row).
func (h *JobHandler) Delete(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		writeProblem(c, err)
		return
	}

	if err := h.queue.Delete(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrJobNotCancellable) {
			writeProblem(c, err)
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "delete job", "job_id", jobID, "error", err)
		writeProblem(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type historyEntry struct {
	Retry      int32   `json:"retry"`
	InstanceID *string `json:"instance_id,omitempty"`
	At         string  `json:"at"`
	Status     string  `json:"status"`
	Message    *string `json:"message,omitempty"`
}

func (h *JobHandler) History(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		writeProblem(c, err)
		return
	}

	rows, err := h.queue.History(c.Request.Context(), jobID)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "job history", "job_id", jobID, "error", err)
		writeProblem(c, err)
		return
	}

	out := make([]historyEntry, len(rows))
	for i, r := range rows {
		out[i] = historyEntry{
			Retry:      r.Retry,
			InstanceID: r.InstanceID,
			At:         r.At.Format("2006-01-02T15:04:05Z07:00"),
			Status:     string(r.Status),
			Message:    r.Message,
		}
	}
	c.JSON(http.StatusOK, out)
}

type resultResponse struct {
	Retry      int32  `json:"retry"`
	InstanceID string `json:"instance_id"`
	At         string `json:"at"`
	Status     string `json:"status"`
	Kind       string `json:"kind"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (h *JobHandler) Result(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		writeProblem(c, err)
		return
	}

	p, err := h.queue.Result(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeProblem(c, err)
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "job result", "job_id", jobID, "error", err)
		writeProblem(c, err)
		return
	}

	c.JSON(http.StatusOK, resultResponse{
		Retry:      p.Retry,
		InstanceID: p.InstanceID,
		At:         p.At.Format("2006-01-02T15:04:05Z07:00"),
		Status:     string(p.Status),
		Kind:       string(p.Result.Kind),
		Error:      p.Result.Error,
		StatusCode: p.Result.StatusCode,
	})
}

// ResultRaw replays the stored Http result's body with content-prefixed
// headers, or 204 for every other result kind. Ported from
// original_source/src/features/results/job_result.rs's IntoResponse impl.
func (h *JobHandler) ResultRaw(c *gin.Context) {
	jobID, err := parseJobID(c)
	if err != nil {
		writeProblem(c, err)
		return
	}

	p, err := h.queue.Result(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeProblem(c, err)
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "job result raw", "job_id", jobID, "error", err)
		writeProblem(c, err)
		return
	}

	if p.Result.Kind != domain.ResultHTTP {
		c.Status(http.StatusNoContent)
		return
	}

	for k, v := range domain.FilterContentHeaders(p.Result.Headers) {
		c.Header(k, v)
	}
	status := p.Result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.Data(status, "", p.Result.Body)
}

func parseJobID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidParams
	}
	return id, nil
}
