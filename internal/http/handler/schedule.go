package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

// ScheduleHandler exposes read access and deactivation over schedule rows.
// Pagination cursor style grounded on the teacher's (created_at, id) cursor
// ScheduleRepository.List, per SPEC_FULL's "schedule listing with
// pagination" supplement.
type ScheduleHandler struct {
	schedules repository.ScheduleRepository
	logger    *slog.Logger
}

func NewScheduleHandler(schedules repository.ScheduleRepository, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, logger: logger.With("component", "schedule_handler")}
}

type scheduleResponse struct {
	ScheduleID string  `json:"schedule_id"`
	Schedule   string  `json:"schedule"`
	Until      *int64  `json:"until,omitempty"`
	LastID     *int64  `json:"last_id,omitempty"`
	LastAt     *int64  `json:"last_at,omitempty"`
	NextID     *int64  `json:"next_id,omitempty"`
	NextAt     *int64  `json:"next_at,omitempty"`
	Inactive   bool    `json:"inactive"`
	CreatedAt  string  `json:"created_at"`
}

func toScheduleResponse(s repository.ScheduleRow) scheduleResponse {
	return scheduleResponse{
		ScheduleID: s.ScheduleID,
		Schedule:   s.Schedule,
		Until:      s.Until,
		LastID:     s.LastID,
		LastAt:     s.LastAt,
		NextID:     s.NextID,
		NextAt:     s.NextAt,
		Inactive:   s.Inactive,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

func (h *ScheduleHandler) GetByID(c *gin.Context) {
	row, err := h.schedules.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			writeProblem(c, err)
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get schedule", "schedule_id", c.Param("id"), "error", err)
		writeProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(*row))
}

type listSchedulesResponse struct {
	Schedules  []scheduleResponse `json:"schedules"`
	NextCursor *string            `json:"next_cursor,omitempty"`
}

func (h *ScheduleHandler) List(c *gin.Context) {
	input := repository.ListSchedulesInput{}
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			input.Limit = n
		}
	}
	if cursor := c.Query("cursor"); cursor != "" {
		at, id, ok := decodeScheduleCursor(cursor)
		if !ok {
			writeProblem(c, domain.ErrInvalidParams)
			return
		}
		input.Cursor = &repository.ScheduleCursor{CreatedAt: at, ID: id}
	}

	rows, err := h.schedules.List(c.Request.Context(), input)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list schedules", "error", err)
		writeProblem(c, err)
		return
	}

	items := make([]scheduleResponse, len(rows))
	for i, r := range rows {
		items[i] = toScheduleResponse(r)
	}

	resp := listSchedulesResponse{Schedules: items}
	if len(rows) > 0 && (input.Limit == 0 || len(rows) == input.Limit || len(rows) == 50) {
		last := rows[len(rows)-1]
		cursor := encodeScheduleCursor(last.CreatedAt, last.ScheduleID)
		resp.NextCursor = &cursor
	}

	c.JSON(http.StatusOK, resp)
}

// Deactivate marks a schedule inactive: its currently pending occurrence
// runs to completion, but no further clone is made.
func (h *ScheduleHandler) Deactivate(c *gin.Context) {
	if err := h.schedules.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			writeProblem(c, err)
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "deactivate schedule", "schedule_id", c.Param("id"), "error", err)
		writeProblem(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func encodeScheduleCursor(at time.Time, id string) string {
	return strconv.FormatInt(at.UnixNano(), 10) + "_" + id
}

func decodeScheduleCursor(cursor string) (time.Time, string, bool) {
	for i := 0; i < len(cursor); i++ {
		if cursor[i] == '_' {
			nanos, err := strconv.ParseInt(cursor[:i], 10, 64)
			if err != nil {
				return time.Time{}, "", false
			}
			return time.Unix(0, nanos), cursor[i+1:], true
		}
	}
	return time.Time{}, "", false
}
