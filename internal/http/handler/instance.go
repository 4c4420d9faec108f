package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/repository"
)

// InstanceHandler exposes read access to the instance registry (§4.4), for
// operational visibility into which processes are live.
type InstanceHandler struct {
	instances repository.InstanceRepository
	logger    *slog.Logger
}

func NewInstanceHandler(instances repository.InstanceRepository, logger *slog.Logger) *InstanceHandler {
	return &InstanceHandler{instances: instances, logger: logger.With("component", "instance_handler")}
}

type instanceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	LastAt string `json:"last_at"`
}

func (h *InstanceHandler) List(c *gin.Context) {
	rows, err := h.instances.List(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list instances", "error", err)
		writeProblem(c, err)
		return
	}

	out := make([]instanceResponse, len(rows))
	for i, r := range rows {
		out[i] = instanceResponse{
			ID:     r.ID,
			Status: string(r.Status),
			LastAt: r.LastAt.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, out)
}
