package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/otel"
)

// writeProblem renders err as an RFC 7807 problem-details body, using the
// active span's trace id (if any) to tie the response to server-side logs.
func writeProblem(c *gin.Context, err error) {
	p := domain.NewProblem(err, otel.TraceID(c.Request.Context()))
	c.AbortWithStatusJSON(p.Status, p)
}
