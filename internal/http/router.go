package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/http/handler"
	"github.com/jobqueue/jobqueue/internal/http/middleware"
	otelmw "github.com/jobqueue/jobqueue/internal/otel"

	sloggin "github.com/samber/slog-gin"
)

// NewRouter assembles the ingestion + read API surface (§6). ingestHandler
// handles the catch-all ANY /to/*url route; the rest expose read access and
// the mutating job/schedule deletions, which authMW guards.
func NewRouter(
	logger *slog.Logger,
	serviceName string,
	ingestHandler *handler.IngestHandler,
	jobHandler *handler.JobHandler,
	scheduleHandler *handler.ScheduleHandler,
	instanceHandler *handler.InstanceHandler,
	healthHandler *handler.HealthHandler,
	jwtSecret []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(otelmw.Middleware(serviceName))
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(jwtSecret)

	r.GET("/livez", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	r.Any("/to/*url", ingestHandler.Create)

	v1 := r.Group("/api/v1")

	jobs := v1.Group("/jobs")
	jobs.GET("/:id", jobHandler.GetByID)
	jobs.DELETE("/:id", authMW, jobHandler.Delete)
	jobs.GET("/:id/history", jobHandler.History)
	jobs.GET("/:id/result", jobHandler.Result)
	jobs.GET("/:id/result/raw", jobHandler.ResultRaw)

	schedules := v1.Group("/schedules")
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.DELETE("/:id", authMW, scheduleHandler.Deactivate)

	v1.GET("/instances", instanceHandler.List)

	return r
}
