package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

// IngestHandler implements the ANY /to/*url ingestion route: the caller's
// method, path, query string (minus directives) and body become the job's
// outbound HTTP request. Grounded on original_source/src/handlers/http.rs
// (Path(url)+RawQuery -> "http://{url}?{qs}") extended with the directive
// table of spec §6.
type IngestHandler struct {
	queue            repository.QueueRepository
	defaultTimeoutMS int
	logger           *slog.Logger
}

func NewIngestHandler(queue repository.QueueRepository, defaultTimeoutMS int, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{queue: queue, defaultTimeoutMS: defaultTimeoutMS, logger: logger.With("component", "ingest_handler")}
}

// directives are the "_"-prefixed query parameters consumed by ingestion
// itself; everything else is forwarded verbatim in the outbound query string.
var directiveNames = map[string]bool{
	"_delay": true, "_delay_until": true, "_timeout": true, "_retry": true,
	"_interval": true, "_cron": true, "_until": true, "_id": true,
}

func (h *IngestHandler) Create(c *gin.Context) {
	target := strings.TrimPrefix(c.Param("url"), "/")
	if target == "" {
		writeProblem(c, fmt.Errorf("%w: url", domain.ErrInvalidURL))
		return
	}

	query := c.Request.URL.Query()

	var (
		delaySec    *int64
		delayUntil  *int64
		timeoutMS   = h.defaultTimeoutMS
		retrySpec   string
		intervalSec string
		cronExpr    string
		untilEpoch  *int64
		externalID  *string
	)

	if v := query.Get("_delay"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeProblem(c, fmt.Errorf("%w: _delay", domain.ErrInvalidParams))
			return
		}
		delaySec = &n
	}
	if v := query.Get("_delay_until"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= time.Now().Unix() {
			writeProblem(c, fmt.Errorf("%w: _delay_until", domain.ErrInvalidParams))
			return
		}
		delayUntil = &n
	}
	if v := query.Get("_timeout"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeProblem(c, fmt.Errorf("%w: _timeout", domain.ErrInvalidParams))
			return
		}
		timeoutMS = n
	}
	retrySpec = query.Get("_retry")
	intervalSec = query.Get("_interval")
	cronExpr = query.Get("_cron")
	if v := query.Get("_until"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeProblem(c, fmt.Errorf("%w: _until", domain.ErrInvalidParams))
			return
		}
		untilEpoch = &n
	}
	if v := query.Get("_id"); v != "" {
		if len(v) > 64 {
			writeProblem(c, fmt.Errorf("%w: _id exceeds 64 chars", domain.ErrInvalidParams))
			return
		}
		externalID = &v
	}

	if _, err := domain.ParseRetryPolicy(retrySpec); err != nil {
		writeProblem(c, err)
		return
	}

	var scheduleSpec string
	switch {
	case intervalSec != "" && cronExpr != "":
		writeProblem(c, fmt.Errorf("%w: _interval and _cron are mutually exclusive", domain.ErrInvalidParams))
		return
	case intervalSec != "":
		scheduleSpec = intervalSec
	case cronExpr != "":
		scheduleSpec = cronExpr
	}
	if scheduleSpec != "" {
		if _, err := domain.ParseSchedulePolicy(scheduleSpec); err != nil {
			writeProblem(c, err)
			return
		}
	}

	forwardQuery := url.Values{}
	for k, vs := range query {
		if directiveNames[k] {
			continue
		}
		forwardQuery[k] = vs
	}

	fullURL := "http://" + target
	if encoded := forwardQuery.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 10<<20))
	if err != nil {
		writeProblem(c, fmt.Errorf("%w: read body", domain.ErrInvalidParams))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}

	meta := domain.Meta{
		Protocol:  domain.ProtocolHTTP,
		HTTP:      &domain.HTTPMeta{Method: c.Request.Method, URL: fullURL},
		Retry:     retrySpec,
		DelaySec:  delaySec,
		TimeoutMS: timeoutMS,
	}

	ins := repository.QueueInsert{
		Meta:       meta,
		Headers:    headers,
		Body:       body,
		ExternalID: externalID,
		Schedule:   scheduleSpec,
		Until:      untilEpoch,
	}

	now := time.Now().Unix()
	switch {
	case scheduleSpec != "":
		policy, _ := domain.ParseSchedulePolicy(scheduleSpec)
		first, ok := policy.NextFire(now, untilEpoch)
		if !ok {
			writeProblem(c, fmt.Errorf("%w: schedule never fires before _until", domain.ErrInvalidParams))
			return
		}
		ins.At = &first
	case delayUntil != nil:
		ins.At = delayUntil
	case delaySec != nil:
		at := now + *delaySec
		ins.At = &at
	}

	jobID, scheduleID, err := h.queue.Create(c.Request.Context(), ins)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "create job", "error", err)
		writeProblem(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/api/v1/jobs/%d", jobID))
	c.Header("Job-Id", strconv.FormatInt(jobID, 10))
	if scheduleID != nil {
		c.Header("Schedule-Id", *scheduleID)
	}
	if externalID != nil {
		c.Header("External-Id", *externalID)
	}
	c.Status(http.StatusCreated)
}
