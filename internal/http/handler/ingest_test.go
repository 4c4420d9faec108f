package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeQueueRepo implements repository.QueueRepository for handler tests.
type fakeQueueRepo struct {
	createFn   func(ctx context.Context, ins repository.QueueInsert) (int64, *string, error)
	lastInsert repository.QueueInsert
	getByIDFn  func(ctx context.Context, id int64) (*domain.Job, error)
	deleteFn   func(ctx context.Context, id int64) error
	historyFn  func(ctx context.Context, id int64) ([]domain.History, error)
	resultFn   func(ctx context.Context, id int64) (*domain.Processed, error)
}

func (f *fakeQueueRepo) Create(ctx context.Context, ins repository.QueueInsert) (int64, *string, error) {
	f.lastInsert = ins
	if f.createFn != nil {
		return f.createFn(ctx, ins)
	}
	return 1, nil, nil
}

func (f *fakeQueueRepo) CloneScheduleAt(ctx context.Context, jobID int64, at int64, instanceID string) (int64, error) {
	return 0, nil
}

func (f *fakeQueueRepo) EnqueueScheduled(ctx context.Context, instanceID string) (int, error) {
	return 0, nil
}

func (f *fakeQueueRepo) Lease(ctx context.Context, instanceID string, limit int) ([]repository.LeasedJob, error) {
	return nil, nil
}

func (f *fakeQueueRepo) Unlock(ctx context.Context, jobID int64, instanceID string) error { return nil }

func (f *fakeQueueRepo) Retry(ctx context.Context, jobID int64, at int64) error { return nil }

func (f *fakeQueueRepo) Processed(ctx context.Context, jobID int64, instanceID string, result domain.Result) error {
	return nil
}

func (f *fakeQueueRepo) GetByID(ctx context.Context, jobID int64) (*domain.Job, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, jobID)
	}
	return nil, domain.ErrJobNotFound
}

func (f *fakeQueueRepo) Delete(ctx context.Context, jobID int64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, jobID)
	}
	return nil
}

func (f *fakeQueueRepo) History(ctx context.Context, jobID int64) ([]domain.History, error) {
	if f.historyFn != nil {
		return f.historyFn(ctx, jobID)
	}
	return nil, nil
}

func (f *fakeQueueRepo) Result(ctx context.Context, jobID int64) (*domain.Processed, error) {
	if f.resultFn != nil {
		return f.resultFn(ctx, jobID)
	}
	return nil, domain.ErrJobNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func performIngest(h *IngestHandler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, body)
	c.Params = gin.Params{{Key: "url", Value: "/" + c.Request.URL.Path[len("/to/"):]}}
	h.Create(c)
	return w
}

func TestIngestHandler_Create_Basic(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodPost, "/to/httpbin.org/post?foo=bar", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if q.lastInsert.Meta.HTTP.URL != "http://httpbin.org/post?foo=bar" {
		t.Fatalf("unexpected forwarded url: %s", q.lastInsert.Meta.HTTP.URL)
	}
	if q.lastInsert.At != nil {
		t.Fatal("expected no delay by default")
	}
	if w.Header().Get("Job-Id") == "" {
		t.Fatal("expected Job-Id header to be set")
	}
}

func TestIngestHandler_Create_StripsDirectivesFromForwardedQuery(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodGet, "/to/httpbin.org/get?_delay=30&_retry=3&keep=me", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if q.lastInsert.Meta.HTTP.URL != "http://httpbin.org/get?keep=me" {
		t.Fatalf("expected directives stripped, got %s", q.lastInsert.Meta.HTTP.URL)
	}
	if q.lastInsert.At == nil {
		t.Fatal("expected _delay to set At")
	}
	if q.lastInsert.Meta.Retry != "3" {
		t.Fatalf("expected retry spec forwarded to meta, got %q", q.lastInsert.Meta.Retry)
	}
}

func TestIngestHandler_Create_InvalidRetryRejected(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodGet, "/to/httpbin.org/get?_retry=not-a-number", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIngestHandler_Create_IntervalAndCronMutuallyExclusive(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodGet, "/to/httpbin.org/get?_interval=60&_cron=*+*+*+*+*", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIngestHandler_Create_IntervalSchedulesFirstFire(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodGet, "/to/httpbin.org/get?_interval=60", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if q.lastInsert.At == nil {
		t.Fatal("expected first fire time computed for recurring schedule")
	}
	if q.lastInsert.Schedule != "60" {
		t.Fatalf("expected schedule spec to be forwarded, got %q", q.lastInsert.Schedule)
	}
}

func TestIngestHandler_Create_ExternalIDEchoedInHeader(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodGet, "/to/httpbin.org/get?_id=caller-123", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("External-Id"); got != "caller-123" {
		t.Fatalf("expected External-Id header to echo _id, got %q", got)
	}
}

func TestIngestHandler_Create_NoExternalIDHeaderWhenOmitted(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodGet, "/to/httpbin.org/get", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("External-Id"); got != "" {
		t.Fatalf("expected no External-Id header when _id is absent, got %q", got)
	}
}

func TestIngestHandler_Create_EmptyURLRejected(t *testing.T) {
	q := &fakeQueueRepo{}
	h := NewIngestHandler(q, 3000, testLogger())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/to/", nil)
	c.Params = gin.Params{{Key: "url", Value: ""}}
	h.Create(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty url, got %d", w.Code)
	}
}

func TestIngestHandler_Create_PropagatesRepositoryError(t *testing.T) {
	q := &fakeQueueRepo{createFn: func(ctx context.Context, ins repository.QueueInsert) (int64, *string, error) {
		return 0, nil, errors.New("db unavailable")
	}}
	h := NewIngestHandler(q, 3000, testLogger())

	w := performIngest(h, http.MethodGet, "/to/httpbin.org/get", nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
}
