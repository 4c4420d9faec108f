package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/domain"
	"github.com/jobqueue/jobqueue/internal/repository"
)

type fakeScheduleRepo struct {
	getByIDFn   func(ctx context.Context, id string) (*repository.ScheduleRow, error)
	listFn      func(ctx context.Context, input repository.ListSchedulesInput) ([]repository.ScheduleRow, error)
	deactivateFn func(ctx context.Context, id string) error
}

func (f *fakeScheduleRepo) GetByID(ctx context.Context, id string) (*repository.ScheduleRow, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrScheduleNotFound
}

func (f *fakeScheduleRepo) List(ctx context.Context, input repository.ListSchedulesInput) ([]repository.ScheduleRow, error) {
	if f.listFn != nil {
		return f.listFn(ctx, input)
	}
	return nil, nil
}

func (f *fakeScheduleRepo) Deactivate(ctx context.Context, id string) error {
	if f.deactivateFn != nil {
		return f.deactivateFn(ctx, id)
	}
	return nil
}

func TestScheduleHandler_GetByID_NotFound(t *testing.T) {
	s := &fakeScheduleRepo{}
	h := NewScheduleHandler(s, testLogger())

	c, w := contextWithParam(http.MethodGet, "/api/v1/schedules/sched-1", "id", "sched-1")
	h.GetByID(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestScheduleHandler_GetByID_Success(t *testing.T) {
	s := &fakeScheduleRepo{getByIDFn: func(ctx context.Context, id string) (*repository.ScheduleRow, error) {
		return &repository.ScheduleRow{ScheduleID: id, Schedule: "60", CreatedAt: time.Now()}, nil
	}}
	h := NewScheduleHandler(s, testLogger())

	c, w := contextWithParam(http.MethodGet, "/api/v1/schedules/sched-1", "id", "sched-1")
	h.GetByID(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestScheduleHandler_List_InvalidCursorRejected(t *testing.T) {
	s := &fakeScheduleRepo{}
	h := NewScheduleHandler(s, testLogger())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/schedules?cursor=not-a-cursor", nil)
	h.List(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestScheduleHandler_List_Success(t *testing.T) {
	s := &fakeScheduleRepo{listFn: func(ctx context.Context, input repository.ListSchedulesInput) ([]repository.ScheduleRow, error) {
		return []repository.ScheduleRow{{ScheduleID: "a", Schedule: "60", CreatedAt: time.Now()}}, nil
	}}
	h := NewScheduleHandler(s, testLogger())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/schedules", nil)
	h.List(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestScheduleHandler_Deactivate_NotFound(t *testing.T) {
	s := &fakeScheduleRepo{deactivateFn: func(ctx context.Context, id string) error {
		return domain.ErrScheduleNotFound
	}}
	h := NewScheduleHandler(s, testLogger())

	c, w := contextWithParam(http.MethodDelete, "/api/v1/schedules/sched-1", "id", "sched-1")
	h.Deactivate(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestScheduleHandler_Deactivate_Success(t *testing.T) {
	s := &fakeScheduleRepo{}
	h := NewScheduleHandler(s, testLogger())

	c, w := contextWithParam(http.MethodDelete, "/api/v1/schedules/sched-1", "id", "sched-1")
	h.Deactivate(c)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestScheduleCursor_RoundTrips(t *testing.T) {
	now := time.Unix(0, time.Now().UnixNano())
	encoded := encodeScheduleCursor(now, "sched-9")
	at, id, ok := decodeScheduleCursor(encoded)
	if !ok {
		t.Fatal("expected cursor to decode")
	}
	if !at.Equal(now) || id != "sched-9" {
		t.Fatalf("round trip mismatch: %v/%s", at, id)
	}
}

func TestScheduleCursor_RejectsMalformed(t *testing.T) {
	if _, _, ok := decodeScheduleCursor("no-underscore"); ok {
		t.Fatal("expected malformed cursor to be rejected")
	}
	if _, _, ok := decodeScheduleCursor("abc_id"); ok {
		t.Fatal("expected non-numeric timestamp to be rejected")
	}
}
