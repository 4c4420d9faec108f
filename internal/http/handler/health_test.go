package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jobqueue/jobqueue/internal/health"
	"github.com/prometheus/client_golang/prometheus"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Liveness_AlwaysUp(t *testing.T) {
	checker := health.NewChecker(pingerFunc(func(ctx context.Context) error { return nil }), testLogger(), prometheus.NewRegistry())
	h := NewHealthHandler(checker)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/livez", nil)
	h.Liveness(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHealthHandler_Readiness_DownReturns503(t *testing.T) {
	checker := health.NewChecker(pingerFunc(func(ctx context.Context) error {
		return context.DeadlineExceeded
	}), testLogger(), prometheus.NewRegistry())
	h := NewHealthHandler(checker)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	h.Readiness(c)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHealthHandler_Readiness_UpReturns200(t *testing.T) {
	checker := health.NewChecker(pingerFunc(func(ctx context.Context) error { return nil }), testLogger(), prometheus.NewRegistry())
	h := NewHealthHandler(checker)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	h.Readiness(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
