package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSimpleHealthChecker_Check проверяет работу проверки здоровья
func TestSimpleHealthChecker_Check(t *testing.T) {
	status := NewSimpleHealthChecker("v1.0.0").Check()
	require.NotNil(t, status)

	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
	assert.Equal(t, "v1.0.0", status.Version)
}

// TestCompositeHealthChecker проверяет агрегирование зависимостей
func TestCompositeHealthChecker(t *testing.T) {
	checker := NewCompositeHealthChecker("v1", time.Second)
	checker.Register("redis", func(ctx context.Context) error { return nil })
	checker.Register("origin", func(ctx context.Context) error { return errors.New("connection refused") })

	status := checker.Check()
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "healthy", status.Services["redis"].Status)
	assert.Equal(t, "unhealthy", status.Services["origin"].Status)
	assert.Equal(t, "connection refused", status.Services["origin"].Details)
}

// TestCompositeHealthChecker_Timeout проверяет, что зависшая проверка ограничена таймаутом
func TestCompositeHealthChecker_Timeout(t *testing.T) {
	checker := NewCompositeHealthChecker("v1", 20*time.Millisecond)
	checker.Register("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	status := checker.Check()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "degraded", status.Status)
}

// TestHandler проверяет HTTP обработчик
func TestHandler(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(NewSimpleHealthChecker("v1.0.0")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
}

// TestReadyHandler проверяет готовность с учетом зависимостей
func TestReadyHandler(t *testing.T) {
	w := httptest.NewRecorder()
	ReadyHandler(NewSimpleHealthChecker("v1")).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	checker := NewCompositeHealthChecker("v1", time.Second)
	checker.Register("redis", func(ctx context.Context) error { return errors.New("down") })

	w = httptest.NewRecorder()
	ReadyHandler(checker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")
}

// TestLiveHandler проверяет live check
func TestLiveHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LiveHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}
