package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubHandlers(sessions bool) HandlerSet {
	h := HandlerSet{
		Submit: func(w http.ResponseWriter, r *http.Request) {
			Write(w, http.StatusOK, map[string]string{"reply": "ok"})
		},
	}
	if sessions {
		h.SessionMessage = func(w http.ResponseWriter, r *http.Request) {
			Write(w, http.StatusOK, map[string]string{"reply": "session"})
		}
		h.ClearSession = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}
	}
	return h
}

func serve(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_ChatRoutes(t *testing.T) {
	router := NewRouter(RouterConfig{}, stubHandlers(false))

	assert.Equal(t, http.StatusOK, serve(router, "POST", "/submit").Code)
	assert.Equal(t, http.StatusOK, serve(router, "POST", "/api/v1/chat").Code)
	assert.NotEmpty(t, serve(router, "POST", "/submit").Header().Get("X-Request-ID"))
}

func TestRouter_SessionRoutesOptional(t *testing.T) {
	without := NewRouter(RouterConfig{}, stubHandlers(false))
	assert.Equal(t, http.StatusNotFound, serve(without, "POST", "/api/v1/sessions/abc/messages").Code)

	with := NewRouter(RouterConfig{}, stubHandlers(true))
	assert.Equal(t, http.StatusOK, serve(with, "POST", "/api/v1/sessions/abc/messages").Code)
	assert.Equal(t, http.StatusNoContent, serve(with, "DELETE", "/api/v1/sessions/abc").Code)
}

func TestRouter_RateLimiterWrapsChat(t *testing.T) {
	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			JSONErrorMessage(w, http.StatusTooManyRequests, "too many requests")
		})
	}
	router := NewRouter(RouterConfig{ChatRateLimiter: blocked}, stubHandlers(false))

	assert.Equal(t, http.StatusTooManyRequests, serve(router, "POST", "/submit").Code)
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/health/live").Code)
}

func TestRouter_Readiness(t *testing.T) {
	cfg := RouterConfig{
		Dependencies: []string{"database", "redis", "nats"},
		Checks: []HealthCheck{
			{Name: "database", Check: func(context.Context) error { return nil }},
		},
	}
	router := NewRouter(cfg, stubHandlers(false))

	rec := serve(router, "GET", "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "healthy", body["database"])
	assert.Equal(t, "not configured", body["redis"])
}

func TestRouter_ReadinessDegraded(t *testing.T) {
	cfg := RouterConfig{
		Checks: []HealthCheck{
			{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		},
	}
	router := NewRouter(cfg, stubHandlers(false))

	rec := serve(router, "GET", "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unhealthy", body["redis"])
}

func TestRouter_Metrics(t *testing.T) {
	router := NewRouter(RouterConfig{}, stubHandlers(false))
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/metrics").Code)
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, NewBadRequestError("nope"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"nope"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HandleError(rec, errors.New("hidden"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
