package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"handler": name})
	}
}

func stubHandlers() HandlerSet {
	return HandlerSet{Generate: named("generate"), GetQuota: named("quota")}
}

func serve(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestRouter_GenerateRoutes(t *testing.T) {
	var limited int
	h := NewRouter(RouterConfig{CORS: cors.Options{AllowedOrigins: []string{"*"}}}, HandlerSet{
		Generate: named("generate"),
		GetQuota: named("quota"),
		GenerateRateLimiter: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				limited++
				next.ServeHTTP(w, r)
			})
		},
	})

	for _, path := range []string{"/api/generate", "/api/v1/generate"} {
		rec, body := serve(t, h, http.MethodPost, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "generate", body["handler"])
	}
	assert.Equal(t, 2, limited)

	rec, body := serve(t, h, http.MethodGet, "/api/v1/quota?email=a@x.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quota", body["handler"])
	assert.Equal(t, 2, limited, "quota is not rate limited")
}

func TestRouter_GenerationsOnlyWhenEnabled(t *testing.T) {
	h := NewRouter(RouterConfig{}, stubHandlers())
	rec, body := serve(t, h, http.MethodGet, "/api/v1/generations")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["kind"])

	passthrough := func(next http.Handler) http.Handler { return next }
	h = NewRouter(RouterConfig{}, HandlerSet{
		Generate:        named("generate"),
		GetQuota:        named("quota"),
		ListGenerations: named("generations"),
		OptionalAuth:    passthrough,
		RequiredAuth:    passthrough,
	})
	rec, body = serve(t, h, http.MethodGet, "/api/v1/generations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generations", body["handler"])
}

func TestRouter_QuotaNeedsTokenWhenAuthEnabled(t *testing.T) {
	var authed int
	requireToken := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				HandleError(w, ErrUnauthorized)
				return
			}
			authed++
			next.ServeHTTP(w, r)
		})
	}
	h := NewRouter(RouterConfig{}, HandlerSet{
		Generate:     named("generate"),
		GetQuota:     named("quota"),
		OptionalAuth: func(next http.Handler) http.Handler { return next },
		RequiredAuth: requireToken,
	})

	rec, body := serve(t, h, http.MethodGet, "/api/v1/quota?email=someone@else.com")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["kind"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, authed)

	rec, _ = serve(t, h, http.MethodPost, "/api/generate")
	assert.Equal(t, http.StatusOK, rec.Code, "generate stays open to anonymous callers")
}

func TestRouter_WrongMethod(t *testing.T) {
	h := NewRouter(RouterConfig{}, stubHandlers())
	rec, body := serve(t, h, http.MethodGet, "/api/v1/generate")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "invalid_request", body["kind"])
}

func TestRouter_Health(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	h := NewRouter(RouterConfig{HealthChecks: map[string]HealthCheck{"redis": healthy}}, stubHandlers())
	rec, _ := serve(t, h, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(t, h, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "healthy", data["redis"])

	h = NewRouter(RouterConfig{HealthChecks: map[string]HealthCheck{"redis": healthy, "database": down}}, stubHandlers())
	rec, body = serve(t, h, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data = body["data"].(map[string]any)
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "unhealthy", data["database"])
}

func TestRouter_Metrics(t *testing.T) {
	h := NewRouter(RouterConfig{}, stubHandlers())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleError(t *testing.T) {
	t.Run("app error with quota state", func(t *testing.T) {
		limit, used := 50, 50
		rec := httptest.NewRecorder()
		HandleError(rec, &AppError{
			Code: http.StatusTooManyRequests, Message: "Weekly limit reached (50/50).",
			Kind: "quota_exceeded", Limit: &limit, Used: &used, RetryAfter: 1500 * time.Millisecond,
		})

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"Weekly limit reached (50/50).","kind":"quota_exceeded","limit":50,"used":50}`, rec.Body.String())
	})

	t.Run("foreign error is a generic 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(rec, errors.New("dial tcp 10.0.0.5:6379: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"internal server error","kind":"internal"}`, rec.Body.String())
	})
}
