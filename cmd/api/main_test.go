package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"librecords/internal/config"
	"librecords/internal/httpx"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	limiter := httpx.NewRateLimiter(0, 0)
	t.Cleanup(limiter.Close)
	cfg := config.Config{AppName: "Library records", AppVersion: "1.0.0"}
	return routes(cfg, nil, zap.NewNop(), limiter)
}

func TestHealth(t *testing.T) {
	h := testRouter(t)

	for _, path := range []string{"/api/health", "/api/health/"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
		assert.Contains(t, rec.Body.String(), `"loans":"/api/loans"`)
		assert.NotEmpty(t, rec.Header().Get(httpx.RequestIDHeader))
	}
}

func TestUnknownRoutes(t *testing.T) {
	h := testRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"the requested resource could not be found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/books", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
