package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/calendar-bridge/internal/config"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestCORSAllowedOrigin(t *testing.T) {
	r := newEngine(CORS(config.Config{
		CORSAllowedOrigins: []string{"https://app.example.com"},
		CORSAllowedMethods: []string{"GET", "PATCH"},
		CORSAllowedHeaders: []string{"Content-Type", "X-User-Email"},
	}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, PATCH", w.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Content-Type, X-User-Email", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSRejectedOriginAndPreflight(t *testing.T) {
	r := newEngine(CORS(config.Config{CORSAllowedOrigins: []string{"*"}}))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://any.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	r = newEngine(CORS(config.Config{CORSAllowedOrigins: []string{"https://app.example.com"}}))
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterPerClientIP(t *testing.T) {
	limiter := NewRateLimiter(10)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	r := newEngine(limiter.Handler())

	do := func(remoteAddr, identity string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = remoteAddr
		if identity != "" {
			req.Header.Set("X-User-Email", identity)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, do("10.0.0.1:1234", "alice@example.com"))
	// Rotating the identity header does not buy a fresh budget.
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1235", "mallory@example.com"))
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1236", ""))
	require.Equal(t, http.StatusOK, do("10.0.0.2:1234", "alice@example.com"))

	now = now.Add(6 * time.Second)
	require.Equal(t, http.StatusOK, do("10.0.0.1:1234", "alice@example.com"))
}

func TestThrottledResponseCarriesCORSHeaders(t *testing.T) {
	limiter := NewRateLimiter(10)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	r := newEngine(CORS(config.Config{CORSAllowedOrigins: []string{"https://app.example.com"}}), limiter.Handler())

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, do().Code)
	w := do()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterDisabled(t *testing.T) {
	require.Nil(t, NewRateLimiter(0))
	var limiter *RateLimiter
	r := newEngine(limiter.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
