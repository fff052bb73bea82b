package httpmiddleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	reached := false
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000", "not-a-url"}))
	r.GET("/api/students", func(c *gin.Context) { reached = true; c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := serve(r, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, reached)
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000/"}))
	r.GET("/api/students", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://ea-w4if.onrender.com"}))
	r.POST("/api/attendance", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/api/attendance", nil)
	req.Header.Set("Origin", "https://ea-w4if.onrender.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestBodyLimitDeclaredLength(t *testing.T) {
	reached := false
	r := gin.New()
	r.Use(BodyLimit(50 << 20))
	r.POST("/api/students", func(c *gin.Context) { reached = true; c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/api/students", strings.NewReader("{}"))
	req.ContentLength = 60 << 20
	w := serve(r, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, reached)
}

func TestBodyLimitUnknownLength(t *testing.T) {
	var readErr error
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/upload", func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = -1
	serve(r, req)

	require.Error(t, readErr)
	assert.True(t, IsBodyTooLarge(readErr))
	assert.False(t, IsBodyTooLarge(errors.New("other")))
}

func TestBodyLimitWithinCeiling(t *testing.T) {
	var got string
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/echo", func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		got = string(b)
		c.Status(http.StatusOK)
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", got)
}

func TestStaticServesFilesAndFallsThrough(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>attendance</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("console.log(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("MONGODB_URI=secret"), 0o644))

	r := gin.New()
	r.Use(Static(root))
	r.GET("/api/healthz", func(c *gin.Context) { c.String(http.StatusOK, "api") })
	r.POST("/app.js", func(c *gin.Context) { c.String(http.StatusOK, "post") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "attendance")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	assert.Equal(t, "api", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodPost, "/app.js", nil))
	assert.Equal(t, "post", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/.env", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestRateLimit(t *testing.T) {
	bucket := NewSimpleTokenBucket(2, 2)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }

	r := gin.New()
	r.Use(RateLimit(bucket, zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func() int { return serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code }
	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, get())
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(brokenLimiter{}, zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID())
	r.Use(RequestLogger(zerolog.New(&buf).Level(zerolog.InfoLevel), "/metrics"))
	r.GET("/api/students", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/students?course=CS", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := serve(r, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/students?course=CS", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])

	buf.Reset()
	serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Zero(t, buf.Len())
}

func TestRequestLoggerSkippedPathsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf).Level(zerolog.DebugLevel), "/api/healthz"))
	r.GET("/api/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "/api/healthz", entry["path"])
}

func TestRequestIDGenerated(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	id := w.Header().Get("X-Request-ID")
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := gin.New()
	r.Use(m.Handler())
	r.GET("/api/students/:studentId", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/api/students/CS101", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/api/students/CS102", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			counts[labels["route"]+" "+labels["status"]] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, counts["/api/students/:studentId 200"])
	assert.Equal(t, 1.0, counts["unmatched 404"])
}
