package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lessonjudge/internal/common/cache"
	"lessonjudge/internal/common/http/middleware"
	"lessonjudge/pkg/utils/contextkey"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimiter(t *testing.T) (*middleware.RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return middleware.NewRateLimiter(c, time.Minute, time.Second), mr
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddlewareByIP(t *testing.T) {
	limiter, mr := newLimiter(t)
	r := gin.New()
	r.Use(middleware.RateLimitMiddleware(limiter, "run", middleware.RateLimitPolicy{IPMax: 2}))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for i := 0; i < 2; i++ {
		if w := serve(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := serve(r, http.MethodGet, "/x", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	mr.FastForward(2 * time.Minute)
	if w := serve(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", w.Code)
	}
}

func TestRateLimitMiddlewareByUser(t *testing.T) {
	limiter, _ := newLimiter(t)
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	r.Use(middleware.RateLimitMiddleware(limiter, "run", middleware.RateLimitPolicy{UserMax: 1}))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	alice := map[string]string{"X-User-Id": "alice"}
	if w := serve(r, http.MethodGet, "/x", alice); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/x", alice); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for repeat user, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/x", map[string]string{"X-User-Id": "bob"}); w.Code != http.StatusOK {
		t.Fatalf("expected other user to pass, got %d", w.Code)
	}
	// Anonymous callers are not limited per user.
	if w := serve(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("expected anonymous to pass, got %d", w.Code)
	}
}

func TestRateLimitFailsOpenWhenCacheDown(t *testing.T) {
	limiter, mr := newLimiter(t)
	mr.Close()
	r := gin.New()
	r.Use(middleware.RateLimitMiddleware(limiter, "run", middleware.RateLimitPolicy{IPMax: 1}))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	if w := serve(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
		t.Fatalf("expected request to pass with cache down, got %d", w.Code)
	}
}

func TestTraceContextMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("trace_id")) })

	w := serve(r, http.MethodGet, "/x", map[string]string{"X-Trace-Id": "abc"})
	if got := w.Header().Get("X-Trace-Id"); got != "abc" {
		t.Fatalf("expected trace id to be echoed, got %q", got)
	}
	if w.Body.String() != "abc" {
		t.Fatalf("expected trace id on gin context, got %q", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/x", nil)
	if w.Header().Get("X-Trace-Id") == "" || w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated ids, got %v", w.Header())
	}
}

func TestTraceContextPropagatesToRequestContext(t *testing.T) {
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	r.GET("/x", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.String(http.StatusOK, contextkey.Value(ctx, contextkey.TraceID)+"|"+contextkey.Value(ctx, contextkey.UserID))
	})

	w := serve(r, http.MethodGet, "/x", map[string]string{"X-Trace-Id": "t-1", "X-User-Id": "learner-7"})
	if w.Body.String() != "t-1|learner-7" {
		t.Fatalf("expected ids on request context, got %q", w.Body.String())
	}

	long := strings.Repeat("a", 200)
	w = serve(r, http.MethodGet, "/x", map[string]string{"X-Trace-Id": long})
	if got := w.Header().Get("X-Trace-Id"); got == long || got == "" {
		t.Fatalf("expected oversized trace id to be replaced, got %q", got)
	}
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware(), middleware.Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":10001`) {
		t.Fatalf("expected internal error envelope, got %s", w.Body.String())
	}
}

func TestMetricsBuilder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(middleware.NewMetricsBuilder(reg).Build())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(r, http.MethodGet, "/x", nil)
	serve(r, http.MethodGet, "/x", nil)
	serve(r, http.MethodGet, "/missing", nil)

	if n := testutil.CollectAndCount(reg, "lessonjudge_http_requests_total"); n != 2 {
		t.Fatalf("expected 2 label sets, got %d", n)
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://learn.example.com"},
	}))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/x", map[string]string{"Origin": "https://learn.example.com"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://learn.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	w = serve(r, http.MethodOptions, "/x", map[string]string{"Origin": "https://evil.example.com"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", w.Code)
	}
}
