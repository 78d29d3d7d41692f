package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/aitool-portal/aitool-portal/internal/config"
)

// newTestMemoryLimiter returns a limiter driven by a fake clock
func newTestMemoryLimiter(t *testing.T, rpm, burst int) (*MemoryLimiter, *time.Time) {
	t.Helper()
	l := NewMemoryLimiter(rpm, burst, time.Hour)
	t.Cleanup(func() { _ = l.Close() })
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestMemoryLimiter_BurstThenRefill(t *testing.T) {
	l, now := newTestMemoryLimiter(t, 60, 2)
	ctx := context.Background()

	for i := range 2 {
		d, _ := l.Allow(ctx, "ip:1.2.3.4")
		if !d.Allowed {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	d, _ := l.Allow(ctx, "ip:1.2.3.4")
	if d.Allowed {
		t.Fatal("third request allowed past burst")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want (0, 1s]", d.RetryAfter)
	}

	*now = now.Add(time.Second)
	if d, _ := l.Allow(ctx, "ip:1.2.3.4"); !d.Allowed {
		t.Error("request denied after one token refilled")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestMemoryLimiter(t, 60, 1)
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "user:a"); !d.Allowed {
		t.Fatal("first request for a denied")
	}
	if d, _ := l.Allow(ctx, "user:b"); !d.Allowed {
		t.Error("b limited by a's usage")
	}
	if d, _ := l.Allow(ctx, "user:a"); d.Allowed {
		t.Error("a allowed past burst")
	}
}

func TestMemoryLimiter_CloseIsIdempotent(t *testing.T) {
	l := NewMemoryLimiter(60, 1, time.Millisecond)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{"memory", false},
		{"redis", false},
		{"memcached", true},
	}
	for _, tt := range tests {
		l, err := NewLimiter(config.RateLimitingConfig{
			RequestsPerMinute: 10,
			Burst:             5,
			Backend:           tt.backend,
			Redis:             config.RedisConfig{Address: "127.0.0.1:1"},
		})
		if (err != nil) != tt.wantErr {
			t.Errorf("backend %q: err = %v, wantErr %v", tt.backend, err, tt.wantErr)
		}
		if l != nil {
			_ = l.Close()
		}
	}
}

func newRateLimitedRouter(l Limiter, userID string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}, RateLimitMiddleware(l))
	r.GET("/api/v1/audit-logs/export", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	l, _ := newTestMemoryLimiter(t, 60, 1)
	r := newRateLimitedRouter(l, "u-1")

	w := serve(r, http.MethodGet, "/api/v1/audit-logs/export")
	if w.Code != http.StatusOK {
		t.Fatalf("first status = %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", got)
	}

	w = serve(r, http.MethodGet, "/api/v1/audit-logs/export")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("Retry-After = %q, want a positive integer", w.Header().Get("Retry-After"))
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestRateLimitMiddleware_KeyPrefersUser(t *testing.T) {
	rec := &recordingLimiter{}
	serve(newRateLimitedRouter(rec, "u-9"), http.MethodGet, "/api/v1/audit-logs/export")
	if rec.key != "user:u-9" {
		t.Errorf("key = %q, want user:u-9", rec.key)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs/export", nil)
	req.RemoteAddr = "203.0.113.5:4711"
	serveRequest(newRateLimitedRouter(rec, ""), req)
	if rec.key != "ip:203.0.113.5" {
		t.Errorf("key = %q, want ip:203.0.113.5", rec.key)
	}
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	w := serve(newRateLimitedRouter(&recordingLimiter{err: errors.New("boom")}, "u-1"),
		http.MethodGet, "/api/v1/audit-logs/export")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when limiter errors", w.Code)
	}
}

func TestRedisLimiter_UnreachableFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := NewRedisLimiter(rdb, 10, 5)
	defer l.Close()

	if _, err := l.Allow(context.Background(), "user:u-1"); err == nil {
		t.Fatal("expected error from unreachable redis")
	}

	w := serve(newRateLimitedRouter(l, "u-1"), http.MethodGet, "/api/v1/audit-logs/export")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

type recordingLimiter struct {
	key string
	err error
}

func (r *recordingLimiter) Allow(_ context.Context, key string) (Decision, error) {
	r.key = key
	if r.err != nil {
		return Decision{}, r.err
	}
	return Decision{Allowed: true, Limit: 1, Remaining: 1}, nil
}

func (r *recordingLimiter) Close() error { return nil }
