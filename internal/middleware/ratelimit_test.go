package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/friendsplace/internal/model"
	"github.com/redis/go-redis/v9"
)

func testLimiterConfig(generalBurst, authBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		AuthRate:        1,
		AuthBurst:       authBurst,
		CleanupInterval: time.Minute,
	}
}

func requestAs(userID, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.RemoteAddr = remoteAddr
	if userID != "" {
		req = req.WithContext(ContextWithUser(req.Context(), &model.User{ID: userID}))
	}
	return req
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// --- GeneralMiddleware ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1", "10.0.0.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(2, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-rate-limit", "10.0.0.1:1234"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-rate-limit", "10.0.0.1:1234"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	sec, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || sec < 1 {
		t.Errorf("Retry-After = %q, want positive seconds", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "fail" || body.Code != model.ErrCodeRateLimited {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_IsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler)

	requests := []*http.Request{
		requestAs("user-a", "10.0.0.1:1"),
		requestAs("user-b", "10.0.0.1:2"),
		requestAs("", "10.0.0.2:1"),
		requestAs("", "10.0.0.3:1"),
	}
	for i, req := range requests {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}
	if got := rl.GeneralLimiterCount(); got != 4 {
		t.Errorf("GeneralLimiterCount = %d, want 4", got)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-a", "10.9.9.9:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same user from another IP: status = %d, want 429", w.Code)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 5))
	defer rl.Stop()

	rl.general.get("user:stale")
	rl.auth.get("10.0.0.1")
	rl.general.mu.Lock()
	rl.general.limiters["user:stale"].lastAccess = time.Now().Add(-time.Hour)
	rl.general.mu.Unlock()

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", got)
	}
	if got := rl.AuthLimiterCount(); got != 1 {
		t.Errorf("AuthLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralBurst != 120 || cfg.AuthBurst != 10 {
		t.Errorf("bursts = %d/%d, want 120/10", cfg.GeneralBurst, cfg.AuthBurst)
	}
	if float64(cfg.GeneralRate) != 2 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.CleanupInterval <= 0 {
		t.Error("CleanupInterval should be positive")
	}
}

// --- AuthRateLimitMiddleware ---

type stubAuthLimiter struct {
	allowed bool
	wait    time.Duration
	err     error
	keys    []string
}

func (s *stubAuthLimiter) AllowAuth(_ context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.wait, s.err
}

func TestAuthRateLimitMiddleware_InMemoryPerIP(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(100, 2))
	defer rl.Stop()
	handler := NewAuthRateLimitMiddleware(rl, nil)(okHandler)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("", "192.0.2.1:5000"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("", "192.0.2.1:6000"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("", "192.0.2.2:5000"))
	if w.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", w.Code)
	}
}

func TestAuthRateLimitMiddleware_UsesLimiterWait(t *testing.T) {
	limiter := &stubAuthLimiter{allowed: false, wait: 42 * time.Second}
	handler := NewAuthRateLimitMiddleware(limiter, nil)(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("", "198.51.100.7:443"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q, want 42", got)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "198.51.100.7" {
		t.Errorf("keys = %v, want client IP", limiter.keys)
	}
}

type dependencyCounter struct {
	countingCollector
	failures map[string]int
}

func (d *dependencyCounter) RecordDependencyFailure(dep string) {
	d.failures[dep]++
}

func TestAuthRateLimitMiddleware_FailsOpen(t *testing.T) {
	m := &dependencyCounter{failures: map[string]int{}}
	limiter := &stubAuthLimiter{err: context.DeadlineExceeded}
	handler := NewAuthRateLimitMiddleware(limiter, m)(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("", "198.51.100.7:443"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when limiter is down", w.Code)
	}
	if m.failures["ratelimit"] != 1 {
		t.Errorf("dependency failures = %v", m.failures)
	}
}

// --- RedisWindowLimiter ---

func TestRedisWindowLimiter_UnreachableReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	limiter := NewRedisWindowLimiter(client, "test", 1, time.Minute)
	allowed, _, err := limiter.AllowAuth(context.Background(), "10.0.0.1")
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
	if allowed {
		t.Error("allowed should be false on error")
	}
}

func TestRedisWindowLimiter_FixedWindow(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	prefix := "friendsplace-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	limiter := NewRedisWindowLimiter(client, prefix, 2, time.Minute)
	defer client.Del(ctx, prefix+":10.0.0.1")

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.AllowAuth(ctx, "10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i, allowed, err)
		}
	}
	allowed, wait, err := limiter.AllowAuth(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("third request should be rejected")
	}
	if wait <= 0 || wait > time.Minute {
		t.Errorf("wait = %v, want within window", wait)
	}
}
