package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSimpleRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewSimpleRateLimiter(60, 2)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "1.2.3.4")
	assert.False(t, ok)

	// other clients have their own bucket
	ok, _ = rl.Allow(ctx, "5.6.7.8")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = rl.Allow(ctx, "1.2.3.4")
	assert.True(t, ok)
}

type stubLimiter struct {
	allow bool
	err   error
	seen  []string
}

func (s *stubLimiter) Allow(_ context.Context, ip string) (bool, error) {
	s.seen = append(s.seen, ip)
	return s.allow, s.err
}

func TestRateLimitRejects(t *testing.T) {
	h := RateLimit(&stubLimiter{allow: false})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT", body["error"]["code"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(&stubLimiter{err: errors.New("redis down")})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	// forwarding headers only count once RealIP has rewritten RemoteAddr
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.3")
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", getClientIP(r))
}

func TestRateLimitBehindRealIP(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	h := chimiddleware.RealIP(RateLimit(limiter)(okHandler()))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.3")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, []string{"203.0.113.7"}, limiter.seen)
}

func TestSimpleRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	// a bucket of 5 refills at 1/min in 5 minutes
	rl := NewSimpleRateLimiter(1, 5)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, _ = rl.Allow(ctx, fmt.Sprintf("198.51.100.%d", i))
	}
	assert.Len(t, rl.clients, 100)

	now = now.Add(6 * time.Minute)
	ok, err := rl.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, rl.clients, 1)

	for i := 0; i < 4; i++ {
		ok, _ = rl.Allow(ctx, "192.0.2.1")
		assert.True(t, ok)
	}
	ok, _ = rl.Allow(ctx, "192.0.2.1")
	assert.False(t, ok)

	// a drained bucket survives the sweep and only gets its refill
	now = now.Add(sweepInterval)
	ok, _ = rl.Allow(ctx, "192.0.2.1")
	assert.True(t, ok)
	ok, _ = rl.Allow(ctx, "192.0.2.1")
	assert.False(t, ok)
	assert.Len(t, rl.clients, 1)
}

type windowCounter struct {
	key    string
	limit  int
	window time.Duration
}

func (w *windowCounter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	w.key, w.limit, w.window = key, limit, window
	return true, nil
}

func TestSharedRateLimiter(t *testing.T) {
	wc := &windowCounter{}
	rl := NewSharedRateLimiter(wc, 30, 90*time.Second, func(ip string) string { return "rl:" + ip })

	ok, err := rl.Allow(context.Background(), "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rl:1.1.1.1", wc.key)
	assert.Equal(t, 30, wc.limit)
	assert.Equal(t, 90*time.Second, wc.window)

	_, _ = NewSharedRateLimiter(wc, 30, 0, func(ip string) string { return ip }).Allow(context.Background(), "1.1.1.1")
	assert.Equal(t, time.Minute, wc.window)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestLoggingAttachesLogger(t *testing.T) {
	var attached bool
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attached = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, attached)
}
