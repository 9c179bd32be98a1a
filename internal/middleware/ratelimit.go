package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiter decides whether a client may make another request
type Limiter interface {
	Allow(ctx context.Context, clientIP string) (bool, error)
}

// RateLimit middleware rejects clients over their budget with 429.
// Limiter errors let the request through.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			allowed, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Msg("Rate limiter unavailable")
				allowed = true
			}
			if !allowed {
				log.Ctx(r.Context()).Warn().
					Str("client_ip", clientIP).
					Msg("Rate limit exceeded")

				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "Rate limit exceeded. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP reads RemoteAddr, which chi's RealIP middleware has already
// rewritten from the forwarding headers when a proxy set them
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// sweepInterval is how often idle buckets are dropped
const sweepInterval = time.Minute

// SimpleRateLimiter is an in-memory token bucket per client.
// Each instance keeps its own counts.
type SimpleRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	burstSize         int
	clients           map[string]*clientLimit
	lastSweep         time.Time
	now               func() time.Time
}

type clientLimit struct {
	tokens     float64
	lastRefill time.Time
}

func NewSimpleRateLimiter(requestsPerMinute, burstSize int) *SimpleRateLimiter {
	if burstSize <= 0 {
		burstSize = requestsPerMinute
	}
	return &SimpleRateLimiter{
		requestsPerMinute: requestsPerMinute,
		burstSize:         burstSize,
		clients:           make(map[string]*clientLimit),
		now:               time.Now,
	}
}

func (rl *SimpleRateLimiter) Allow(_ context.Context, clientIP string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	client, exists := rl.clients[clientIP]
	if !exists {
		client = &clientLimit{tokens: float64(rl.burstSize), lastRefill: now}
		rl.clients[clientIP] = client
	}

	refill := now.Sub(client.lastRefill).Minutes() * float64(rl.requestsPerMinute)
	client.tokens = min(client.tokens+refill, float64(rl.burstSize))
	client.lastRefill = now

	if client.tokens >= 1 {
		client.tokens--
		return true, nil
	}
	return false, nil
}

// sweep drops buckets idle long enough to have refilled completely; a new
// bucket for the same client starts in the same state.
func (rl *SimpleRateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < sweepInterval {
		return
	}
	rl.lastSweep = now

	idle := time.Minute
	if rl.requestsPerMinute > 0 {
		idle = time.Duration(float64(rl.burstSize) / float64(rl.requestsPerMinute) * float64(time.Minute))
	}
	for ip, client := range rl.clients {
		if now.Sub(client.lastRefill) >= idle {
			delete(rl.clients, ip)
		}
	}
}

// WindowCounter is satisfied by the Redis cache
type WindowCounter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SharedRateLimiter counts requests in a store shared by every instance
type SharedRateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	key     func(clientIP string) string
}

// NewSharedRateLimiter allows limit requests per client in each window
func NewSharedRateLimiter(counter WindowCounter, limit int, window time.Duration, key func(string) string) *SharedRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &SharedRateLimiter{counter: counter, limit: limit, window: window, key: key}
}

func (rl *SharedRateLimiter) Allow(ctx context.Context, clientIP string) (bool, error) {
	return rl.counter.Allow(ctx, rl.key(clientIP), rl.limit, rl.window)
}

