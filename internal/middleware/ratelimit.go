// ratelimit.go provides per-client token-bucket rate limiting, returning 429
// responses when the configured requests-per-minute threshold is exceeded.
// Limits are enforced in Redis when a connection is configured, so every
// replica sees the same buckets; otherwise an in-process limiter is used.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow consumes one token from the key's bucket. It returns whether the
	// request may proceed and how many tokens remain.
	Allow(ctx context.Context, key string) (allowed bool, remaining int)
}

// NewLimiter returns a Redis-backed limiter when rdb is non-nil, and an
// in-process limiter otherwise.
func NewLimiter(rdb *redis.Client, requestsPerMinute, burst int) Limiter {
	if rdb != nil {
		return &redisLimiter{
			limiter: redis_rate.NewLimiter(rdb),
			limit: redis_rate.Limit{
				Rate:   requestsPerMinute,
				Burst:  burst,
				Period: time.Minute,
			},
		}
	}
	return newMemoryLimiter(requestsPerMinute, burst)
}

// ---------------------------------------------------------------------------
// Redis-backed limiter
// ---------------------------------------------------------------------------

type redisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, int) {
	res, err := l.limiter.Allow(ctx, key, l.limit)
	if err != nil {
		// Redis being down should not take the API with it.
		return true, l.limit.Burst
	}
	return res.Allowed > 0, res.Remaining
}

// ---------------------------------------------------------------------------
// In-process limiter
// ---------------------------------------------------------------------------

// staleAfter is how long an idle bucket survives before the janitor drops it.
const staleAfter = 10 * time.Minute

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

type memoryLimiter struct {
	rate    float64 // tokens per second
	burst   int
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newMemoryLimiter(requestsPerMinute, burst int) *memoryLimiter {
	l := &memoryLimiter{
		rate:    float64(requestsPerMinute) / 60.0,
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
	go l.janitor()
	return l
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.burst) - 1, lastUpdate: now}
		return true, l.burst - 1
	}

	b.tokens = min(float64(l.burst), b.tokens+now.Sub(b.lastUpdate).Seconds()*l.rate)
	b.lastUpdate = now

	if b.tokens < 1 {
		return false, 0
	}
	b.tokens--
	return true, int(b.tokens)
}

func (l *memoryLimiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, b := range l.buckets {
			if now.Sub(b.lastUpdate) > staleAfter {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// ---------------------------------------------------------------------------
// Gin middleware
// ---------------------------------------------------------------------------

// RateLimit enforces the limiter per client. Authenticated requests are keyed
// by user ID so one user cannot starve others behind a shared NAT; anonymous
// requests fall back to the client IP.
func RateLimit(limiter Limiter, requestsPerMinute int) gin.HandlerFunc {
	limitHeader := strconv.Itoa(requestsPerMinute)

	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, remaining := limiter.Allow(c.Request.Context(), key)
		c.Header("X-RateLimit-Limit", limitHeader)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if identity := IdentityFrom(c); identity != nil {
		return "user:" + identity.UserID
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
