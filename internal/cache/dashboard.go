// Package cache implements the Redis-backed dashboard cache. Dashboard
// payloads are cached per user under a generation-stamped key; any
// organization or user mutation bumps the generation, which orphans every
// cached payload at once. Orphaned keys age out via TTL. When Redis is not
// configured every operation is a no-op and callers always hit the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orgdesk/orgdesk/internal/config"
	"github.com/orgdesk/orgdesk/internal/safego"
	"github.com/orgdesk/orgdesk/internal/telemetry"
)

const (
	generationKey = "orgdesk:dashboard:gen"
	keyPrefix     = "orgdesk:dashboard"
	defaultTTL    = 5 * time.Minute
)

// DashboardCache caches rendered dashboard payloads per user.
type DashboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a dashboard cache. Returns a no-op cache when Redis is not
// configured.
func New(cfg *config.RedisConfig) *DashboardCache {
	if !cfg.Enabled() {
		return &DashboardCache{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &DashboardCache{client: client, ttl: defaultTTL}
}

// NewWithClient creates a dashboard cache over an existing client. Used by
// tests and by callers that share one connection pool.
func NewWithClient(client *redis.Client) *DashboardCache {
	return &DashboardCache{client: client, ttl: defaultTTL}
}

// Enabled reports whether a Redis backend is wired in.
func (c *DashboardCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Ping verifies the Redis connection at startup.
func (c *DashboardCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *DashboardCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// Get loads the cached dashboard payload for a user into dest. Returns false
// on a miss (or when the cache is disabled); cache errors are reported as
// misses so a Redis outage never takes reads down.
func (c *DashboardCache) Get(ctx context.Context, userID string, dest any) bool {
	if !c.Enabled() {
		return false
	}

	key, err := c.userKey(ctx, userID)
	if err != nil {
		return false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		telemetry.DashboardCacheRequestsTotal.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		slog.Warn("dashboard cache read failed", "error", err)
		telemetry.DashboardCacheRequestsTotal.WithLabelValues("miss").Inc()
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("dashboard cache payload corrupt", "key", key, "error", err)
		telemetry.DashboardCacheRequestsTotal.WithLabelValues("miss").Inc()
		return false
	}

	telemetry.DashboardCacheRequestsTotal.WithLabelValues("hit").Inc()
	return true
}

// Set stores the dashboard payload for a user under the current generation.
func (c *DashboardCache) Set(ctx context.Context, userID string, payload any) error {
	if !c.Enabled() {
		return nil
	}

	key, err := c.userKey(ctx, userID)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard payload: %w", err)
	}

	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate bumps the generation counter in a fire-and-forget goroutine,
// orphaning every cached dashboard at once. Callers do not wait for it and a
// Redis failure only logs. Mutating operations call this after commit.
func (c *DashboardCache) Invalidate() {
	if !c.Enabled() {
		return
	}

	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
			slog.Warn("dashboard cache invalidation failed", "error", err)
			return
		}
		telemetry.DashboardCacheInvalidationsTotal.Inc()
	})
}

// userKey computes the generation-stamped cache key for a user.
func (c *DashboardCache) userKey(ctx context.Context, userID string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("failed to read cache generation: %w", err)
	}
	return fmt.Sprintf("%s:v%d:user:%s", keyPrefix, gen, userID), nil
}
