// Package cache implements the gateway's response cache: a Redis-backed
// cache-aside layer over GET responses, gated by a case-insensitive
// path-prefix policy table.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orderflow/backbone/common/config"
)

// Policy maps a case-insensitive path prefix to a TTL in seconds. A TTL of
// zero or less falls back to DefaultCacheDurationInSeconds.
type Policy struct {
	PathPrefix string
	TTLSeconds int
}

// Cache is the gateway's response cache. Errors talking to Redis are logged
// and swallowed: a cache outage degrades to always-miss, never a failed
// request.
type Cache struct {
	client     *redis.Client
	enabled    bool
	policies   []Policy
	defaultTTL time.Duration
	logger     *slog.Logger
}

// New builds a Cache from spec.md §6's RedisCacheSettings block and a
// prefix policy table.
func New(cfg config.RedisCacheSettings, policies []Policy, logger *slog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{Addr: cfg.ConnectionString})
	return &Cache{
		client:     client,
		enabled:    cfg.Enabled,
		policies:   policies,
		defaultTTL: time.Duration(cfg.DefaultCacheDurationInSeconds) * time.Second,
		logger:     logger,
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// MatchPolicy returns the TTL for path's longest matching prefix and
// whether the path is cacheable at all.
func (c *Cache) MatchPolicy(path string) (time.Duration, bool) {
	if !c.enabled {
		return 0, false
	}
	lowered := strings.ToLower(path)

	var best *Policy
	for i := range c.policies {
		p := &c.policies[i]
		if !strings.HasPrefix(lowered, strings.ToLower(p.PathPrefix)) {
			continue
		}
		if best == nil || len(p.PathPrefix) > len(best.PathPrefix) {
			best = p
		}
	}
	if best == nil {
		return 0, false
	}
	if best.TTLSeconds <= 0 {
		return c.defaultTTL, true
	}
	return time.Duration(best.TTLSeconds) * time.Second, true
}

// Key builds the deterministic cache key for method, path and query:
// "METHOD:lowercased-path[?sorted-urlencoded-query]". Query keys are
// lowercased before sorting and encoding, so "PageSize" and "pagesize"
// collapse onto the same cache entry.
func Key(method, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(path))

	if len(query) > 0 {
		lowered := url.Values{}
		for k, vals := range query {
			lk := strings.ToLower(k)
			lowered[lk] = append(lowered[lk], vals...)
		}

		keys := make([]string, 0, len(lowered))
		for k := range lowered {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sorted := url.Values{}
		for _, k := range keys {
			vals := append([]string(nil), lowered[k]...)
			sort.Strings(vals)
			sorted[k] = vals
		}
		b.WriteByte('?')
		b.WriteString(sorted.Encode())
	}
	return b.String()
}

// Entry is the cached response body and content type for a stored key.
type Entry struct {
	ContentType string
	Body        []byte
}

// Get returns the cached entry for key, or ok=false on a miss or error.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := c.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		c.logger.Warn("cache get failed", slog.String("key", key), slog.Any("error", err))
		return Entry{}, false
	}
	body, ok := data["body"]
	if !ok {
		return Entry{}, false
	}
	return Entry{ContentType: data["content_type"], Body: []byte(body)}, true
}

// Set stores entry under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) {
	rk := redisKey(key)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, rk, "content_type", entry.ContentType, "body", entry.Body)
	pipe.Expire(ctx, rk, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("gw-cache:%s", key)
}
