package cache

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, policies []Policy) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return &Cache{
		client:     redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		enabled:    true,
		policies:   policies,
		defaultTTL: 30 * time.Second,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestKey_IsIndependentOfQueryParamOrder(t *testing.T) {
	a := Key("GET", "/Products", url.Values{"category": {"shoes"}, "page": {"2"}})
	b := Key("get", "/products", url.Values{"page": {"2"}, "category": {"shoes"}})
	require.Equal(t, a, b)
}

func TestKey_IsIndependentOfQueryKeyCase(t *testing.T) {
	a := Key("GET", "/products", url.Values{"PageSize": {"20"}})
	b := Key("GET", "/products", url.Values{"pagesize": {"20"}})
	require.Equal(t, a, b)
}

func TestKey_DiffersByQueryValue(t *testing.T) {
	a := Key("GET", "/products", url.Values{"page": {"1"}})
	b := Key("GET", "/products", url.Values{"page": {"2"}})
	require.NotEqual(t, a, b)
}

func TestMatchPolicy_CaseInsensitivePrefixMatch(t *testing.T) {
	c := newTestCache(t, []Policy{{PathPrefix: "/Products", TTLSeconds: 60}})
	ttl, ok := c.MatchPolicy("/products/123")
	require.True(t, ok)
	require.Equal(t, 60*time.Second, ttl)
}

func TestMatchPolicy_NoMatch_IsNotCacheable(t *testing.T) {
	c := newTestCache(t, []Policy{{PathPrefix: "/products", TTLSeconds: 60}})
	_, ok := c.MatchPolicy("/orders/1")
	require.False(t, ok)
}

func TestMatchPolicy_NonPositiveTTL_FallsBackToDefault(t *testing.T) {
	c := newTestCache(t, []Policy{{PathPrefix: "/products", TTLSeconds: 0}})
	ttl, ok := c.MatchPolicy("/products")
	require.True(t, ok)
	require.Equal(t, 30*time.Second, ttl)
}

func TestSetAndGet_RoundTrips(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key("GET", "/products", nil)
	c.Set(context.Background(), key, Entry{ContentType: "application/json", Body: []byte(`{"id":1}`)}, time.Minute)

	entry, ok := c.Get(context.Background(), key)
	require.True(t, ok)
	require.Equal(t, "application/json", entry.ContentType)
	require.Equal(t, `{"id":1}`, string(entry.Body))
}

func TestGet_Miss_ReportsNotOK(t *testing.T) {
	c := newTestCache(t, nil)
	_, ok := c.Get(context.Background(), "no-such-key")
	require.False(t, ok)
}
