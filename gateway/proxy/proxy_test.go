package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orderflow/backbone/discovery"
	"github.com/orderflow/backbone/discovery/inmem"
)

// flakyRegistry resolves successfully once, then fails every call after,
// simulating a registry that goes unreachable mid-run.
type flakyRegistry struct {
	discovery.Registry
	calls int
}

func (f *flakyRegistry) ResolveAll(ctx context.Context, serviceName string) ([]string, error) {
	f.calls++
	if f.calls == 1 {
		return f.Registry.ResolveAll(ctx, serviceName)
	}
	return nil, errors.New("registry unreachable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_StaticCluster_Proxies(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer backend.Close()

	p := New(
		[]Route{{PathPrefix: "/products", Cluster: "product"}},
		[]Cluster{{Name: "product", StaticURL: backend.URL}},
		nil,
		testLogger(),
	)

	req := httptest.NewRequest(http.MethodGet, "/products/1", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestHandler_NoRoute_Returns404(t *testing.T) {
	p := New(nil, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_ClusterWithNoDestinations_Returns503(t *testing.T) {
	p := New(
		[]Route{{PathPrefix: "/orders", Cluster: "order"}},
		[]Cluster{{Name: "order", RegistryServiceName: "order-service"}},
		inmem.NewRegistry(),
		testLogger(),
	)

	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRefreshDynamicClusters_ResolvesFromRegistry(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	registry := inmem.NewRegistry()
	require.NoError(t, registry.Register(context.Background(), discovery.Registration{
		InstanceID:  "order-1",
		ServiceName: "order-service",
		HostPort:    backend.Listener.Addr().String(),
	}))
	require.NoError(t, registry.HealthCheck("order-1", "order-service"))

	p := New(
		[]Route{{PathPrefix: "/orders", Cluster: "order"}},
		[]Cluster{{Name: "order", RegistryServiceName: "order-service"}},
		registry,
		testLogger(),
	)
	p.RefreshDynamicClusters(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRefreshDynamicClusters_ResolutionErrorClearsStaleDestinations(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	registry := inmem.NewRegistry()
	require.NoError(t, registry.Register(context.Background(), discovery.Registration{
		InstanceID:  "order-1",
		ServiceName: "order-service",
		HostPort:    backend.Listener.Addr().String(),
	}))
	require.NoError(t, registry.HealthCheck("order-1", "order-service"))

	flaky := &flakyRegistry{Registry: registry}
	p := New(
		[]Route{{PathPrefix: "/orders", Cluster: "order"}},
		[]Cluster{{Name: "order", RegistryServiceName: "order-service"}},
		flaky,
		testLogger(),
	)

	p.RefreshDynamicClusters(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	p.RefreshDynamicClusters(context.Background())
	req = httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	rr = httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMatchRoute_PrefersLongestPrefix(t *testing.T) {
	p := New(
		[]Route{
			{PathPrefix: "/api", Cluster: "catch-all"},
			{PathPrefix: "/api/orders", Cluster: "order"},
		},
		nil, nil, testLogger(),
	)
	route, ok := p.matchRoute("/api/orders/42")
	require.True(t, ok)
	require.Equal(t, "order", route.Cluster)
}
