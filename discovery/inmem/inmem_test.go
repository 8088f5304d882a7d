package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/backbone/discovery"
)

func TestRegister_ResolveOne_ReturnsBaseURI(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, discovery.Registration{
		InstanceID:  "gateway-1",
		ServiceName: "gateway",
		HostPort:    "10.0.0.1:8080",
	}))

	uri, err := r.ResolveOne(ctx, "gateway")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080/", uri)
}

func TestResolveOne_HTTPSTag_UsesHTTPSScheme(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, discovery.Registration{
		InstanceID:  "gateway-1",
		ServiceName: "gateway",
		HostPort:    "10.0.0.1:8443",
		Tags:        []string{"https"},
	}))

	uri, err := r.ResolveOne(ctx, "gateway")
	require.NoError(t, err)
	assert.Equal(t, "https://10.0.0.1:8443/", uri)
}

func TestResolveOne_NoInstances_ReturnsErrNoHealthyInstances(t *testing.T) {
	r := NewRegistry()
	_, err := r.ResolveOne(context.Background(), "ghost")
	assert.ErrorIs(t, err, discovery.ErrNoHealthyInstances)
}

func TestResolveAll_ExpiredInstance_IsFiltered(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, discovery.Registration{
		InstanceID:  "gateway-1",
		ServiceName: "gateway",
		HostPort:    "10.0.0.1:8080",
	}))
	r.addrs["gateway"]["gateway-1"].lastActive = time.Now().Add(-TTL * 2)

	addrs, err := r.ResolveAll(ctx, "gateway")
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestHealthCheck_RefreshesLastActive(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, discovery.Registration{
		InstanceID:  "gateway-1",
		ServiceName: "gateway",
		HostPort:    "10.0.0.1:8080",
	}))
	r.addrs["gateway"]["gateway-1"].lastActive = time.Now().Add(-TTL * 2)

	require.NoError(t, r.HealthCheck("gateway-1", "gateway"))

	addrs, err := r.ResolveAll(ctx, "gateway")
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestDeregister_RemovesInstance(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, discovery.Registration{
		InstanceID:  "gateway-1",
		ServiceName: "gateway",
		HostPort:    "10.0.0.1:8080",
	}))
	require.NoError(t, r.Deregister(ctx, "gateway-1", "gateway"))

	_, err := r.ResolveOne(ctx, "gateway")
	assert.ErrorIs(t, err, discovery.ErrNoHealthyInstances)
}

func TestResolveOne_MultipleInstances_PicksOneOfThem(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	hosts := map[string]bool{"10.0.0.1:8080": true, "10.0.0.2:8080": true}
	for hostPort := range hosts {
		require.NoError(t, r.Register(ctx, discovery.Registration{
			InstanceID:  hostPort,
			ServiceName: "gateway",
			HostPort:    hostPort,
		}))
	}

	uri, err := r.ResolveOne(ctx, "gateway")
	require.NoError(t, err)
	assert.Contains(t, []string{"http://10.0.0.1:8080/", "http://10.0.0.2:8080/"}, uri)
}

var _ discovery.Registry = (*Registry)(nil)
