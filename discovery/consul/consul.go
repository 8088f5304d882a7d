// Package consul implements discovery.Registry against a real Consul agent.
package consul

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/orderflow/backbone/discovery"
)

// Registry is a discovery.Registry backed by the Consul HTTP API.
type Registry struct {
	client *consulapi.Client
}

// NewRegistry dials the Consul agent at addr.
func NewRegistry(addr string) (*Registry, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Registry{client: client}, nil
}

// Register deregisters any stale entry under the same instance id, then
// registers with an HTTP health check against reg.HealthURL (a TTL check
// when HealthURL is empty) and the critical-eviction window from reg.
func (r *Registry) Register(ctx context.Context, reg discovery.Registration) error {
	_ = r.client.Agent().ServiceDeregister(reg.InstanceID)

	host, portStr, err := splitHostPort(reg.HostPort)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in hostPort %q: %w", reg.HostPort, err)
	}

	check := &consulapi.AgentServiceCheck{
		CheckID:                        reg.InstanceID,
		TLSSkipVerify:                  true,
		DeregisterCriticalServiceAfter: reg.CriticalAfter.String(),
	}
	if reg.HealthURL != "" {
		check.HTTP = reg.HealthURL
		check.Interval = reg.CheckInterval.String()
		check.Timeout = reg.CheckTimeout.String()
	} else {
		check.TTL = reg.CheckInterval.String()
	}

	return r.client.Agent().ServiceRegister(&consulapi.AgentServiceRegistration{
		ID:      reg.InstanceID,
		Name:    reg.ServiceName,
		Address: host,
		Port:    port,
		Tags:    reg.Tags,
		Check:   check,
	})
}

// Deregister removes instanceID from the agent.
func (r *Registry) Deregister(ctx context.Context, instanceID, serviceName string) error {
	slog.Info("deregistering from consul", "service", serviceName, "instance_id", instanceID)
	return r.client.Agent().ServiceDeregister(instanceID)
}

// HealthCheck marks instanceID's TTL check passing. For HTTP-checked
// registrations there is no TTL check to update and the agent returns an
// error.
func (r *Registry) HealthCheck(instanceID, serviceName string) error {
	return r.client.Agent().UpdateTTL(instanceID, "online", consulapi.HealthPassing)
}

func (r *Registry) resolvePassing(serviceName string) ([]string, error) {
	services, _, err := r.client.Health().Service(serviceName, "", true, nil)
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(services))
	for _, s := range services {
		hostPort := fmt.Sprintf("%s:%d", s.Service.Address, s.Service.Port)
		addrs = append(addrs, discovery.BaseURI(hostPort, s.Service.Tags))
	}
	return addrs, nil
}

// ResolveOne returns a random passing instance's base URI.
func (r *Registry) ResolveOne(ctx context.Context, serviceName string) (string, error) {
	addrs, err := r.resolvePassing(serviceName)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", discovery.ErrNoHealthyInstances
	}
	return discovery.PickRandom(addrs), nil
}

// ResolveAll returns every passing instance's base URI.
func (r *Registry) ResolveAll(ctx context.Context, serviceName string) ([]string, error) {
	return r.resolvePassing(serviceName)
}

func splitHostPort(hostPort string) (string, string, error) {
	idx := strings.LastIndex(hostPort, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("invalid hostPort %q: missing port", hostPort)
	}
	return hostPort[:idx], hostPort[idx+1:], nil
}

var _ discovery.Registry = (*Registry)(nil)
