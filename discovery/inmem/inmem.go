// Package inmem is a process-local discovery.Registry test double: no
// Consul agent required.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/orderflow/backbone/discovery"
)

// TTL is how long an instance stays passing after its last HealthCheck,
// simulating Consul's DeregisterCriticalServiceAfter.
const TTL = 5 * time.Second

type Registry struct {
	mu    sync.RWMutex
	addrs map[string]map[string]*instance
}

type instance struct {
	hostPort   string
	tags       []string
	lastActive time.Time
}

func NewRegistry() *Registry {
	return &Registry{addrs: map[string]map[string]*instance{}}
}

func (r *Registry) Register(ctx context.Context, reg discovery.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.addrs[reg.ServiceName]; !ok {
		r.addrs[reg.ServiceName] = map[string]*instance{}
	}

	r.addrs[reg.ServiceName][reg.InstanceID] = &instance{
		hostPort:   reg.HostPort,
		tags:       reg.Tags,
		lastActive: time.Now(),
	}
	return nil
}

func (r *Registry) Deregister(ctx context.Context, instanceID, serviceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.addrs[serviceName], instanceID)
	return nil
}

func (r *Registry) HealthCheck(instanceID, serviceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.addrs[serviceName][instanceID]
	if !ok {
		return discovery.ErrNoHealthyInstances
	}
	inst.lastActive = time.Now()
	return nil
}

func (r *Registry) passing(serviceName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-TTL)
	var res []string
	for _, inst := range r.addrs[serviceName] {
		if inst.lastActive.Before(cutoff) {
			continue
		}
		res = append(res, discovery.BaseURI(inst.hostPort, inst.tags))
	}
	return res
}

func (r *Registry) ResolveOne(ctx context.Context, serviceName string) (string, error) {
	addrs := r.passing(serviceName)
	if len(addrs) == 0 {
		return "", discovery.ErrNoHealthyInstances
	}
	return discovery.PickRandom(addrs), nil
}

func (r *Registry) ResolveAll(ctx context.Context, serviceName string) ([]string, error) {
	return r.passing(serviceName), nil
}

var _ discovery.Registry = (*Registry)(nil)
