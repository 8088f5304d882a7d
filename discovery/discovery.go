// Package discovery defines the service registry contract: self-registration
// for leaf services and resolution for callers.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrNoHealthyInstances is returned by ResolveOne when a service name has no
// passing instances; ResolveAll returns an empty slice instead.
var ErrNoHealthyInstances = errors.New("discovery: no healthy instances")

// Registration describes everything a leaf service reports about itself.
type Registration struct {
	InstanceID    string
	ServiceName   string
	HostPort      string
	Tags          []string
	HealthURL     string
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	CriticalAfter time.Duration
}

// Registry is implemented by both the Consul-backed production client and
// the in-memory test double.
type Registry interface {
	// Register enrolls an instance. Implementations deregister any prior
	// entry with the same InstanceID first, to eliminate ghosts left by a
	// crashed predecessor.
	Register(ctx context.Context, reg Registration) error
	Deregister(ctx context.Context, instanceID, serviceName string) error
	HealthCheck(instanceID, serviceName string) error

	// ResolveOne returns one uniformly-random passing instance's base URI,
	// or ErrNoHealthyInstances if none are passing.
	ResolveOne(ctx context.Context, serviceName string) (string, error)
	// ResolveAll returns every passing instance's base URI, or an empty
	// slice if none are passing.
	ResolveAll(ctx context.Context, serviceName string) ([]string, error)
}

// GenerateInstanceID builds a unique per-process instance id.
func GenerateInstanceID(serviceName string) string {
	return fmt.Sprintf("%s-%d", serviceName, rand.New(rand.NewSource(time.Now().UnixNano())).Int())
}

// BaseURI builds scheme://host:port/ for hostPort, using https iff tags
// include "https".
func BaseURI(hostPort string, tags []string) string {
	scheme := "http"
	for _, t := range tags {
		if strings.EqualFold(t, "https") {
			scheme = "https"
			break
		}
	}
	return fmt.Sprintf("%s://%s/", scheme, hostPort)
}

// PickRandom returns a uniformly random element of addrs.
func PickRandom(addrs []string) string {
	return addrs[rand.New(rand.NewSource(time.Now().UnixNano())).Intn(len(addrs))]
}
