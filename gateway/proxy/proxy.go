// Package proxy implements the gateway's reverse-proxy stage: a static
// route-to-cluster table where clusters carrying registry metadata resolve
// their destinations dynamically, and everything else proxies to a fixed
// URL.
package proxy

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/orderflow/backbone/common/correlation"
	"github.com/orderflow/backbone/discovery"
)

// Cluster is a named proxy target. RegistryServiceName, when set, makes the
// cluster dynamic: its destinations are re-resolved from the registry on a
// fixed cadence instead of being fixed at startup.
type Cluster struct {
	Name                string
	StaticURL           string
	RegistryServiceName string
}

// Route maps a path prefix to a cluster.
type Route struct {
	PathPrefix string
	Cluster    string
}

// Proxy reverse-proxies requests to the cluster selected by the longest
// matching route prefix.
type Proxy struct {
	routes   []Route
	clusters map[string]Cluster
	registry discovery.Registry
	logger   *slog.Logger

	mu           sync.RWMutex
	destinations map[string][]string // cluster name -> resolved base URLs
}

// New builds a Proxy over routes and clusters. Clusters with no
// RegistryServiceName use StaticURL as their single destination.
func New(routes []Route, clusters []Cluster, registry discovery.Registry, logger *slog.Logger) *Proxy {
	p := &Proxy{
		routes:       routes,
		clusters:     map[string]Cluster{},
		registry:     registry,
		logger:       logger,
		destinations: map[string][]string{},
	}
	for _, c := range clusters {
		p.clusters[c.Name] = c
		if c.RegistryServiceName == "" && c.StaticURL != "" {
			p.destinations[c.Name] = []string{c.StaticURL}
		}
	}
	return p
}

// RefreshDynamicClusters resolves every registry-backed cluster's current
// destinations. Intended to be called on a fixed cadence by a background
// refresher; clusters without metadata are left untouched.
func (p *Proxy) RefreshDynamicClusters(ctx context.Context) {
	for name, c := range p.clusters {
		if c.RegistryServiceName == "" {
			continue
		}
		addrs, err := p.registry.ResolveAll(ctx, c.RegistryServiceName)
		if err != nil {
			p.logger.Warn("cluster resolution failed, clearing destinations", slog.String("cluster", name), slog.Any("error", err))
			addrs = nil
		}
		p.mu.Lock()
		p.destinations[name] = addrs
		p.mu.Unlock()
	}
}

func (p *Proxy) destinationFor(cluster string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	addrs := p.destinations[cluster]
	if len(addrs) == 0 {
		return "", false
	}
	return discovery.PickRandom(addrs), true
}

// Handler builds the http.Handler that routes each request by longest
// matching prefix and proxies to the selected cluster's current
// destination. Requests matching no route or whose cluster has zero current
// destinations are answered with a JSON error.
func (p *Proxy) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := p.matchRoute(r.URL.Path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "not_found", "no route for path")
			return
		}

		dest, ok := p.destinationFor(route.Cluster)
		if !ok {
			writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", "no healthy instances for "+route.Cluster)
			return
		}

		target, err := url.Parse(dest)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, "bad_gateway", "invalid destination")
			return
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		rp.Transport = transport
		rp.ErrorHandler = errorHandler(p.logger, route.Cluster)

		defaultDirector := rp.Director
		rp.Director = func(req *http.Request) {
			defaultDirector(req)
			if req.Header.Get("X-Forwarded-Host") == "" {
				req.Header.Set("X-Forwarded-Host", req.Host)
			}
			if req.Header.Get("X-Forwarded-Proto") == "" {
				proto := "http"
				if req.TLS != nil {
					proto = "https"
				}
				req.Header.Set("X-Forwarded-Proto", proto)
			}
			if req.Header.Get(correlation.Header) == "" {
				if id := correlation.FromContext(req.Context()); id != "" {
					req.Header.Set(correlation.Header, id)
				}
			}
		}

		rp.ServeHTTP(w, r)
	})
}

func (p *Proxy) matchRoute(path string) (Route, bool) {
	var best Route
	matched := false
	for _, r := range p.routes {
		if !hasPrefix(path, r.PathPrefix) {
			continue
		}
		if !matched || len(r.PathPrefix) > len(best.PathPrefix) {
			best = r
			matched = true
		}
	}
	return best, matched
}

func hasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

var transport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ResponseHeaderTimeout: 30 * time.Second,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
}

func errorHandler(logger *slog.Logger, cluster string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", slog.String("cluster", cluster), slog.String("path", r.URL.Path), slog.Any("error", err))
		writeJSONError(w, http.StatusBadGateway, "bad_gateway", "upstream service unavailable")
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
