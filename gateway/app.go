// Package gateway wires the edge: JWT validation, rate limiting, response
// caching, compression, and dynamic reverse-proxy routing in front of the
// backend services, plus the order summary aggregator.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/orderflow/backbone/common/config"
	"github.com/orderflow/backbone/common/httpclient"
	"github.com/orderflow/backbone/common/tracing"
	"github.com/orderflow/backbone/discovery"
	"github.com/orderflow/backbone/discovery/consul"
	"github.com/orderflow/backbone/gateway/aggregator"
	"github.com/orderflow/backbone/gateway/cache"
	"github.com/orderflow/backbone/gateway/proxy"
	"github.com/orderflow/backbone/gateway/ratelimit"
)

// App wires together everything the gateway process needs and owns its
// startup/shutdown ordering.
type App struct {
	cfg      config.GatewayConfig
	logger   *slog.Logger
	registry discovery.Registry
	instID   string
	server   *http.Server
	cache    *cache.Cache
	proxy    *proxy.Proxy
	shutdown func()
}

// Build constructs the App: creates the Consul client if configured, assembles
// the cache, rate limiters, proxy and aggregator, and the HTTP server. It
// does not start the dynamic-cluster refresher or serve traffic yet; call
// Run for that.
func Build(cfg config.GatewayConfig, logger *slog.Logger) (*App, error) {
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	var registry discovery.Registry
	instID := discovery.GenerateInstanceID(cfg.ServiceName)
	if cfg.Consul.Address != "" {
		reg, err := consul.NewRegistry(cfg.Consul.Address)
		if err != nil {
			shutdownTracer()
			return nil, err
		}
		registry = reg
	}

	cachePolicies := []cache.Policy{
		{PathPrefix: "/products", TTLSeconds: cfg.Cache.DefaultCacheDurationInSeconds},
		{PathPrefix: "/categories", TTLSeconds: cfg.Cache.DefaultCacheDurationInSeconds},
	}
	respCache := cache.New(cfg.Cache, cachePolicies, logger)

	limiters := ratelimit.NewSet(cfg.RateLimiting)

	routes := []proxy.Route{
		{PathPrefix: "/products", Cluster: "product"},
		{PathPrefix: "/orders", Cluster: "order"},
		{PathPrefix: "/users", Cluster: "user"},
		{PathPrefix: "/payments", Cluster: "payment"},
	}
	clusters := []proxy.Cluster{
		{Name: "product", StaticURL: cfg.ProductServiceURL, RegistryServiceName: "product"},
		{Name: "order", StaticURL: cfg.OrderServiceURL, RegistryServiceName: "order"},
		{Name: "user", StaticURL: cfg.UserServiceURL, RegistryServiceName: "user"},
		{Name: "payment", StaticURL: cfg.PaymentServiceURL, RegistryServiceName: "payment"},
	}
	if registry == nil {
		// No registry configured: clusters fall back to their static URLs
		// permanently since nothing can resolve RegistryServiceName.
		for i := range clusters {
			clusters[i].RegistryServiceName = ""
		}
	}
	px := proxy.New(routes, clusters, registry, logger)

	httpClient := httpclient.New(httpclient.DefaultConfig())
	agg := aggregator.New(cfg.OrderServiceURL, cfg.UserServiceURL, cfg.ProductServiceURL, cfg.PaymentServiceURL, httpClient, logger)

	router := newRouter(cfg, logger, limiters, respCache, px, agg)

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		instID:   instID,
		server:   &http.Server{Addr: cfg.HTTPAddr, Handler: router},
		cache:    respCache,
		proxy:    px,
		shutdown: shutdownTracer,
	}, nil
}

// Run registers with the service registry, starts the health-check loop,
// the dynamic cluster refresher, and the HTTP server, and blocks until ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.registry != nil {
		if err := a.registry.Register(ctx, discovery.Registration{
			InstanceID:    a.instID,
			ServiceName:   a.cfg.ServiceName,
			HostPort:      a.cfg.Consul.ServiceAddress,
			Tags:          a.cfg.Consul.Tags,
			HealthURL:     a.cfg.Consul.HealthCheckEndpoint,
			CheckInterval: 10 * time.Second,
			CheckTimeout:  5 * time.Second,
			CriticalAfter: 30 * time.Second,
		}); err != nil {
			return err
		}

		healthTicker := time.NewTicker(10 * time.Second)
		defer healthTicker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-healthTicker.C:
					if err := a.registry.HealthCheck(a.instID, a.cfg.ServiceName); err != nil {
						a.logger.Warn("health check failed", slog.Any("error", err))
					}
				}
			}
		}()

		refreshInterval := time.Duration(a.cfg.RefreshIntervalSeconds) * time.Second
		go a.proxy.StartRefresher(ctx, refreshInterval)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdownGracefully()
	case err := <-serverErrCh:
		_ = a.shutdownGracefully()
		return err
	}
}

func (a *App) shutdownGracefully() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.server.Shutdown(shutdownCtx)

	if a.registry != nil {
		if err := a.registry.Deregister(context.Background(), a.instID, a.cfg.ServiceName); err != nil {
			a.logger.Warn("deregister failed", slog.Any("error", err))
		}
	}

	a.shutdown()

	return a.cache.Close()
}
