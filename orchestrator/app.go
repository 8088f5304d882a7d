package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/orderflow/backbone/common/broker"
	"github.com/orderflow/backbone/common/config"
	"github.com/orderflow/backbone/common/metrics"
	"github.com/orderflow/backbone/common/tracing"
	"github.com/orderflow/backbone/discovery"
	"github.com/orderflow/backbone/discovery/consul"
)

// App wires together everything the orchestrator process needs and owns
// its startup/shutdown ordering.
type App struct {
	cfg      config.OrchestratorConfig
	logger   *zap.Logger
	conn     *broker.Conn
	registry discovery.Registry
	instID   string
	server   *http.Server
	store    *SnapshotStore
	shutdown func()
}

// Build constructs the App: connects the broker (declaring topology),
// creates the Consul client if configured, and assembles the HTTP
// health/metrics server. It does not register or start consuming yet; call
// Run for that.
func Build(cfg config.OrchestratorConfig, logger *zap.Logger) (*App, error) {
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	conn, err := broker.Connect(cfg.RabbitMQ)
	if err != nil {
		shutdownTracer()
		return nil, err
	}

	var registry discovery.Registry
	instID := discovery.GenerateInstanceID(cfg.ServiceName)
	if cfg.Consul.Address != "" {
		reg, err := consul.NewRegistry(cfg.Consul.Address)
		if err != nil {
			conn.Close()
			shutdownTracer()
			return nil, err
		}
		registry = reg
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Healthy"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &App{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		registry: registry,
		instID:   instID,
		server:   &http.Server{Addr: cfg.HTTPAddr, Handler: mux},
		store:    NewSnapshotStore(time.Duration(cfg.SnapshotTTLMinutes) * time.Minute),
		shutdown: shutdownTracer,
	}, nil
}

// Run registers with the service registry, starts the health-check loop,
// consumer loops, and HTTP server, and blocks until ctx is cancelled.
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
						a.logger.Warn("health check failed", zap.Error(err))
					}
				}
			}
		}()
	}

	sweepTicker := time.NewTicker(time.Minute)
	defer sweepTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweepTicker.C:
				if n := a.store.Sweep(); n > 0 {
					a.logger.Info("swept expired saga snapshots", zap.Int("count", n))
				}
			}
		}
	}()

	m := metrics.NewSagaMetrics(a.cfg.ServiceName)
	saga := New(a.conn, a.store, m)

	consumerErrCh := make(chan error, 1)
	go func() { consumerErrCh <- Run(ctx, a.conn, saga) }()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdownGracefully()
	case err := <-consumerErrCh:
		_ = a.shutdownGracefully()
		return err
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
			a.logger.Warn("deregister failed", zap.Error(err))
		}
	}

	a.shutdown()

	return a.conn.Close()
}
