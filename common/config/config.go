// Package config holds the structured configuration blocks named in
// spec.md §6, loaded from the environment via caarlos0/env.
package config

import "github.com/caarlos0/env/v10"

// Load populates cfg (a pointer to a struct tagged with `env:`/`envDefault:`)
// from the process environment.
func Load(cfg any) error {
	return env.Parse(cfg)
}

// RabbitMQ mirrors spec.md §6's RabbitMq configuration block.
type RabbitMQ struct {
	HostName        string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	Port            string `env:"RABBITMQ_PORT" envDefault:"5672"`
	UserName        string `env:"RABBITMQ_USER" envDefault:"guest"`
	Password        string `env:"RABBITMQ_PASS" envDefault:"guest"`
	VirtualHost     string `env:"RABBITMQ_VHOST" envDefault:"/"`
	ExchangeName    string `env:"RABBITMQ_EXCHANGE" envDefault:"ecommerce.topic"`
	DlxExchangeName string `env:"RABBITMQ_DLX_EXCHANGE" envDefault:"ecommerce.dlx"`
	DlxQueueName    string `env:"RABBITMQ_DLX_QUEUE" envDefault:"ecommerce.dlq"`
}

// RedisCacheSettings mirrors spec.md §6's RedisCacheSettings block. Policies
// are supplied separately (see gateway/cache) since env var maps are
// awkward to express with struct tags; the prefix->ttl table lives in code,
// wired from DefaultCacheDurationInSeconds as the fallback.
type RedisCacheSettings struct {
	Enabled                       bool   `env:"CACHE_ENABLED" envDefault:"true"`
	ConnectionString              string `env:"CACHE_REDIS_ADDR" envDefault:"localhost:6379"`
	InstanceName                  string `env:"CACHE_INSTANCE_NAME" envDefault:"gateway"`
	DefaultCacheDurationInSeconds int    `env:"CACHE_DEFAULT_TTL_SECONDS" envDefault:"30"`
}

// RateLimitPolicy mirrors one policy entry of spec.md §6's RateLimiting
// block.
type RateLimitPolicy struct {
	PermitLimit          int    `env:"PERMIT_LIMIT" envDefault:"100"`
	WindowSeconds        int    `env:"WINDOW_SECONDS" envDefault:"60"`
	QueueLimit           int    `env:"QUEUE_LIMIT" envDefault:"0"`
	QueueProcessingOrder string `env:"QUEUE_ORDER" envDefault:"OldestFirst"`
}

// RateLimiting mirrors spec.md §6's RateLimiting block. Each policy's env
// vars are namespaced with a prefix (e.g. RATELIMIT_PRODUCT_PERMIT_LIMIT).
type RateLimiting struct {
	IsEnabled        bool              `env:"RATELIMIT_ENABLED" envDefault:"true"`
	DefaultPolicy    RateLimitPolicy   `envPrefix:"RATELIMIT_DEFAULT_"`
	ProductAPIPolicy RateLimitPolicy   `envPrefix:"RATELIMIT_PRODUCT_"`
	OrderAPIPolicy   RateLimitPolicy   `envPrefix:"RATELIMIT_ORDER_"`
	PaymentAPIPolicy ConcurrencyPolicy `envPrefix:"RATELIMIT_PAYMENT_"`
}

// ConcurrencyPolicy mirrors the PaymentApi policy shape (concurrency, not
// fixed-window) from spec.md §4.5.
type ConcurrencyPolicy struct {
	PermitLimit          int    `env:"PERMIT_LIMIT" envDefault:"10"`
	QueueLimit           int    `env:"QUEUE_LIMIT" envDefault:"0"`
	QueueProcessingOrder string `env:"QUEUE_ORDER" envDefault:"OldestFirst"`
}

// CompressionSettings mirrors spec.md §6's CompressionSettings block.
type CompressionSettings struct {
	Enabled                   bool     `env:"COMPRESSION_ENABLED" envDefault:"true"`
	CompressionThresholdBytes int      `env:"COMPRESSION_THRESHOLD_BYTES" envDefault:"1024"`
	SupportedEncodings        []string `env:"COMPRESSION_ENCODINGS" envSeparator:"," envDefault:"br,gzip"`
	DefaultEncoding           string   `env:"COMPRESSION_DEFAULT_ENCODING" envDefault:"gzip"`
}

// ConsulSelf mirrors spec.md §6's Consul (self) block.
type ConsulSelf struct {
	Address             string   `env:"CONSUL_ADDR" envDefault:""`
	ServiceID           string   `env:"CONSUL_SERVICE_ID"`
	ServiceName         string   `env:"CONSUL_SERVICE_NAME"`
	ServiceAddress      string   `env:"CONSUL_SERVICE_ADDR"`
	HealthCheckEndpoint string   `env:"CONSUL_HEALTH_PATH" envDefault:"/health"`
	Tags                []string `env:"CONSUL_TAGS" envSeparator:","`
}

// JwtSettings mirrors spec.md §6's JwtSettings block.
type JwtSettings struct {
	Issuer    string `env:"JWT_ISSUER"`
	SecretKey string `env:"JWT_SECRET"`
}

// GatewayConfig aggregates every structured block the gateway needs.
type GatewayConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"gateway"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	Consul       ConsulSelf          `envPrefix:""`
	Cache        RedisCacheSettings  `envPrefix:""`
	RateLimiting RateLimiting        `envPrefix:""`
	Compression  CompressionSettings `envPrefix:""`
	Jwt          JwtSettings         `envPrefix:""`

	RefreshIntervalSeconds int `env:"ROUTING_REFRESH_SECONDS" envDefault:"5"`

	ProductServiceURL string `env:"PRODUCT_SERVICE_URL" envDefault:"http://localhost:9001"`
	OrderServiceURL   string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:9002"`
	UserServiceURL    string `env:"USER_SERVICE_URL" envDefault:"http://localhost:9003"`
	PaymentServiceURL string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:9004"`
}

// OrchestratorConfig aggregates every structured block the orchestrator
// needs.
type OrchestratorConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"orchestrator"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":9090"`

	RabbitMQ RabbitMQ   `envPrefix:""`
	Consul   ConsulSelf `envPrefix:""`

	SnapshotTTLMinutes int `env:"SAGA_SNAPSHOT_TTL_MINUTES" envDefault:"30"`
}
