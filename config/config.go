// Package config provides unified configuration for the Aegis gateway and
// principal, loaded from defaults, an optional YAML file, and environment
// variable overrides (in that precedence order).
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete configuration tree.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Gateway   GatewayConfig   `yaml:"gateway" env:"GATEWAY"`
	Principal PrincipalConfig `yaml:"principal" env:"PRINCIPAL"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
}

// ServerConfig configures the HTTP server that frames the gateway's
// logical operations.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimit is requests per second per client; RateBurst the burst size.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST"`
}

// GatewayConfig holds the registry, QoS, and discovery tunables. All the
// constants the ranking pipeline depends on live here so that scoring stays
// reproducible and documented rather than hidden in the code.
type GatewayConfig struct {
	Name string `yaml:"name" env:"NAME"`

	// QoSAlpha is the EWMA smoothing weight applied to a new latency
	// sample. 0.2 matches the smoothing used across the framework.
	QoSAlpha float64 `yaml:"qos_alpha" env:"QOS_ALPHA"`

	// ReferenceLatency normalizes latency in the composite score:
	// score = successRate * 1 / (1 + avgLatency/referenceLatency).
	ReferenceLatency time.Duration `yaml:"reference_latency" env:"REFERENCE_LATENCY"`

	// HealthCheckTimeout bounds the registration health probe.
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout" env:"HEALTH_CHECK_TIMEOUT"`

	// RevalidateInterval is how often inactive records are re-probed.
	// Zero disables the sweep.
	RevalidateInterval time.Duration `yaml:"revalidate_interval" env:"REVALIDATE_INTERVAL"`

	// QualifierMode pins the discovery semantics of key:value requirement
	// tokens: "exact" (tokens participate in the index intersection
	// verbatim) or "advisory" (tokens are stripped before intersection and
	// passed through on the task payload).
	QualifierMode string `yaml:"qualifier_mode" env:"QUALIFIER_MODE"`

	// Persist enables write-through of registry mutations to the
	// configured persistence store.
	Persist bool `yaml:"persist" env:"PERSIST"`
}

// PrincipalConfig holds the orchestration loop tunables.
type PrincipalConfig struct {
	Name string `yaml:"name" env:"NAME"`

	// Mode selects how decomposition is obtained (no_llm, assisted, agent,
	// hybrid). It affects the decomposition step only.
	Mode string `yaml:"mode" env:"MODE"`

	// DelegationTimeout bounds each delegation attempt.
	DelegationTimeout time.Duration `yaml:"delegation_timeout" env:"DELEGATION_TIMEOUT"`

	// MaxRetries is the number of additional attempts against next-ranked
	// candidates after the first delegation fails.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	// OnNoResource decides the request-level policy when a task finds no
	// candidate: "fail_fast" fails the request, "skip" marks the task
	// failed and continues.
	OnNoResource string `yaml:"on_no_resource" env:"ON_NO_RESOURCE"`

	Cache CacheConfig `yaml:"cache" env:"CACHE"`
}

// CacheConfig bounds the principal's local resource cache.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	Capacity int           `yaml:"capacity" env:"CAPACITY"`
}

// RedisConfig configures the optional redis-backed stores.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig configures the optional SQL-backed registry store.
type DatabaseConfig struct {
	// Driver: postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig configures the zap logger built in cmd.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OpenTelemetry SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// AuthConfig configures the API middleware. An empty JWTSecret disables
// bearer-token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Gateway.QoSAlpha <= 0 || c.Gateway.QoSAlpha > 1 {
		errs = append(errs, "gateway.qos_alpha must be in (0, 1]")
	}
	if c.Gateway.ReferenceLatency <= 0 {
		errs = append(errs, "gateway.reference_latency must be positive")
	}
	switch c.Gateway.QualifierMode {
	case "exact", "advisory":
	default:
		errs = append(errs, "gateway.qualifier_mode must be exact or advisory")
	}
	switch c.Principal.Mode {
	case "no_llm", "assisted", "agent", "hybrid":
	default:
		errs = append(errs, "principal.mode must be one of no_llm, assisted, agent, hybrid")
	}
	switch c.Principal.OnNoResource {
	case "fail_fast", "skip":
	default:
		errs = append(errs, "principal.on_no_resource must be fail_fast or skip")
	}
	if c.Principal.MaxRetries < 0 {
		errs = append(errs, "principal.max_retries must be non-negative")
	}
	if c.Principal.Cache.Capacity <= 0 {
		errs = append(errs, "principal.cache.capacity must be positive")
	}
	if c.Principal.Cache.TTL <= 0 {
		errs = append(errs, "principal.cache.ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
