package config

import "time"

// DefaultConfig returns the documented default configuration. The ranking
// and caching constants are pinned here: EWMA alpha 0.2, reference latency
// 250ms, cache TTL 30s with 256 entries, delegation timeout 10s with a
// single retry.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
		},
		Gateway: GatewayConfig{
			Name:               "gateway",
			QoSAlpha:           0.2,
			ReferenceLatency:   250 * time.Millisecond,
			HealthCheckTimeout: 5 * time.Second,
			RevalidateInterval: time.Minute,
			QualifierMode:      "exact",
			Persist:            false,
		},
		Principal: PrincipalConfig{
			Name:              "principal",
			Mode:              "no_llm",
			DelegationTimeout: 10 * time.Second,
			MaxRetries:        1,
			OnNoResource:      "fail_fast",
			Cache: CacheConfig{
				TTL:      30 * time.Second,
				Capacity: 256,
			},
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			KeyPrefix:    "aegis:",
		},
		Database: DatabaseConfig{
			Driver:          "",
			Host:            "localhost",
			Port:            5432,
			User:            "aegis",
			Name:            "aegis",
			SSLMode:         "disable",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Log: LogConfig{
			Level:            "info",
			Format:           "json",
			OutputPaths:      []string{"stdout"},
			EnableCaller:     true,
			EnableStacktrace: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "aegis",
			SampleRate:   1.0,
		},
		Auth: AuthConfig{
			Issuer: "aegis",
		},
	}
}
