package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.2, cfg.Gateway.QoSAlpha)
	assert.Equal(t, 250*time.Millisecond, cfg.Gateway.ReferenceLatency)
	assert.Equal(t, "exact", cfg.Gateway.QualifierMode)
	assert.Equal(t, 1, cfg.Principal.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Principal.Cache.TTL)
}

func TestLoader_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  http_port: 9999
gateway:
  qualifier_mode: advisory
  reference_latency: 500ms
principal:
  mode: hybrid
  max_retries: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "advisory", cfg.Gateway.QualifierMode)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.ReferenceLatency)
	assert.Equal(t, "hybrid", cfg.Principal.Mode)
	assert.Equal(t, 2, cfg.Principal.MaxRetries)
	// Untouched fields keep defaults.
	assert.Equal(t, 0.2, cfg.Gateway.QoSAlpha)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("AEGIS_SERVER_HTTP_PORT", "7070")
	t.Setenv("AEGIS_GATEWAY_QOS_ALPHA", "0.5")
	t.Setenv("AEGIS_PRINCIPAL_DELEGATION_TIMEOUT", "3s")
	t.Setenv("AEGIS_LOG_OUTPUT_PATHS", "stdout, /var/log/aegis.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, 0.5, cfg.Gateway.QoSAlpha)
	assert.Equal(t, 3*time.Second, cfg.Principal.DelegationTimeout)
	assert.Equal(t, []string{"stdout", "/var/log/aegis.log"}, cfg.Log.OutputPaths)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"alpha out of range", func(c *Config) { c.Gateway.QoSAlpha = 1.5 }},
		{"bad qualifier mode", func(c *Config) { c.Gateway.QualifierMode = "maybe" }},
		{"bad mode", func(c *Config) { c.Principal.Mode = "turbo" }},
		{"negative retries", func(c *Config) { c.Principal.MaxRetries = -1 }},
		{"zero cache capacity", func(c *Config) { c.Principal.Cache.Capacity = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "aegis", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=aegis sslmode=disable", d.DSN())

	d.Driver = "mysql"
	assert.Equal(t, "u:p@tcp(db:5432)/aegis?parseTime=true", d.DSN())

	d.Driver = "sqlite"
	assert.Equal(t, "aegis", d.DSN())

	d.Driver = "oracle"
	assert.Equal(t, "", d.DSN())
}
