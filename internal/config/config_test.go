package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_gateway/internal/flowcache"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "gateway.yaml", `
server:
  listen_addr: ":9090"
  shutdown_timeout: 3s
node:
  rpc_url: http://node:10050/rpc
  timeout: 45s
flow_cache:
  backend: redis
  redis_addr: redis:6379
  poll_interval: 500ms
logging:
  level: debug
  format: json
cors:
  allowed_origins: [https://a.example.com, "*.example.org"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "http://node:10050/rpc", cfg.Node.RPCURL)
	assert.Equal(t, 45*time.Second, cfg.Node.Timeout)
	assert.Equal(t, flowcache.BackendRedis, cfg.FlowCache.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.FlowCache.PollInterval)
	assert.Equal(t, time.Hour, cfg.FlowCache.Retention)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"https://a.example.com", "*.example.org"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "gateway.toml", `
[node]
rpc_url = "http://toml-node/rpc"

[rate_limit]
requests_per_second = 5
burst = 10

[flow_cache]
backend = "postgres"
postgres_dsn = "postgres://localhost/gateway"
redis_db = 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://toml-node/rpc", cfg.Node.RPCURL)
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, flowcache.BackendPostgres, cfg.FlowCache.Backend)
	assert.Equal(t, 2, cfg.FlowCache.RedisDB)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "gateway.yml", "node:\n  rpc_url: http://file/rpc\n")
	t.Setenv("GATEWAY_NODE_RPC_URL", "http://env/rpc")
	t.Setenv("GATEWAY_NODE_TIMEOUT", "2s")
	t.Setenv("GATEWAY_RATE_LIMIT_ENABLED", "false")
	t.Setenv("GATEWAY_CORS_ALLOWED_ORIGINS", "https://a.io,https://b.io")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env/rpc", cfg.Node.RPCURL)
	assert.Equal(t, 2*time.Second, cfg.Node.Timeout)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"https://a.io", "https://b.io"}, cfg.CORS.AllowedOrigins)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "GATEWAY_LISTEN_ADDR=:7070\n")
	t.Setenv("GATEWAY_LISTEN_ADDR", "")
	require.NoError(t, os.Unsetenv("GATEWAY_LISTEN_ADDR"))

	require.NoError(t, LoadEnvFile(path))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "gateway.json", "{}"))
	assert.ErrorContains(t, err, "unsupported format")

	_, err = Load(writeFile(t, "gateway.yaml", "server: [1, 2]\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "gateway.yaml", "unknown_section: {}\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "gateway.yaml", "flow_cache:\n  backend: redis\n"))
	assert.ErrorContains(t, err, "redis_addr")

	_, err = Load(writeFile(t, "gateway.yaml", "node:\n  timeout: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Server.ListenAddr = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Node.RPCURL = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.RateLimit.RequestsPerSecond = 0
	assert.Error(t, bad.Validate())

	bad.RateLimit.Enabled = false
	assert.NoError(t, bad.Validate())
}
