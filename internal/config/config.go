// Package config loads gateway configuration from a YAML or TOML file,
// an optional dotenv file and GATEWAY_* environment variables, in that
// order of precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/ledger_gateway/internal/chain"
	"github.com/R3E-Network/ledger_gateway/internal/flowcache"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Node      chain.Config     `mapstructure:"node"`
	FlowCache flowcache.Config `mapstructure:"flow_cache"`
	Logging   logger.Config    `mapstructure:"logging"`
	RateLimit RateLimitConfig  `mapstructure:"rate_limit"`
	CORS      CORSConfig       `mapstructure:"cors"`
}

// Default returns the configuration used for anything a file or the
// environment leaves unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Node: chain.Config{
			RPCURL:        "http://localhost:10050/rpc",
			Timeout:       30 * time.Second,
			LookupTimeout: 5 * time.Second,
		},
		FlowCache: flowcache.DefaultConfig(),
		Logging:   logger.Config{Level: "info", Format: "text"},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
			CleanupInterval:   5 * time.Minute,
		},
		CORS: CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server: listen_addr required")
	}
	if c.Node.RPCURL == "" {
		return errors.New("node: rpc_url required")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rate_limit: requests_per_second must be positive")
	}
	return c.FlowCache.Validate()
}

// =============================================================================
// Loading
// =============================================================================

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the file at path over the defaults, applies the environment
// and validates the result. An empty path loads defaults and environment
// only.
func Load(path string) (Config, error) {
	tree := make(map[string]any)
	if path != "" {
		var err error
		if tree, err = readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(tree); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := decode(tree, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		tree := make(map[string]any)
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		return tree, nil
	case ".toml":
		t, err := toml.LoadBytes(data)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		return t.ToMap(), nil
	}
	return nil, fmt.Errorf("config %s: unsupported format %q", path, filepath.Ext(path))
}

func decode(tree map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(tree)
}

// =============================================================================
// Environment
// =============================================================================

// envOverrides are the settings that may come from the environment. The
// cfg tag names the dotted config path each one replaces.
type envOverrides struct {
	ListenAddr       string `env:"GATEWAY_LISTEN_ADDR" cfg:"server.listen_addr"`
	NodeRPCURL       string `env:"GATEWAY_NODE_RPC_URL" cfg:"node.rpc_url"`
	NodeTimeout      string `env:"GATEWAY_NODE_TIMEOUT" cfg:"node.timeout"`
	LogLevel         string `env:"GATEWAY_LOG_LEVEL" cfg:"logging.level"`
	LogFormat        string `env:"GATEWAY_LOG_FORMAT" cfg:"logging.format"`
	FlowCacheBackend string `env:"GATEWAY_FLOW_CACHE_BACKEND" cfg:"flow_cache.backend"`
	RedisAddr        string `env:"GATEWAY_REDIS_ADDR" cfg:"flow_cache.redis_addr"`
	RedisPassword    string `env:"GATEWAY_REDIS_PASSWORD" cfg:"flow_cache.redis_password"`
	PostgresDSN      string `env:"GATEWAY_POSTGRES_DSN" cfg:"flow_cache.postgres_dsn"`
	RateLimitEnabled string `env:"GATEWAY_RATE_LIMIT_ENABLED" cfg:"rate_limit.enabled"`
	RateLimitRPS     string `env:"GATEWAY_RATE_LIMIT_RPS" cfg:"rate_limit.requests_per_second"`
	CORSOrigins      string `env:"GATEWAY_CORS_ALLOWED_ORIGINS" cfg:"cors.allowed_origins"`
}

// applyEnv copies set GATEWAY_* variables into tree.
func applyEnv(tree map[string]any) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("read environment: %w", err)
	}

	v := reflect.ValueOf(env)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		value := v.Field(i).String()
		if value == "" {
			continue
		}
		if err := setPath(tree, t.Field(i).Tag.Get("cfg"), value); err != nil {
			return err
		}
	}
	return nil
}

func setPath(tree map[string]any, path, value string) error {
	parts := strings.Split(path, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part]
		if !ok || child == nil {
			next := make(map[string]any)
			node[part] = next
			node = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("config: %s is not a section", part)
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
	return nil
}
