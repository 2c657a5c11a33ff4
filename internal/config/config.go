// ============================================================================
// Aegis runtime configuration - YAML file plus environment overrides
// ============================================================================
//
// Package: internal/config
// Purpose: loads the process-wide runtime configuration: global mesh
// and broadcast settings, plus per-model pool tuning. YAML provides
// the base (and the only place per-model overrides can live); the
// handful of global flags the external interface names as environment
// variables can override the YAML values at startup.
//
// ============================================================================

package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/aegis-run/poolrt/internal/pool"
	"github.com/aegis-run/poolrt/pkg/types"
)

// PoolConfig is the YAML shape of one model's pool tuning. Zero values
// fall through to pool.DefaultConfig via pool.Config.withDefaults.
type PoolConfig struct {
	Min              int  `yaml:"min"`
	Max              int  `yaml:"max"`
	QueueTolerance   int  `yaml:"queueTolerance"`
	Preload          bool `yaml:"preload"`
	RejectWhenClosed bool `yaml:"rejectWhenClosed"`
}

func (p PoolConfig) toPoolConfig() pool.Config {
	return pool.Config{
		Min:              p.Min,
		Max:              p.Max,
		QueueTolerance:   p.QueueTolerance,
		Preload:          p.Preload,
		RejectWhenClosed: p.RejectWhenClosed,
	}
}

// Config is the runtime's top-level configuration.
type Config struct {
	Broadcast struct {
		Topic string `yaml:"topic"`
	} `yaml:"broadcast"`

	DistributedCache struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"distributedCache"`

	Webswitch struct {
		Enabled bool   `yaml:"enabled"`
		Server  string `yaml:"server"`
	} `yaml:"webswitch"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Pools map[string]PoolConfig `yaml:"pools"`
}

// Default returns the baseline configuration, matching the documented
// environment-variable defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Broadcast.Topic = "broadcastChannel"
	cfg.Webswitch.Server = "server.webswitch.dev"
	cfg.Metrics.Port = 9090
	cfg.Pools = map[string]PoolConfig{}
	return cfg
}

// Load reads a YAML config file at path, falling back to Default when
// path is empty, then layers recognized environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides cfg's global fields from the environment variables
// named in the external interface's configuration table. Per-pool
// tuning has no environment form; it only ever comes from YAML.
func applyEnv(cfg *Config) {
	if topic := os.Getenv("TOPIC_BROADCAST"); topic != "" {
		cfg.Broadcast.Topic = topic
	}
	if v, ok := os.LookupEnv("DISTRIBUTED_CACHE_ENABLED"); ok {
		cfg.DistributedCache.Enabled = parseBool(v, cfg.DistributedCache.Enabled)
	}
	if v, ok := os.LookupEnv("WEBSWITCH_ENABLED"); ok {
		cfg.Webswitch.Enabled = parseBool(v, cfg.Webswitch.Enabled)
	}
	if server := os.Getenv("WEBSWITCH_SERVER"); server != "" {
		cfg.Webswitch.Server = server
	}
}

func parseBool(raw string, fallback bool) bool {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// PoolConfigFor returns a registry.ConfigFunc-compatible resolver
// backed by this Config's per-model overrides, falling back to
// pool.DefaultConfig for any model not named in Pools.
func (c *Config) PoolConfigFor(model types.ModelName) pool.Config {
	if override, ok := c.Pools[string(model)]; ok {
		return override.toPoolConfig()
	}
	return pool.DefaultConfig()
}
