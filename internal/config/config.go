// Package config provides configuration loading for the semcache engine,
// with YAML files, environment variable overrides, and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete engine configuration.
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Cache   CacheConfig   `yaml:"cache"`
	Remote  RemoteConfig  `yaml:"remote"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents process-level settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// CacheConfig represents the settings shared by every cache instance.
type CacheConfig struct {
	// MaxMemoryEntries bounds the L1 tier; the least recently accessed
	// entry is evicted when the bound is exceeded.
	MaxMemoryEntries int `yaml:"max_memory_entries"`

	// MaxFileSize is the per-entry L2 size ceiling in bytes. Entries whose
	// serialized form exceeds it bypass the file tier.
	MaxFileSize int64 `yaml:"max_file_size"`

	// DefaultTTL applies when a set call passes no explicit TTL. Zero means
	// entries do not expire by default.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// FileBasePath is the L2 root directory.
	FileBasePath string `yaml:"file_base_path"`

	// EnableCompression gzips entries before persisting them to L2.
	EnableCompression bool `yaml:"enable_compression"`
}

// RemoteConfig represents remote tier (L3) settings.
type RemoteConfig struct {
	// Enabled controls whether the remote tier participates at all.
	Enabled bool `yaml:"enabled"`

	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces every key this engine writes to the store.
	KeyPrefix string `yaml:"key_prefix"`

	// ConnectTimeout bounds connection establishment. On timeout the tier
	// enters degraded mode instead of failing the engine.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// OpTimeout bounds each individual store operation.
	OpTimeout time.Duration `yaml:"op_timeout"`

	// FailureThreshold is the consecutive-failure count that trips the
	// remote tier's circuit breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "INFO",
		},
		Cache: CacheConfig{
			MaxMemoryEntries:  1000,
			MaxFileSize:       10 * 1024 * 1024, // 10MB
			DefaultTTL:        time.Hour,
			FileBasePath:      "/var/cache/semcache",
			EnableCompression: true,
		},
		Remote: RemoteConfig{
			Enabled:          false,
			Addr:             "localhost:6379",
			DB:               0,
			KeyPrefix:        "semcache",
			ConnectTimeout:   5 * time.Second,
			OpTimeout:        2 * time.Second,
			FailureThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "semcache",
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration overrides from environment variables.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("SEMCACHE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}

	// Cache settings
	if val := os.Getenv("SEMCACHE_MAX_MEMORY_ENTRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Cache.MaxMemoryEntries = n
		}
	}
	if val := os.Getenv("SEMCACHE_MAX_FILE_SIZE"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Cache.MaxFileSize = n
		}
	}
	if val := os.Getenv("SEMCACHE_DEFAULT_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Cache.DefaultTTL = d
		}
	}
	if val := os.Getenv("SEMCACHE_FILE_BASE_PATH"); val != "" {
		c.Cache.FileBasePath = val
	}
	if val := os.Getenv("SEMCACHE_ENABLE_COMPRESSION"); val != "" {
		c.Cache.EnableCompression = strings.ToLower(val) == "true"
	}

	// Remote settings
	if val := os.Getenv("SEMCACHE_REMOTE_ENABLED"); val != "" {
		c.Remote.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SEMCACHE_REMOTE_ADDR"); val != "" {
		c.Remote.Addr = val
	}
	if val := os.Getenv("SEMCACHE_REMOTE_PASSWORD"); val != "" {
		c.Remote.Password = val
	}
	if val := os.Getenv("SEMCACHE_REMOTE_DB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Remote.DB = n
		}
	}
	if val := os.Getenv("SEMCACHE_REMOTE_CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Remote.ConnectTimeout = d
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if c.Cache.MaxMemoryEntries <= 0 {
		return fmt.Errorf("max_memory_entries must be greater than 0")
	}
	if c.Cache.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be greater than 0")
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("default_ttl cannot be negative")
	}
	if c.Cache.FileBasePath == "" {
		return fmt.Errorf("file_base_path is required")
	}

	if c.Remote.Enabled {
		if c.Remote.Addr == "" {
			return fmt.Errorf("remote addr is required when the remote tier is enabled")
		}
		if c.Remote.ConnectTimeout <= 0 {
			return fmt.Errorf("remote connect_timeout must be greater than 0")
		}
		if c.Remote.OpTimeout <= 0 {
			return fmt.Errorf("remote op_timeout must be greater than 0")
		}
		if c.Remote.KeyPrefix == "" {
			return fmt.Errorf("remote key_prefix is required when the remote tier is enabled")
		}
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
