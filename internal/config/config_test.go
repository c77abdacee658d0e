package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewDefault tests the default configuration is valid
func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}
	if cfg.Cache.MaxMemoryEntries != 1000 {
		t.Errorf("expected default max_memory_entries 1000, got %d", cfg.Cache.MaxMemoryEntries)
	}
	if cfg.Remote.ConnectTimeout != 5*time.Second {
		t.Errorf("expected default connect_timeout 5s, got %v", cfg.Remote.ConnectTimeout)
	}
	if cfg.Remote.Enabled {
		t.Error("expected remote tier disabled by default")
	}
}

// TestLoadFromFile tests YAML loading over defaults
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "semcache.yaml")

	content := `
cache:
  max_memory_entries: 42
  max_file_size: 1048576
  default_ttl: 10m
  file_base_path: /tmp/semcache-test
  enable_compression: false
remote:
  enabled: true
  addr: redis.example.com:6379
  key_prefix: testcache
  connect_timeout: 2s
  op_timeout: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Cache.MaxMemoryEntries != 42 {
		t.Errorf("expected 42 entries, got %d", cfg.Cache.MaxMemoryEntries)
	}
	if cfg.Cache.DefaultTTL != 10*time.Minute {
		t.Errorf("expected ttl 10m, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.EnableCompression {
		t.Error("expected compression disabled")
	}
	if !cfg.Remote.Enabled || cfg.Remote.Addr != "redis.example.com:6379" {
		t.Errorf("expected remote enabled at redis.example.com:6379, got %+v", cfg.Remote)
	}

	// Defaults untouched by the file survive.
	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("expected default log level INFO, got %s", cfg.Global.LogLevel)
	}
}

// TestLoadFromFile_Missing tests the error path for an absent file
func TestLoadFromFile_Missing(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/semcache.yaml"); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

// TestLoadFromEnv tests environment overrides
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEMCACHE_MAX_MEMORY_ENTRIES", "7")
	t.Setenv("SEMCACHE_DEFAULT_TTL", "90s")
	t.Setenv("SEMCACHE_ENABLE_COMPRESSION", "false")
	t.Setenv("SEMCACHE_REMOTE_ENABLED", "true")
	t.Setenv("SEMCACHE_REMOTE_ADDR", "envhost:6379")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Cache.MaxMemoryEntries != 7 {
		t.Errorf("expected 7 entries, got %d", cfg.Cache.MaxMemoryEntries)
	}
	if cfg.Cache.DefaultTTL != 90*time.Second {
		t.Errorf("expected ttl 90s, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.EnableCompression {
		t.Error("expected compression disabled")
	}
	if !cfg.Remote.Enabled || cfg.Remote.Addr != "envhost:6379" {
		t.Errorf("expected remote enabled at envhost:6379, got %+v", cfg.Remote)
	}
}

// TestValidate tests rejection of invalid configurations
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{name: "zero memory entries", mutate: func(c *Configuration) { c.Cache.MaxMemoryEntries = 0 }},
		{name: "zero max file size", mutate: func(c *Configuration) { c.Cache.MaxFileSize = 0 }},
		{name: "negative ttl", mutate: func(c *Configuration) { c.Cache.DefaultTTL = -time.Second }},
		{name: "empty base path", mutate: func(c *Configuration) { c.Cache.FileBasePath = "" }},
		{name: "bad log level", mutate: func(c *Configuration) { c.Global.LogLevel = "TRACE" }},
		{name: "remote enabled without addr", mutate: func(c *Configuration) {
			c.Remote.Enabled = true
			c.Remote.Addr = ""
		}},
		{name: "remote enabled without op timeout", mutate: func(c *Configuration) {
			c.Remote.Enabled = true
			c.Remote.OpTimeout = 0
		}},
		{name: "remote enabled without key prefix", mutate: func(c *Configuration) {
			c.Remote.Enabled = true
			c.Remote.KeyPrefix = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// TestSaveToFile tests config round-trip through a file
func TestSaveToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "semcache.yaml")

	cfg := NewDefault()
	cfg.Cache.MaxMemoryEntries = 11

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Cache.MaxMemoryEntries != 11 {
		t.Errorf("expected 11 entries after round-trip, got %d", loaded.Cache.MaxMemoryEntries)
	}
}
