// Package config manages engine configuration with support for
// defaults, YAML files, and environment variable overrides.
//
// Precedence is defaults < file < environment: callers start from
// NewDefault, layer LoadFromFile and LoadFromEnv on top, and finish
// with Validate before handing the configuration to the cache engine.
//
// Environment variables use the SEMCACHE_ prefix, for example
// SEMCACHE_MAX_MEMORY_ENTRIES or SEMCACHE_REMOTE_ADDR.
package config
