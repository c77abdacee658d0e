// Package semcache is the public facade of the multi-tier caching
// engine. An Engine wires the memory, file, and remote tiers from a
// Configuration and exposes the general-purpose byte cache alongside
// the typed semantic namespaces.
//
// Typical use:
//
//	cfg := config.NewDefault()
//	engine, err := semcache.New(cfg)
//	if err != nil { ... }
//	if err := engine.Initialize(ctx); err != nil { ... }
//	defer engine.Close()
//
//	engine.Set(ctx, "key", data, contentHash, time.Hour)
//	entry, err := engine.Get(ctx, "key", contentHash)
package semcache

import (
	"context"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semcache/semcache/internal/cache"
	"github.com/semcache/semcache/internal/config"
	"github.com/semcache/semcache/internal/metrics"
	"github.com/semcache/semcache/pkg/errors"
	"github.com/semcache/semcache/pkg/types"
)

// Re-exported semantic payload types.
type (
	Segment       = cache.Segment
	SearchResult  = cache.SearchResult
	CombinedStats = cache.CombinedStats
)

// DefaultNamespace is the namespace of the general-purpose cache.
const DefaultNamespace = "default"

// Engine is the assembled caching engine: one general-purpose
// namespace plus the three semantic ones, all sharing the filesystem
// root, the remote store client, and the metrics collector.
type Engine struct {
	store     types.RemoteStore
	general   *cache.MultiLevelCache
	semantic  *cache.SemanticCache
	collector *metrics.Collector
	ownsStore bool
}

// New builds an Engine from a validated configuration, constructing
// the Redis client itself when the remote tier is enabled.
func New(cfg *config.Configuration) (*Engine, error) {
	var store types.RemoteStore
	if cfg != nil && cfg.Remote.Enabled {
		store = cache.NewRedisStore(&cache.RedisStoreConfig{
			Addr:     cfg.Remote.Addr,
			Password: cfg.Remote.Password,
			DB:       cfg.Remote.DB,
		})
	}
	engine, err := NewWithStore(cfg, store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	engine.ownsStore = store != nil
	return engine, nil
}

// NewWithStore builds an Engine around an injected remote store, which
// stays owned by the caller. Pass nil to run on memory and disk only.
func NewWithStore(cfg *config.Configuration, store types.RemoteStore) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigValidation, "invalid configuration", err).
			WithComponent("engine")
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: cfg.Metrics.Namespace,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "metrics setup failed", err).
			WithComponent("engine")
	}

	fs := osfs.New(cfg.Cache.FileBasePath)

	var remoteCfg *cache.RemoteCacheConfig
	if store != nil {
		remoteCfg = &cache.RemoteCacheConfig{
			KeyPrefix:        cfg.Remote.KeyPrefix,
			ConnectTimeout:   cfg.Remote.ConnectTimeout,
			OpTimeout:        cfg.Remote.OpTimeout,
			FailureThreshold: cfg.Remote.FailureThreshold,
			BreakerCooldown:  cfg.Remote.BreakerCooldown,
		}
	}

	general, err := cache.NewMultiLevelCache(fs, store, &cache.MultiLevelCacheConfig{
		Namespace:        DefaultNamespace,
		MaxMemoryEntries: cfg.Cache.MaxMemoryEntries,
		MaxFileSize:      cfg.Cache.MaxFileSize,
		DefaultTTL:       cfg.Cache.DefaultTTL,
		Compression:      cfg.Cache.EnableCompression,
		Remote:           remoteCfg,
	}, collector)
	if err != nil {
		return nil, err
	}

	semantic, err := cache.NewSemanticCache(fs, store, &cache.SemanticCacheConfig{
		MaxMemoryEntries: cfg.Cache.MaxMemoryEntries,
		MaxFileSize:      cfg.Cache.MaxFileSize,
		DefaultTTL:       cfg.Cache.DefaultTTL,
		Compression:      cfg.Cache.EnableCompression,
		Remote:           remoteCfg,
	}, collector)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:     store,
		general:   general,
		semantic:  semantic,
		collector: collector,
	}, nil
}

// Initialize brings every namespace up. A dead remote store degrades
// the remote tier instead of failing initialization.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.general.Initialize(ctx); err != nil {
		return err
	}
	return e.semantic.Initialize(ctx)
}

// Get looks a key up in the general-purpose namespace. A miss returns
// (nil, nil).
func (e *Engine) Get(ctx context.Context, key, contentHash string) (*types.Entry, error) {
	return e.general.Get(ctx, key, contentHash)
}

// Set stores a value in the general-purpose namespace. A zero ttl uses
// the configured default.
func (e *Engine) Set(ctx context.Context, key string, data []byte, contentHash string, ttl time.Duration) error {
	return e.general.Set(ctx, key, data, contentHash, ttl)
}

// Invalidate removes a key from every tier of the general namespace.
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	return e.general.Invalidate(ctx, key)
}

// InvalidatePattern removes general-namespace entries whose logical
// key matches the regular expression.
func (e *Engine) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	return e.general.InvalidatePattern(ctx, pattern)
}

// Cleanup removes expired entries across every namespace and tier.
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	total, err := e.general.Cleanup(ctx)
	if err != nil {
		return total, err
	}
	n, err := e.semantic.Cleanup(ctx)
	return total + n, err
}

// Stats snapshots per-tier statistics for every namespace, keyed by
// namespace name.
func (e *Engine) Stats(ctx context.Context) (map[string]*CombinedStats, error) {
	stats, err := e.semantic.Stats(ctx)
	if err != nil {
		return nil, err
	}
	general, err := e.general.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats[DefaultNamespace] = general
	return stats, nil
}

// GetEmbedding returns the cached vector for a content hash.
func (e *Engine) GetEmbedding(ctx context.Context, contentHash string) ([]float32, error) {
	return e.semantic.GetEmbedding(ctx, contentHash)
}

// SetEmbedding caches an embedding vector under its content hash.
func (e *Engine) SetEmbedding(ctx context.Context, contentHash string, vector []float32) error {
	return e.semantic.SetEmbedding(ctx, contentHash, vector)
}

// GetSegments returns the cached parse of a file, hash-gated.
func (e *Engine) GetSegments(ctx context.Context, filePath, contentHash string) ([]Segment, error) {
	return e.semantic.GetSegments(ctx, filePath, contentHash)
}

// SetSegments caches the parsed segments of a file.
func (e *Engine) SetSegments(ctx context.Context, filePath, contentHash string, segs []Segment) error {
	return e.semantic.SetSegments(ctx, filePath, contentHash, segs)
}

// GetQueryResults returns cached search results, hash-gated.
func (e *Engine) GetQueryResults(ctx context.Context, query, queryHash string) ([]SearchResult, error) {
	return e.semantic.GetQueryResults(ctx, query, queryHash)
}

// SetQueryResults caches the results of a query.
func (e *Engine) SetQueryResults(ctx context.Context, query, queryHash string, res []SearchResult) error {
	return e.semantic.SetQueryResults(ctx, query, queryHash, res)
}

// InvalidateFile removes everything associated with a file path across
// the semantic namespaces.
func (e *Engine) InvalidateFile(ctx context.Context, filePath string) (int, error) {
	return e.semantic.InvalidateFile(ctx, filePath)
}

// MetricsRegistry exposes the Prometheus registry for callers that
// want to mount it. Nil when metrics are disabled; the engine itself
// never binds a port.
func (e *Engine) MetricsRegistry() *prometheus.Registry {
	return e.collector.Registry()
}

// Close shuts every namespace down and, when the engine constructed
// the remote client itself, closes it.
func (e *Engine) Close() error {
	err := e.general.Close()
	if serr := e.semantic.Close(); err == nil {
		err = serr
	}
	if e.ownsStore && e.store != nil {
		if cerr := e.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
