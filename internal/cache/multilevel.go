package cache

import (
	"context"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/semcache/semcache/internal/metrics"
	"github.com/semcache/semcache/pkg/errors"
	"github.com/semcache/semcache/pkg/types"
)

// Tier labels used in logs and metrics.
const (
	tierMemory = "memory"
	tierFile   = "file"
	tierRemote = "remote"
)

// MultiLevelCacheConfig represents orchestrator configuration
type MultiLevelCacheConfig struct {
	// Namespace isolates this instance's storage from others sharing
	// the same filesystem root or remote store.
	Namespace string

	// MaxMemoryEntries bounds the L1 tier.
	MaxMemoryEntries int

	// MaxFileSize is the per-entry L2 persistence ceiling in bytes.
	MaxFileSize int64

	// DefaultTTL applies to writes that pass no explicit TTL. Zero
	// means such entries never expire.
	DefaultTTL time.Duration

	// Compression gzips L2 entry files.
	Compression bool

	// Remote configures the L3 tier. Required when a store is passed.
	Remote *RemoteCacheConfig
}

// CombinedStats aggregates per-tier statistics for one instance.
type CombinedStats struct {
	Memory   types.CacheStats `json:"memory"`
	File     types.CacheStats `json:"file"`
	Remote   types.CacheStats `json:"remote"`
	Degraded bool             `json:"degraded"`
}

// MultiLevelCache orchestrates the three tiers. Reads check memory,
// then disk, then the remote store, stop at the first valid hit, and
// promote that hit into every faster tier. Writes fan out to all
// tiers, with disk and remote failures downgraded so the caller always
// keeps at least the in-memory copy.
type MultiLevelCache struct {
	config  *MultiLevelCacheConfig
	hasher  *Hasher
	memory  *MemoryCache
	file    *FileCache
	remote  *RemoteCache
	metrics *metrics.Collector
	logger  *slog.Logger

	// lookups collapses concurrent slow-tier reads for one address.
	lookups singleflight.Group

	initialized atomic.Bool
	closed      atomic.Bool
}

// NewMultiLevelCache wires the tiers together. fs roots the file tier;
// store is the injected remote client, nil to run without L3. The
// collector may be nil to disable metrics.
func NewMultiLevelCache(fs billy.Filesystem, store types.RemoteStore, config *MultiLevelCacheConfig, collector *metrics.Collector) (*MultiLevelCache, error) {
	if config == nil || config.Namespace == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "cache namespace is required").
			WithComponent("multilevel_cache")
	}

	hasher := NewHasher(config.Namespace)
	logger := slog.Default().With("component", "multilevel_cache", "namespace", config.Namespace)

	file := NewFileCache(fs, hasher, &FileCacheConfig{
		MaxFileSize: config.MaxFileSize,
		Compression: config.Compression,
	})

	c := &MultiLevelCache{
		config:  config,
		hasher:  hasher,
		memory:  NewMemoryCache(config.MaxMemoryEntries),
		file:    file,
		metrics: collector,
		logger:  logger,
	}

	if store != nil {
		c.remote = NewRemoteCache(store, hasher, config.Remote)
	}

	return c, nil
}

// Initialize connects the remote tier. A failed connect leaves the
// tier degraded and is not an error; the engine keeps serving from
// memory and disk.
func (c *MultiLevelCache) Initialize(ctx context.Context) error {
	if c.closed.Load() {
		return errors.ErrAlreadyClosed
	}

	if c.remote != nil {
		if err := c.remote.Connect(ctx); err != nil {
			c.logger.Warn("remote tier degraded", "error", err)
		}
		c.metrics.SetDegraded(c.remote.Degraded())
	}

	c.initialized.Store(true)
	c.logger.Info("cache initialized",
		"max_memory_entries", c.config.MaxMemoryEntries,
		"remote_enabled", c.remote != nil)
	return nil
}

// Get looks a key up across the tiers, stopping at the first valid hit
// and promoting it into faster tiers. A miss returns (nil, nil); the
// only errors are misuse before Initialize or after Close.
func (c *MultiLevelCache) Get(ctx context.Context, key, contentHash string) (*types.Entry, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	address := c.hasher.Address(key)

	start := time.Now()
	entry, state := c.memory.Get(address, contentHash)
	c.metrics.ObserveOperation(tierMemory, "get", time.Since(start))
	c.metrics.RecordLookup(tierMemory, state.String())
	if state == types.LookupHit {
		return entry, nil
	}

	// Slow tiers behind singleflight: concurrent readers of one
	// address share a single disk/network lookup. The content hash is
	// part of the flight key so readers with different gates never
	// share a result that only one of them validated.
	result, err, _ := c.lookups.Do(address+"\x00"+contentHash, func() (any, error) {
		return c.slowGet(ctx, address, contentHash), nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*types.Entry), nil
}

// slowGet checks L2 then L3, promoting hits. Returns a nil interface
// value on miss so singleflight callers can share it.
func (c *MultiLevelCache) slowGet(ctx context.Context, address, contentHash string) any {
	start := time.Now()
	entry, state := c.file.Get(address, contentHash)
	c.metrics.ObserveOperation(tierFile, "get", time.Since(start))
	c.metrics.RecordLookup(tierFile, state.String())
	if state == types.LookupHit {
		c.memory.Set(address, entry)
		c.metrics.RecordPromotion(tierFile)
		return entry
	}

	if c.remote == nil {
		return nil
	}

	start = time.Now()
	entry, state = c.remote.Get(ctx, address, contentHash)
	c.metrics.ObserveOperation(tierRemote, "get", time.Since(start))
	c.metrics.RecordLookup(tierRemote, state.String())
	c.metrics.SetDegraded(c.remote.Degraded())
	if state != types.LookupHit {
		return nil
	}

	c.file.Set(address, entry)
	c.memory.Set(address, entry)
	c.metrics.RecordPromotion(tierRemote)
	return entry
}

// Set stores a value under a key across all tiers. A zero ttl falls
// back to the configured default; the default itself may be zero,
// meaning no expiry. Disk and remote write failures never surface.
func (c *MultiLevelCache) Set(ctx context.Context, key string, data []byte, contentHash string, ttl time.Duration) error {
	if err := c.usable(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}

	now := time.Now()
	entry := &types.Entry{
		Key:          key,
		Data:         append([]byte(nil), data...),
		ContentHash:  contentHash,
		Timestamp:    now,
		AccessCount:  1,
		LastAccessed: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	address := c.hasher.Address(key)
	c.memory.Set(address, entry)

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		c.file.Set(address, entry)
		c.metrics.ObserveOperation(tierFile, "set", time.Since(start))
		return nil
	})
	if c.remote != nil {
		g.Go(func() error {
			start := time.Now()
			c.remote.Set(ctx, address, entry, ttl)
			c.metrics.ObserveOperation(tierRemote, "set", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return nil
}

// Invalidate removes a key from every tier. Removing an absent key is
// a no-op, so invalidation is idempotent.
func (c *MultiLevelCache) Invalidate(ctx context.Context, key string) error {
	if err := c.usable(); err != nil {
		return err
	}

	address := c.hasher.Address(key)
	c.memory.Evict(address)
	c.file.Evict(address)
	if c.remote != nil {
		c.remote.Evict(ctx, address)
	}
	return nil
}

// InvalidatePattern removes every entry whose logical key matches the
// regular expression and returns the total removed across tiers.
// Memory and disk match exactly against stored logical keys; the
// remote tier only supports an address-based heuristic, so its count
// is best-effort.
func (c *MultiLevelCache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidPattern, "invalid invalidation pattern", err).
			WithComponent("multilevel_cache").
			WithDetail("pattern", pattern)
	}

	removed := c.memory.InvalidateMatching(re)
	removed += c.file.InvalidateMatching(re)
	if c.remote != nil {
		removed += c.remote.InvalidateMatching(ctx, re)
	}

	c.logger.Debug("pattern invalidation", "pattern", pattern, "removed", removed)
	return removed, nil
}

// Cleanup removes expired entries from every tier and returns the
// total removed.
func (c *MultiLevelCache) Cleanup(ctx context.Context) (int, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}

	now := time.Now()
	removed := c.memory.Cleanup(now)
	removed += c.file.Cleanup(now)
	if c.remote != nil {
		removed += c.remote.Cleanup(ctx, now)
	}

	if removed > 0 {
		c.logger.Debug("cleanup removed expired entries", "count", removed)
	}
	return removed, nil
}

// Stats snapshots per-tier statistics and refreshes occupancy gauges.
func (c *MultiLevelCache) Stats(ctx context.Context) (*CombinedStats, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	stats := &CombinedStats{
		Memory: c.memory.Stats(),
		File:   c.file.Stats(),
	}
	if c.remote != nil {
		stats.Remote = c.remote.Stats(ctx)
		stats.Degraded = c.remote.Degraded()
	}

	c.metrics.SetEntries(tierMemory, stats.Memory.Entries)
	c.metrics.SetSizeBytes(tierMemory, stats.Memory.SizeBytes)
	c.metrics.SetEntries(tierFile, stats.File.Entries)
	c.metrics.SetSizeBytes(tierFile, stats.File.SizeBytes)
	if c.remote != nil {
		c.metrics.SetEntries(tierRemote, stats.Remote.Entries)
		c.metrics.SetDegraded(stats.Degraded)
	}
	return stats, nil
}

// Clear drops the memory and file tiers. Remote entries are left for
// their own expiry, since other processes may still be using them.
func (c *MultiLevelCache) Clear() error {
	if err := c.usable(); err != nil {
		return err
	}
	c.memory.Clear()
	c.file.Clear()
	return nil
}

// Close shuts the instance down; further operations fail with
// ErrAlreadyClosed. The injected store client stays owned by the
// caller, which may share it across instances, so it is not closed
// here.
func (c *MultiLevelCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return errors.ErrAlreadyClosed
	}
	return nil
}

func (c *MultiLevelCache) usable() error {
	if c.closed.Load() {
		return errors.ErrAlreadyClosed
	}
	if !c.initialized.Load() {
		return errors.ErrNotInitialized
	}
	return nil
}
