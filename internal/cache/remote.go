package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semcache/semcache/internal/circuit"
	"github.com/semcache/semcache/pkg/errors"
	"github.com/semcache/semcache/pkg/retry"
	"github.com/semcache/semcache/pkg/types"
)

// RemoteCacheConfig represents remote tier configuration
type RemoteCacheConfig struct {
	// KeyPrefix namespaces every key this deployment writes.
	KeyPrefix string

	// ConnectTimeout bounds the initial connection probe, retries
	// included. A probe that cannot succeed inside this window puts
	// the tier into degraded mode.
	ConnectTimeout time.Duration

	// OpTimeout bounds each individual store operation.
	OpTimeout time.Duration

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit breaker after a successful connect.
	FailureThreshold uint32

	// BreakerCooldown is how long the breaker stays open before
	// probing the store again.
	BreakerCooldown time.Duration
}

// RemoteCache implements the networked L3 tier on top of a RemoteStore.
// Connection setup is timeout-bounded; when it fails the tier enters
// degraded mode permanently and every operation becomes a silent miss
// or no-op, so a dead remote never slows the engine down. Failures
// after a successful connect run through a circuit breaker instead,
// which recovers on its own once the store heals.
type RemoteCache struct {
	store   types.RemoteStore
	hasher  *Hasher
	config  *RemoteCacheConfig
	breaker *circuit.Breaker
	logger  *slog.Logger

	connected atomic.Bool
	degraded  atomic.Bool

	statsMu sync.Mutex
	stats   types.CacheStats
}

// NewRemoteCache creates the L3 tier around an injected store client.
// Callers must Connect before use. The store client stays owned by the
// caller, which may share it across instances and closes it itself.
func NewRemoteCache(store types.RemoteStore, hasher *Hasher, config *RemoteCacheConfig) *RemoteCache {
	if config == nil {
		config = &RemoteCacheConfig{
			KeyPrefix:        "semcache",
			ConnectTimeout:   5 * time.Second,
			OpTimeout:        2 * time.Second,
			FailureThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		}
	}

	logger := slog.Default().With("component", "remote_cache", "namespace", hasher.Namespace())

	return &RemoteCache{
		store:  store,
		hasher: hasher,
		config: config,
		breaker: circuit.New("remote_cache", circuit.Config{
			FailureThreshold: config.FailureThreshold,
			Cooldown:         config.BreakerCooldown,
			OnStateChange: func(name string, from, to circuit.State) {
				logger.Warn("remote store circuit state changed", "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

// Connect probes the store, retrying with backoff inside the connect
// timeout window. On failure the tier is marked degraded and the error
// is returned for logging; the engine keeps running on L1/L2.
func (c *RemoteCache) Connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	retryer := retry.New(retry.Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		IsRetryable:  func(error) bool { return true },
	})

	err := retryer.DoWithContext(connectCtx, func(ctx context.Context) error {
		return c.store.Ping(ctx)
	})
	if err != nil {
		c.degraded.Store(true)
		c.logger.Warn("remote store unreachable, entering degraded mode",
			"timeout", c.config.ConnectTimeout, "error", err)
		return errors.Wrap(errors.ErrCodeConnectionTimeout, "remote store connect failed", err).
			WithComponent("remote_cache")
	}

	c.connected.Store(true)
	c.logger.Info("remote store connected", "prefix", c.config.KeyPrefix)
	return nil
}

// Degraded reports whether the tier is currently skipping the store,
// either permanently after a failed connect or temporarily while the
// circuit breaker is open.
func (c *RemoteCache) Degraded() bool {
	if c.degraded.Load() || !c.connected.Load() {
		return true
	}
	return c.breaker.State() == circuit.StateOpen
}

// Get fetches the entry stored under an address. Expired entries are
// actively deleted before reporting a miss, since the store's own
// expiry cannot always be trusted to have fired. A content-hash
// mismatch is a miss that leaves the entry in place. Hits rewrite the
// entry to persist access statistics, keeping the remaining TTL.
func (c *RemoteCache) Get(ctx context.Context, address, contentHash string) (*types.Entry, types.LookupState) {
	if c.Degraded() {
		c.recordMiss()
		return nil, types.LookupMiss
	}

	key := c.hasher.RemoteKey(c.config.KeyPrefix, address)

	var entry *types.Entry
	state := types.LookupMiss

	err := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()

		raw, err := c.store.Get(opCtx, key)
		if err != nil {
			return err
		}
		if raw == nil {
			return nil
		}

		var stored types.Entry
		if err := json.Unmarshal(raw, &stored); err != nil {
			// A corrupt entry will never decode; drop it.
			c.logger.Warn("corrupt remote entry removed", "key", key, "error", err)
			return c.store.Del(opCtx, key)
		}

		now := time.Now()
		switch s := stored.Validate(contentHash, now); s {
		case types.LookupExpired:
			state = s
			return c.store.Del(opCtx, key)
		case types.LookupStaleHash:
			state = s
			return nil
		}

		stored.Touch(now)
		c.rewriteStats(opCtx, key, &stored)
		entry = &stored
		state = types.LookupHit
		return nil
	})
	if err != nil {
		c.logger.Debug("remote get failed", "key", key, "error", err)
		c.recordMiss()
		return nil, types.LookupMiss
	}

	c.record(state)
	if state != types.LookupHit {
		return nil, state
	}
	return entry, state
}

// Set stores an entry under an address with an optional expiry. A
// degraded tier or store failure downgrades the write to a no-op.
func (c *RemoteCache) Set(ctx context.Context, address string, entry *types.Entry, ttl time.Duration) {
	if entry == nil || c.Degraded() {
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("entry serialization failed, skipping remote write", "key", entry.Key, "error", err)
		return
	}

	key := c.hasher.RemoteKey(c.config.KeyPrefix, address)
	err = c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()
		return c.store.Set(opCtx, key, payload, ttl)
	})
	if err != nil {
		c.logger.Debug("remote set failed", "key", key, "error", err)
	}
}

// Evict deletes the entry stored under an address.
func (c *RemoteCache) Evict(ctx context.Context, address string) bool {
	if c.Degraded() {
		return false
	}

	key := c.hasher.RemoteKey(c.config.KeyPrefix, address)
	existed := false
	err := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()

		ok, err := c.store.Exists(opCtx, key)
		if err != nil {
			return err
		}
		existed = ok
		return c.store.Del(opCtx, key)
	})
	if err != nil {
		c.logger.Debug("remote evict failed", "key", key, "error", err)
		return false
	}
	if existed {
		c.statsMu.Lock()
		c.stats.Evictions++
		c.statsMu.Unlock()
	}
	return existed
}

// Exists reports whether an address is present, false when degraded.
func (c *RemoteCache) Exists(ctx context.Context, address string) bool {
	if c.Degraded() {
		return false
	}

	key := c.hasher.RemoteKey(c.config.KeyPrefix, address)
	present := false
	err := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()

		ok, err := c.store.Exists(opCtx, key)
		if err != nil {
			return err
		}
		present = ok
		return nil
	})
	if err != nil {
		return false
	}
	return present
}

// InvalidateMatching removes stored entries whose pattern test succeeds
// and returns the number removed.
//
// The logical key is unrecoverable from a storage address, so the
// pattern is tested against the hex address itself. That makes this a
// best-effort heuristic: it only removes entries whose pattern happens
// to match the address, which for patterns written against logical keys
// is usually none. Callers needing exact remote pattern invalidation
// must track logical keys out-of-band.
func (c *RemoteCache) InvalidateMatching(ctx context.Context, pattern *regexp.Regexp) int {
	if c.Degraded() {
		return 0
	}

	removed := 0
	err := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()

		keys, err := c.store.Keys(opCtx, c.hasher.RemotePrefix(c.config.KeyPrefix))
		if err != nil {
			return err
		}

		var matched []string
		for _, key := range keys {
			address, ok := c.hasher.AddressFromRemoteKey(c.config.KeyPrefix, key)
			if !ok {
				continue
			}
			if pattern.MatchString(address) {
				matched = append(matched, key)
			}
		}
		if len(matched) == 0 {
			return nil
		}
		if err := c.store.Del(opCtx, matched...); err != nil {
			return err
		}
		removed = len(matched)
		return nil
	})
	if err != nil {
		c.logger.Debug("remote pattern invalidation failed", "error", err)
		return 0
	}

	if removed > 0 {
		c.statsMu.Lock()
		c.stats.Evictions += uint64(removed)
		c.statsMu.Unlock()
	}
	return removed
}

// Cleanup scans the namespace and deletes entries whose stored expiry
// has passed, covering stores whose native expiry was not set or has
// not fired yet. Returns the number removed.
func (c *RemoteCache) Cleanup(ctx context.Context, now time.Time) int {
	if c.Degraded() {
		return 0
	}

	removed := 0
	err := c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()

		keys, err := c.store.Keys(opCtx, c.hasher.RemotePrefix(c.config.KeyPrefix))
		if err != nil {
			return err
		}

		var expired []string
		for _, key := range keys {
			raw, err := c.store.Get(opCtx, key)
			if err != nil || raw == nil {
				continue
			}
			var stored types.Entry
			if err := json.Unmarshal(raw, &stored); err != nil {
				expired = append(expired, key)
				continue
			}
			if stored.Expired(now) {
				expired = append(expired, key)
			}
		}
		if len(expired) == 0 {
			return nil
		}
		if err := c.store.Del(opCtx, expired...); err != nil {
			return err
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		c.logger.Debug("remote cleanup failed", "error", err)
		return 0
	}

	if removed > 0 {
		c.statsMu.Lock()
		c.stats.Expired += uint64(removed)
		c.statsMu.Unlock()
	}
	return removed
}

// Stats returns a snapshot of tier statistics. Entry count is a live
// scan of the namespace and reads zero when degraded.
func (c *RemoteCache) Stats(ctx context.Context) types.CacheStats {
	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()

	if c.Degraded() {
		return stats
	}

	_ = c.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()

		keys, err := c.store.Keys(opCtx, c.hasher.RemotePrefix(c.config.KeyPrefix))
		if err != nil {
			return err
		}
		stats.Entries = len(keys)
		return nil
	})
	return stats
}

// Helper methods

func (c *RemoteCache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.OpTimeout)
}

// rewriteStats persists updated access statistics without disturbing
// the entry's remaining expiry. Failures are ignored; statistics are
// advisory.
func (c *RemoteCache) rewriteStats(ctx context.Context, key string, entry *types.Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	remaining, err := c.store.TTL(ctx, key)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, key, payload, remaining)
}

func (c *RemoteCache) recordMiss() {
	c.record(types.LookupMiss)
}

func (c *RemoteCache) record(state types.LookupState) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	switch state {
	case types.LookupHit:
		c.stats.Hits++
	case types.LookupExpired:
		c.stats.Expired++
	case types.LookupStaleHash:
		c.stats.StaleHash++
	default:
		c.stats.Misses++
	}

	total := c.stats.Hits + c.stats.Misses + c.stats.Expired + c.stats.StaleHash
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
