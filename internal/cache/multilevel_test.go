package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-git/go-billy/v5/memfs"

	cerrors "github.com/semcache/semcache/pkg/errors"
	"github.com/semcache/semcache/pkg/types"
)

func newTestMultiLevel(t *testing.T, withRemote bool) *MultiLevelCache {
	t.Helper()

	config := &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 100,
		MaxFileSize:      1024 * 1024,
	}

	var store types.RemoteStore
	if withRemote {
		mr := miniredis.RunT(t)
		store = NewRedisStore(&RedisStoreConfig{Addr: mr.Addr()})
		config.Remote = &RemoteCacheConfig{
			KeyPrefix:      "semcache",
			ConnectTimeout: 2 * time.Second,
			OpTimeout:      time.Second,
		}
	}

	c, err := NewMultiLevelCache(memfs.New(), store, config, nil)
	if err != nil {
		t.Fatalf("NewMultiLevelCache failed: %v", err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		if store != nil {
			store.Close()
		}
	})
	return c
}

// TestMultiLevelCache_NotInitialized tests misuse before Initialize
func TestMultiLevelCache_NotInitialized(t *testing.T) {
	c, err := NewMultiLevelCache(memfs.New(), nil, &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 10,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get(context.Background(), "key", ""); !errors.Is(err, cerrors.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if err := c.Set(context.Background(), "key", []byte("v"), "", 0); !errors.Is(err, cerrors.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

// TestMultiLevelCache_ReadAfterWrite tests the basic round trip
func TestMultiLevelCache_ReadAfterWrite(t *testing.T) {
	c := newTestMultiLevel(t, true)
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), "hash1", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := c.Get(ctx, "key1", "hash1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil || string(entry.Data) != "value1" {
		t.Fatalf("expected value1, got %v", entry)
	}

	// A miss is (nil, nil), never an error.
	entry, err = c.Get(ctx, "absent", "")
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if entry != nil {
		t.Error("expected nil entry on miss")
	}
}

// TestMultiLevelCache_HashGated tests staleness gating end to end
func TestMultiLevelCache_HashGated(t *testing.T) {
	c := newTestMultiLevel(t, false)
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), "hash1", 0)

	entry, err := c.Get(ctx, "key1", "hash2")
	if err != nil || entry != nil {
		t.Errorf("expected clean miss on hash mismatch, got %v, %v", entry, err)
	}
	if entry, _ := c.Get(ctx, "key1", "hash1"); entry == nil {
		t.Error("expected hit under matching hash")
	}
}

// TestMultiLevelCache_PromotionFromFile tests a disk hit repopulating
// memory
func TestMultiLevelCache_PromotionFromFile(t *testing.T) {
	c := newTestMultiLevel(t, false)
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), "", 0)
	c.memory.Clear()

	entry, err := c.Get(ctx, "key1", "")
	if err != nil || entry == nil {
		t.Fatalf("expected hit from disk, got %v, %v", entry, err)
	}
	if c.memory.Len() != 1 {
		t.Error("expected entry promoted into memory")
	}
}

// TestMultiLevelCache_PromotionFromRemote tests a remote hit
// repopulating both faster tiers
func TestMultiLevelCache_PromotionFromRemote(t *testing.T) {
	c := newTestMultiLevel(t, true)
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), "", 0)
	c.memory.Clear()
	c.file.Clear()

	entry, err := c.Get(ctx, "key1", "")
	if err != nil || entry == nil {
		t.Fatalf("expected hit from remote, got %v, %v", entry, err)
	}
	if c.memory.Len() != 1 {
		t.Error("expected entry promoted into memory")
	}
	if c.file.Len() != 1 {
		t.Error("expected entry promoted onto disk")
	}
}

// TestMultiLevelCache_LRURepopulation tests that an entry evicted from
// the bounded memory tier comes back from disk on the next read
func TestMultiLevelCache_LRURepopulation(t *testing.T) {
	config := &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 2,
		MaxFileSize:      1024 * 1024,
	}
	c, err := NewMultiLevelCache(memfs.New(), nil, config, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("va"), "", 0)
	c.Set(ctx, "b", []byte("vb"), "", 0)
	c.Set(ctx, "c", []byte("vc"), "", 0)

	// "a" was evicted from memory but survives on disk.
	if c.memory.Len() != 2 {
		t.Fatalf("expected memory bounded to 2, got %d", c.memory.Len())
	}
	entry, err := c.Get(ctx, "a", "")
	if err != nil || entry == nil {
		t.Fatalf("expected disk hit for evicted key, got %v, %v", entry, err)
	}
	// The promotion displaced "b", the least recently used resident,
	// while "c" and the freshly promoted "a" stayed in memory.
	if c.memory.Len() != 2 {
		t.Errorf("expected memory still bounded to 2, got %d", c.memory.Len())
	}
	if _, state := c.memory.Get(c.hasher.Address("b"), ""); state != types.LookupMiss {
		t.Errorf("expected b displaced from memory, got %s", state)
	}
	for _, key := range []string{"a", "c"} {
		if _, state := c.memory.Get(c.hasher.Address(key), ""); state != types.LookupHit {
			t.Errorf("expected %s resident in memory, got %s", key, state)
		}
	}
}

// TestMultiLevelCache_FileTierDegraded tests that a read-only cache
// root does not prevent construction and the engine keeps serving
// from memory
func TestMultiLevelCache_FileTierDegraded(t *testing.T) {
	config := &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 10,
	}
	c, err := NewMultiLevelCache(readOnlyFS{memfs.New()}, nil, config, nil)
	if err != nil {
		t.Fatalf("expected construction to survive a read-only root, got %v", err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), "", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if entry, err := c.Get(ctx, "key1", ""); err != nil || entry == nil {
		t.Fatalf("expected memory hit, got %v, %v", entry, err)
	}

	// Without a working file tier, evicting the memory copy leaves
	// nothing behind it.
	c.memory.Clear()
	if entry, err := c.Get(ctx, "key1", ""); err != nil || entry != nil {
		t.Errorf("expected clean miss with file tier degraded, got %v, %v", entry, err)
	}
}

// TestMultiLevelCache_TTLExpiry tests expiry end to end
func TestMultiLevelCache_TTLExpiry(t *testing.T) {
	c := newTestMultiLevel(t, false)
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), "", 30*time.Millisecond)

	if entry, _ := c.Get(ctx, "key1", ""); entry == nil {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(60 * time.Millisecond)

	entry, err := c.Get(ctx, "key1", "")
	if err != nil {
		t.Fatalf("expired read should not error: %v", err)
	}
	if entry != nil {
		t.Error("expected miss after expiry")
	}
}

// TestMultiLevelCache_DefaultTTL tests the configured fallback TTL
func TestMultiLevelCache_DefaultTTL(t *testing.T) {
	config := &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 10,
		DefaultTTL:       time.Hour,
	}
	c, err := NewMultiLevelCache(memfs.New(), nil, config, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Initialize(context.Background())
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), "", 0)

	entry, _ := c.Get(ctx, "key1", "")
	if entry == nil {
		t.Fatal("expected hit")
	}
	if entry.ExpiresAt.IsZero() {
		t.Error("expected default TTL applied")
	}
}

// TestMultiLevelCache_Invalidate tests removal across tiers
func TestMultiLevelCache_Invalidate(t *testing.T) {
	c := newTestMultiLevel(t, true)
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), "", 0)

	if err := c.Invalidate(ctx, "key1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if entry, _ := c.Get(ctx, "key1", ""); entry != nil {
		t.Error("expected miss after invalidation")
	}

	// Invalidating an absent key is a no-op.
	if err := c.Invalidate(ctx, "key1"); err != nil {
		t.Errorf("repeat invalidation should be a no-op: %v", err)
	}
}

// TestMultiLevelCache_InvalidatePattern tests pattern invalidation
// counts across tiers
func TestMultiLevelCache_InvalidatePattern(t *testing.T) {
	c := newTestMultiLevel(t, false)
	ctx := context.Background()

	c.Set(ctx, "src/main.go", []byte("a"), "", 0)
	c.Set(ctx, "src/util.go", []byte("b"), "", 0)
	c.Set(ctx, "docs/readme.md", []byte("c"), "", 0)

	// Each matched key is counted once per tier holding it.
	removed, err := c.InvalidatePattern(ctx, `^src/`)
	if err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}
	if removed != 4 {
		t.Errorf("expected 4 removals (2 keys x 2 tiers), got %d", removed)
	}

	if entry, _ := c.Get(ctx, "src/main.go", ""); entry != nil {
		t.Error("expected matched key removed")
	}
	if entry, _ := c.Get(ctx, "docs/readme.md", ""); entry == nil {
		t.Error("expected unmatched key retained")
	}
}

// TestMultiLevelCache_InvalidatePattern_BadRegex tests rejection of an
// invalid pattern
func TestMultiLevelCache_InvalidatePattern_BadRegex(t *testing.T) {
	c := newTestMultiLevel(t, false)

	_, err := c.InvalidatePattern(context.Background(), `([`)
	if !cerrors.IsCode(err, cerrors.ErrCodeInvalidPattern) {
		t.Errorf("expected invalid pattern error, got %v", err)
	}
}

// TestMultiLevelCache_DegradedRemote tests transparency when the
// remote store never comes up
func TestMultiLevelCache_DegradedRemote(t *testing.T) {
	config := &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 10,
		Remote: &RemoteCacheConfig{
			KeyPrefix:      "semcache",
			ConnectTimeout: 300 * time.Millisecond,
			OpTimeout:      100 * time.Millisecond,
		},
	}
	store := NewRedisStore(&RedisStoreConfig{Addr: "127.0.0.1:1"})
	defer store.Close()
	c, err := NewMultiLevelCache(memfs.New(), store, config, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize must tolerate a dead remote: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), "", 0); err != nil {
		t.Fatalf("Set failed in degraded mode: %v", err)
	}
	entry, err := c.Get(ctx, "key1", "")
	if err != nil || entry == nil {
		t.Fatalf("expected local hit in degraded mode, got %v, %v", entry, err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Degraded {
		t.Error("expected degraded flag in stats")
	}
}

// TestMultiLevelCache_Cleanup tests expired entry removal across tiers
func TestMultiLevelCache_Cleanup(t *testing.T) {
	c := newTestMultiLevel(t, false)
	ctx := context.Background()

	c.Set(ctx, "live", []byte("v"), "", time.Hour)
	c.Set(ctx, "dead", []byte("v"), "", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	removed, err := c.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	// The dead entry is held by both the memory and file tiers.
	if removed != 2 {
		t.Errorf("expected 2 removals, got %d", removed)
	}
}

// TestMultiLevelCache_Stats tests the aggregated snapshot
func TestMultiLevelCache_Stats(t *testing.T) {
	c := newTestMultiLevel(t, true)
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), "", 0)
	c.Get(ctx, "key1", "")
	c.Get(ctx, "absent", "")

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Memory.Hits != 1 || stats.Memory.Misses != 1 {
		t.Errorf("unexpected memory counters: %+v", stats.Memory)
	}
	if stats.Memory.Entries != 1 || stats.File.Entries != 1 || stats.Remote.Entries != 1 {
		t.Errorf("unexpected occupancy: mem=%d file=%d remote=%d",
			stats.Memory.Entries, stats.File.Entries, stats.Remote.Entries)
	}
	if stats.Degraded {
		t.Error("expected healthy remote")
	}
}

// TestMultiLevelCache_Close tests lifecycle misuse
func TestMultiLevelCache_Close(t *testing.T) {
	c, err := NewMultiLevelCache(memfs.New(), nil, &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 10,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Initialize(context.Background())

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); !errors.Is(err, cerrors.ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed on double close, got %v", err)
	}
	if _, err := c.Get(context.Background(), "key", ""); !errors.Is(err, cerrors.ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed after close, got %v", err)
	}
}

// blockingStore is a RemoteStore whose reads park until released, so a
// test can hold several readers in their slow-tier lookups at once.
type blockingStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	arrived chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		data:    make(map[string][]byte),
		arrived: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *blockingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.arrived <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return val, nil
}

func (s *blockingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *blockingStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *blockingStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *blockingStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, nil
}

func (s *blockingStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}

func (s *blockingStore) Ping(ctx context.Context) error { return nil }
func (s *blockingStore) Close() error                   { return nil }

// TestMultiLevelCache_ConcurrentHashGate tests that a reader joining a
// slow-tier lookup already in flight is still gated by its own content
// hash rather than the first reader's
func TestMultiLevelCache_ConcurrentHashGate(t *testing.T) {
	store := newBlockingStore()
	config := &MultiLevelCacheConfig{
		Namespace:        "test",
		MaxMemoryEntries: 10,
		Remote: &RemoteCacheConfig{
			KeyPrefix:      "semcache",
			ConnectTimeout: time.Second,
			OpTimeout:      5 * time.Second,
		},
	}
	c, err := NewMultiLevelCache(memfs.New(), store, config, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// Seed the store directly so only the remote tier can answer.
	entry := newTestEntry("key1", "good", time.Hour)
	payload, err := json.Marshal(entry)
	if err != nil {
		t.Fatal(err)
	}
	store.data[c.hasher.RemoteKey("semcache", c.hasher.Address("key1"))] = payload

	type lookup struct {
		entry *types.Entry
		err   error
	}
	resA := make(chan lookup, 1)
	resB := make(chan lookup, 1)

	// Reader A parks inside the store with the matching hash.
	go func() {
		e, err := c.Get(ctx, "key1", "good")
		resA <- lookup{e, err}
	}()
	<-store.arrived

	// Reader B arrives with a different hash while A is in flight.
	go func() {
		e, err := c.Get(ctx, "key1", "bad")
		resB <- lookup{e, err}
	}()
	time.Sleep(50 * time.Millisecond)

	close(store.release)

	a := <-resA
	if a.err != nil || a.entry == nil || a.entry.ContentHash != "good" {
		t.Fatalf("expected matching reader to hit, got %v, %v", a.entry, a.err)
	}
	b := <-resB
	if b.err != nil {
		t.Fatalf("mismatched reader should miss cleanly: %v", b.err)
	}
	if b.entry != nil {
		t.Errorf("hash gate bypassed: reader with a stale hash received stored hash %q", b.entry.ContentHash)
	}
}

// TestMultiLevelCache_ConcurrentAccess exercises the orchestrator
// under concurrent readers and writers
func TestMultiLevelCache_ConcurrentAccess(t *testing.T) {
	c := newTestMultiLevel(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("key-%d", j%10)
				if err := c.Set(ctx, key, []byte(key), "", 0); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				if _, err := c.Get(ctx, key, ""); err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
