package cache

import (
	"container/list"
	"regexp"
	"sync"
	"time"

	"github.com/semcache/semcache/pkg/types"
)

// MemoryCache implements the thread-safe in-process L1 tier. Entries
// are keyed by storage address and bounded by a maximum entry count;
// exceeding it evicts the least recently accessed entry, ties broken
// by list order so eviction stays deterministic.
type MemoryCache struct {
	mu         sync.RWMutex
	maxEntries int
	items      map[string]*memoryItem
	evictList  *list.List

	// Statistics
	stats types.CacheStats
}

// memoryItem pairs a stored entry with its eviction-list element.
type memoryItem struct {
	entry   *types.Entry
	element *list.Element
}

// NewMemoryCache creates the L1 tier bounded to maxEntries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	return &MemoryCache{
		maxEntries: maxEntries,
		items:      make(map[string]*memoryItem),
		evictList:  list.New(),
	}
}

// Get retrieves the entry stored under an address. A stored entry that
// has expired is removed; one whose content hash mismatches is kept but
// reported stale. Hits refresh access tracking and recency order.
func (c *MemoryCache) Get(address, contentHash string) (*types.Entry, types.LookupState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[address]
	if !exists {
		c.stats.Misses++
		c.updateHitRate()
		return nil, types.LookupMiss
	}

	now := time.Now()
	switch state := item.entry.Validate(contentHash, now); state {
	case types.LookupExpired:
		c.removeItem(address)
		c.stats.Expired++
		c.updateHitRate()
		return nil, state
	case types.LookupStaleHash:
		c.stats.StaleHash++
		c.updateHitRate()
		return nil, state
	}

	item.entry.Touch(now)
	c.evictList.MoveToFront(item.element)

	c.stats.Hits++
	c.updateHitRate()
	return item.entry, types.LookupHit
}

// Set stores an entry under an address, overwriting any previous value
// and evicting the least recently used entry when the bound is hit.
func (c *MemoryCache) Set(address string, entry *types.Entry) {
	if entry == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[address]; exists {
		item.entry = entry
		c.evictList.MoveToFront(item.element)
		return
	}

	element := c.evictList.PushFront(address)
	c.items[address] = &memoryItem{entry: entry, element: element}

	for len(c.items) > c.maxEntries && c.evictList.Len() > 0 {
		c.evictOldest()
	}
}

// Evict removes the entry stored under an address, no-op when absent.
func (c *MemoryCache) Evict(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[address]; !exists {
		return false
	}
	c.removeItem(address)
	c.stats.Evictions++
	return true
}

// InvalidateMatching removes every entry whose logical key matches the
// pattern and returns the number removed. L1 keeps the logical key
// inside each stored entry, so matching here is exact.
func (c *MemoryCache) InvalidateMatching(pattern *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []string
	for address, item := range c.items {
		if pattern.MatchString(item.entry.Key) {
			matched = append(matched, address)
		}
	}

	for _, address := range matched {
		c.removeItem(address)
		c.stats.Evictions++
	}
	return len(matched)
}

// Cleanup removes every entry that has expired as of now and returns
// the number removed.
func (c *MemoryCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for address, item := range c.items {
		if item.entry.Expired(now) {
			expired = append(expired, address)
		}
	}

	for _, address := range expired {
		c.removeItem(address)
		c.stats.Expired++
	}
	return len(expired)
}

// Len returns the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns a snapshot of tier statistics.
func (c *MemoryCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.items)
	stats.SizeBytes = 0
	for _, item := range c.items {
		stats.SizeBytes += item.entry.ApproxSize()
	}
	return stats
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memoryItem)
	c.evictList.Init()
}

// Keys returns the logical keys currently resident (for debugging).
func (c *MemoryCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for _, item := range c.items {
		keys = append(keys, item.entry.Key)
	}
	return keys
}

// Helper methods

func (c *MemoryCache) removeItem(address string) {
	item, exists := c.items[address]
	if !exists {
		return
	}

	if item.element != nil {
		c.evictList.Remove(item.element)
	}
	delete(c.items, address)
}

func (c *MemoryCache) evictOldest() {
	element := c.evictList.Back()
	if element == nil {
		return
	}
	c.removeItem(element.Value.(string))
	c.stats.Evictions++
}

func (c *MemoryCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses + c.stats.Expired + c.stats.StaleHash
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
