package types

import (
	"time"
)

// Entry represents a cached value together with its freshness metadata.
// Every tier stores an independent copy of the entry; the orchestrator,
// not any single tier, owns the (best-effort) consistency policy.
type Entry struct {
	// Key is the logical, caller-supplied identifier. It is stable across
	// content changes and unique within a namespace.
	Key string `json:"key"`

	// Data is the opaque payload.
	Data []byte `json:"data"`

	// ContentHash fingerprints the content that produced Data. It detects
	// staleness independent of Key: a key can stay valid while its
	// underlying content changes.
	ContentHash string `json:"content_hash,omitempty"`

	// Timestamp is the creation time of the entry.
	Timestamp time.Time `json:"timestamp"`

	// AccessCount is incremented on every successful read. Updates are
	// best-effort; losing one under a race is acceptable.
	AccessCount int64 `json:"access_count"`

	// LastAccessed is the time of the most recent successful read and
	// drives LRU ordering in the memory tier.
	LastAccessed time.Time `json:"last_accessed"`

	// ExpiresAt is the absolute expiry. The zero value means no expiry.
	ExpiresAt time.Time `json:"expires_at"`

	// Metadata holds free-form annotations, never interpreted by the
	// engine itself.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the entry has passed its expiry at the given time.
// Entries without an expiry never expire.
func (e *Entry) Expired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return now.After(e.ExpiresAt)
}

// Validate checks the entry against the expiry and, when contentHash is
// non-empty, against the stored content hash. Expiry is checked first so an
// expired entry reports LookupExpired even when the hash also mismatches.
func (e *Entry) Validate(contentHash string, now time.Time) LookupState {
	if e.Expired(now) {
		return LookupExpired
	}
	if contentHash != "" && contentHash != e.ContentHash {
		return LookupStaleHash
	}
	return LookupHit
}

// Touch records a successful read.
func (e *Entry) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccessed = now
}

// ApproxSize returns an approximation of the entry's in-memory footprint in
// bytes. It covers the payload and string fields but not map or struct
// overhead; it exists for stats reporting, not accounting.
func (e *Entry) ApproxSize() int64 {
	size := int64(len(e.Key) + len(e.Data) + len(e.ContentHash))
	for k, v := range e.Metadata {
		size += int64(len(k) + len(v))
	}
	return size
}

// LookupState is the outcome of validating a stored entry for a read.
type LookupState int

const (
	// LookupMiss indicates the entry is absent from the tier.
	LookupMiss LookupState = iota
	// LookupHit indicates a valid entry.
	LookupHit
	// LookupExpired indicates the entry was present but past its expiry.
	LookupExpired
	// LookupStaleHash indicates the entry was present and unexpired but its
	// content hash does not match the one supplied by the caller.
	LookupStaleHash
)

// String returns a string representation of the lookup state.
func (s LookupState) String() string {
	switch s {
	case LookupMiss:
		return "miss"
	case LookupHit:
		return "hit"
	case LookupExpired:
		return "expired"
	case LookupStaleHash:
		return "stale_hash"
	default:
		return "unknown"
	}
}

// CacheStats represents cache performance statistics.
type CacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Expired   uint64  `json:"expired"`
	StaleHash uint64  `json:"stale_hash"`
	Evictions uint64  `json:"evictions"`
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
	HitRate   float64 `json:"hit_rate"`
}
