// Package cache implements the multi-tier caching engine.
//
// The engine layers three tiers behind one orchestrator:
//
//	MemoryCache   (L1): bounded in-process LRU map
//	FileCache     (L2): one file per hashed key under a cache root
//	RemoteCache   (L3): networked key-value store shared across processes
//
// MultiLevelCache queries tiers in order and stops at the first valid
// hit, promoting the entry into faster tiers. Writes go to all tiers,
// with L2/L3 failures downgraded to no-ops so the caller always keeps
// at least the in-memory copy. Validity combines two checks: the entry
// must not have expired, and when the caller supplies a content hash it
// must match the stored one.
//
// Logical keys never touch storage directly. Hasher maps each key to a
// fixed-length hex address, and the address is namespaced into file
// paths and remote keys so independent cache instances cannot collide.
// Hashing is one-way, which makes pattern invalidation against the
// remote tier a best-effort heuristic; L1 and L2 retain logical keys
// inside the stored entries and match patterns exactly.
//
// SemanticCache composes three independent MultiLevelCache instances
// for embedding vectors, content segments, and query results, with
// typed accessors on top of the byte-oriented engine.
package cache
