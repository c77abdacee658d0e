/*
Package types provides the core interfaces and data structures shared across
the semcache engine.

This package is the foundation of the cache hierarchy, defining the contracts
between the cache tiers and the data structures that travel between them.

# Architecture Overview

The engine follows a layered architecture with well-defined interfaces between
components:

	┌─────────────────────────────────────────────┐
	│            Semantic Cache                   │
	│  (embeddings / segments / results)          │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Multi-Level Cache                 │
	│         (internal/cache)                    │
	└─────────────────────────────────────────────┘
	       │              │              │
	┌──────┴─────┐ ┌──────┴─────┐ ┌──────┴─────┐
	│  L1 Memory │ │  L2 File   │ │  L3 Remote │
	│   (LRU)    │ │ (per-key)  │ │ (KV store) │
	└────────────┘ └────────────┘ └──────┬─────┘
	                                     │
	                              RemoteStore impl
	                              (Redis client)

# Core Types

Entry:
The unit of storage in every tier. Carries the logical key, the opaque
payload, the content hash used for staleness detection, access statistics,
and an optional absolute expiry.

LookupState:
The validity result of checking an entry against an expiry and a content
hash. Keeping absent, expired, and stale-hash outcomes distinct keeps
statistics and test assertions precise.

CacheStats:
Running performance counters reported by each tier and by the orchestrator.

# Core Interfaces

RemoteStore:
Abstracts the networked key-value service backing the remote tier. The engine
assumes get/set/delete/exists/ttl/prefix-scan semantics and nothing more: no
transactions, no pub/sub, no server-side scripting. Implementations are
injected explicitly so tests can substitute a fake store.
*/
package types
