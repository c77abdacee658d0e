package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/semcache/semcache/internal/metrics"
	"github.com/semcache/semcache/pkg/errors"
	"github.com/semcache/semcache/pkg/types"
)

// Namespace names for the three semantic domains.
const (
	nsEmbeddings = "embeddings"
	nsSegments   = "segments"
	nsResults    = "results"
)

// Segment is one parsed slice of a source file.
type Segment struct {
	FilePath  string `json:"file_path"`
	Content   string `json:"content"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Kind      string `json:"kind,omitempty"`
}

// SearchResult is one ranked answer for a cached query.
type SearchResult struct {
	FilePath  string  `json:"file_path"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
}

// SemanticCacheConfig represents the shared tier settings applied to
// each semantic namespace.
type SemanticCacheConfig struct {
	MaxMemoryEntries int
	MaxFileSize      int64
	DefaultTTL       time.Duration
	Compression      bool
	Remote           *RemoteCacheConfig
}

// SemanticCache composes three independently namespaced engine
// instances, one per content domain:
//
//	embeddings: vectors keyed by content hash, so identical content
//	            shares a slot no matter which file it came from
//	segments:   parsed file segments keyed by file path, gated by the
//	            file's content hash
//	results:    search results keyed by query text, gated by the
//	            query hash
//
// The facade adds typed accessors on top of the byte-oriented engine
// and a cross-domain InvalidateFile convenience.
type SemanticCache struct {
	embeddings *MultiLevelCache
	segments   *MultiLevelCache
	results    *MultiLevelCache
	logger     *slog.Logger
}

// NewSemanticCache wires the three namespaces over one filesystem root
// and one shared remote store client.
func NewSemanticCache(fs billy.Filesystem, store types.RemoteStore, config *SemanticCacheConfig, collector *metrics.Collector) (*SemanticCache, error) {
	if config == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "semantic cache config is required").
			WithComponent("semantic_cache")
	}

	build := func(namespace string) (*MultiLevelCache, error) {
		return NewMultiLevelCache(fs, store, &MultiLevelCacheConfig{
			Namespace:        namespace,
			MaxMemoryEntries: config.MaxMemoryEntries,
			MaxFileSize:      config.MaxFileSize,
			DefaultTTL:       config.DefaultTTL,
			Compression:      config.Compression,
			Remote:           config.Remote,
		}, collector)
	}

	embeddings, err := build(nsEmbeddings)
	if err != nil {
		return nil, err
	}
	segments, err := build(nsSegments)
	if err != nil {
		return nil, err
	}
	results, err := build(nsResults)
	if err != nil {
		return nil, err
	}

	return &SemanticCache{
		embeddings: embeddings,
		segments:   segments,
		results:    results,
		logger:     slog.Default().With("component", "semantic_cache"),
	}, nil
}

// Initialize brings up all three namespaces.
func (s *SemanticCache) Initialize(ctx context.Context) error {
	for _, c := range s.instances() {
		if err := c.Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GetEmbedding returns the cached vector for a content hash, nil on
// miss.
func (s *SemanticCache) GetEmbedding(ctx context.Context, contentHash string) ([]float32, error) {
	entry, err := s.embeddings.Get(ctx, contentHash, contentHash)
	if err != nil || entry == nil {
		return nil, err
	}

	var vector []float32
	if err := json.Unmarshal(entry.Data, &vector); err != nil {
		s.dropCorrupt(ctx, s.embeddings, contentHash, err)
		return nil, nil
	}
	return vector, nil
}

// SetEmbedding caches an embedding vector under its content hash.
func (s *SemanticCache) SetEmbedding(ctx context.Context, contentHash string, vector []float32) error {
	payload, err := json.Marshal(vector)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEntryCorrupt, "embedding serialization failed", err).
			WithComponent("semantic_cache")
	}
	return s.embeddings.Set(ctx, contentHash, payload, contentHash, 0)
}

// GetSegments returns the cached segments for a file, gated by the
// file's current content hash so stale parses read as misses.
func (s *SemanticCache) GetSegments(ctx context.Context, filePath, contentHash string) ([]Segment, error) {
	entry, err := s.segments.Get(ctx, filePath, contentHash)
	if err != nil || entry == nil {
		return nil, err
	}

	var segs []Segment
	if err := json.Unmarshal(entry.Data, &segs); err != nil {
		s.dropCorrupt(ctx, s.segments, filePath, err)
		return nil, nil
	}
	return segs, nil
}

// SetSegments caches the parsed segments of a file.
func (s *SemanticCache) SetSegments(ctx context.Context, filePath, contentHash string, segs []Segment) error {
	payload, err := json.Marshal(segs)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEntryCorrupt, "segment serialization failed", err).
			WithComponent("semantic_cache")
	}
	return s.segments.Set(ctx, filePath, payload, contentHash, 0)
}

// GetQueryResults returns the cached results for a query, gated by the
// query hash.
func (s *SemanticCache) GetQueryResults(ctx context.Context, query, queryHash string) ([]SearchResult, error) {
	entry, err := s.results.Get(ctx, query, queryHash)
	if err != nil || entry == nil {
		return nil, err
	}

	var res []SearchResult
	if err := json.Unmarshal(entry.Data, &res); err != nil {
		s.dropCorrupt(ctx, s.results, query, err)
		return nil, nil
	}
	return res, nil
}

// SetQueryResults caches the results of a query.
func (s *SemanticCache) SetQueryResults(ctx context.Context, query, queryHash string, res []SearchResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEntryCorrupt, "result serialization failed", err).
			WithComponent("semantic_cache")
	}
	return s.results.Set(ctx, query, payload, queryHash, 0)
}

// InvalidateFile removes everything associated with a file path across
// all three namespaces: its segments, any query results mentioning the
// path, and embeddings whose key happens to reference it. Matching is
// exact for the memory and file tiers and best-effort for the remote
// tier. Returns the total entries removed.
func (s *SemanticCache) InvalidateFile(ctx context.Context, filePath string) (int, error) {
	pattern := regexp.QuoteMeta(filePath)

	removed := 0
	for _, c := range s.instances() {
		n, err := c.InvalidatePattern(ctx, pattern)
		if err != nil {
			return removed, err
		}
		removed += n
	}

	// The segments namespace keys directly on the path, so remove the
	// exact entry too in case the pattern pass raced a concurrent set.
	if err := s.segments.Invalidate(ctx, filePath); err != nil {
		return removed, err
	}

	s.logger.Debug("file invalidated", "path", filePath, "removed", removed)
	return removed, nil
}

// Cleanup removes expired entries from all namespaces.
func (s *SemanticCache) Cleanup(ctx context.Context) (int, error) {
	removed := 0
	for _, c := range s.instances() {
		n, err := c.Cleanup(ctx)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// Stats returns per-namespace aggregated statistics.
func (s *SemanticCache) Stats(ctx context.Context) (map[string]*CombinedStats, error) {
	stats := make(map[string]*CombinedStats, 3)
	for name, c := range map[string]*MultiLevelCache{
		nsEmbeddings: s.embeddings,
		nsSegments:   s.segments,
		nsResults:    s.results,
	} {
		snap, err := c.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats[name] = snap
	}
	return stats, nil
}

// Close shuts all namespaces down, returning the first failure.
func (s *SemanticCache) Close() error {
	var firstErr error
	for _, c := range s.instances() {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *SemanticCache) instances() []*MultiLevelCache {
	return []*MultiLevelCache{s.embeddings, s.segments, s.results}
}

// dropCorrupt evicts an entry whose payload no longer decodes.
func (s *SemanticCache) dropCorrupt(ctx context.Context, c *MultiLevelCache, key string, err error) {
	s.logger.Warn("corrupt semantic payload evicted", "namespace", c.hasher.Namespace(), "error", err)
	_ = c.Invalidate(ctx, key)
}
