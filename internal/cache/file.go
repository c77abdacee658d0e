package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/semcache/semcache/pkg/types"
)

// gzipMagic identifies compressed entry files regardless of the
// current compression setting, so toggling compression never
// invalidates existing entries.
var gzipMagic = []byte{0x1f, 0x8b}

// FileCacheConfig represents file tier configuration
type FileCacheConfig struct {
	// MaxFileSize skips persisting entries whose serialized form
	// exceeds it. Zero disables the bound.
	MaxFileSize int64

	// Compression gzips entries before writing.
	Compression bool
}

// FileCache implements the on-disk L2 tier: one JSON file per storage
// address under the namespace directory. Every filesystem or decode
// failure is downgraded to a miss or no-op; the tier never surfaces an
// error to the orchestrator.
type FileCache struct {
	mu     sync.Mutex
	fs     billy.Filesystem
	hasher *Hasher
	config *FileCacheConfig
	logger *slog.Logger

	stats types.CacheStats
}

// NewFileCache creates the L2 tier rooted at fs. The namespace
// directory is created eagerly so later writes only race on files; an
// unavailable cache root (read-only or missing filesystem) degrades
// the tier to misses and no-ops instead of failing construction, the
// same posture the remote tier takes toward a dead store. Writes
// retry the mkdir in case the root appears later.
func NewFileCache(fs billy.Filesystem, hasher *Hasher, config *FileCacheConfig) *FileCache {
	if config == nil {
		config = &FileCacheConfig{
			MaxFileSize: 10 * 1024 * 1024, // 10MB
			Compression: true,
		}
	}

	logger := slog.Default().With("component", "file_cache", "namespace", hasher.Namespace())
	if err := fs.MkdirAll(hasher.Namespace(), 0750); err != nil {
		logger.Warn("cache directory unavailable, file tier degraded", "error", err)
	}

	return &FileCache{
		fs:     fs,
		hasher: hasher,
		config: config,
		logger: logger,
	}
}

// Get reads the entry stored under an address. Missing, corrupt, or
// oversized files all read as misses. Expired entries are deleted on
// read; a content-hash mismatch leaves the file in place.
func (c *FileCache) Get(address, contentHash string) (*types.Entry, types.LookupState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.entryPath(address)
	entry, err := c.readEntry(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("unreadable cache file treated as miss", "path", path, "error", err)
			_ = c.fs.Remove(path)
		}
		c.stats.Misses++
		c.updateHitRate()
		return nil, types.LookupMiss
	}

	now := time.Now()
	switch state := entry.Validate(contentHash, now); state {
	case types.LookupExpired:
		_ = c.fs.Remove(path)
		c.stats.Expired++
		c.updateHitRate()
		return nil, state
	case types.LookupStaleHash:
		c.stats.StaleHash++
		c.updateHitRate()
		return nil, state
	}

	entry.Touch(now)
	c.stats.Hits++
	c.updateHitRate()
	return entry, types.LookupHit
}

// Set persists an entry under an address, replacing any previous file
// atomically via temp-file-and-rename. Oversized entries are skipped
// and write failures are logged, never returned.
func (c *FileCache) Set(address string, entry *types.Entry) {
	if entry == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := c.encodeEntry(entry)
	if err != nil {
		c.logger.Warn("entry serialization failed, skipping persist", "key", entry.Key, "error", err)
		return
	}
	if c.config.MaxFileSize > 0 && int64(len(payload)) > c.config.MaxFileSize {
		c.logger.Debug("entry exceeds max file size, skipping persist",
			"key", entry.Key, "size", len(payload), "max", c.config.MaxFileSize)
		return
	}

	if err := c.writeAtomic(c.entryPath(address), payload); err != nil {
		c.logger.Warn("cache file write failed", "key", entry.Key, "error", err)
	}
}

// Evict deletes the file stored under an address, no-op when absent.
func (c *FileCache) Evict(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fs.Remove(c.entryPath(address)); err != nil {
		return false
	}
	c.stats.Evictions++
	return true
}

// InvalidateMatching removes every persisted entry whose logical key
// matches the pattern. The logical key is stored inside each file, so
// matching requires reading them; files that fail to decode are
// removed as corrupt.
func (c *FileCache) InvalidateMatching(pattern *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	c.walkEntries(func(path string, entry *types.Entry) {
		if entry == nil || pattern.MatchString(entry.Key) {
			if c.fs.Remove(path) == nil {
				removed++
				c.stats.Evictions++
			}
		}
	})
	return removed
}

// Cleanup removes every persisted entry that has expired as of now.
func (c *FileCache) Cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	c.walkEntries(func(path string, entry *types.Entry) {
		if entry == nil || entry.Expired(now) {
			if c.fs.Remove(path) == nil {
				removed++
				c.stats.Expired++
			}
		}
	})
	return removed
}

// Len returns the number of persisted entry files.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listEntryFiles())
}

// Stats returns a snapshot of tier statistics. Entry count and size
// come from the directory listing, not from decoding files.
func (c *FileCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	for _, info := range c.listEntryFiles() {
		stats.Entries++
		stats.SizeBytes += info.Size()
	}
	return stats
}

// Clear removes every persisted entry file.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, info := range c.listEntryFiles() {
		_ = c.fs.Remove(c.fs.Join(c.hasher.Namespace(), info.Name()))
	}
}

// Helper methods

func (c *FileCache) entryPath(address string) string {
	return c.fs.Join(c.hasher.Namespace(), address+fileExt)
}

func (c *FileCache) listEntryFiles() []os.FileInfo {
	infos, err := c.fs.ReadDir(c.hasher.Namespace())
	if err != nil {
		return nil
	}
	files := make([]os.FileInfo, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() && len(info.Name()) > len(fileExt) &&
			info.Name()[len(info.Name())-len(fileExt):] == fileExt {
			files = append(files, info)
		}
	}
	return files
}

// walkEntries decodes every entry file and hands it to fn; corrupt
// files are passed with a nil entry so callers can drop them.
func (c *FileCache) walkEntries(fn func(path string, entry *types.Entry)) {
	for _, info := range c.listEntryFiles() {
		path := c.fs.Join(c.hasher.Namespace(), info.Name())
		entry, err := c.readEntry(path)
		if err != nil {
			fn(path, nil)
			continue
		}
		fn(path, entry)
	}
}

func (c *FileCache) readEntry(path string) (*types.Entry, error) {
	raw, err := util.ReadFile(c.fs, path)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(raw, gzipMagic) {
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		raw, err = io.ReadAll(reader)
		if cerr := reader.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
	}

	var entry types.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *FileCache) encodeEntry(entry *types.Entry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if !c.config.Compression {
		return raw, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(raw); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *FileCache) writeAtomic(path string, payload []byte) error {
	tmp, err := c.fs.TempFile(c.hasher.Namespace(), ".tmp-")
	if err != nil {
		// The namespace directory may not have existed at construction
		// time. Recreate it and retry once before giving up.
		if mkErr := c.fs.MkdirAll(c.hasher.Namespace(), 0750); mkErr != nil {
			return err
		}
		if tmp, err = c.fs.TempFile(c.hasher.Namespace(), ".tmp-"); err != nil {
			return err
		}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = c.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmpName)
		return err
	}
	if err := c.fs.Rename(tmpName, path); err != nil {
		_ = c.fs.Remove(tmpName)
		return err
	}
	return nil
}

func (c *FileCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses + c.stats.Expired + c.stats.StaleHash
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
