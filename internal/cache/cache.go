// Package cache provides caching for rendered files and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/esvd-explorer/server/internal/filter"
)

// Config contains cache configuration.
type Config struct {
	FileCacheSizeMB int
	FileTTL         time.Duration
	QueryCacheSize  int
}

// Manager manages the file and query caches.
type Manager struct {
	fileCache  *bigcache.BigCache
	queryCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.FileTTL <= 0 {
		cfg.FileTTL = 10 * time.Minute
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 1000
	}

	// Exports and map previews are a few KB to a few hundred KB.
	fileCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.FileTTL,
		CleanWindow:        cfg.FileTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       256 * 1024,
		HardMaxCacheSize:   cfg.FileCacheSizeMB,
		Verbose:            false,
	}

	fileCache, err := bigcache.New(context.Background(), fileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		fileCache.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		fileCache:  fileCache,
		queryCache: queryCache,
	}, nil
}

// GetFile retrieves an export or image from cache.
func (m *Manager) GetFile(key string) ([]byte, bool) {
	data, err := m.fileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetFile stores an export or image in cache.
func (m *Manager) SetFile(key string, data []byte) error {
	return m.fileCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

func hashed(prefix string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// QueryKey generates a cache key for a JSON query result.
func QueryKey(dataset, kind string, chain filter.Chain, service filter.Selection) string {
	return hashed("q:"+dataset+":"+kind, chain.Key(), service.String())
}

// FileKey generates a cache key for a rendered file.
func FileKey(dataset, format string, chain filter.Chain, service filter.Selection) string {
	return hashed("f:"+dataset+":"+format, chain.Key(), service.String())
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	s := m.fileCache.Stats()
	return map[string]interface{}{
		"file_cache_len":    m.fileCache.Len(),
		"file_cache_cap":    m.fileCache.Capacity(),
		"file_cache_hits":   s.Hits,
		"file_cache_misses": s.Misses,
		"query_cache_len":   m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.fileCache.Close()
}
