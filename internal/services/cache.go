package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"restorepick/internal/domain"
	"restorepick/internal/logging"
	"restorepick/internal/metrics"
)

const cacheVersion = 1
const maxCacheBytes = 50 * 1024 * 1024

type cacheFile struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

type cacheEntry struct {
	Path     string      `json:"path"`
	StoredAt int64       `json:"storedAt"`
	Items    []cacheItem `json:"items"`
}

type cacheItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        domain.NodeType `json:"type"`
	HasChildren bool            `json:"hasChildren"`
	TotalItems  int             `json:"totalItems"`
	Size        int64           `json:"size"`
	ModTime     int64           `json:"modTime"`
}

// CachingLister memoizes listings of a snapshot. A snapshot never changes
// once taken, so entries are only dropped by Invalidate.
type CachingLister struct {
	inner     Lister
	namespace string
	cachePath string

	mu      sync.RWMutex
	saveMu  sync.Mutex
	entries map[string]cacheEntry
	loaded  bool
	log     *zap.Logger
}

func DefaultCachePath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "restorepick", "listings.json"), nil
}

// NewCachingLister wraps inner. namespace separates sites or snapshot roots
// sharing one cache file; an empty cachePath keeps the cache in memory.
func NewCachingLister(inner Lister, namespace, cachePath string) *CachingLister {
	return &CachingLister{
		inner:     inner,
		namespace: namespace,
		cachePath: cachePath,
		entries:   make(map[string]cacheEntry),
		log:       logging.Named("cache"),
	}
}

func (cache *CachingLister) List(ctx context.Context, req ListRequest) (ListResult, error) {
	if err := cache.loadCache(); err != nil {
		cache.log.Warn("listing cache unreadable", zap.String("path", cache.cachePath), zap.Error(err))
	}
	listPath := normalizeListPath(req.Path)
	key := cache.key(req.RewindID, listPath)

	cache.mu.RLock()
	entry, ok := cache.entries[key]
	cache.mu.RUnlock()
	metrics.RecordCacheLookup(ok)
	if ok {
		return ListResult{Path: req.Path, Items: entry.toItems(), Cached: true}, nil
	}

	result, err := cache.inner.List(ctx, req)
	if err != nil {
		return result, err
	}
	cache.mu.Lock()
	cache.entries[key] = newCacheEntry(listPath, result.Items)
	cache.mu.Unlock()
	cache.saveCache()
	return result, nil
}

// Invalidate drops the cached listing of path and everything below it.
// An empty path drops the whole snapshot.
func (cache *CachingLister) Invalidate(rewindID, listPath string) {
	prefix := cache.key(rewindID, "")
	root := normalizeListPath(listPath)
	cache.mu.Lock()
	for key, entry := range cache.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if root == "/" || isWithin(root, entry.Path) {
			delete(cache.entries, key)
		}
	}
	cache.mu.Unlock()
	cache.saveCache()
}

func (cache *CachingLister) key(rewindID, listPath string) string {
	return fmt.Sprintf("%s|%s|%s", cache.namespace, rewindID, listPath)
}

// normalizeListPath maps "", "/a/" and "a" onto the same key as "/a".
func normalizeListPath(listPath string) string {
	return path.Clean("/" + strings.TrimSpace(listPath))
}

func (cache *CachingLister) loadCache() error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.loaded || cache.cachePath == "" {
		cache.loaded = true
		return nil
	}
	cache.loaded = true
	info, err := os.Stat(cache.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() > maxCacheBytes {
		return fmt.Errorf("cache too large")
	}
	data, err := os.ReadFile(cache.cachePath)
	if err != nil {
		return err
	}
	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		return err
	}
	if cached.Version != cacheVersion {
		return nil
	}
	for key, entry := range cached.Entries {
		cache.entries[key] = entry
	}
	return nil
}

// saveCache writes the cache through a temp file and rename so readers never
// see a partial file. Saves are serialized.
func (cache *CachingLister) saveCache() {
	if cache.cachePath == "" {
		return
	}
	cache.saveMu.Lock()
	defer cache.saveMu.Unlock()

	cache.mu.RLock()
	file := cacheFile{Version: cacheVersion, Entries: cache.entries}
	data, err := json.Marshal(file)
	cache.mu.RUnlock()
	if err != nil {
		cache.log.Warn("listing cache not encoded", zap.Error(err))
		return
	}
	if len(data) > maxCacheBytes {
		cache.log.Warn("listing cache over size cap, not saved", zap.Int("bytes", len(data)))
		return
	}
	dir := filepath.Dir(cache.cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		cache.log.Warn("listing cache dir not created", zap.String("dir", dir), zap.Error(err))
		return
	}
	if err := writeFileAtomic(cache.cachePath, data); err != nil {
		cache.log.Warn("listing cache not saved", zap.Error(err))
	}
}

func writeFileAtomic(target string, data []byte) error {
	temp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tempPath := temp.Name()
	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return err
	}
	if err := temp.Chmod(0o600); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return err
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

func newCacheEntry(listPath string, items []domain.ListItem) cacheEntry {
	entry := cacheEntry{
		Path:     listPath,
		StoredAt: time.Now().Unix(),
		Items:    make([]cacheItem, 0, len(items)),
	}
	for _, item := range items {
		cached := cacheItem{
			ID:          item.ID,
			Name:        item.Name,
			Type:        item.Type,
			HasChildren: item.HasChildren,
			TotalItems:  item.TotalItems,
			Size:        item.Size,
		}
		if !item.ModTime.IsZero() {
			cached.ModTime = item.ModTime.UnixNano()
		}
		entry.Items = append(entry.Items, cached)
	}
	return entry
}

func (entry cacheEntry) toItems() []domain.ListItem {
	items := make([]domain.ListItem, 0, len(entry.Items))
	for _, cached := range entry.Items {
		items = append(items, domain.ListItem{
			ID:          cached.ID,
			Name:        cached.Name,
			Type:        cached.Type,
			HasChildren: cached.HasChildren,
			TotalItems:  cached.TotalItems,
			Size:        cached.Size,
			ModTime:     timeFrom(cached.ModTime),
		})
	}
	return items
}

func timeFrom(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(0, value).UTC()
}
