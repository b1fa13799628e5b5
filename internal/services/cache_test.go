package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingListerServesRepeatsFromMemory(t *testing.T) {
	inner := NewMockLister(0)
	cache := NewCachingLister(inner, "site", "")
	ctx := context.Background()

	first, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: "/sql"})
	require.NoError(t, err)
	second, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: "/sql"})
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	require.Len(t, second.Items, len(first.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].ID, second.Items[i].ID)
		assert.Equal(t, first.Items[i].Size, second.Items[i].Size)
		assert.True(t, first.Items[i].ModTime.Equal(second.Items[i].ModTime))
		assert.Equal(t, time.UTC, second.Items[i].ModTime.Location())
	}
	assert.Equal(t, int64(1), inner.Calls())

	_, err = cache.List(ctx, ListRequest{RewindID: "r2", Path: "/sql"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.Calls())
}

func TestCachingListerPersistsToDisk(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "listings.json")
	ctx := context.Background()

	inner := NewMockLister(0)
	first, err := NewCachingLister(inner, "site", cachePath).List(ctx, ListRequest{RewindID: "r1", Path: "/wp-content"})
	require.NoError(t, err)
	assert.FileExists(t, cachePath)

	fresh := NewMockLister(0)
	reloaded, err := NewCachingLister(fresh, "site", cachePath).List(ctx, ListRequest{RewindID: "r1", Path: "/wp-content"})
	require.NoError(t, err)

	assert.True(t, reloaded.Cached)
	assert.Equal(t, int64(0), fresh.Calls())
	require.Len(t, reloaded.Items, len(first.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].Name, reloaded.Items[i].Name)
		assert.Equal(t, first.Items[i].TotalItems, reloaded.Items[i].TotalItems)
		assert.True(t, first.Items[i].ModTime.Equal(reloaded.Items[i].ModTime))
	}

	other, err := NewCachingLister(fresh, "other-site", cachePath).List(ctx, ListRequest{RewindID: "r1", Path: "/wp-content"})
	require.NoError(t, err)
	assert.False(t, other.Cached)
}

func TestCachingListerDoesNotCacheErrors(t *testing.T) {
	inner := NewMockLister(0)
	cache := NewCachingLister(inner, "site", "")

	_, err := cache.List(context.Background(), ListRequest{RewindID: "r1", Path: "/missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cache.List(context.Background(), ListRequest{RewindID: "r1", Path: "/missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(2), inner.Calls())
}

func TestCachingListerInvalidateSubtree(t *testing.T) {
	inner := NewMockLister(0)
	cache := NewCachingLister(inner, "site", "")
	ctx := context.Background()
	for _, path := range []string{"/", "/wp-content", "/wp-content/plugins", "/sql"} {
		_, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: path})
		require.NoError(t, err)
	}

	cache.Invalidate("r1", "/wp-content")

	for path, cached := range map[string]bool{"/": true, "/sql": true, "/wp-content": false, "/wp-content/plugins": false} {
		result, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: path})
		require.NoError(t, err)
		assert.Equal(t, cached, result.Cached, path)
	}

	cache.Invalidate("r1", "")
	result, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: "/sql"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
}

func TestTimeFromIsUTC(t *testing.T) {
	local := time.Date(2024, time.March, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	restored := timeFrom(local.UnixNano())

	assert.True(t, local.Equal(restored))
	assert.Equal(t, time.UTC, restored.Location())
	assert.True(t, timeFrom(0).IsZero())
}

func TestCachingListerNormalizesPaths(t *testing.T) {
	inner := NewMockLister(0)
	cache := NewCachingLister(inner, "site", "")
	ctx := context.Background()

	_, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: "/wp-content"})
	require.NoError(t, err)
	for _, variant := range []string{"/wp-content/", "wp-content", " /wp-content "} {
		result, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: variant})
		require.NoError(t, err)
		assert.True(t, result.Cached, variant)
	}
	assert.Equal(t, int64(1), inner.Calls())

	cache.Invalidate("r1", "/wp-content/")
	result, err := cache.List(ctx, ListRequest{RewindID: "r1", Path: "/wp-content"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
}

func TestCachingListerConcurrentSavesLeaveValidFile(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "nested", "listings.json")
	cache := NewCachingLister(NewMockLister(0), "site", cachePath)
	paths := []string{"/", "/sql", "/wp-admin", "/wp-content", "/wp-content/plugins", "/wp-content/themes", "/wp-content/uploads", "/wp-includes"}

	var wg sync.WaitGroup
	for _, listPath := range paths {
		wg.Add(1)
		go func(listPath string) {
			defer wg.Done()
			_, err := cache.List(context.Background(), ListRequest{RewindID: "r1", Path: listPath})
			assert.NoError(t, err)
		}(listPath)
	}
	wg.Wait()

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	var stored cacheFile
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, cacheVersion, stored.Version)
	assert.Len(t, stored.Entries, len(paths))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(cachePath), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestMockListerHonoursCancellation(t *testing.T) {
	lister := NewMockLister(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lister.List(ctx, ListRequest{Path: "/"})

	assert.ErrorIs(t, err, context.Canceled)
}
