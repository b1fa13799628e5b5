package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"restorepick/internal/domain"
	"restorepick/internal/metrics"
)

// MockLister serves a fixed WordPress-shaped snapshot from memory.
type MockLister struct {
	latency  time.Duration
	listings map[string][]domain.ListItem
	calls    atomic.Int64
}

var fixtureModTime = time.Date(2024, time.March, 14, 9, 30, 0, 0, time.UTC)

func NewMockLister(latency time.Duration) *MockLister {
	lister := &MockLister{
		latency:  latency,
		listings: make(map[string][]domain.ListItem),
	}
	lister.load("/", wordpressFixture())
	return lister
}

// Calls reports how many listings have been served.
func (lister *MockLister) Calls() int64 {
	return lister.calls.Load()
}

func (lister *MockLister) List(ctx context.Context, req ListRequest) (ListResult, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return ListResult{Path: req.Path}, ctx.Err()
	case <-time.After(lister.latency):
	}
	lister.calls.Add(1)

	key := path.Clean("/" + strings.TrimSpace(req.Path))
	items, ok := lister.listings[key]
	metrics.RecordListing("mock", time.Since(start), ok)
	if !ok {
		return ListResult{Path: req.Path}, fmt.Errorf("list %s: %w", req.Path, ErrNotFound)
	}
	return ListResult{
		Path:     req.Path,
		Items:    append([]domain.ListItem(nil), items...),
		Duration: time.Since(start),
	}, nil
}

func (lister *MockLister) load(dirPath string, dir []fixtureEntry) {
	items := make([]domain.ListItem, 0, len(dir))
	for _, entry := range dir {
		childPath := path.Join(dirPath, entry.name)
		item := domain.ListItem{
			ID:         strings.TrimPrefix(childPath, "/"),
			Name:       entry.name,
			Type:       entry.nodeType,
			TotalItems: 1,
			Size:       entry.size,
			ModTime:    fixtureModTime,
		}
		if entry.children != nil {
			item.TotalItems = len(entry.children)
			item.HasChildren = len(entry.children) > 0
			item.Size = 0
			lister.load(childPath, entry.children)
		}
		items = append(items, item)
	}
	lister.listings[dirPath] = items
}

type fixtureEntry struct {
	name     string
	nodeType domain.NodeType
	size     int64
	children []fixtureEntry
}

func fixtureFile(name string, size int64) fixtureEntry {
	return fixtureEntry{name: name, nodeType: domain.TypeFile, size: size}
}

func fixtureFolder(name string, nodeType domain.NodeType, children ...fixtureEntry) fixtureEntry {
	if children == nil {
		children = []fixtureEntry{}
	}
	return fixtureEntry{name: name, nodeType: nodeType, children: children}
}

func numberedFiles(prefix, ext string, count int, size int64) []fixtureEntry {
	files := make([]fixtureEntry, 0, count)
	for i := 1; i <= count; i++ {
		files = append(files, fixtureFile(fmt.Sprintf("%s-%02d.%s", prefix, i, ext), size*int64(i)))
	}
	return files
}

func wordpressFixture() []fixtureEntry {
	table := func(name string, size int64) fixtureEntry {
		return fixtureEntry{name: name, nodeType: domain.TypeTable, size: size}
	}
	return []fixtureEntry{
		fixtureFolder("sql", domain.TypeDir,
			table("wp_options.sql", 482_133),
			table("wp_posts.sql", 2_904_551),
			table("wp_postmeta.sql", 1_203_987),
			table("wp_users.sql", 4_096),
			table("wp_usermeta.sql", 12_288),
			table("wp_comments.sql", 88_410),
		),
		fixtureFolder("wp-admin", domain.TypeDir,
			fixtureFile("admin.php", 12_004),
			fixtureFile("index.php", 8_331),
			fixtureFolder("css", domain.TypeDir,
				fixtureFile("admin.css", 45_221),
				fixtureFile("login.css", 9_870),
			),
		),
		fixtureFolder("wp-content", domain.TypeDir,
			fixtureFile("index.php", 28),
			fixtureFolder("plugins", domain.TypeDir,
				fixtureFile("hello.php", 2_578),
				fixtureFolder("akismet", domain.TypePlugin,
					fixtureFile("akismet.php", 2_719),
					fixtureFile("readme.txt", 9_152),
				),
				fixtureFolder("jetpack", domain.TypePlugin,
					fixtureFile("jetpack.php", 6_103),
					fixtureFile("readme.txt", 31_440),
					fixtureFolder("modules", domain.TypeDir,
						fixtureFile("stats.php", 18_224),
						fixtureFile("sharing.php", 7_552),
					),
				),
			),
			fixtureFolder("themes", domain.TypeDir,
				fixtureFolder("twentytwentyfour", domain.TypeTheme,
					fixtureFile("style.css", 1_304),
					fixtureFile("functions.php", 5_288),
					fixtureFile("theme.json", 22_107),
				),
				fixtureFolder("twentytwentythree", domain.TypeTheme,
					fixtureFile("style.css", 1_171),
					fixtureFile("theme.json", 19_890),
				),
			),
			fixtureFolder("uploads", domain.TypeDir,
				fixtureFolder("2024", domain.TypeDir,
					fixtureFolder("01", domain.TypeDir, numberedFiles("photo", "jpg", 12, 240_000)...),
					fixtureFolder("02", domain.TypeDir, numberedFiles("scan", "png", 3, 510_000)...),
				),
				fixtureFile("site-export.zip", 7_340_032),
			),
		),
		fixtureFolder("wp-includes", domain.TypeDir,
			fixtureFile("functions.php", 262_144),
			fixtureFile("version.php", 1_046),
		),
		fixtureFile("wp-config.php", 3_277),
	}
}

// MockRestorer accepts every request after a short delay.
type MockRestorer struct {
	latency time.Duration
	counter atomic.Int64
}

func NewMockRestorer(latency time.Duration) *MockRestorer {
	return &MockRestorer{latency: latency}
}

func (restorer *MockRestorer) Restore(ctx context.Context, req RestoreRequest) (RestoreResult, error) {
	start := time.Now()
	if req.CheckList.Empty() {
		return RestoreResult{Kind: req.Kind}, ErrNothingSelected
	}
	select {
	case <-ctx.Done():
		return RestoreResult{Kind: req.Kind}, ctx.Err()
	case <-time.After(restorer.latency):
	}

	id := restorer.counter.Add(1)
	metrics.RecordRestore(string(req.Kind), req.CheckList.TotalItems, true)
	return RestoreResult{
		Kind:         req.Kind,
		ID:           fmt.Sprintf("mock-%d", id),
		SuccessCount: req.CheckList.TotalItems,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("%s mock-%d queued", req.Kind, id),
	}, nil
}
