package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"restorepick/internal/domain"
	"restorepick/internal/logging"
	"restorepick/internal/metrics"
)

// LocalLister lists an unpacked snapshot directory on disk.
type LocalLister struct {
	root       string
	showHidden bool
	log        *zap.Logger
}

type countJob struct {
	index int
	path  string
}

type countResult struct {
	index int
	count int
	err   error
}

func NewLocalLister(root string, showHidden bool) *LocalLister {
	return &LocalLister{
		root:       cleanPath(root),
		showHidden: showHidden,
		log:        logging.Named("local"),
	}
}

func (lister *LocalLister) Root() string {
	return lister.root
}

func (lister *LocalLister) List(ctx context.Context, req ListRequest) (ListResult, error) {
	start := time.Now()
	items, err := lister.list(ctx, req.Path)
	duration := time.Since(start)
	metrics.RecordListing("local", duration, err == nil)
	if err != nil {
		lister.log.Warn("listing failed", zap.String("path", req.Path), zap.Error(err))
		return ListResult{Path: req.Path}, err
	}
	return ListResult{Path: req.Path, Items: items, Duration: duration}, nil
}

func (lister *LocalLister) list(ctx context.Context, listPath string) ([]domain.ListItem, error) {
	rel, err := relativePath(listPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(lister.root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", listPath, ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", listPath, err)
	}

	items := make([]domain.ListItem, 0, len(entries))
	var dirJobs []countJob
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !lister.showHidden && isHidden(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		childRel := path.Join(rel, entry.Name())
		item := domain.ListItem{
			ID:         childRel,
			Name:       entry.Name(),
			Type:       classify(childRel, entry.IsDir()),
			TotalItems: 1,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		}
		if entry.IsDir() {
			item.Size = 0
			dirJobs = append(dirJobs, countJob{index: len(items), path: filepath.Join(dir, entry.Name())})
		}
		items = append(items, item)
	}

	if err := lister.countEntries(ctx, items, dirJobs); err != nil {
		return nil, err
	}
	return items, nil
}

// countEntries fills TotalItems and HasChildren for directories using a
// bounded worker pool.
func (lister *LocalLister) countEntries(ctx context.Context, items []domain.ListItem, dirJobs []countJob) error {
	if len(dirJobs) == 0 {
		return nil
	}
	workerCount := maxInt(2, runtime.NumCPU())
	jobs := make(chan countJob, workerCount*4)
	results := make(chan countResult, workerCount*4)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go lister.countWorker(ctx, jobs, results, &wg)
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		defer close(jobs)
		for _, job := range dirJobs {
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	for result := range results {
		if result.err != nil {
			lister.log.Debug("count entries", zap.String("path", items[result.index].ID), zap.Error(result.err))
		}
		items[result.index].TotalItems = result.count
		items[result.index].HasChildren = result.count > 0
	}
	return ctx.Err()
}

func (lister *LocalLister) countWorker(ctx context.Context, jobs <-chan countJob, results chan<- countResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		if ctx.Err() != nil {
			return
		}
		entries, err := os.ReadDir(job.path)
		count := 0
		for _, entry := range entries {
			if !lister.showHidden && isHidden(entry.Name()) {
				continue
			}
			count++
		}
		results <- countResult{index: job.index, count: count, err: err}
	}
}

// classify types an entry by its place in a WordPress snapshot layout.
func classify(rel string, isDir bool) domain.NodeType {
	parent := path.Dir(rel)
	name := path.Base(rel)
	if isDir {
		switch parent {
		case "wp-content/plugins":
			return domain.TypePlugin
		case "wp-content/themes":
			return domain.TypeTheme
		}
		return domain.TypeDir
	}
	lower := strings.ToLower(name)
	switch {
	case parent == "sql" && strings.HasSuffix(lower, ".sql"):
		return domain.TypeTable
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return domain.TypeArchive
	}
	return domain.TypeFile
}

// relativePath turns a listing path such as "/wp-content/uploads" into a
// slash separated path relative to the snapshot root. Paths escaping the
// root are rejected.
func relativePath(listPath string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(listPath))
	for _, segment := range strings.Split(listPath, "/") {
		if segment == ".." {
			return "", fmt.Errorf("path %q escapes snapshot root", listPath)
		}
	}
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		return ".", nil
	}
	return rel, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isWithin(root, candidate string) bool {
	if root == candidate {
		return true
	}
	return strings.HasPrefix(candidate, strings.TrimSuffix(root, "/")+"/")
}

func cleanPath(value string) string {
	if value == "" {
		return value
	}
	clean := filepath.Clean(value)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean
	}
	return abs
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
