package services

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"restorepick/internal/domain"
	"restorepick/internal/logging"
	"restorepick/internal/metrics"
)

// LocalRestorer applies a check list to a snapshot directory on disk.
type LocalRestorer struct {
	root     string
	mu       sync.RWMutex
	progress chan RestoreProgress
	log      *zap.Logger
}

func NewLocalRestorer(root string) *LocalRestorer {
	return &LocalRestorer{
		root: cleanPath(root),
		log:  logging.Named("restore"),
	}
}

func (restorer *LocalRestorer) Progress() <-chan RestoreProgress {
	restorer.mu.RLock()
	defer restorer.mu.RUnlock()
	return restorer.progress
}

func (restorer *LocalRestorer) RequiresDestination() bool {
	return true
}

func (restorer *LocalRestorer) Restore(ctx context.Context, req RestoreRequest) (RestoreResult, error) {
	start := time.Now()
	result := RestoreResult{Kind: req.Kind}
	if req.CheckList.Empty() {
		return result, ErrNothingSelected
	}
	destination, err := validateDestination(req)
	if err != nil {
		return result, err
	}
	sources, err := restorer.sources(req.CheckList.IncludeList)
	if err != nil {
		return result, err
	}
	excludes, err := restorer.sources(req.CheckList.ExcludeList)
	if err != nil {
		return result, err
	}

	progress := make(chan RestoreProgress, 64)
	restorer.setProgress(progress)
	defer func() {
		restorer.setProgress(nil)
		close(progress)
	}()

	switch req.Kind {
	case domain.KindRestore:
		result = restorer.copyTree(ctx, progress, sources, excludes, destination)
	case domain.KindDownload:
		result = restorer.archive(ctx, progress, sources, excludes, destination)
	default:
		return result, fmt.Errorf("unsupported request kind %q", req.Kind)
	}

	result.Duration = time.Since(start)
	metrics.RecordRestore(string(req.Kind), result.SuccessCount, result.FailureCount == 0)
	restorer.log.Info("local restore finished",
		zap.String("kind", string(req.Kind)),
		zap.String("destination", destination),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
		zap.Duration("duration", result.Duration),
	)
	progressNonBlocking(progress, RestoreProgress{Kind: req.Kind, Completed: true, Processed: result.SuccessCount + result.FailureCount})
	return result, nil
}

func (restorer *LocalRestorer) setProgress(progress chan RestoreProgress) {
	restorer.mu.Lock()
	defer restorer.mu.Unlock()
	restorer.progress = progress
}

// sources maps check list entries to absolute paths inside the snapshot.
func (restorer *LocalRestorer) sources(entries []domain.PathEntry) ([]string, error) {
	seen := make(map[string]struct{}, len(entries))
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		rel, err := relativePath(entry.Path)
		if err != nil {
			return nil, err
		}
		abs := filepath.Join(restorer.root, filepath.FromSlash(rel))
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		paths = append(paths, abs)
	}
	return paths, nil
}

func validateDestination(req RestoreRequest) (string, error) {
	if req.Destination == "" {
		return "", fmt.Errorf("destination required")
	}
	destination, err := filepath.Abs(req.Destination)
	if err != nil {
		return "", err
	}
	if req.Kind == domain.KindDownload && !strings.HasSuffix(destination, ".tar.gz") {
		destination += ".tar.gz"
	}
	if req.SafeMode && isCriticalPath(destination) {
		return "", fmt.Errorf("blocked critical destination: %s", destination)
	}
	if exists(destination) {
		return "", fmt.Errorf("destination exists: %s", destination)
	}
	return destination, nil
}

// isCriticalPath reports whether the destination is a system root or the
// home directory itself. Paths below $HOME are allowed.
func isCriticalPath(candidate string) bool {
	candidate = filepath.Clean(candidate)
	for _, root := range []string{"/etc", "/usr", "/var"} {
		if isWithin(root, candidate) {
			return true
		}
	}
	if candidate == "/" {
		return true
	}
	if home, err := os.UserHomeDir(); err == nil && candidate == filepath.Clean(home) {
		return true
	}
	return false
}

func exists(candidate string) bool {
	_, err := os.Lstat(candidate)
	return err == nil
}

func excluded(candidate string, excludes []string) bool {
	for _, exclude := range excludes {
		if isWithin(exclude, candidate) {
			return true
		}
	}
	return false
}

func (restorer *LocalRestorer) copyTree(ctx context.Context, progress chan<- RestoreProgress, sources, excludes []string, destination string) RestoreResult {
	result := RestoreResult{Kind: domain.KindRestore}
	if err := os.MkdirAll(destination, 0o755); err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Message = "restore failed"
		return result
	}
	for _, source := range sources {
		if ctx.Err() != nil {
			discard(destination)
			result.Message = "restore cancelled"
			return result
		}
		walkErr := filepath.WalkDir(source, func(current string, entry fs.DirEntry, err error) error {
			if err != nil {
				result.FailureCount++
				result.Errors = append(result.Errors, err.Error())
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if excluded(current, excludes) {
				if entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(restorer.root, current)
			if err != nil {
				return err
			}
			target := filepath.Join(destination, rel)
			info, err := entry.Info()
			if err != nil {
				result.FailureCount++
				result.Errors = append(result.Errors, err.Error())
				return nil
			}
			if entry.IsDir() {
				return os.MkdirAll(target, info.Mode().Perm()|0o700)
			}
			if err := copyFile(ctx, current, target, info); err != nil {
				result.FailureCount++
				result.Errors = append(result.Errors, err.Error())
				return nil
			}
			result.SuccessCount++
			progressNonBlocking(progress, RestoreProgress{Kind: domain.KindRestore, Current: rel, Processed: result.SuccessCount + result.FailureCount})
			return nil
		})
		if walkErr != nil {
			if isCancellation(walkErr) {
				discard(destination)
				result.Message = "restore cancelled"
				return result
			}
			result.FailureCount++
			result.Errors = append(result.Errors, walkErr.Error())
		}
	}
	result.Message = fmt.Sprintf("restore complete: %s", destination)
	return result
}

func copyFile(ctx context.Context, source, target string, info os.FileInfo) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, input); err != nil {
		_ = output.Close()
		_ = os.Remove(target)
		return err
	}
	if err := output.Close(); err != nil {
		_ = os.Remove(target)
		return err
	}
	_ = os.Chtimes(target, time.Now(), info.ModTime())
	return nil
}

func (restorer *LocalRestorer) archive(ctx context.Context, progress chan<- RestoreProgress, sources, excludes []string, destination string) RestoreResult {
	result := RestoreResult{Kind: domain.KindDownload}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Message = "download failed"
		return result
	}
	file, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Message = "download failed"
		return result
	}
	gzipWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzipWriter)

	cancelled := false
	for _, source := range sources {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := restorer.addToArchive(ctx, tarWriter, source, excludes, progress, &result); err != nil {
			if isCancellation(err) {
				cancelled = true
				break
			}
			result.Errors = append(result.Errors, err.Error())
			result.FailureCount++
		}
	}
	// Order matters: tar pads the last entry, gzip writes its footer, then
	// the file is flushed.
	if err := closeAll(tarWriter, gzipWriter, file); err != nil {
		discard(destination)
		result.Errors = append(result.Errors, err.Error())
		result.FailureCount++
		result.Message = "download failed"
		return result
	}
	if cancelled {
		discard(destination)
		result.Message = "download cancelled"
		return result
	}
	result.ID = filepath.Base(destination)
	result.Message = fmt.Sprintf("download complete: %s", destination)
	return result
}

// closeAll closes every closer in order, even after a failure, and joins
// the errors.
func closeAll(closers ...io.Closer) error {
	var errs []error
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// discard removes a partial restore or archive. The destination did not
// exist before the run, so everything under it was written by it.
func discard(destination string) {
	_ = os.RemoveAll(destination)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (restorer *LocalRestorer) addToArchive(ctx context.Context, writer *tar.Writer, source string, excludes []string, progress chan<- RestoreProgress, result *RestoreResult) error {
	return filepath.Walk(source, func(current string, info os.FileInfo, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.FailureCount++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if excluded(current, excludes) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(restorer.root, current)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.FailureCount++
			return nil
		}
		if rel == "." {
			return nil
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.FailureCount++
			return nil
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() && !strings.HasSuffix(header.Name, "/") {
			header.Name += "/"
		}
		if err := writer.WriteHeader(header); err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.FailureCount++
			return nil
		}
		if info.IsDir() {
			return nil
		}
		file, err := os.Open(current)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.FailureCount++
			return nil
		}
		_, err = io.Copy(writer, file)
		file.Close()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.FailureCount++
			return nil
		}
		result.SuccessCount++
		progressNonBlocking(progress, RestoreProgress{Kind: domain.KindDownload, Current: header.Name, Processed: result.SuccessCount + result.FailureCount})
		return nil
	})
}
