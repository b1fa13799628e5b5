package services

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restorepick/internal/domain"
)

func uploadsCheckList() domain.CheckList {
	return domain.CheckList{
		TotalItems: 3,
		IncludeList: []domain.PathEntry{
			{Path: "/wp-content/plugins"},
			{Path: "/wp-config.php"},
		},
		ExcludeList: []domain.PathEntry{
			{Path: "/wp-content/plugins/hello.php"},
		},
	}
}

func TestLocalRestorerCopiesIncludedMinusExcluded(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	destination := filepath.Join(t.TempDir(), "restored")
	restorer := NewLocalRestorer(root)

	result, err := restorer.Restore(context.Background(), RestoreRequest{
		Kind:        domain.KindRestore,
		Destination: destination,
		CheckList:   uploadsCheckList(),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.FailureCount, result.Errors)
	assert.Equal(t, 3, result.SuccessCount)
	assert.FileExists(t, filepath.Join(destination, "wp-config.php"))
	assert.FileExists(t, filepath.Join(destination, "wp-content", "plugins", "akismet", "akismet.php"))
	assert.FileExists(t, filepath.Join(destination, "wp-content", "plugins", "akismet", "readme.txt"))
	assert.NoFileExists(t, filepath.Join(destination, "wp-content", "plugins", "hello.php"))
	assert.NoDirExists(t, filepath.Join(destination, "sql"))

	data, err := os.ReadFile(filepath.Join(destination, "wp-config.php"))
	require.NoError(t, err)
	assert.Equal(t, "<?php", string(data))
}

func TestLocalRestorerWritesArchive(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	destination := filepath.Join(t.TempDir(), "download")
	restorer := NewLocalRestorer(root)

	result, err := restorer.Restore(context.Background(), RestoreRequest{
		Kind:        domain.KindDownload,
		Destination: destination,
		CheckList:   uploadsCheckList(),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, "download.tar.gz", result.ID)

	file, err := os.Open(destination + ".tar.gz")
	require.NoError(t, err)
	defer file.Close()
	gzipReader, err := gzip.NewReader(file)
	require.NoError(t, err)
	reader := tar.NewReader(gzipReader)
	var files []string
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if header.Typeflag == tar.TypeReg {
			files = append(files, header.Name)
		}
	}
	sort.Strings(files)
	assert.Equal(t, []string{
		"wp-config.php",
		"wp-content/plugins/akismet/akismet.php",
		"wp-content/plugins/akismet/readme.txt",
	}, files)
}

func TestLocalRestorerRefusesExistingDestination(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	restorer := NewLocalRestorer(root)

	_, err := restorer.Restore(context.Background(), RestoreRequest{
		Kind:        domain.KindRestore,
		Destination: t.TempDir(),
		CheckList:   uploadsCheckList(),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination exists")
}

func TestLocalRestorerSafeModeBlocksSystemPaths(t *testing.T) {
	restorer := NewLocalRestorer(t.TempDir())

	_, err := restorer.Restore(context.Background(), RestoreRequest{
		Kind:        domain.KindRestore,
		Destination: "/etc/restorepick",
		CheckList:   uploadsCheckList(),
		SafeMode:    true,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked critical destination")
}

func TestLocalRestorerValidation(t *testing.T) {
	restorer := NewLocalRestorer(t.TempDir())
	ctx := context.Background()

	_, err := restorer.Restore(ctx, RestoreRequest{Kind: domain.KindRestore, Destination: "x"})
	assert.ErrorIs(t, err, ErrNothingSelected)

	_, err = restorer.Restore(ctx, RestoreRequest{Kind: domain.KindRestore, CheckList: uploadsCheckList()})
	assert.EqualError(t, err, "destination required")
}

func TestIsCriticalPath(t *testing.T) {
	assert.True(t, isCriticalPath("/"))
	assert.True(t, isCriticalPath("/etc"))
	assert.True(t, isCriticalPath("/usr/local/share"))
	assert.False(t, isCriticalPath("/tmp/restore"))
	if home, err := os.UserHomeDir(); err == nil {
		assert.True(t, isCriticalPath(home))
		assert.False(t, isCriticalPath(filepath.Join(home, "restores")))
	}
}

func TestLocalRestorerProgressResetsBetweenRuns(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	restorer := NewLocalRestorer(root)
	assert.Nil(t, restorer.Progress())

	for _, name := range []string{"first", "second"} {
		result, err := restorer.Restore(context.Background(), RestoreRequest{
			Kind:        domain.KindRestore,
			Destination: filepath.Join(t.TempDir(), name),
			CheckList:   uploadsCheckList(),
		})
		require.NoError(t, err, name)
		assert.Equal(t, 3, result.SuccessCount, name)
		assert.Nil(t, restorer.Progress(), name)
	}
}

func TestLocalRestorerCancelledDownloadLeavesNoArchive(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	destination := filepath.Join(t.TempDir(), "download")
	restorer := NewLocalRestorer(root)
	request := RestoreRequest{
		Kind:        domain.KindDownload,
		Destination: destination,
		CheckList:   uploadsCheckList(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := restorer.Restore(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, "download cancelled", result.Message)
	assert.NoFileExists(t, destination+".tar.gz")

	result, err = restorer.Restore(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.FileExists(t, destination+".tar.gz")
}

func TestLocalRestorerCancelledRestoreLeavesNoDirectory(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	destination := filepath.Join(t.TempDir(), "restored")
	restorer := NewLocalRestorer(root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := restorer.Restore(ctx, RestoreRequest{
		Kind:        domain.KindRestore,
		Destination: destination,
		CheckList:   uploadsCheckList(),
	})

	require.NoError(t, err)
	assert.Equal(t, "restore cancelled", result.Message)
	assert.NoDirExists(t, destination)
}

type recordingCloser struct {
	name   string
	err    error
	closed *[]string
}

func (closer recordingCloser) Close() error {
	*closer.closed = append(*closer.closed, closer.name)
	return closer.err
}

func TestCloseAllClosesEveryCloser(t *testing.T) {
	var closed []string
	flushErr := errors.New("no space left on device")

	err := closeAll(
		recordingCloser{name: "tar", closed: &closed},
		recordingCloser{name: "gzip", err: flushErr, closed: &closed},
		recordingCloser{name: "file", closed: &closed},
	)

	assert.ErrorIs(t, err, flushErr)
	assert.Equal(t, []string{"tar", "gzip", "file"}, closed)
	assert.NoError(t, closeAll(recordingCloser{name: "tar", closed: &closed}))
}

func TestCopyFileRemovesPartialTarget(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	info, err := os.Stat(filepath.Join(root, "wp-config.php"))
	require.NoError(t, err)
	target := filepath.Join(t.TempDir(), "out", "wp-config.php")

	err = copyFile(context.Background(), filepath.Join(root, "sql"), target, info)

	require.Error(t, err)
	assert.NoFileExists(t, target)
}
