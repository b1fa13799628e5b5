package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restorepick/internal/domain"
)

func writeSnapshot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		target := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
		require.NoError(t, os.WriteFile(target, []byte(content), 0o644))
	}
	return root
}

func snapshotFiles() map[string]string {
	return map[string]string{
		"wp-config.php":                           "<?php",
		".htaccess":                               "deny",
		"sql/wp_posts.sql":                        "CREATE TABLE",
		"sql/notes.txt":                           "n",
		"wp-content/plugins/akismet/akismet.php":  "<?php",
		"wp-content/plugins/akismet/readme.txt":   "r",
		"wp-content/plugins/hello.php":            "<?php",
		"wp-content/themes/twentytwentyfour/a.css": "a",
		"wp-content/uploads/export.tar.gz":        "gz",
		"wp-content/uploads/.hidden":              "h",
	}
}

func itemsByName(items []domain.ListItem) map[string]domain.ListItem {
	byName := make(map[string]domain.ListItem, len(items))
	for _, item := range items {
		byName[item.Name] = item
	}
	return byName
}

func TestLocalListerRoot(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	lister := NewLocalLister(root, false)

	result, err := lister.List(context.Background(), ListRequest{Path: "/"})

	require.NoError(t, err)
	byName := itemsByName(result.Items)
	assert.Len(t, byName, 3)
	assert.NotContains(t, byName, ".htaccess")
	assert.Equal(t, domain.TypeDir, byName["sql"].Type)
	assert.Equal(t, 2, byName["sql"].TotalItems)
	assert.True(t, byName["sql"].HasChildren)
	assert.Equal(t, "sql", byName["sql"].ID)
	assert.Equal(t, domain.TypeFile, byName["wp-config.php"].Type)
	assert.Equal(t, 1, byName["wp-config.php"].TotalItems)
	assert.Equal(t, int64(5), byName["wp-config.php"].Size)
}

func TestLocalListerClassifiesWordPressLayout(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	lister := NewLocalLister(root, false)
	ctx := context.Background()

	sql, err := lister.List(ctx, ListRequest{Path: "/sql"})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeTable, itemsByName(sql.Items)["wp_posts.sql"].Type)
	assert.Equal(t, domain.TypeFile, itemsByName(sql.Items)["notes.txt"].Type)

	plugins, err := lister.List(ctx, ListRequest{Path: "/wp-content/plugins"})
	require.NoError(t, err)
	assert.Equal(t, domain.TypePlugin, itemsByName(plugins.Items)["akismet"].Type)
	assert.Equal(t, "wp-content/plugins/akismet", itemsByName(plugins.Items)["akismet"].ID)
	assert.Equal(t, domain.TypeFile, itemsByName(plugins.Items)["hello.php"].Type)

	themes, err := lister.List(ctx, ListRequest{Path: "wp-content/themes/"})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeTheme, itemsByName(themes.Items)["twentytwentyfour"].Type)

	uploads, err := lister.List(ctx, ListRequest{Path: "/wp-content/uploads"})
	require.NoError(t, err)
	require.Len(t, uploads.Items, 1)
	assert.Equal(t, domain.TypeArchive, uploads.Items[0].Type)
}

func TestLocalListerShowHidden(t *testing.T) {
	root := writeSnapshot(t, snapshotFiles())
	lister := NewLocalLister(root, true)

	result, err := lister.List(context.Background(), ListRequest{Path: "/wp-content"})

	require.NoError(t, err)
	assert.Equal(t, 2, itemsByName(result.Items)["uploads"].TotalItems)
}

func TestLocalListerMissingPath(t *testing.T) {
	lister := NewLocalLister(t.TempDir(), false)

	_, err := lister.List(context.Background(), ListRequest{Path: "/nope"})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalListerRejectsEscapes(t *testing.T) {
	lister := NewLocalLister(t.TempDir(), false)

	_, err := lister.List(context.Background(), ListRequest{Path: "/../etc"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes snapshot root")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		rel   string
		isDir bool
		want  domain.NodeType
	}{
		{"sql/wp_users.sql", false, domain.TypeTable},
		{"backup/wp_users.sql", false, domain.TypeFile},
		{"wp-content/plugins/jetpack", true, domain.TypePlugin},
		{"wp-content/plugins/jetpack/modules", true, domain.TypeDir},
		{"wp-content/themes/astra", true, domain.TypeTheme},
		{"wp-content/themes/style.css", false, domain.TypeFile},
		{"site.ZIP", false, domain.TypeArchive},
		{"export.tgz", false, domain.TypeArchive},
		{"uploads", true, domain.TypeDir},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.rel, tc.isDir), tc.rel)
	}
}
