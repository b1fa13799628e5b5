package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restorepick/internal/config"
	"restorepick/internal/domain"
	"restorepick/internal/filetree"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RewindID = "r1"
	appState := NewState(cfg)
	require.True(t, appState.BeginLoad("/"))
	appState.ApplyListing("/", []domain.ListItem{
		{ID: "1", Name: "wp-content", Type: domain.TypeDir, HasChildren: true, TotalItems: 2},
		{ID: "2", Name: "sql", Type: domain.TypeDir, HasChildren: true, TotalItems: 2, Size: 10},
		{ID: "3", Name: ".htaccess", Type: domain.TypeFile, TotalItems: 1, Size: 1},
		{ID: "4", Name: "wp-config.php", Type: domain.TypeFile, TotalItems: 1, Size: 99},
	})
	return appState
}

func names(visible []VisibleNode) []string {
	out := make([]string, 0, len(visible))
	for _, entry := range visible {
		out = append(out, entry.Node.Path)
	}
	return out
}

func TestBeginLoadGuardsDuplicateListings(t *testing.T) {
	appState := newTestState(t)

	assert.False(t, appState.BeginLoad("/"), "root already populated")
	assert.False(t, appState.BeginLoad("/wp-config.php"), "leaf has nothing to list")
	assert.False(t, appState.BeginLoad("/missing"))

	require.True(t, appState.BeginLoad("/sql"))
	assert.False(t, appState.BeginLoad("/sql"), "listing already in flight")
	assert.True(t, appState.IsLoading(appState.Tree.GetNode("/sql")))

	appState.FailLoad("/sql")
	assert.True(t, appState.BeginLoad("/sql"), "retry allowed after failure")

	appState.ApplyListing("/sql", []domain.ListItem{{ID: "5", Name: "wp_posts.sql", Type: domain.TypeTable, TotalItems: 1}})
	assert.False(t, appState.IsLoading(appState.Tree.GetNode("/sql")))
	assert.NotNil(t, appState.Tree.GetNode("/sql/wp_posts.sql"))
}

func TestVisibleNodesFollowExpansionAndHidden(t *testing.T) {
	appState := newTestState(t)

	assert.Equal(t, []string{"/", "wp-content", "sql", "wp-config.php"}, names(appState.VisibleNodes()))

	appState.ToggleShowHidden()
	assert.Equal(t, []string{"/", "wp-content", "sql", ".htaccess", "wp-config.php"}, names(appState.VisibleNodes()))

	appState.ToggleExpanded(filetree.RootID)
	assert.Equal(t, []string{"/"}, names(appState.VisibleNodes()))
}

func TestVisibleNodesDepthAndSort(t *testing.T) {
	appState := newTestState(t)
	require.True(t, appState.BeginLoad("/sql"))
	appState.ApplyListing("/sql", []domain.ListItem{
		{ID: "5", Name: "wp_users.sql", Type: domain.TypeTable, TotalItems: 1},
		{ID: "6", Name: "wp_posts.sql", Type: domain.TypeTable, TotalItems: 1},
	})
	appState.ToggleExpanded(appState.Tree.GetNode("/sql").Index)

	visible := appState.VisibleNodes()
	assert.Equal(t, []string{"/", "wp-content", "sql", "wp_users.sql", "wp_posts.sql", "wp-config.php"}, names(visible))
	assert.Equal(t, 2, visible[3].Depth)

	assert.Equal(t, SortByName, appState.ToggleSortMode())
	assert.Equal(t, []string{"/", "sql", "wp_posts.sql", "wp_users.sql", "wp-config.php", "wp-content"}, names(appState.VisibleNodes()))

	assert.Equal(t, SortBySize, appState.ToggleSortMode())
	assert.Equal(t, "wp-config.php", names(appState.VisibleNodes())[1])

	assert.Equal(t, SortListing, appState.ToggleSortMode())
}

func TestSearchKeepsAncestorsOfMatches(t *testing.T) {
	appState := newTestState(t)
	require.True(t, appState.BeginLoad("/sql"))
	appState.ApplyListing("/sql", []domain.ListItem{
		{ID: "5", Name: "wp_users.sql", Type: domain.TypeTable, TotalItems: 1},
		{ID: "6", Name: "wp_posts.sql", Type: domain.TypeTable, TotalItems: 1},
	})

	appState.SearchQuery = "POSTS"
	assert.Equal(t, []string{"/", "sql", "wp_posts.sql"}, names(appState.VisibleNodes()))

	appState.SearchQuery = "nothing-matches"
	assert.Equal(t, []string{"/"}, names(appState.VisibleNodes()))

	appState.ClearFilters()
	assert.Len(t, appState.VisibleNodes(), 4)
}

func TestToggleCheckCyclesThroughMixed(t *testing.T) {
	appState := newTestState(t)
	sql := appState.Tree.GetNode("/sql")
	root := appState.Tree.Root()

	appState.ToggleCheck(sql.Index)
	assert.Equal(t, domain.Checked, sql.CheckState)
	assert.Equal(t, domain.Mixed, root.CheckState)

	appState.ToggleCheck(root.Index)
	assert.Equal(t, domain.Unchecked, root.CheckState)
	assert.Equal(t, domain.Unchecked, sql.CheckState)

	appState.ToggleCheck(root.Index)
	assert.Equal(t, domain.Checked, sql.CheckState)

	appState.ToggleCheck(filetree.NodeID(999))
}

func TestSelectAllAndSummary(t *testing.T) {
	appState := newTestState(t)

	appState.SelectAll(true)
	summary := appState.SelectionSummary()
	require.Len(t, summary.IncludeList, 1)
	assert.Equal(t, "/", summary.IncludeList[0].Path)
	assert.Equal(t, 6, summary.TotalItems)

	appState.SelectAll(false)
	assert.True(t, appState.SelectionSummary().Empty())
}

func TestCursorHelpers(t *testing.T) {
	appState := newTestState(t)

	appState.MoveCursor(10)
	assert.Equal(t, 3, appState.Cursor)
	assert.Equal(t, "wp-config.php", appState.CurrentNode().Path)

	assert.True(t, appState.FocusParent())
	assert.Equal(t, 0, appState.Cursor)
	assert.False(t, appState.FocusParent())

	appState.MoveCursor(-5)
	assert.Equal(t, 0, appState.Cursor)
}

func TestResetDropsSession(t *testing.T) {
	appState := newTestState(t)
	appState.ToggleCheck(appState.Tree.GetNode("/sql").Index)
	appState.Cursor = 2
	appState.SearchQuery = "sql"
	appState.Loading["/wp-content"] = true

	appState.Reset("r2")

	assert.Equal(t, "r2", appState.RewindID)
	assert.Equal(t, 1, appState.Tree.Len())
	assert.Equal(t, 0, appState.Cursor)
	assert.Empty(t, appState.SearchQuery)
	assert.Empty(t, appState.Loading)
	assert.True(t, appState.IsExpanded(filetree.RootID))
	assert.True(t, appState.BeginLoad("/"))
}
