package state

import (
	"sort"
	"strings"

	"restorepick/internal/config"
	"restorepick/internal/domain"
	"restorepick/internal/filetree"
	"restorepick/internal/metrics"
)

type SortMode string

const (
	SortListing SortMode = "listing"
	SortByName  SortMode = "name"
	SortBySize  SortMode = "size"
)

type Preferences struct {
	ShowHidden bool
	SafeMode   bool
	SortMode   SortMode
	Theme      string
}

// State is one browse session over one snapshot.
type State struct {
	RewindID    string
	Session     int
	Tree        *filetree.Tree
	Cursor      int
	Expanded    map[filetree.NodeID]bool
	Loading     map[string]bool
	Prefs       Preferences
	Destination string
	SearchQuery string
}

type VisibleNode struct {
	Node  *filetree.Node
	Depth int
}

func NewState(cfg config.Config) *State {
	appState := &State{
		Prefs: Preferences{
			ShowHidden: cfg.ShowHidden,
			SafeMode:   cfg.SafeMode,
			SortMode:   SortListing,
			Theme:      cfg.Theme,
		},
		Destination: cfg.Destination,
	}
	appState.Reset(cfg.RewindID)
	return appState
}

// Reset drops the tree and every per-session mark. It is called whenever
// the snapshot changes since ids of different snapshots never mix.
func (appState *State) Reset(rewindID string) {
	appState.RewindID = rewindID
	appState.Session++
	appState.Tree = filetree.New()
	appState.Cursor = 0
	appState.Expanded = map[filetree.NodeID]bool{filetree.RootID: true}
	appState.Loading = make(map[string]bool)
	appState.SearchQuery = ""
	metrics.SetTreeNodes(appState.Tree.Len())
}

// BeginLoad marks path as being listed. It reports false when no listing
// is needed: the node is unknown, has no children, is already populated or
// a listing for it is already in flight.
func (appState *State) BeginLoad(path string) bool {
	node := appState.Tree.GetNode(path)
	if node == nil || node.ChildrenLoaded || !node.HasChildren {
		return false
	}
	if appState.Loading[path] {
		return false
	}
	appState.Loading[path] = true
	return true
}

func (appState *State) ApplyListing(path string, items []domain.ListItem) {
	delete(appState.Loading, path)
	appState.Tree.AddChildNodes(path, items)
	metrics.SetTreeNodes(appState.Tree.Len())
}

func (appState *State) FailLoad(path string) {
	delete(appState.Loading, path)
}

func (appState *State) IsLoading(node *filetree.Node) bool {
	if node == nil {
		return false
	}
	return appState.Loading[appState.Tree.FullPath(node)]
}

func (appState *State) ToggleExpanded(id filetree.NodeID) bool {
	appState.Expanded[id] = !appState.Expanded[id]
	if !appState.Expanded[id] {
		delete(appState.Expanded, id)
		return false
	}
	return true
}

func (appState *State) Expand(id filetree.NodeID) {
	appState.Expanded[id] = true
}

func (appState *State) IsExpanded(id filetree.NodeID) bool {
	return appState.Expanded[id]
}

func (appState *State) VisibleNodes() []VisibleNode {
	root := appState.Tree.Root()
	visible := make([]VisibleNode, 0, appState.Tree.Len())
	if appState.SearchQuery == "" {
		appState.appendNode(&visible, root, 0)
		return visible
	}
	query := strings.ToLower(appState.SearchQuery)
	appState.appendMatches(&visible, root, 0, query)
	return visible
}

func (appState *State) appendNode(visible *[]VisibleNode, node *filetree.Node, depth int) {
	*visible = append(*visible, VisibleNode{Node: node, Depth: depth})
	if !appState.IsExpanded(node.Index) {
		return
	}
	for _, child := range appState.sortedChildren(node) {
		appState.appendNode(visible, child, depth+1)
	}
}

// appendMatches keeps nodes whose name contains query plus every ancestor
// of such a node, ignoring expansion so matches are never hidden.
func (appState *State) appendMatches(visible *[]VisibleNode, node *filetree.Node, depth int, query string) bool {
	position := len(*visible)
	*visible = append(*visible, VisibleNode{Node: node, Depth: depth})
	matched := node.IsRoot() || strings.Contains(strings.ToLower(node.Path), query)
	for _, child := range appState.sortedChildren(node) {
		if appState.appendMatches(visible, child, depth+1, query) {
			matched = true
		}
	}
	if !matched {
		*visible = (*visible)[:position]
	}
	return matched
}

func (appState *State) sortedChildren(node *filetree.Node) []*filetree.Node {
	all := appState.Tree.Children(node)
	children := all[:0]
	for _, child := range all {
		if !appState.Prefs.ShowHidden && strings.HasPrefix(child.Path, ".") {
			continue
		}
		children = append(children, child)
	}
	if len(children) < 2 {
		return children
	}
	switch appState.Prefs.SortMode {
	case SortByName:
		sort.SliceStable(children, func(i, j int) bool {
			return strings.ToLower(children[i].Path) < strings.ToLower(children[j].Path)
		})
	case SortBySize:
		sort.SliceStable(children, func(i, j int) bool {
			return children[i].Size > children[j].Size
		})
	}
	return children
}

func (appState *State) ToggleSortMode() SortMode {
	switch appState.Prefs.SortMode {
	case SortListing:
		appState.Prefs.SortMode = SortByName
	case SortByName:
		appState.Prefs.SortMode = SortBySize
	default:
		appState.Prefs.SortMode = SortListing
	}
	return appState.Prefs.SortMode
}

func (appState *State) ToggleShowHidden() bool {
	appState.Prefs.ShowHidden = !appState.Prefs.ShowHidden
	appState.ClampCursor()
	return appState.Prefs.ShowHidden
}

func (appState *State) CurrentNode() *filetree.Node {
	visible := appState.VisibleNodes()
	if len(visible) == 0 || appState.Cursor < 0 || appState.Cursor >= len(visible) {
		return nil
	}
	return visible[appState.Cursor].Node
}

func (appState *State) MoveCursor(delta int) {
	appState.Cursor += delta
	appState.ClampCursor()
}

func (appState *State) ClampCursor() {
	count := len(appState.VisibleNodes())
	if appState.Cursor >= count {
		appState.Cursor = count - 1
	}
	if appState.Cursor < 0 {
		appState.Cursor = 0
	}
}

// FocusParent moves the cursor to the parent of the current node.
func (appState *State) FocusParent() bool {
	node := appState.CurrentNode()
	if node == nil || node.IsRoot() {
		return false
	}
	for index, entry := range appState.VisibleNodes() {
		if entry.Node.Index == node.Parent {
			appState.Cursor = index
			return true
		}
	}
	return false
}

// ToggleCheck flips a node between checked and unchecked. A mixed node
// counts as checked, so the first toggle clears it.
func (appState *State) ToggleCheck(id filetree.NodeID) {
	node := appState.Tree.Node(id)
	if node == nil {
		return
	}
	target := domain.Checked
	if node.CheckState != domain.Unchecked {
		target = domain.Unchecked
	}
	appState.Tree.SetNodeCheckState(appState.Tree.FullPath(node), target)
}

func (appState *State) SelectAll(checked bool) {
	target := domain.Unchecked
	if checked {
		target = domain.Checked
	}
	appState.Tree.SetNodeCheckState("/", target)
}

func (appState *State) SelectionSummary() domain.CheckList {
	return appState.Tree.CheckList()
}

func (appState *State) ClearFilters() {
	appState.SearchQuery = ""
	appState.ClampCursor()
}
