// Package filetree keeps the checkbox state of a lazily loaded backup
// listing and derives include/exclude instructions from it.
//
// Nodes live in an arena and refer to each other by NodeID, so the upward
// walk after a check change is a plain loop over parent ids. A Tree is owned
// by a single browse session and is not safe for concurrent use.
package filetree

import (
	"strings"
	"time"

	"restorepick/internal/domain"
)

// NodeID indexes a node in its Tree. Ids are stable for the tree's lifetime.
type NodeID int

const (
	RootID   NodeID = 0
	noParent NodeID = -1
)

// Node is one entry of the tree. Path holds the node's own segment, not the
// full path; use Tree.FullPath for that.
type Node struct {
	Index          NodeID
	Parent         NodeID
	ID             string
	Path           string
	Type           domain.NodeType
	Ancestors      []string
	CheckState     domain.CheckState
	ChildrenLoaded bool
	HasChildren    bool
	TotalItems     int
	Size           int64
	ModTime        time.Time
	Children       []NodeID
}

func (node *Node) IsRoot() bool {
	return node.Index == RootID
}

// Tree is the checkbox tree of one snapshot listing.
type Tree struct {
	nodes []*Node
}

// New returns a tree holding only the unloaded, unchecked root "/".
func New() *Tree {
	root := &Node{
		Index:       RootID,
		Parent:      noParent,
		Path:        "/",
		Type:        domain.TypeDir,
		CheckState:  domain.Unchecked,
		HasChildren: true,
	}
	return &Tree{nodes: []*Node{root}}
}

func (tree *Tree) Root() *Node {
	return tree.nodes[RootID]
}

func (tree *Tree) Len() int {
	return len(tree.nodes)
}

func (tree *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(tree.nodes) {
		return nil
	}
	return tree.nodes[id]
}

func (tree *Tree) Children(node *Node) []*Node {
	if node == nil {
		return nil
	}
	children := make([]*Node, 0, len(node.Children))
	for _, id := range node.Children {
		children = append(children, tree.nodes[id])
	}
	return children
}

// GetNode resolves a slash-delimited path from the root. "/" is the root;
// the empty string and unknown segments resolve to nil.
func (tree *Tree) GetNode(path string) *Node {
	if path == "" {
		return nil
	}
	node := tree.Root()
	for _, segment := range splitPath(path) {
		node = tree.childNamed(node, segment)
		if node == nil {
			return nil
		}
	}
	return node
}

func (tree *Tree) FullPath(node *Node) string {
	if node == nil {
		return ""
	}
	if node.IsRoot() {
		return "/"
	}
	segments := make([]string, 0, len(node.Ancestors))
	for _, ancestor := range node.Ancestors {
		if ancestor == "/" {
			continue
		}
		segments = append(segments, ancestor)
	}
	segments = append(segments, node.Path)
	return "/" + strings.Join(segments, "/")
}

// AddChildNodes attaches a listing to the node at parentPath. A node is
// populated once; later calls for the same node are ignored, as are calls
// for unknown parents. New children start checked only under a checked
// parent.
func (tree *Tree) AddChildNodes(parentPath string, items []domain.ListItem) {
	parent := tree.GetNode(parentPath)
	if parent == nil || parent.ChildrenLoaded {
		return
	}
	ancestors := make([]string, 0, len(parent.Ancestors)+1)
	ancestors = append(ancestors, parent.Ancestors...)
	ancestors = append(ancestors, parent.Path)
	ancestors = ancestors[:len(ancestors):len(ancestors)]

	state := domain.Unchecked
	if parent.CheckState == domain.Checked {
		state = domain.Checked
	}
	for _, item := range items {
		child := &Node{
			Index:       NodeID(len(tree.nodes)),
			Parent:      parent.Index,
			ID:          item.ID,
			Path:        item.Name,
			Type:        item.Type.Restore(),
			Ancestors:   ancestors,
			CheckState:  state,
			HasChildren: item.HasChildren,
			TotalItems:  item.TotalItems,
			Size:        item.Size,
			ModTime:     item.ModTime,
		}
		tree.nodes = append(tree.nodes, child)
		parent.Children = append(parent.Children, child.Index)
	}
	parent.ChildrenLoaded = true
}

// SetNodeCheckState checks or unchecks the node at path together with its
// whole loaded subtree, then recomputes every ancestor up to the root.
// Mixed is derived and cannot be set.
func (tree *Tree) SetNodeCheckState(path string, state domain.CheckState) {
	if state != domain.Checked && state != domain.Unchecked {
		return
	}
	node := tree.GetNode(path)
	if node == nil {
		return
	}
	tree.forceSubtree(node, state)
	for id := node.Parent; id != noParent; id = tree.nodes[id].Parent {
		parent := tree.nodes[id]
		parent.CheckState = tree.aggregate(parent)
	}
}

func (tree *Tree) forceSubtree(node *Node, state domain.CheckState) {
	stack := []*Node{node}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		current.CheckState = state
		for _, id := range current.Children {
			stack = append(stack, tree.nodes[id])
		}
	}
}

func (tree *Tree) aggregate(node *Node) domain.CheckState {
	if len(node.Children) == 0 {
		return node.CheckState
	}
	allChecked := true
	allUnchecked := true
	for _, id := range node.Children {
		switch tree.nodes[id].CheckState {
		case domain.Checked:
			allUnchecked = false
		case domain.Unchecked:
			allChecked = false
		default:
			allChecked = false
			allUnchecked = false
		}
	}
	switch {
	case allChecked:
		return domain.Checked
	case allUnchecked:
		return domain.Unchecked
	default:
		return domain.Mixed
	}
}

// Walk visits nodes depth-first in listing order. Returning false from fn
// skips the node's children.
func (tree *Tree) Walk(fn func(node *Node, depth int) bool) {
	tree.walk(tree.Root(), 0, fn)
}

func (tree *Tree) walk(node *Node, depth int, fn func(node *Node, depth int) bool) {
	if !fn(node, depth) {
		return
	}
	for _, id := range node.Children {
		tree.walk(tree.nodes[id], depth+1, fn)
	}
}

func (tree *Tree) childNamed(node *Node, name string) *Node {
	for _, id := range node.Children {
		if child := tree.nodes[id]; child.Path == name {
			return child
		}
	}
	return nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
