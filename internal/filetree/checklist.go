package filetree

import "restorepick/internal/domain"

// CheckList compresses the current selection into include and exclude
// directives. An included path covers its whole subtree and an excluded path
// carves a subtree back out of an included ancestor.
//
// A mixed directory whose children are all leaves and more than half
// checked is sent as "include the directory, exclude the unchecked leaves";
// every other mixed directory lists its checked children and recurses into
// mixed ones.
func (tree *Tree) CheckList() domain.CheckList {
	var list domain.CheckList
	tree.collect(tree.Root(), &list)
	return list
}

func (tree *Tree) collect(node *Node, list *domain.CheckList) {
	switch node.CheckState {
	case domain.Unchecked:
		return
	case domain.Checked:
		list.IncludeList = append(list.IncludeList, tree.entry(node))
		if node.IsRoot() {
			for _, child := range tree.Children(node) {
				if child.CheckState == domain.Checked {
					list.TotalItems += child.TotalItems
				}
			}
		}
		return
	}

	children := tree.Children(node)
	selected := 0
	flat := true
	for _, child := range children {
		if child.CheckState == domain.Checked {
			selected++
		}
		if len(child.Children) > 0 {
			flat = false
		}
	}

	switch {
	case selected == len(children):
		list.IncludeList = append(list.IncludeList, tree.entry(node))
		for _, child := range children {
			list.TotalItems += child.TotalItems
		}
	case selected*2 > len(children) && flat:
		list.IncludeList = append(list.IncludeList, tree.entry(node))
		for _, child := range children {
			switch child.CheckState {
			case domain.Checked:
				list.TotalItems += child.TotalItems
			case domain.Unchecked:
				list.ExcludeList = append(list.ExcludeList, tree.entry(child))
			}
		}
	default:
		for _, child := range children {
			switch child.CheckState {
			case domain.Checked:
				list.IncludeList = append(list.IncludeList, tree.entry(child))
				list.TotalItems += child.TotalItems
			case domain.Mixed:
				tree.collect(child, list)
			}
		}
	}
}

// SelectedList returns every fully checked subtree root, without the
// exclusion compression of CheckList.
func (tree *Tree) SelectedList() []domain.PathEntry {
	var selected []domain.PathEntry
	tree.Walk(func(node *Node, _ int) bool {
		switch node.CheckState {
		case domain.Checked:
			selected = append(selected, tree.entry(node))
			return false
		case domain.Mixed:
			return true
		default:
			return false
		}
	})
	return selected
}

func (tree *Tree) entry(node *Node) domain.PathEntry {
	return domain.PathEntry{
		ID:   node.ID,
		Path: tree.FullPath(node),
		Type: node.Type,
	}
}
