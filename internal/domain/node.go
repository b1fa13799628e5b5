package domain

import (
	"strings"
	"time"
)

// ListItem is one entry of a remote directory listing.
type ListItem struct {
	ID          string
	Name        string
	Type        NodeType
	HasChildren bool
	TotalItems  int
	Size        int64
	ModTime     time.Time
}

type PathEntry struct {
	ID   string
	Path string
	Type NodeType
}

// CheckList is the include/exclude instruction set for a restore or download.
type CheckList struct {
	TotalItems  int
	IncludeList []PathEntry
	ExcludeList []PathEntry
}

func (list CheckList) Empty() bool {
	return len(list.IncludeList) == 0
}

func (list CheckList) IncludePaths() string {
	return joinPaths(list.IncludeList)
}

func (list CheckList) ExcludePaths() string {
	return joinPaths(list.ExcludeList)
}

func joinPaths(entries []PathEntry) string {
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	return strings.Join(paths, ",")
}
