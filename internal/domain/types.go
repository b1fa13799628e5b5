package domain

type NodeType string

const (
	TypeFile      NodeType = "file"
	TypeDir       NodeType = "dir"
	TypeWordPress NodeType = "wordpress"
	TypeTable     NodeType = "table"
	TypeTheme     NodeType = "theme"
	TypePlugin    NodeType = "plugin"
	TypeArchive   NodeType = "archive"
)

// Restore collapses a listing type to the subset a restore request understands.
func (nodeType NodeType) Restore() NodeType {
	switch nodeType {
	case TypeTable, TypePlugin, TypeTheme:
		return nodeType
	default:
		return TypeFile
	}
}

func ParseNodeType(value string) NodeType {
	switch NodeType(value) {
	case TypeFile, TypeDir, TypeWordPress, TypeTable, TypeTheme, TypePlugin, TypeArchive:
		return NodeType(value)
	default:
		return TypeFile
	}
}

type CheckState string

const (
	Unchecked CheckState = "unchecked"
	Checked   CheckState = "checked"
	Mixed     CheckState = "mixed"
)

type RestoreKind string

const (
	KindRestore  RestoreKind = "restore"
	KindDownload RestoreKind = "download"
)
