package types

import (
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// NodeKind distinguishes files from folders.
type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

// FileNode is one entry in the lazily hydrated sandbox tree.
//
// Children is nil until the node's listing has been fetched; a fetched
// empty folder holds a non-nil empty slice. Hydrated is true exactly
// when Children is non-nil.
type FileNode struct {
	ID       string
	Name     string
	Size     uint64
	MTime    time.Time
	Kind     NodeKind
	Children []*FileNode
	Hydrated bool
}

// IsFolder reports whether the node is a folder.
func (n *FileNode) IsFolder() bool {
	return n.Kind == KindFolder
}

// wireNode is the widget/backend JSON shape.
type wireNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Size     uint64      `json:"size"`
	Date     string      `json:"date"`
	Type     NodeKind    `json:"type"`
	Children []*FileNode `json:"children,omitempty"`
}

// MarshalJSON emits the widget wire shape. The mtime is serialized as
// stringified unix seconds, matching what the backend itself returns,
// and children are omitted entirely for unhydrated folders so the
// widget can tell "not fetched" from "empty".
func (n *FileNode) MarshalJSON() ([]byte, error) {
	date := "0"
	if !n.MTime.IsZero() {
		date = strconv.FormatFloat(float64(n.MTime.UnixNano())/float64(time.Second), 'f', -1, 64)
	}
	w := wireNode{
		ID:   n.ID,
		Name: n.Name,
		Size: n.Size,
		Date: date,
		Type: n.Kind,
	}
	if n.Hydrated {
		w.Children = n.Children
		if w.Children == nil {
			w.Children = []*FileNode{}
		}
	}
	return sonic.Marshal(w)
}

// ParseWireDate converts the backend's stringified unix mtime into a
// timestamp. Malformed values yield the zero time rather than an
// error; the widget treats the date as display-only.
func ParseWireDate(s string) time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// SecretEntry is one key/value environment variable.
//
// An empty key is permitted transiently (an entry still being typed)
// but is never persisted.
type SecretEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SandboxInfo is the aggregate usage report for quota display.
type SandboxInfo struct {
	UsedBytes uint64 `json:"used_bytes"`
	FileCount uint64 `json:"file_count"`
}
