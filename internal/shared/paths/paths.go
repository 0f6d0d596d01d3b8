// Package paths provides helpers for sandbox node identifiers.
//
// A node id is the root-relative path of a file or folder, always
// prefixed with "/". The backend addresses the same entry without the
// leading separator, so the two forms are converted at the gateway
// boundary and nowhere else.
package paths

import (
	"net/url"
	"strings"
)

// Root is the id of the sandbox root folder.
const Root = "/"

// Sanitize normalizes a raw path into canonical id-relative form:
// URL-decoded, no leading/trailing separators, no "." or ".."
// components. Mirrors the backend's own sanitizer so ids computed
// client-side always match what the server stores.
func Sanitize(path string) string {
	if decoded, err := url.QueryUnescape(path); err == nil {
		path = decoded
	}
	parts := make([]string, 0, 8)
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "/")
}

// ToID converts a backend-relative path into a node id.
func ToID(path string) string {
	clean := Sanitize(path)
	if clean == "" {
		return Root
	}
	return "/" + clean
}

// ToRequest converts a node id into the path form the backend expects
// (no leading separator; root is the empty string).
func ToRequest(id string) string {
	return strings.TrimPrefix(id, "/")
}

// Base returns the segment after the last separator; used as the
// suggested filename for downloads.
func Base(id string) string {
	trimmed := strings.TrimSuffix(id, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

// Parent returns the id of the enclosing folder, or Root when the node
// sits directly under the root.
func Parent(id string) string {
	trimmed := strings.TrimSuffix(id, "/")
	i := strings.LastIndex(trimmed, "/")
	if i <= 0 {
		return Root
	}
	return trimmed[:i]
}

// Join appends a child name to a folder id.
func Join(id, name string) string {
	if id == Root || id == "" {
		return "/" + name
	}
	return strings.TrimSuffix(id, "/") + "/" + name
}

// IsDescendant reports whether id lives under (or is) ancestor.
func IsDescendant(ancestor, id string) bool {
	if ancestor == Root {
		return true
	}
	return id == ancestor || strings.HasPrefix(id, ancestor+"/")
}

// EscapeRequest percent-encodes each segment of a backend-relative
// path so it can be embedded in a URL path.
func EscapeRequest(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
