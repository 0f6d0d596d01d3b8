// Package paths converts between the two path forms the bridge deals
// in and keeps both canonical.
//
// A node id is the widget-facing form: root-relative with a leading
// slash ("/", "/docs/report.txt"). The request form is what the
// sandbox API expects: no leading slash, empty string for root.
// ToID and ToRequest convert between them and are idempotent.
//
// Sanitize strips traversal segments and percent-encoding before a
// path touches the tree or a URL, mirroring the backend's own
// sanitizer so the two never disagree about which node a path names.
//
//	id := paths.ToID("docs/report.txt")   // "/docs/report.txt"
//	req := paths.ToRequest(id)            // "docs/report.txt"
//	paths.Base(id)                        // "report.txt"
//	paths.Parent(id)                      // "/docs"
//	paths.IsDescendant("/docs", id)       // true
package paths
