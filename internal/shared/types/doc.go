// Package types defines the data model shared across the bridge:
// file tree nodes, secret entries, and sandbox usage info.
//
// The wire representation mirrors the sandbox backend: list items are
// {id, name, size, date, type, children} where date is a stringified
// unix mtime and ids carry no leading separator. Nodes held in memory
// always use the normalized form (leading "/", parsed timestamps);
// conversion happens once at the gateway boundary.
package types
