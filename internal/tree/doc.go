// Package tree bridges the stateless, path-addressed sandbox listing
// API into the incremental tree a file-manager widget expects.
//
// Per-node state machine:
//
//	Unknown ──expand──▶ Loading ──ok──▶ Hydrated
//	   ▲                   │
//	   │                   └──error──▶ Failed ──expand──▶ Loading
//	   └──────── invalidate / reset ────────┘
//
// Hydrated nodes answer expands synchronously from cache; repeated
// expand/collapse of the same folder never re-fetches. Concurrent
// expands of one node coalesce into a single list call via
// singleflight. Session identity changes discard the tree and any
// in-flight results: nothing fetched under the old sandbox or
// credential is ever merged into the new session's tree.
package tree
