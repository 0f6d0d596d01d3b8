// Package monitoring provides Prometheus metrics for the bridge:
// HTTP request instrumentation plus domain counters for tree
// hydration (fetches, cache hits, coalesced expands), secret
// persistence (saves by trigger, debounce rearms), transfers (bytes,
// live handles) and widget connections.
package monitoring
