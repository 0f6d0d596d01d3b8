// Package server assembles the bridge and exposes its HTTP surface:
// the widget WebSocket, one-shot transfer handles, multipart uploads,
// health and Prometheus metrics.
package server
