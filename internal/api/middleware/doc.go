// Package middleware provides gin middleware for the bridge's HTTP
// surface: CORS for the cross-origin widget and per-IP rate limiting.
package middleware
