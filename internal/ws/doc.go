// Package ws speaks the file-manager widget protocol over WebSocket.
//
// The socket is a control channel only: listings, env edits, notices
// and transfer handles travel as JSON messages, while file bytes move
// over plain HTTP in both directions (the transfers route down, the
// uploads route up). Failures become non-blocking notice messages; the
// connection stays up regardless of what the sandbox API returns.
package ws
