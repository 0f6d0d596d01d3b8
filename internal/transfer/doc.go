// Package transfer moves file bytes between the sandbox and the
// browser out-of-band. The control socket only ever carries a handle
// id; the browser redeems it once over plain HTTP, which keeps large
// payloads off the message channel and lets the response carry real
// Content-Type and Content-Disposition headers.
package transfer
