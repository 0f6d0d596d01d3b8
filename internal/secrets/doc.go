// Package secrets manages the sandbox's environment variables as the
// widget edits them: an ordered key/value sequence persisted wholesale,
// with debounced saves so typing does not turn into a save per
// keystroke.
package secrets
