// Package session owns the sandbox identity: which sandbox the bridge
// is talking to and with which credential.
//
// The session's epoch fences every asynchronous fetch. When identity
// changes (a different sandbox id or a different credential) the
// epoch advances and reset hooks fire, so cached trees and pending
// results from the previous identity are discarded rather than merged.
// In-flight HTTP is not aborted; its result is simply ignored when it
// lands under a newer epoch.
package session

import (
	"sync"

	"github.com/sandboxui/bridge/internal/transport"
)

// Session holds the current sandbox identity.
type Session struct {
	mu        sync.RWMutex
	sandboxID string
	token     string
	epoch     uint64
	hooks     []func()
}

// New creates an empty session. Operations attempted before Set are
// treated as no-ops by the components that consult ID().
func New() *Session {
	return &Session{}
}

// OnReset registers a hook invoked after every identity change. Hooks
// run outside the session lock, in registration order.
func (s *Session) OnReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Set switches to a new sandbox identity. A call that changes nothing
// is a no-op; any change to sandbox id or credential advances the
// epoch and fires the reset hooks.
func (s *Session) Set(sandboxID, token string) {
	s.mu.Lock()
	if s.sandboxID == sandboxID && s.token == token {
		s.mu.Unlock()
		return
	}
	s.sandboxID = sandboxID
	s.token = token
	s.epoch++
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// SetCredential replaces the bearer credential for the current
// sandbox. A changed credential is a changed identity: caches from the
// old credential are discarded.
func (s *Session) SetCredential(token string) {
	s.mu.RLock()
	sandboxID := s.sandboxID
	s.mu.RUnlock()
	s.Set(sandboxID, token)
}

// Clear drops the identity entirely.
func (s *Session) Clear() {
	s.Set("", "")
}

// ID returns the current sandbox id; empty means no session.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sandboxID
}

// Active reports whether a sandbox identity is set.
func (s *Session) Active() bool {
	return s.ID() != ""
}

// Epoch returns the current identity generation. Asynchronous
// operations capture it before fetching and compare on completion.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// TokenSource exposes the credential to the auth transport.
func (s *Session) TokenSource() transport.TokenSource {
	return func() string {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.token
	}
}
