package secrets

import (
	"context"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandboxui/bridge/internal/infrastructure/monitoring"
	"github.com/sandboxui/bridge/internal/logging"
	"github.com/sandboxui/bridge/internal/session"
	"github.com/sandboxui/bridge/internal/shared/errs"
	"github.com/sandboxui/bridge/internal/shared/types"
)

// DefaultDebounce is the quiet window that coalesces rapid keystrokes
// into one save.
const DefaultDebounce = 500 * time.Millisecond

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidKey reports whether a key may be persisted. The empty key is
// valid only transiently, for an entry still being typed, and is never
// written to the backend.
func IsValidKey(key string) bool {
	return key == "" || keyPattern.MatchString(key)
}

// Persister is the capability the store saves through; the gateway
// satisfies it.
type Persister interface {
	LoadEnv(ctx context.Context, sandboxID string) ([]types.SecretEntry, error)
	SaveEnv(ctx context.Context, sandboxID string, vars []types.SecretEntry) error
}

// Store holds the ordered key/value sequence for the active session
// and persists changes with debouncing to avoid write amplification.
//
// Only one debounce timer exists; each qualifying edit cancels and
// restarts it. A slow in-flight save overlapping a fresh timer firing
// is resolved last-write-wins: the later request carries the newer
// sequence and no wire ordering is assumed.
type Store struct {
	mu      sync.Mutex
	entries []types.SecretEntry
	timer   *time.Timer
	window  time.Duration

	sess      *session.Session
	persister Persister
	notify    func(error)

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a store bound to the session. Switching sandbox or
// credential discards the sequence and any pending save.
func New(sess *session.Session, persister Persister, window time.Duration, logger *logging.Logger) *Store {
	if window <= 0 {
		window = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		window:    window,
		sess:      sess,
		persister: persister,
		logger:    logger.Named("secrets"),
	}
	sess.OnReset(s.Reset)
	return s
}

// WithMetrics attaches a metrics collector.
func (s *Store) WithMetrics(m *monitoring.Metrics) *Store {
	s.metrics = m
	return s
}

// OnError registers a sink for asynchronous save failures; they are
// surfaced to the widget as non-blocking notices.
func (s *Store) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Load replaces the in-memory sequence wholesale with the persisted
// one. Load always wins; callers must not load while an edit is
// pending save.
func (s *Store) Load(ctx context.Context) ([]types.SecretEntry, error) {
	sandboxID := s.sess.ID()
	if sandboxID == "" {
		return nil, nil
	}

	vars, err := s.persister.LoadEnv(ctx, sandboxID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries = vars
	out := s.snapshotLocked()
	s.mu.Unlock()
	return out, nil
}

// Entries returns a copy of the current sequence in order.
func (s *Store) Entries() []types.SecretEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Add appends an empty entry for the user to fill in. Never triggers
// a save: an empty entry must not be persisted.
func (s *Store) Add() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, types.SecretEntry{})
}

// Remove deletes the entry at index and saves immediately when the
// result is either empty (clearing all remote variables) or still
// contains at least one fully valid entry. Persistence happens at the
// sequence level; a lone invalid leftover blocks nothing but also
// saves nothing.
func (s *Store) Remove(ctx context.Context, index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.entries) {
		s.mu.Unlock()
		return errs.Newf(errs.Invalid, "no entry at index %d", index)
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
	shouldSave := len(s.entries) == 0 || s.hasValidLocked()
	if shouldSave {
		s.stopTimerLocked()
	}
	s.mu.Unlock()

	if !shouldSave {
		return nil
	}
	return s.save(ctx, "remove")
}

// Update mutates one field of the entry at index. When the entry ends
// up with a non-empty valid key and a non-empty value, a debounced
// save is scheduled; an edit arriving before the timer fires restarts
// it instead of queueing a second write.
func (s *Store) Update(index int, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.entries) {
		return errs.Newf(errs.Invalid, "no entry at index %d", index)
	}
	switch field {
	case "key":
		s.entries[index].Key = value
	case "value":
		s.entries[index].Value = value
	default:
		return errs.Newf(errs.Invalid, "unknown field %q", field)
	}

	e := s.entries[index]
	if e.Key != "" && e.Value != "" && keyPattern.MatchString(e.Key) {
		s.armLocked()
	}
	return nil
}

// Flush persists a pending debounced save immediately; used when the
// widget unmounts. A no-op when nothing is pending.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.timer != nil
	s.stopTimerLocked()
	s.mu.Unlock()

	if !pending {
		return nil
	}
	return s.save(ctx, "flush")
}

// Reset cancels any pending save and drops the sequence; only the
// active session's secrets are ever held.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.entries = nil
}

// stopTimerLocked cancels a pending debounce timer, if any. Callers
// hold s.mu.
func (s *Store) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// armLocked starts or restarts the single-slot debounce timer.
// Callers hold s.mu.
func (s *Store) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
		if s.metrics != nil {
			s.metrics.DebounceRearms.Inc()
		}
	}
	sandboxID := s.sess.ID()
	s.timer = time.AfterFunc(s.window, func() {
		s.debounced(sandboxID)
	})
}

// debounced runs when the quiet window elapses. The sandbox id was
// captured when the timer was armed: if the session has switched
// since, the save is skipped rather than writing the old session's
// secrets into the new one.
func (s *Store) debounced(sandboxID string) {
	s.mu.Lock()
	s.timer = nil
	stale := s.sess.ID() != sandboxID
	s.mu.Unlock()

	if stale {
		return
	}
	if err := s.save(context.Background(), "debounce"); err != nil {
		s.mu.Lock()
		notify := s.notify
		s.mu.Unlock()
		if notify != nil {
			notify(err)
		}
	}
}

// save persists the current sequence. Entries with an empty key are
// excluded (never persist an entry being typed); malformed non-empty
// keys are persisted as-is with the UI responsible for flagging them.
func (s *Store) save(ctx context.Context, trigger string) error {
	sandboxID := s.sess.ID()
	if sandboxID == "" {
		return nil
	}

	s.mu.Lock()
	vars := make([]types.SecretEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Key == "" {
			continue
		}
		vars = append(vars, e)
	}
	s.mu.Unlock()

	if err := s.persister.SaveEnv(ctx, sandboxID, vars); err != nil {
		if s.metrics != nil {
			s.metrics.SecretSaveFails.Inc()
		}
		s.logger.Warn("env save failed",
			zap.String("sandbox_id", sandboxID),
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return err
	}
	if s.metrics != nil {
		s.metrics.SecretSaves.WithLabelValues(trigger).Inc()
	}
	s.logger.Debug("env saved",
		zap.String("sandbox_id", sandboxID),
		zap.String("trigger", trigger),
		zap.Int("entries", len(vars)),
	)
	return nil
}

func (s *Store) hasValidLocked() bool {
	for _, e := range s.entries {
		if e.Key != "" && e.Value != "" && keyPattern.MatchString(e.Key) {
			return true
		}
	}
	return false
}

func (s *Store) snapshotLocked() []types.SecretEntry {
	out := make([]types.SecretEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
