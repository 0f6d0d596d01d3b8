package transfer

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/sandboxui/bridge/internal/infrastructure/monitoring"
	"github.com/sandboxui/bridge/internal/logging"
	"github.com/sandboxui/bridge/internal/session"
	"github.com/sandboxui/bridge/internal/shared/errs"
	"github.com/sandboxui/bridge/internal/shared/id"
	"github.com/sandboxui/bridge/internal/shared/paths"
)

const (
	// DefaultTTL bounds how long an unclaimed handle is held before the
	// sweep reclaims it.
	DefaultTTL = 2 * time.Minute

	// DefaultMaxBytes caps a single transfer's payload.
	DefaultMaxBytes = 100 << 20

	sweepInterval = 15 * time.Second
)

// Fetcher is the capability the agent streams file bytes through; the
// gateway satisfies it.
type Fetcher interface {
	Download(ctx context.Context, sandboxID, filePath string) (io.ReadCloser, int64, string, error)
}

// Handle is a one-shot claim ticket for fetched file bytes. The widget
// receives the id over the socket and redeems it exactly once against
// the transfer endpoint.
type Handle struct {
	ID          string
	Name        string
	ContentType string
	Disposition string // inline | attachment

	data    []byte
	created time.Time
}

// Bytes returns the payload.
func (h *Handle) Bytes() []byte { return h.data }

// Size returns the payload length in bytes.
func (h *Handle) Size() int { return len(h.data) }

// Agent fetches sandbox files on the widget's behalf and parks the
// bytes behind short-lived handles, so binary payloads never travel
// over the control socket.
type Agent struct {
	mu      sync.Mutex
	handles map[string]*Handle

	sess     *session.Session
	fetcher  Fetcher
	ttl      time.Duration
	maxBytes int64

	done chan struct{}
	once sync.Once

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates an agent bound to the session. Handles unclaimed for ttl
// are reclaimed by a background sweep; Stop ends the sweep.
func New(sess *session.Session, fetcher Fetcher, ttl time.Duration, maxBytes int64, logger *logging.Logger) *Agent {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Agent{
		handles:  make(map[string]*Handle),
		sess:     sess,
		fetcher:  fetcher,
		ttl:      ttl,
		maxBytes: maxBytes,
		done:     make(chan struct{}),
		logger:   logger.Named("transfer"),
	}
	sess.OnReset(a.Reset)
	go a.sweep()
	return a
}

// WithMetrics attaches a metrics collector.
func (a *Agent) WithMetrics(m *monitoring.Metrics) *Agent {
	a.metrics = m
	return a
}

// Open fetches filePath for in-browser viewing. The content type comes
// from the backend when it says something specific, otherwise it is
// sniffed from the payload so the browser can render instead of
// downloading.
func (a *Agent) Open(ctx context.Context, filePath string) (*Handle, error) {
	return a.fetch(ctx, filePath, "inline")
}

// Download fetches filePath for saving to disk; the handle carries an
// attachment disposition with the file's base name.
func (a *Agent) Download(ctx context.Context, filePath string) (*Handle, error) {
	return a.fetch(ctx, filePath, "attachment")
}

func (a *Agent) fetch(ctx context.Context, filePath, disposition string) (*Handle, error) {
	sandboxID := a.sess.ID()
	if sandboxID == "" {
		return nil, errs.New(errs.Invalid, "no active session")
	}
	epoch := a.sess.Epoch()

	body, length, contentType, err := a.fetcher.Download(ctx, sandboxID, filePath)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if length > a.maxBytes {
		return nil, errs.Newf(errs.PayloadTooLarge, "file exceeds %d byte transfer limit", a.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(body, a.maxBytes+1))
	if err != nil {
		return nil, errs.Newf(errs.Unreachable, "transfer interrupted: %v", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, errs.Newf(errs.PayloadTooLarge, "file exceeds %d byte transfer limit", a.maxBytes)
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	h := &Handle{
		ID:          id.NewHandleID().String(),
		Name:        paths.Base(filePath),
		ContentType: contentType,
		Disposition: disposition,
		data:        data,
		created:     time.Now(),
	}

	// The staleness check and the insertion share the lock: a session
	// switch either bumps the epoch before the check or runs Reset
	// after the insert, so a handle fetched under the old credential
	// never survives into the new session.
	a.mu.Lock()
	if a.sess.Epoch() != epoch {
		a.mu.Unlock()
		return nil, errs.New(errs.Invalid, "session changed during transfer")
	}
	a.handles[h.ID] = h
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.TransferBytes.Add(float64(len(data)))
		a.metrics.HandlesActive.Inc()
	}
	a.logger.Debug("handle created",
		zap.String("handle_id", h.ID),
		zap.String("path", filePath),
		zap.String("disposition", disposition),
		zap.Int("bytes", len(data)),
	)
	return h, nil
}

// Take claims a handle, removing it; a handle serves exactly one
// request. The second Take of the same id reports false.
func (a *Agent) Take(handleID string) (*Handle, bool) {
	a.mu.Lock()
	h, ok := a.handles[handleID]
	if ok {
		delete(a.handles, handleID)
	}
	a.mu.Unlock()

	if ok && a.metrics != nil {
		a.metrics.HandlesActive.Dec()
	}
	return h, ok
}

// Release drops an unclaimed handle. Safe to call more than once and
// after Take.
func (a *Agent) Release(handleID string) {
	a.mu.Lock()
	_, ok := a.handles[handleID]
	if ok {
		delete(a.handles, handleID)
	}
	a.mu.Unlock()

	if ok && a.metrics != nil {
		a.metrics.HandlesActive.Dec()
	}
}

// Reset drops every held handle; fired on session identity changes so
// bytes fetched under one credential are never served under another.
func (a *Agent) Reset() {
	a.mu.Lock()
	n := len(a.handles)
	a.handles = make(map[string]*Handle)
	a.mu.Unlock()

	if n > 0 && a.metrics != nil {
		a.metrics.HandlesActive.Sub(float64(n))
	}
}

// Stop ends the background expiry sweep.
func (a *Agent) Stop() {
	a.once.Do(func() { close(a.done) })
}

func (a *Agent) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case now := <-ticker.C:
			a.expire(now)
		}
	}
}

func (a *Agent) expire(now time.Time) {
	a.mu.Lock()
	var expired []string
	for hid, h := range a.handles {
		if now.Sub(h.created) > a.ttl {
			expired = append(expired, hid)
			delete(a.handles, hid)
		}
	}
	a.mu.Unlock()

	for _, hid := range expired {
		if a.metrics != nil {
			a.metrics.HandlesActive.Dec()
			a.metrics.HandlesExpired.Inc()
		}
		a.logger.Debug("handle expired", zap.String("handle_id", hid))
	}
}
