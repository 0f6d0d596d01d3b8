package tree

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sandboxui/bridge/internal/infrastructure/monitoring"
	"github.com/sandboxui/bridge/internal/logging"
	"github.com/sandboxui/bridge/internal/session"
	"github.com/sandboxui/bridge/internal/shared/paths"
	"github.com/sandboxui/bridge/internal/shared/types"
)

// Lister is the backing-store capability the bridge depends on. The
// gateway satisfies it; tests substitute fakes.
type Lister interface {
	List(ctx context.Context, sandboxID, path string) ([]*types.FileNode, error)
}

// nodeState tracks hydration per node.
type nodeState int

const (
	stateUnknown nodeState = iota // never requested, or invalidated
	stateLoading                  // fetch in flight
	stateHydrated                 // children known
	stateFailed                   // fetch errored; re-enters fetch on next expand
)

// entry pairs a node with its hydration state. gen advances on
// invalidation so an in-flight fetch started before the invalidation
// cannot merge stale children afterwards.
type entry struct {
	node  *types.FileNode
	state nodeState
	gen   uint64
}

// Bridge maintains the lazily hydrated sandbox tree. It owns the node
// table and pending-fetch bookkeeping exclusively; callers observe the
// tree only through Expand, Invalidate and Reset.
type Bridge struct {
	mu     sync.Mutex
	nodes  map[string]*entry
	group  *singleflight.Group
	sess   *session.Session
	lister Lister

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a bridge bound to the session. The bridge registers
// itself as a session reset hook: switching sandbox or credential
// drops the whole tree.
func New(sess *session.Session, lister Lister, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &Bridge{
		nodes:  make(map[string]*entry),
		group:  new(singleflight.Group),
		sess:   sess,
		lister: lister,
		logger: logger.Named("tree"),
	}
	sess.OnReset(b.Reset)
	return b
}

// WithMetrics attaches a metrics collector.
func (b *Bridge) WithMetrics(m *monitoring.Metrics) *Bridge {
	b.metrics = m
	return b
}

// Expand returns the children of nodeID, fetching them at most once.
//
// Hydrated nodes are served from cache with no network call. A node
// whose fetch is already in flight joins that fetch: concurrent
// expands of the same node produce exactly one list call and every
// caller observes the same result. Unknown and Failed nodes start a
// fresh fetch. With no active session the call is a no-op.
func (b *Bridge) Expand(ctx context.Context, nodeID string) ([]*types.FileNode, error) {
	sandboxID := b.sess.ID()
	if sandboxID == "" {
		return nil, nil
	}
	if nodeID == "" {
		nodeID = paths.Root
	}

	b.mu.Lock()
	e := b.ensureLocked(nodeID)
	if e.state == stateHydrated {
		children := copyChildren(e.node.Children)
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.TreeCacheHits.Inc()
		}
		return children, nil
	}
	if e.state != stateLoading {
		e.state = stateLoading
	}
	gen := e.gen
	epoch := b.sess.Epoch()
	b.mu.Unlock()

	v, err, shared := b.group.Do(nodeID, func() (interface{}, error) {
		// A racing caller may have completed hydration between our
		// state check and this closure running.
		b.mu.Lock()
		if cur, ok := b.nodes[nodeID]; ok && cur.state == stateHydrated {
			children := copyChildren(cur.node.Children)
			b.mu.Unlock()
			return children, nil
		}
		b.mu.Unlock()

		children, listErr := b.lister.List(ctx, sandboxID, paths.ToRequest(nodeID))
		return b.merge(nodeID, gen, epoch, children, listErr)
	})

	if shared && b.metrics != nil {
		b.metrics.TreeCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	children, _ := v.([]*types.FileNode)
	return children, nil
}

// merge folds a completed fetch into the tree. Results that landed
// after a session switch or an invalidation of the node are discarded
// without touching any state.
func (b *Bridge) merge(nodeID string, gen, epoch uint64, children []*types.FileNode, listErr error) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sess.Epoch() != epoch {
		b.logger.Debug("discarding stale fetch after session switch", zap.String("node", nodeID))
		return nil, nil
	}
	e := b.ensureLocked(nodeID)
	if e.gen != gen {
		b.logger.Debug("discarding fetch for invalidated node", zap.String("node", nodeID))
		return nil, nil
	}

	if listErr != nil {
		e.state = stateFailed
		if b.metrics != nil {
			b.metrics.TreeFetches.WithLabelValues("error").Inc()
		}
		return nil, listErr
	}

	if children == nil {
		children = []*types.FileNode{}
	}
	e.node.Children = children
	e.node.Hydrated = true
	e.state = stateHydrated
	for _, child := range children {
		b.nodes[child.ID] = &entry{node: child}
	}
	if b.metrics != nil {
		b.metrics.TreeFetches.WithLabelValues("ok").Inc()
	}
	return copyChildren(children), nil
}

// Invalidate forces a node back to Unknown, discarding its cached
// subtree. Called after mutations (upload, delete, mkdir, rename)
// scoped to the mutated node's parent so the next expand re-fetches.
func (b *Bridge) Invalidate(nodeID string) {
	if nodeID == "" {
		nodeID = paths.Root
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.nodes[nodeID]
	if !ok {
		return
	}
	e.gen++
	e.state = stateUnknown
	e.node.Children = nil
	e.node.Hydrated = false

	for id := range b.nodes {
		if id != nodeID && paths.IsDescendant(nodeID, id) {
			delete(b.nodes, id)
		}
	}
	b.group.Forget(nodeID)
}

// Reset drops the entire tree and all pending-fetch bookkeeping.
// Responses from fetches issued before the reset are discarded by the
// session epoch guard.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes = make(map[string]*entry)
	b.group = new(singleflight.Group)
}

// ensureLocked returns the entry for nodeID, creating an Unknown
// folder entry on first reference. Callers hold b.mu.
func (b *Bridge) ensureLocked(nodeID string) *entry {
	if e, ok := b.nodes[nodeID]; ok {
		return e
	}
	e := &entry{
		node: &types.FileNode{
			ID:   nodeID,
			Name: paths.Base(nodeID),
			Kind: types.KindFolder,
		},
	}
	b.nodes[nodeID] = e
	return e
}

func copyChildren(children []*types.FileNode) []*types.FileNode {
	out := make([]*types.FileNode, len(children))
	copy(out, children)
	return out
}
