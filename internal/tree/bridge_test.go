package tree

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxui/bridge/internal/session"
	"github.com/sandboxui/bridge/internal/shared/errs"
	"github.com/sandboxui/bridge/internal/shared/paths"
	"github.com/sandboxui/bridge/internal/shared/types"
)

// fakeLister serves canned listings keyed by backend-relative path and
// counts calls. A non-nil gate blocks every List until the gate closes.
type fakeLister struct {
	mu       sync.Mutex
	calls    int
	children map[string][]*types.FileNode
	err      error
	gate     chan struct{}
}

func (f *fakeLister) List(ctx context.Context, sandboxID, path string) ([]*types.FileNode, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.calls++
	err := f.err
	children := f.children[path]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return children, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLister) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func folder(id string) *types.FileNode {
	return &types.FileNode{ID: id, Name: paths.Base(id), Kind: types.KindFolder}
}

func file(id string) *types.FileNode {
	return &types.FileNode{ID: id, Name: paths.Base(id), Kind: types.KindFile}
}

func newTestBridge(lister *fakeLister) (*Bridge, *session.Session) {
	sess := session.New()
	b := New(sess, lister, nil)
	sess.Set("sb-1", "tok")
	return b, sess
}

func TestExpandCachesHydratedNode(t *testing.T) {
	lister := &fakeLister{children: map[string][]*types.FileNode{
		"": {folder("/docs"), file("/a.txt")},
	}}
	b, _ := newTestBridge(lister)

	first, err := b.Expand(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, lister.callCount())

	// Repeated expand/collapse cycles never hit the network again.
	for i := 0; i < 3; i++ {
		again, err := b.Expand(context.Background(), "/")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 1, lister.callCount())
}

func TestExpandEmptyIDMeansRoot(t *testing.T) {
	lister := &fakeLister{children: map[string][]*types.FileNode{
		"": {file("/a.txt")},
	}}
	b, _ := newTestBridge(lister)

	children, err := b.Expand(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, children, 1)

	cached, err := b.Expand(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, children, cached)
	assert.Equal(t, 1, lister.callCount())
}

func TestExpandWithoutSessionIsNoop(t *testing.T) {
	lister := &fakeLister{}
	sess := session.New()
	b := New(sess, lister, nil)

	children, err := b.Expand(context.Background(), "/")
	require.NoError(t, err)
	assert.Nil(t, children)
	assert.Equal(t, 0, lister.callCount())
}

func TestConcurrentExpandsCoalesce(t *testing.T) {
	gate := make(chan struct{})
	lister := &fakeLister{
		gate: gate,
		children: map[string][]*types.FileNode{
			"docs": {file("/docs/a.txt")},
		},
	}
	b, _ := newTestBridge(lister)

	const n = 8
	results := make([][]*types.FileNode, n)
	expandErrs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], expandErrs[i] = b.Expand(context.Background(), "/docs")
		}(i)
	}

	// Let the expands pile up on the in-flight fetch, then release it.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, lister.callCount(), "concurrent expands must share one fetch")
	for i := 0; i < n; i++ {
		require.NoError(t, expandErrs[i])
		require.Len(t, results[i], 1)
		assert.Equal(t, "/docs/a.txt", results[i][0].ID)
	}
}

func TestFailedNodeRefetchesOnNextExpand(t *testing.T) {
	lister := &fakeLister{children: map[string][]*types.FileNode{
		"docs": {file("/docs/a.txt")},
	}}
	lister.setErr(errs.New(errs.Unreachable, "down"))
	b, _ := newTestBridge(lister)

	_, err := b.Expand(context.Background(), "/docs")
	require.Error(t, err)
	assert.Equal(t, errs.Unreachable, errs.KindOf(err))
	assert.Equal(t, 1, lister.callCount())

	lister.setErr(nil)
	children, err := b.Expand(context.Background(), "/docs")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, 2, lister.callCount())
}

func TestErrorLeavesRestOfTreeIntact(t *testing.T) {
	lister := &fakeLister{children: map[string][]*types.FileNode{
		"":     {folder("/docs"), folder("/broken")},
		"docs": {file("/docs/a.txt")},
	}}
	b, _ := newTestBridge(lister)

	_, err := b.Expand(context.Background(), "/")
	require.NoError(t, err)
	_, err = b.Expand(context.Background(), "/docs")
	require.NoError(t, err)
	before := lister.callCount()

	lister.setErr(errs.New(errs.NotFound, "gone"))
	_, err = b.Expand(context.Background(), "/broken")
	require.Error(t, err)

	lister.setErr(nil)
	// Hydrated nodes still answer from cache.
	_, err = b.Expand(context.Background(), "/")
	require.NoError(t, err)
	_, err = b.Expand(context.Background(), "/docs")
	require.NoError(t, err)
	assert.Equal(t, before+1, lister.callCount())
}

func TestInvalidateForcesRefetchAndDropsDescendants(t *testing.T) {
	lister := &fakeLister{children: map[string][]*types.FileNode{
		"":         {folder("/docs")},
		"docs":     {folder("/docs/sub")},
		"docs/sub": {file("/docs/sub/a.txt")},
	}}
	b, _ := newTestBridge(lister)

	_, err := b.Expand(context.Background(), "/")
	require.NoError(t, err)
	_, err = b.Expand(context.Background(), "/docs")
	require.NoError(t, err)
	_, err = b.Expand(context.Background(), "/docs/sub")
	require.NoError(t, err)
	require.Equal(t, 3, lister.callCount())

	b.Invalidate("/docs")

	_, err = b.Expand(context.Background(), "/docs")
	require.NoError(t, err)
	assert.Equal(t, 4, lister.callCount(), "invalidated node re-fetches")

	_, err = b.Expand(context.Background(), "/docs/sub")
	require.NoError(t, err)
	assert.Equal(t, 5, lister.callCount(), "descendants were dropped with the parent")

	_, err = b.Expand(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, 5, lister.callCount(), "root untouched by child invalidation")
}

func TestInvalidateUnknownNodeIsNoop(t *testing.T) {
	lister := &fakeLister{}
	b, _ := newTestBridge(lister)
	b.Invalidate("/never/seen")
	assert.Equal(t, 0, lister.callCount())
}

func TestSessionSwitchDiscardsInFlightResult(t *testing.T) {
	gate := make(chan struct{})
	lister := &fakeLister{
		gate: gate,
		children: map[string][]*types.FileNode{
			"docs": {file("/docs/old.txt")},
		},
	}
	b, sess := newTestBridge(lister)

	done := make(chan struct{})
	var children []*types.FileNode
	var expandErr error
	go func() {
		defer close(done)
		children, expandErr = b.Expand(context.Background(), "/docs")
	}()

	time.Sleep(20 * time.Millisecond)
	sess.Set("sb-2", "tok") // identity change while the fetch is in flight
	close(gate)
	<-done

	require.NoError(t, expandErr)
	assert.Nil(t, children, "result from the old session must be discarded")

	// Nothing from the stale fetch leaked into the new session's tree.
	lister.gate = nil
	fresh, err := b.Expand(context.Background(), "/docs")
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, 2, lister.callCount())
}

func TestResetDropsEverything(t *testing.T) {
	lister := &fakeLister{children: map[string][]*types.FileNode{
		"": {file("/a.txt")},
	}}
	b, _ := newTestBridge(lister)

	_, err := b.Expand(context.Background(), "/")
	require.NoError(t, err)
	require.Equal(t, 1, lister.callCount())

	b.Reset()

	_, err = b.Expand(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.callCount())
}

func TestChildrenKeepBackendOrder(t *testing.T) {
	lister := &fakeLister{children: map[string][]*types.FileNode{
		"": {file("/z.txt"), file("/a.txt"), folder("/m")},
	}}
	b, _ := newTestBridge(lister)

	children, err := b.Expand(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "/z.txt", children[0].ID)
	assert.Equal(t, "/a.txt", children[1].ID)
	assert.Equal(t, "/m", children[2].ID)
}
