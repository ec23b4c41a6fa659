package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akulikov/securetext/internal/client/remote"
	"github.com/akulikov/securetext/internal/common"
	"github.com/akulikov/securetext/internal/logging"
)

// fakeTree is a remote.Store fake that only serves tree listings.
type fakeTree struct {
	mu       sync.Mutex
	children map[string][]remote.Node
	reverse  bool
	offline  bool
	lists    atomic.Int64

	listGate chan struct{}
}

func newFakeTree() *fakeTree {
	return &fakeTree{children: make(map[string][]remote.Node)}
}

func (f *fakeTree) add(parentID string, n remote.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ParentID = parentID
	f.children[parentID] = append(f.children[parentID], n)
}

func (f *fakeTree) remove(parentID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.children[parentID][:0]
	for _, n := range f.children[parentID] {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	f.children[parentID] = kept
}

func (f *fakeTree) rename(parentID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.children[parentID] {
		if n.ID == id {
			f.children[parentID][i].Name = name
		}
	}
}

func (f *fakeTree) ListChildren(ctx context.Context, folderID string) ([]remote.Node, error) {
	f.lists.Add(1)
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, common.ErrRemoteUnavailable
	}
	nodes := append([]remote.Node(nil), f.children[folderID]...)
	if f.reverse {
		for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
			nodes[i], nodes[j] = nodes[j], nodes[i]
		}
	}
	return nodes, nil
}

func (f *fakeTree) EnsureRootFolder(ctx context.Context, name string) (string, error) {
	return "root", nil
}
func (f *fakeTree) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	return "", nil
}
func (f *fakeTree) CreateFile(ctx context.Context, name, parentID string) (string, error) {
	return "", nil
}
func (f *fakeTree) Rename(ctx context.Context, id, newName string) error     { return nil }
func (f *fakeTree) Trash(ctx context.Context, id string) error               { return nil }
func (f *fakeTree) LoadBytes(ctx context.Context, id string) ([]byte, error) { return nil, nil }
func (f *fakeTree) SaveBytes(ctx context.Context, id string, data []byte) error {
	return nil
}

func seedTree(f *fakeTree) {
	f.add("root", remote.Node{ID: "d1", Name: "notes", Folder: true})
	f.add("root", remote.Node{ID: "f1", Name: "todo.txt"})
	f.add("d1", remote.Node{ID: "f2", Name: "ideas.txt"})
}

func TestTreeFingerprint_StableAcrossListingOrder(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTree()
	seedTree(ft)

	c := NewCoordinator(ft, logging.NewNop(), "root", 0, nil)
	fp1, err := c.TreeFingerprint(ctx)
	require.NoError(t, err)

	ft.reverse = true
	fp2, err := c.TreeFingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestTreeFingerprint_ChangesOnStructure(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTree()
	seedTree(ft)

	c := NewCoordinator(ft, logging.NewNop(), "root", 0, nil)
	base, err := c.TreeFingerprint(ctx)
	require.NoError(t, err)

	ft.rename("root", "f1", "done.txt")
	renamed, err := c.TreeFingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, base, renamed)

	ft.add("d1", remote.Node{ID: "f3", Name: "new.txt"})
	added, err := c.TreeFingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, renamed, added)

	ft.remove("d1", "f3")
	removed, err := c.TreeFingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, renamed, removed)
}

func TestConditionalRefresh_FiresOnChangeOnly(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTree()
	seedTree(ft)

	var fired atomic.Int64
	c := NewCoordinator(ft, logging.NewNop(), "root", 0, func(ctx context.Context) {
		fired.Add(1)
	})

	// first refresh: fingerprint moves from empty
	changed, err := c.ConditionalRefresh(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 1, fired.Load())

	// nothing changed
	changed, err = c.ConditionalRefresh(ctx, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.EqualValues(t, 1, fired.Load())

	// force fires without a change
	changed, err = c.ConditionalRefresh(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.EqualValues(t, 2, fired.Load())

	ft.rename("root", "f1", "renamed.txt")
	changed, err = c.ConditionalRefresh(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 3, fired.Load())
}

func TestConditionalRefresh_FailureDoesNotAdvanceFingerprint(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTree()
	seedTree(ft)

	var fired atomic.Int64
	c := NewCoordinator(ft, logging.NewNop(), "root", 0, func(ctx context.Context) {
		fired.Add(1)
	})

	_, err := c.ConditionalRefresh(ctx, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, fired.Load())

	// tree changes, but the listing fails mid-flight
	ft.rename("root", "f1", "renamed.txt")
	ft.mu.Lock()
	ft.offline = true
	ft.mu.Unlock()

	_, err = c.ConditionalRefresh(ctx, false)
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.EqualValues(t, 1, fired.Load())

	// once back, the change is still detected
	ft.mu.Lock()
	ft.offline = false
	ft.mu.Unlock()

	changed, err := c.ConditionalRefresh(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 2, fired.Load())
}

func TestConditionalRefresh_NotReentrant(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTree()
	seedTree(ft)
	ft.listGate = make(chan struct{})

	c := NewCoordinator(ft, logging.NewNop(), "root", 0, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.ConditionalRefresh(ctx, false)
	}()

	// wait for the first refresh to block inside the listing
	require.Eventually(t, func() bool { return ft.lists.Load() > 0 },
		time.Second, 5*time.Millisecond)

	changed, err := c.ConditionalRefresh(ctx, false)
	require.NoError(t, err)
	assert.False(t, changed, "overlapping refresh must be a no-op")

	close(ft.listGate)
	<-done
}

func TestStop_WithoutRunReturnsImmediately(t *testing.T) {
	ft := newFakeTree()
	c := NewCoordinator(ft, logging.NewNop(), "root", time.Minute, nil)

	start := time.Now()
	c.Stop()
	c.Stop()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRun_PollsUntilStopped(t *testing.T) {
	ft := newFakeTree()
	seedTree(ft)

	c := NewCoordinator(ft, logging.NewNop(), "root", 5*time.Millisecond, nil)
	go c.Run(context.Background())

	require.Eventually(t, func() bool { return ft.lists.Load() >= 3 },
		time.Second, time.Millisecond)
	c.Stop()

	after := ft.lists.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ft.lists.Load(), "no listings after Stop")
}
