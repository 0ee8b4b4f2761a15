package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Watcher:
// - Created, modified and deleted files reach the index after the debounce
// - A new directory is watched and its files are indexed
// - Ignored directories and unmatched extensions do not trigger updates
// - Stop without Start returns, and Stop twice is safe
// - Context cancellation ends the event loop

func TestWatcher_AppliesChanges(t *testing.T) {
	t.Parallel()

	root, idx := newProject(t, map[string]string{"app.py": "def main():\n    pass\n"})
	_, err := idx.IndexProject(context.Background(), Filter{})
	require.NoError(t, err)

	var mu sync.Mutex
	var batches []WatchBatch
	w, err := NewWatcher(idx, Filter{}, WithDebounce(50*time.Millisecond), WithOnBatch(func(b WatchBatch) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, b)
	}))
	require.NoError(t, err)

	w.Start(context.Background())
	defer w.Stop()

	writeFiles(t, root, map[string]string{"util.py": "def helper():\n    return 1\n"})
	require.Eventually(t, func() bool {
		return len(idx.Symbols().Find("helper")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	writeFiles(t, root, map[string]string{"util.py": "def renamed():\n    return 1\n"})
	require.Eventually(t, func() bool {
		return len(idx.Symbols().Find("renamed")) == 1 && len(idx.Symbols().Find("helper")) == 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "app.py")))
	require.Eventually(t, func() bool {
		return !idx.HasFile("app.py")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	writeFiles(t, root, map[string]string{"pkg/models.py": "class User:\n    pass\n"})
	require.Eventually(t, func() bool {
		return idx.HasFile("pkg/models.py")
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, batches)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	t.Parallel()

	root, idx := newProject(t, map[string]string{"app.py": "x = 1\n"})
	_, err := idx.IndexProject(context.Background(), Filter{})
	require.NoError(t, err)

	w, err := NewWatcher(idx, Filter{}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	event := func(name string) bool {
		return w.collect(fsnotifyWrite(filepath.Join(root, name)), map[string]bool{})
	}
	assert.True(t, event("app.py"))
	assert.False(t, event("notes.txt"))
	assert.False(t, event("node_modules/lib/index.js"))
	assert.False(t, event(".git/HEAD"))

	w.Stop()
	w.Stop()
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	_, idx := newProject(t, map[string]string{"app.py": "x = 1\n"})

	w, err := NewWatcher(idx, Filter{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	select {
	case <-w.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
	w.Stop()
}

func fsnotifyWrite(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}
