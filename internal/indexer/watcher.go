package indexer

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mvp-joe/codemorph/internal/errs"
)

// DefaultDebounce is how long the watcher waits for events to settle.
const DefaultDebounce = 500 * time.Millisecond

// WatchBatch reports one debounced round of incremental updates.
type WatchBatch struct {
	Updated []string
	Removed []string
	Failed  map[string]error
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithOnBatch registers a callback run after each batch is applied.
func WithOnBatch(fn func(WatchBatch)) WatchOption {
	return func(w *Watcher) {
		w.onBatch = fn
	}
}

// Watcher watches the index root and feeds file changes to UpdateFile and
// RemoveFile.
type Watcher struct {
	index        *Index
	discovery    *FileDiscovery
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	onBatch      func(WatchBatch)
	stopCh       chan struct{}
	doneCh       chan struct{}
	startOnce    sync.Once
	stopOnce     sync.Once
	started      bool
}

// NewWatcher creates a file watcher for idx. The filter selects the same
// files IndexProject would.
func NewWatcher(idx *Index, filter Filter, opts ...WatchOption) (*Watcher, error) {
	if err := idx.checkOpen("watch"); err != nil {
		return nil, err
	}
	discovery, err := idx.discovery(filter)
	if err != nil {
		return nil, errs.Validation("watch", "", "", "exclude-pattern", err.Error())
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.IO("watch", idx.root, err)
	}

	w := &Watcher{
		index:        idx,
		discovery:    discovery,
		watcher:      watcher,
		debounceTime: DefaultDebounce,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addDirectoriesRecursively(idx.root); err != nil {
		watcher.Close()
		return nil, errs.IO("watch", idx.root, err)
	}
	return w, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started = true
		go w.watch(ctx)
	})
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.startOnce.Do(func() {}) // a later Start is a no-op
		if w.started {
			<-w.doneCh
		}
		w.watcher.Close()
	})
}

// watch is the main event loop with debouncing logic.
func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	reindexCh := make(chan struct{}, 1)
	changed := make(map[string]bool)

	stopTimer := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return

		case <-w.stopCh:
			stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				stopTimer()
				return
			}
			if !w.collect(event, changed) {
				continue
			}

			stopTimer()
			debounceTimer = time.AfterFunc(w.debounceTime, func() {
				select {
				case reindexCh <- struct{}{}:
				default:
				}
			})

		case <-reindexCh:
			w.apply(ctx, changed)
			changed = make(map[string]bool)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				stopTimer()
				return
			}
			log.Printf("File watcher error: %v", err)
		}
	}
}

// collect records the paths an event touches and reports whether anything
// relevant happened.
func (w *Watcher) collect(event fsnotify.Event, changed map[string]bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	rel, err := w.relPath(event.Name)
	if err != nil || w.ignored(rel) {
		return false
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectoriesRecursively(event.Name); err != nil {
				log.Printf("Warning: failed to watch new directory %s: %v", event.Name, err)
			}
			// Files may have landed before the directory was watched.
			files, err := w.discovery.DiscoverFilesUnder(event.Name)
			if err != nil {
				log.Printf("Warning: failed to scan new directory %s: %v", event.Name, err)
			}
			for _, f := range files {
				changed[f] = true
			}
			return len(files) > 0
		}
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		changed[rel] = true
		return true
	}
	if !w.discovery.Matches(rel) {
		return false
	}
	changed[rel] = true
	return true
}

// apply feeds a batch of changed paths to the index.
func (w *Watcher) apply(ctx context.Context, changed map[string]bool) {
	if len(changed) == 0 {
		return
	}
	paths := make([]string, 0, len(changed))
	for p := range changed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	log.Printf("Reindexing due to changes in %d path(s)...", len(paths))
	start := time.Now()
	batch := WatchBatch{Failed: make(map[string]error)}

	for _, rel := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(w.index.AbsPath(rel)); errors.Is(err, fs.ErrNotExist) {
			batch.Removed = append(batch.Removed, w.removeTree(rel)...)
			continue
		}
		if !w.discovery.Matches(rel) {
			continue
		}
		rec, err := w.index.UpdateFile(ctx, rel)
		switch {
		case err != nil:
			batch.Failed[rel] = err
			log.Printf("Warning: failed to reindex %s: %v", rel, err)
		case rec != nil:
			batch.Updated = append(batch.Updated, rel)
		}
	}

	log.Printf("Reindex complete in %v (%d updated, %d removed)", time.Since(start), len(batch.Updated), len(batch.Removed))
	if w.onBatch != nil {
		w.onBatch(batch)
	}
}

// removeTree drops rel, or every indexed file under it when rel was a
// directory.
func (w *Watcher) removeTree(rel string) []string {
	var removed []string
	for _, p := range w.index.Paths() {
		if p != rel && !strings.HasPrefix(p, rel+"/") {
			continue
		}
		if err := w.index.RemoveFile(p); err != nil && !errors.Is(err, errs.ErrNotFound) {
			log.Printf("Warning: failed to remove %s from index: %v", p, err)
			continue
		}
		removed = append(removed, p)
	}
	return removed
}

func (w *Watcher) relPath(abs string) (string, error) {
	rel, err := filepath.Rel(w.index.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", errors.New("outside root")
	}
	return rel, nil
}

// ignored reports whether rel or one of its directories is excluded.
func (w *Watcher) ignored(rel string) bool {
	for p := rel; p != "." && p != ""; p = filepath.ToSlash(filepath.Dir(p)) {
		if w.discovery.shouldIgnore(p) {
			return true
		}
	}
	return false
}

// addDirectoriesRecursively adds all directories in the tree to the watcher.
func (w *Watcher) addDirectoriesRecursively(rootPath string) error {
	return filepath.WalkDir(rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == rootPath {
				return err
			}
			log.Printf("Warning: error accessing %s: %v", p, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.index.root {
			if rel, err := w.relPath(p); err == nil && w.ignored(rel) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(p); err != nil {
			log.Printf("Warning: failed to watch directory %s: %v", p, err)
		}
		return nil
	})
}
