// Package indexer maintains the incremental file index: one FileRecord per
// source file, plus the SymbolTable and DependencyGraph derived from them.
//
// All mutations go through a single writer lock, so a file's record, its
// symbol-table entries and its graph edges always change together. Readers
// see the last committed state and receive copies.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/graph"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
	"github.com/mvp-joe/codemorph/internal/indexer/parsers"
)

// Filter narrows IndexProject and Changes on top of the configured
// extensions and excludes.
type Filter struct {
	IncludeExtensions []string
	Exclude           []string
}

// Index is the in-memory index of a project rooted at one directory.
type Index struct {
	root     string
	registry *parsers.Registry
	config   *Config

	mu       sync.RWMutex
	disposed bool
	nextID   FileID
	ids      map[string]FileID
	records  map[FileID]*FileRecord
	dirs     map[string]map[string]bool // directory -> files directly inside it
	symbols  *SymbolTable
	graph    *graph.DependencyGraph
}

// New creates an empty index rooted at root. A nil registry means
// parsers.DefaultRegistry, a nil config means DefaultConfig.
func New(root string, registry *parsers.Registry, cfg *Config) (*Index, error) {
	if registry == nil {
		registry = parsers.DefaultRegistry()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.IO("index", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("index", root, "")
		}
		return nil, errs.IO("index", root, err)
	}
	if !info.IsDir() {
		return nil, errs.Validation("index", root, "", "root-is-directory", "index root must be a directory")
	}

	idx := &Index{
		root:     abs,
		registry: registry,
		config:   cfg,
		ids:      make(map[string]FileID),
		records:  make(map[FileID]*FileRecord),
		dirs:     make(map[string]map[string]bool),
		symbols:  NewSymbolTable(),
	}
	idx.graph = graph.New(idx.resolveImport, graph.WithThresholds(cfg.Thresholds))
	return idx, nil
}

// Root returns the absolute index root.
func (idx *Index) Root() string { return idx.root }

// Registry returns the adapter registry the index parses with.
func (idx *Index) Registry() *parsers.Registry { return idx.registry }

// Symbols returns the symbol table view.
func (idx *Index) Symbols() *SymbolTable { return idx.symbols }

// Graph returns the dependency graph view.
func (idx *Index) Graph() *graph.DependencyGraph { return idx.graph }

// AbsPath converts a root-relative path to an absolute OS path.
func (idx *Index) AbsPath(rel string) string {
	return filepath.Join(idx.root, filepath.FromSlash(rel))
}

// RelPath normalizes an absolute or root-relative path to the index's
// slash-separated form. Paths outside the root are rejected.
func (idx *Index) RelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(idx.root, p)
		if err != nil {
			return "", errs.Validation("index", p, "", "inside-root", err.Error())
		}
		p = rel
	}
	rel := path.Clean(filepath.ToSlash(p))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", errs.Validation("index", p, "", "inside-root", "path must name a file inside the index root")
	}
	return rel, nil
}

// Adapter returns the adapter for an indexed or indexable path.
func (idx *Index) Adapter(rel string) (parsers.Adapter, bool) {
	idx.mu.RLock()
	lang := ""
	if rec := idx.records[idx.ids[rel]]; rec != nil {
		lang = rec.Language
	}
	idx.mu.RUnlock()
	return idx.registry.Resolve(rel, lang)
}

// IndexFile parses one file and stores its record. Oversized files and files
// without an adapter are skipped and return (nil, nil).
func (idx *Index) IndexFile(ctx context.Context, p string) (*FileRecord, error) {
	return idx.refresh(ctx, "index", p, false)
}

// UpdateFile re-parses a file and replaces its record, symbols and edges. An
// unchanged checksum is a no-op. A file that no longer exists is removed from
// the index and reported as NotFound.
func (idx *Index) UpdateFile(ctx context.Context, p string) (*FileRecord, error) {
	return idx.refresh(ctx, "update", p, true)
}

func (idx *Index) refresh(ctx context.Context, op, p string, removeMissing bool) (*FileRecord, error) {
	if err := idx.checkOpen(op); err != nil {
		return nil, err
	}
	rel, err := idx.RelPath(p)
	if err != nil {
		return nil, err
	}

	rec, outcome, err := idx.scan(ctx, rel)
	if err != nil {
		if removeMissing && errs.KindOf(err) == errs.KindNotFound {
			idx.mu.Lock()
			idx.removeLocked(rel)
			idx.mu.Unlock()
		}
		return nil, withOp(err, op)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.disposed {
		return nil, errs.Disposed(op)
	}

	switch outcome {
	case scanSkipped:
		idx.removeLocked(rel)
		return nil, nil
	case scanParsed:
		idx.applyLocked(rec)
	case scanReused:
		if cur := idx.records[idx.ids[rel]]; cur != rec {
			idx.applyLocked(rec)
		}
	}
	return idx.recordLocked(rel), nil
}

// RemoveFile deletes a file's record and everything derived from it.
func (idx *Index) RemoveFile(p string) error {
	rel, err := idx.RelPath(p)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.disposed {
		return errs.Disposed("remove")
	}
	if !idx.removeLocked(rel) {
		return errs.NotFound("remove", rel, "")
	}
	return nil
}

// IndexProject walks the root and rebuilds the index from the files that
// pass the filter. Records whose checksum still matches are reused, parse
// failures become diagnostics, and unreadable files are counted as failed.
func (idx *Index) IndexProject(ctx context.Context, filter Filter) (*IndexStats, error) {
	if err := idx.checkOpen("index"); err != nil {
		return nil, err
	}
	start := time.Now()
	progress := idx.progress()

	progress.OnDiscoveryStart()
	discovery, err := idx.discovery(filter)
	if err != nil {
		return nil, errs.Validation("index", "", "", "exclude-pattern", err.Error())
	}
	files, err := discovery.DiscoverFiles(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.IO("index", idx.root, fmt.Errorf("failed to discover files: %w", err))
	}
	progress.OnDiscoveryComplete(len(files))

	results := make([]*FileRecord, len(files))
	outcomes := make([]scanOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency())
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, outcome, err := idx.scan(gctx, rel)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Printf("Warning: failed to index %s: %v", rel, err)
				outcomes[i] = scanFailed
				return nil
			}
			results[i], outcomes[i] = rec, outcome
			progress.OnFileIndexed(rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats, err := idx.commitProject(results)
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		switch o {
		case scanParsed:
			stats.Parsed++
		case scanReused:
			stats.Reused++
		case scanSkipped:
			stats.Skipped++
		case scanFailed:
			stats.Failed++
		}
	}
	stats.Duration = time.Since(start)
	progress.OnComplete(stats)
	return stats, nil
}

// commitProject swaps in a complete set of records and rebuilds the derived
// views in one writer step.
func (idx *Index) commitProject(results []*FileRecord) (*IndexStats, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.disposed {
		return nil, errs.Disposed("index")
	}

	keep := make(map[string]*FileRecord, len(results))
	for _, rec := range results {
		if rec != nil {
			keep[rec.Path] = rec
		}
	}
	for p, id := range idx.ids {
		if keep[p] == nil {
			delete(idx.ids, p)
			delete(idx.records, id)
			idx.unlinkDir(p)
		}
	}

	idx.symbols.reset()
	deps := make(map[string][]extraction.Dependency, len(keep))
	for _, p := range sortedPaths(keep) {
		rec := idx.assignID(keep[p])
		idx.records[rec.ID] = rec
		idx.symbols.add(rec)
		deps[p] = rec.Dependencies
	}
	idx.graph.Build(deps)

	return idx.statsLocked(), nil
}

// LoadRecords seeds the index with previously persisted records. Existing
// records for the same paths are replaced.
func (idx *Index) LoadRecords(records []*FileRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.disposed {
		return errs.Disposed("load")
	}

	for _, r := range records {
		if r == nil || r.Path == "" {
			continue
		}
		rec := r.Clone()
		if id, ok := idx.ids[rec.Path]; ok {
			idx.symbols.remove(rec.Path)
			rec.ID = id
		} else {
			rec.ID = 0
		}
		rec = idx.assignID(rec)
		idx.records[rec.ID] = rec
		idx.symbols.add(rec)
	}

	deps := make(map[string][]extraction.Dependency, len(idx.records))
	for _, rec := range idx.records {
		deps[rec.Path] = rec.Dependencies
	}
	idx.graph.Build(deps)
	return nil
}

// Record returns a copy of a file's record with dependency statements
// annotated by the graph.
func (idx *Index) Record(p string) (*FileRecord, error) {
	rel, err := idx.RelPath(p)
	if err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.disposed {
		return nil, errs.Disposed("record")
	}
	rec := idx.recordLocked(rel)
	if rec == nil {
		return nil, errs.NotFound("record", rel, "")
	}
	return rec, nil
}

// HasFile reports whether a root-relative path is indexed.
func (idx *Index) HasFile(rel string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.ids[rel]
	return ok
}

// Records returns copies of every record, sorted by path.
func (idx *Index) Records() []*FileRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	paths := idx.pathsLocked()
	out := make([]*FileRecord, 0, len(paths))
	for _, p := range paths {
		out = append(out, idx.recordLocked(p))
	}
	return out
}

// Paths lists the indexed paths, sorted.
func (idx *Index) Paths() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.pathsLocked()
}

// Stats summarizes the current index contents.
func (idx *Index) Stats() *IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.statsLocked()
}

// ImportContext returns a view of the indexed file set for resolving the
// dependency statements of from.
func (idx *Index) ImportContext(from string) parsers.ImportContext {
	return parsers.ImportContext{
		Root: idx.root,
		From: from,
		Exists: func(p string) bool {
			return idx.HasFile(p)
		},
		FilesInDir: func(dir string) []string {
			idx.mu.RLock()
			defer idx.mu.RUnlock()
			return idx.filesInDirLocked(dir)
		},
	}
}

// Dispose releases the index. Every later operation fails with Disposed.
func (idx *Index) Dispose() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.disposed {
		return
	}
	idx.disposed = true
	idx.ids = make(map[string]FileID)
	idx.records = make(map[FileID]*FileRecord)
	idx.dirs = make(map[string]map[string]bool)
	idx.symbols.reset()
	idx.graph.Build(nil)
}

// Disposed reports whether Dispose was called.
func (idx *Index) Disposed() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.disposed
}

func (idx *Index) checkOpen(op string) error {
	if idx.Disposed() {
		return errs.Disposed(op)
	}
	return nil
}

type scanOutcome int

const (
	scanParsed scanOutcome = iota
	scanReused
	scanSkipped
	scanFailed
)

// scan reads a file and produces its record without touching the index. A
// record whose checksum matches the stored one is reused as is.
func (idx *Index) scan(ctx context.Context, rel string) (*FileRecord, scanOutcome, error) {
	abs := idx.AbsPath(rel)
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, scanFailed, errs.NotFound("index", rel, "")
		}
		return nil, scanFailed, errs.IO("index", rel, err)
	}
	if info.IsDir() {
		return nil, scanFailed, errs.Validation("index", rel, "", "regular-file", "path is a directory")
	}

	adapter, ok := idx.registry.ForPath(rel)
	if !ok || (idx.config.MaxFileSize > 0 && info.Size() > idx.config.MaxFileSize) {
		return nil, scanSkipped, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, scanFailed, errs.IO("index", rel, err)
	}
	checksum := calculateHash(content)

	if prev := idx.stored(rel); prev != nil && prev.Checksum == checksum && prev.Language == adapter.Language() {
		if !prev.ModTime.Equal(info.ModTime()) {
			c := *prev
			c.ModTime = info.ModTime()
			prev = &c
		}
		return prev, scanReused, nil
	}

	rec, err := idx.parse(ctx, rel, adapter, content)
	if err != nil {
		return nil, scanFailed, err
	}
	rec.Size = info.Size()
	rec.ModTime = info.ModTime()
	rec.Checksum = checksum
	return rec, scanParsed, nil
}

// parse runs the adapter under the per-file deadline. Adapter failures and
// timeouts become diagnostics; only cancellation of ctx is returned.
func (idx *Index) parse(ctx context.Context, rel string, adapter parsers.Adapter, content []byte) (*FileRecord, error) {
	parseCtx, cancel := ctx, context.CancelFunc(func() {})
	if idx.config.ParseTimeout > 0 {
		parseCtx, cancel = context.WithTimeout(ctx, idx.config.ParseTimeout)
	}
	ex, err := adapter.Parse(parseCtx, rel, content)
	cancel()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := fmt.Sprintf("parse failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("parse timed out after %s", idx.config.ParseTimeout)
		}
		log.Printf("Warning: failed to parse %s: %v", rel, err)
		ex = &extraction.FileExtraction{
			Language:    adapter.Language(),
			Path:        rel,
			LineCount:   countLines(content),
			Diagnostics: []extraction.Diagnostic{{Severity: extraction.SeverityError, Message: msg}},
		}
	}

	rec := &FileRecord{
		Path:         rel,
		Language:     adapter.Language(),
		Extension:    strings.ToLower(path.Ext(rel)),
		LineCount:    ex.LineCount,
		Symbols:      ex.Symbols,
		Usages:       ex.Usages,
		Dependencies: ex.Dependencies,
		Diagnostics:  ex.Diagnostics,
	}
	for i := range rec.Symbols {
		rec.Symbols[i].File = rel
	}
	for i := range rec.Usages {
		rec.Usages[i].File = rel
	}
	return rec, nil
}

func (idx *Index) stored(rel string) *FileRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.records[idx.ids[rel]]
}

// applyLocked inserts or replaces one record: old symbols and edges are
// removed before the new ones go in.
func (idx *Index) applyLocked(rec *FileRecord) {
	if _, ok := idx.ids[rec.Path]; ok {
		rec = idx.assignID(rec)
		idx.records[rec.ID] = rec
		idx.symbols.remove(rec.Path)
		idx.symbols.add(rec)
		idx.graph.ReplaceFile(rec.Path, rec.Dependencies)
		return
	}
	rec = idx.assignID(rec)
	idx.records[rec.ID] = rec
	idx.symbols.add(rec)
	idx.graph.AddFile(rec.Path, rec.Dependencies)
}

// assignID returns rec carrying the path's stable ID, allocating one for new
// paths. A record that already carries another ID is copied.
func (idx *Index) assignID(rec *FileRecord) *FileRecord {
	id, ok := idx.ids[rec.Path]
	if !ok {
		idx.nextID++
		id = idx.nextID
		idx.ids[rec.Path] = id
		idx.linkDir(rec.Path)
	}
	if rec.ID != id {
		c := *rec
		c.ID = id
		rec = &c
	}
	return rec
}

func (idx *Index) removeLocked(rel string) bool {
	id, ok := idx.ids[rel]
	if !ok {
		return false
	}
	delete(idx.ids, rel)
	delete(idx.records, id)
	idx.unlinkDir(rel)
	idx.symbols.remove(rel)
	idx.graph.RemoveFile(rel)
	return true
}

func (idx *Index) recordLocked(rel string) *FileRecord {
	rec := idx.records[idx.ids[rel]]
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	if resolved := idx.graph.Resolved(rel); len(resolved) == len(out.Dependencies) {
		out.Dependencies = resolved
	}
	return out
}

func (idx *Index) pathsLocked() []string {
	paths := make([]string, 0, len(idx.ids))
	for p := range idx.ids {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (idx *Index) statsLocked() *IndexStats {
	s := &IndexStats{Files: len(idx.records), Languages: make(map[string]int)}
	for _, rec := range idx.records {
		s.Symbols += len(rec.Symbols)
		s.Usages += len(rec.Usages)
		s.Dependencies += len(rec.Dependencies)
		s.Diagnostics += len(rec.Diagnostics)
		s.Languages[rec.Language]++
	}
	return s
}

// resolveImport is the graph's resolver. The graph only calls it while the
// index writer lock is held, so it reads the maps directly.
func (idx *Index) resolveImport(from string, dep extraction.Dependency) []string {
	lang := ""
	if rec := idx.records[idx.ids[from]]; rec != nil {
		lang = rec.Language
	}
	adapter, ok := idx.registry.Resolve(from, lang)
	if !ok {
		return nil
	}
	return adapter.ResolveImport(parsers.ImportContext{
		Root: idx.root,
		From: from,
		Exists: func(p string) bool {
			_, ok := idx.ids[p]
			return ok
		},
		FilesInDir: idx.filesInDirLocked,
	}, dep)
}

func (idx *Index) filesInDirLocked(dir string) []string {
	files := idx.dirs[dirKey(dir)]
	out := make([]string, 0, len(files))
	for f := range files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (idx *Index) linkDir(rel string) {
	d := dirKey(path.Dir(rel))
	if idx.dirs[d] == nil {
		idx.dirs[d] = make(map[string]bool)
	}
	idx.dirs[d][rel] = true
}

func (idx *Index) unlinkDir(rel string) {
	d := dirKey(path.Dir(rel))
	delete(idx.dirs[d], rel)
	if len(idx.dirs[d]) == 0 {
		delete(idx.dirs, d)
	}
}

func dirKey(dir string) string {
	dir = path.Clean(dir)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func (idx *Index) discovery(filter Filter) (*FileDiscovery, error) {
	exts := filter.IncludeExtensions
	if len(exts) == 0 {
		exts = idx.config.IncludeExtensions
	}
	if len(exts) == 0 {
		exts = idx.registry.Extensions()
	}
	exclude := append(append([]string(nil), idx.config.Exclude...), filter.Exclude...)
	return NewFileDiscovery(idx.root, exts, exclude)
}

func (idx *Index) concurrency() int {
	if idx.config.Concurrency > 0 {
		return idx.config.Concurrency
	}
	return 1
}

func (idx *Index) progress() ProgressReporter {
	if idx.config.Progress != nil {
		return idx.config.Progress
	}
	return &NoOpProgressReporter{}
}

// withOp relabels a classified error with the caller's operation.
func withOp(err error, op string) error {
	var e *errs.Error
	if errors.As(err, &e) {
		c := *e
		c.Op = op
		return &c
	}
	return err
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func sortedPaths(m map[string]*FileRecord) []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
