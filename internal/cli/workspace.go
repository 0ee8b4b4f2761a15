package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mvp-joe/codemorph/internal/config"
	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/refactor"
	"github.com/mvp-joe/codemorph/internal/resolver"
	"github.com/mvp-joe/codemorph/internal/storage"
)

type workspaceOptions struct {
	filter   indexer.Filter
	noCache  bool
	progress indexer.ProgressReporter
}

// workspace is one indexed project: configuration, index, and the cache the
// index is seeded from and written back to.
type workspace struct {
	root   string
	cfg    *config.Config
	index  *indexer.Index
	store  *storage.Store
	seeded bool
	stats  *indexer.IndexStats

	resolver *resolver.Resolver
	engine   *refactor.Engine
}

// openWorkspace loads configuration, seeds the index from the cache and
// brings it up to date with the files on disk.
func openWorkspace(ctx context.Context, g *globalOptions, opts workspaceOptions) (*workspace, error) {
	root := g.root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	var loaderOpts []config.LoaderOption
	if g.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(g.configFile))
	}
	cfg, err := config.NewLoader(root, loaderOpts...).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	icfg := cfg.ToIndexerConfig()
	icfg.Progress = opts.progress
	idx, err := indexer.New(root, nil, icfg)
	if err != nil {
		return nil, err
	}

	ws := &workspace{root: idx.Root(), cfg: cfg, index: idx}
	if cfg.Index.CacheEnabled && !opts.noCache {
		ws.openCache()
	}
	if err := ws.refresh(ctx, opts.filter); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

// openCache opens the cache and seeds the index from it. A cache that cannot
// be used is logged and skipped.
func (ws *workspace) openCache() {
	dbPath := ws.cfg.CachePath(ws.root)
	store, err := storage.Open(dbPath)
	if err != nil {
		log.Printf("Warning: index cache unavailable, indexing from scratch: %v", err)
		return
	}
	ws.store = store

	cachedRoot, err := store.Metadata(storage.MetaRoot)
	if err != nil {
		log.Printf("Warning: failed to read index cache metadata: %v", err)
		return
	}
	if cachedRoot != "" && cachedRoot != ws.root {
		log.Printf("Warning: index cache %s belongs to %s, rebuilding it", dbPath, cachedRoot)
		return
	}

	records, err := store.LoadRecords()
	if err != nil {
		log.Printf("Warning: failed to load index cache, indexing from scratch: %v", err)
		return
	}
	if err := ws.index.LoadRecords(records); err != nil {
		log.Printf("Warning: failed to seed index from cache: %v", err)
		return
	}
	ws.seeded = true
	log.Printf("Loaded %d cached files from %s", len(records), dbPath)
}

// refresh re-indexes the project, reusing every record whose checksum still
// matches, and writes the differences back to the cache.
func (ws *workspace) refresh(ctx context.Context, filter indexer.Filter) error {
	var changes *indexer.ChangeSet
	if ws.store != nil && ws.seeded {
		var err error
		changes, err = ws.index.Changes(ctx, filter)
		if err != nil {
			return err
		}
	}

	stats, err := ws.index.IndexProject(ctx, filter)
	if err != nil {
		return err
	}
	ws.stats = stats

	if ws.store == nil {
		return nil
	}
	if changes == nil {
		if err := ws.store.Replace(ws.index.Records()); err != nil {
			log.Printf("Warning: failed to write index cache: %v", err)
			return nil
		}
	} else if !changes.Empty() {
		paths := append(append(append([]string{}, changes.Added...), changes.Modified...), changes.Deleted...)
		ws.persist(paths...)
	}
	ws.stamp()
	return nil
}

// persist writes the current records of paths to the cache, deleting the
// ones the index no longer holds.
func (ws *workspace) persist(paths ...string) {
	if ws.store == nil || len(paths) == 0 {
		return
	}
	seen := make(map[string]bool, len(paths))
	var saved []*indexer.FileRecord
	var deleted []string
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		rec, err := ws.index.Record(p)
		if err != nil {
			deleted = append(deleted, p)
			continue
		}
		saved = append(saved, rec)
	}
	if err := ws.store.Sync(saved, deleted); err != nil {
		log.Printf("Warning: failed to update index cache: %v", err)
		return
	}
	ws.stamp()
}

func (ws *workspace) stamp() {
	if err := ws.store.SetMetadata(storage.MetaRoot, ws.root); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := ws.store.SetMetadata(storage.MetaLastIndexed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// Resolver returns the workspace's reference resolver, creating it on first
// use.
func (ws *workspace) Resolver() (*resolver.Resolver, error) {
	if ws.resolver == nil {
		res, err := resolver.New(ws.index)
		if err != nil {
			return nil, err
		}
		ws.resolver = res
	}
	return ws.resolver, nil
}

// Engine returns the refactoring engine, creating it on first use.
func (ws *workspace) Engine() (*refactor.Engine, error) {
	if ws.engine == nil {
		res, err := ws.Resolver()
		if err != nil {
			return nil, err
		}
		ws.engine = refactor.New(ws.index, res, refactor.WithContextLines(ws.cfg.Refactor.ContextLines))
	}
	return ws.engine, nil
}

// Close releases the resolver cache, the cache database and the index.
func (ws *workspace) Close() {
	if ws.resolver != nil {
		ws.resolver.Close()
	}
	if ws.store != nil {
		if err := ws.store.Close(); err != nil {
			log.Printf("Warning: failed to close index cache: %v", err)
		}
	}
	ws.index.Dispose()
}
