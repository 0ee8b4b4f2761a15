// Package graph maintains the file dependency graph derived from indexed
// dependency statements and answers cycle, orphan and impact queries over it.
package graph

import (
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/dominikbraun/graph"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Resolver maps a dependency statement of the file from to the indexed files
// it names. An empty result marks the statement external.
type Resolver func(from string, dep extraction.Dependency) []string

// Option configures a DependencyGraph.
type Option func(*DependencyGraph)

// WithThresholds overrides the impact level thresholds.
func WithThresholds(t Thresholds) Option {
	return func(d *DependencyGraph) {
		d.thresholds = t
	}
}

// DependencyGraph is a directed file graph. Internal edges live in a
// dominikbraun/graph store; statements and external edges are tracked beside
// it. Mutations are expected to come from a single writer.
type DependencyGraph struct {
	mu         sync.RWMutex
	resolve    Resolver
	thresholds Thresholds

	g        graph.Graph[string, string]
	deps     map[string][]extraction.Dependency // raw statements per file
	resolved map[string][]extraction.Dependency // statements annotated with their resolution
	internal map[string]map[string]*Edge        // from -> target path -> edge
	external map[string]map[string]*Edge        // from -> module -> edge
}

// New creates an empty graph.
func New(resolve Resolver, opts ...Option) *DependencyGraph {
	d := &DependencyGraph{
		resolve:    resolve,
		thresholds: DefaultThresholds,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reset()
	return d
}

func (d *DependencyGraph) reset() {
	d.g = graph.New(graph.StringHash, graph.Directed())
	d.deps = make(map[string][]extraction.Dependency)
	d.resolved = make(map[string][]extraction.Dependency)
	d.internal = make(map[string]map[string]*Edge)
	d.external = make(map[string]map[string]*Edge)
}

// Build replaces the whole graph with the given files and their statements.
func (d *DependencyGraph) Build(files map[string][]extraction.Dependency) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reset()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		d.addVertex(p)
		d.deps[p] = files[p]
	}
	for _, p := range paths {
		d.link(p)
	}
}

// AddFile adds a file. Statements of other files that were external may now
// resolve to it, so those files are re-linked.
func (d *DependencyGraph) AddFile(path string, deps []extraction.Dependency) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.deps[path]; ok {
		d.replaceLocked(path, deps)
		return
	}
	d.addLocked(path, deps)
}

// ReplaceFile swaps a file's statements: its old edges are removed before the
// new ones are inserted.
func (d *DependencyGraph) ReplaceFile(path string, deps []extraction.Dependency) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.deps[path]; !ok {
		d.addLocked(path, deps)
		return
	}
	d.replaceLocked(path, deps)
}

func (d *DependencyGraph) addLocked(path string, deps []extraction.Dependency) {
	d.addVertex(path)
	d.deps[path] = deps
	d.link(path)

	for _, from := range sortedKeys(d.external) {
		if from != path {
			d.relink(from)
		}
	}
}

func (d *DependencyGraph) replaceLocked(path string, deps []extraction.Dependency) {
	d.unlink(path)
	d.deps[path] = deps
	d.link(path)
}

// RemoveFile deletes a file, its edges, and the edges pointing at it. Files
// that imported it are re-linked so their statements turn external.
func (d *DependencyGraph) RemoveFile(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.deps[path]; !ok {
		return
	}
	dependents := d.dependentsLocked(path)
	d.unlink(path)
	for _, from := range dependents {
		d.unlink(from)
	}
	if err := d.g.RemoveVertex(path); err != nil {
		log.Printf("Warning: failed to remove graph node %s: %v", path, err)
	}
	delete(d.deps, path)
	for _, from := range dependents {
		d.link(from)
	}
}

func (d *DependencyGraph) addVertex(path string) {
	if err := d.g.AddVertex(path); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		log.Printf("Warning: failed to add graph node %s: %v", path, err)
	}
}

// link resolves the stored statements of from into edges.
func (d *DependencyGraph) link(from string) {
	resolved := make([]extraction.Dependency, 0, len(d.deps[from]))
	for _, dep := range d.deps[from] {
		stmt := Statement{Raw: dep.Raw, Range: dep.Range}

		var targets []string
		if d.resolve != nil {
			for _, t := range d.resolve(from, dep) {
				if _, ok := d.deps[t]; ok && t != from {
					targets = append(targets, t)
				}
			}
		}
		sort.Strings(targets)

		dep.Names = append([]string(nil), dep.Names...)
		if len(targets) == 0 {
			dep.Kind = extraction.DependencyExternal
			dep.Module = dep.Raw
			dep.Target = ""
			d.addEdge(d.external, from, dep.Raw, extraction.DependencyExternal, stmt)
		} else {
			dep.Kind = extraction.DependencyInternal
			dep.Target = targets[0]
			dep.Module = ""
			for _, t := range targets {
				if d.addEdge(d.internal, from, t, extraction.DependencyInternal, stmt) {
					if err := d.g.AddEdge(from, t); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
						log.Printf("Warning: failed to add graph edge %s -> %s: %v", from, t, err)
					}
				}
			}
		}
		resolved = append(resolved, dep)
	}
	d.resolved[from] = resolved
}

// addEdge records stmt on the (from, to) edge and reports whether the edge is
// new.
func (d *DependencyGraph) addEdge(set map[string]map[string]*Edge, from, to string, kind extraction.DependencyKind, stmt Statement) bool {
	out := set[from]
	if out == nil {
		out = make(map[string]*Edge)
		set[from] = out
	}
	if e, ok := out[to]; ok {
		e.Statements = append(e.Statements, stmt)
		return false
	}
	out[to] = &Edge{From: from, To: to, Kind: kind, Statements: []Statement{stmt}}
	return true
}

func (d *DependencyGraph) unlink(from string) {
	for to := range d.internal[from] {
		if err := d.g.RemoveEdge(from, to); err != nil {
			log.Printf("Warning: failed to remove graph edge %s -> %s: %v", from, to, err)
		}
	}
	delete(d.internal, from)
	delete(d.external, from)
	delete(d.resolved, from)
}

func (d *DependencyGraph) relink(from string) {
	d.unlink(from)
	d.link(from)
}

// HasFile reports whether path is a node.
func (d *DependencyGraph) HasFile(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.deps[path]
	return ok
}

// Nodes lists every file, sorted.
func (d *DependencyGraph) Nodes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedKeys(d.deps)
}

// Edges lists internal edges, plus external ones when includeExternal is set,
// sorted by source then target.
func (d *DependencyGraph) Edges(includeExternal bool) []Edge {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Edge
	for _, from := range sortedKeys(d.deps) {
		out = append(out, copyEdges(d.internal[from])...)
		if includeExternal {
			out = append(out, copyEdges(d.external[from])...)
		}
	}
	return out
}

// Dependencies lists the outgoing edges of path, internal first.
func (d *DependencyGraph) Dependencies(path string) []Edge {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(copyEdges(d.internal[path]), copyEdges(d.external[path])...)
}

// Dependents lists the files with an internal edge to path, sorted.
func (d *DependencyGraph) Dependents(path string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dependentsLocked(path)
}

func (d *DependencyGraph) dependentsLocked(path string) []string {
	pred, err := d.g.PredecessorMap()
	if err != nil {
		log.Printf("Warning: failed to read graph predecessors: %v", err)
		return nil
	}
	return sortedKeys(pred[path])
}

// Externals lists every external edge, sorted by source then module.
func (d *DependencyGraph) Externals() []Edge {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Edge
	for _, from := range sortedKeys(d.external) {
		out = append(out, copyEdges(d.external[from])...)
	}
	return out
}

// Resolved returns path's statements annotated with kind, target and module.
func (d *DependencyGraph) Resolved(path string) []extraction.Dependency {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]extraction.Dependency(nil), d.resolved[path]...)
}

// Stats counts nodes, internal edges and external edges.
func (d *DependencyGraph) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Stats{Nodes: len(d.deps)}
	for _, out := range d.internal {
		s.Edges += len(out)
	}
	for _, out := range d.external {
		s.Externals += len(out)
	}
	return s
}

// adjacency returns sorted successor lists for every node.
func (d *DependencyGraph) adjacency() map[string][]string {
	adj, err := d.g.AdjacencyMap()
	if err != nil {
		log.Printf("Warning: failed to read graph adjacency: %v", err)
		return nil
	}
	out := make(map[string][]string, len(adj))
	for from, targets := range adj {
		out[from] = sortedKeys(targets)
	}
	return out
}

func copyEdges(m map[string]*Edge) []Edge {
	out := make([]Edge, 0, len(m))
	for _, to := range sortedKeys(m) {
		e := *m[to]
		e.Statements = append([]Statement(nil), e.Statements...)
		out = append(out, e)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
