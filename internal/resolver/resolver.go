// Package resolver finds the declaration a name refers to and every site
// that refers to it, using only what the parser adapters recorded.
package resolver

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Status is the outcome of a resolution.
type Status string

const (
	StatusFound     Status = "found"
	StatusNotFound  Status = "not_found"
	StatusAmbiguous Status = "ambiguous"
)

// DefaultCacheCapacity bounds the number of files whose lines are cached.
const DefaultCacheCapacity = 256

// Query names the symbol to resolve. File and Scope are optional hints.
type Query struct {
	Name  string                `json:"name"`
	Kind  extraction.SymbolKind `json:"kind,omitempty"`
	File  string                `json:"file,omitempty"`  // path or path suffix of the declaring file
	Scope string                `json:"scope,omitempty"` // container name or scope key
}

// Reference is one site naming the resolved symbol.
type Reference struct {
	File       string               `json:"file"`
	Range      extraction.Range     `json:"range"`
	Kind       extraction.UsageKind `json:"kind,omitempty"`
	Definition bool                 `json:"definition,omitempty"`
	Line       string               `json:"line,omitempty"` // source line, for display
}

// Resolution is the answer to a Query.
type Resolution struct {
	Query      Query               `json:"query"`
	Status     Status              `json:"status"`
	Definition *extraction.Symbol  `json:"definition,omitempty"`
	Candidates []extraction.Symbol `json:"candidates,omitempty"`
	References []Reference         `json:"references,omitempty"`
	// Undecided lists member accesses of the name whose receiver could
	// belong to another declaration of the same member name.
	Undecided []Reference `json:"undecided,omitempty"`
}

// Err converts an unsuccessful resolution into a classified error.
func (r *Resolution) Err(op string) error {
	switch r.Status {
	case StatusNotFound:
		return errs.NotFound(op, r.Query.File, r.Query.Name)
	case StatusAmbiguous:
		locs := make([]string, len(r.Candidates))
		for i, c := range r.Candidates {
			locs[i] = fmt.Sprintf("%s %s at %s", c.Kind, c.QualifiedName(), c.Location())
		}
		return errs.Ambiguous(op, r.Query.Name, locs)
	}
	return nil
}

// Option configures a Resolver.
type Option func(*options)

type options struct {
	cacheCapacity int
}

// WithCacheCapacity overrides DefaultCacheCapacity.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.cacheCapacity = n
	}
}

// Resolver answers queries against one index.
type Resolver struct {
	index *indexer.Index
	lines otter.Cache[string, []string] // checksum -> file lines
}

// New creates a resolver over idx. Call Close to release the line cache.
func New(idx *indexer.Index, opts ...Option) (*Resolver, error) {
	o := options{cacheCapacity: DefaultCacheCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheCapacity <= 0 {
		o.cacheCapacity = DefaultCacheCapacity
	}

	cache, err := otter.MustBuilder[string, []string](o.cacheCapacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create line cache: %w", err)
	}
	return &Resolver{index: idx, lines: cache}, nil
}

// Close releases the line cache.
func (r *Resolver) Close() {
	r.lines.Close()
}

// Resolve finds the declaration q names. Zero candidates is StatusNotFound
// and several unrelated candidates that the hints cannot separate is
// StatusAmbiguous; neither is an error.
func (r *Resolver) Resolve(q Query) (*Resolution, error) {
	if r.index.Disposed() {
		return nil, errs.Disposed("resolve")
	}
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == "" {
		return nil, errs.Validation("resolve", q.File, "", "symbol-name-required", "a symbol name is required")
	}

	res := &Resolution{Query: q}
	candidates := r.Candidates(q)
	switch {
	case len(candidates) == 0:
		res.Status = StatusNotFound
		return res, nil
	case !sameBinding(candidates):
		res.Status = StatusAmbiguous
		res.Candidates = candidates
		return res, nil
	}

	def := candidates[0]
	res.Status = StatusFound
	res.Definition = &def
	res.Candidates = candidates
	refs, undecided, err := r.collect(def)
	if err != nil {
		return nil, err
	}
	res.References = refs
	res.Undecided = undecided
	return res, nil
}

// Candidates lists the declarations matching the query's name, kind and
// hints, ordered by path then offset.
func (r *Resolver) Candidates(q Query) []extraction.Symbol {
	var out []extraction.Symbol
	for _, s := range r.index.Symbols().Find(q.Name) {
		if q.Kind != "" && s.Kind != q.Kind {
			continue
		}
		if q.File != "" && !matchesFile(s.File, q.File) {
			continue
		}
		if q.Scope != "" && s.Container != q.Scope && s.Scope != q.Scope {
			continue
		}
		out = append(out, s)
	}
	return out
}

// sameBinding reports whether every candidate is a redeclaration of the same
// name in the same file and scope, such as overloads or repeated assignments.
func sameBinding(candidates []extraction.Symbol) bool {
	first := candidates[0]
	for _, c := range candidates[1:] {
		if c.File != first.File || c.Scope != first.Scope || c.Container != first.Container {
			return false
		}
	}
	return true
}

func matchesFile(file, hint string) bool {
	hint = strings.TrimPrefix(strings.ReplaceAll(hint, "\\", "/"), "./")
	return file == hint || strings.HasSuffix(file, "/"+hint)
}

// References collects the definition's name token and every usage that
// binds to it, sorted by path then offset. Member accesses that cannot be
// told apart from another member of the same name are left out.
func (r *Resolver) References(def extraction.Symbol) ([]Reference, error) {
	refs, _, err := r.collect(def)
	return refs, err
}

func (r *Resolver) collect(def extraction.Symbol) ([]Reference, []Reference, error) {
	if r.index.Disposed() {
		return nil, nil, errs.Disposed("references")
	}

	refs := []Reference{{File: def.File, Range: def.NameRange, Definition: true}}
	var undecided []Reference
	providers := r.moduleLevelDeclarers(def.Name)
	owners := r.memberOwners(def.Name)

	for _, file := range r.index.Symbols().FilesReferencing(def.Name) {
		rec, err := r.index.Record(file)
		if err != nil {
			if errs.KindOf(err) == errs.KindNotFound {
				continue
			}
			return nil, nil, err
		}
		m := matcher{
			def:      def,
			shadowed: file != def.File && !r.sourcesFrom(file, def.File, providers),
			owners:   owners,
		}
		if !def.Kind.IsMember() && def.Scope == "" && file != def.File {
			m.qualifiers = r.moduleQualifiers(file, def.File)
		}
		for _, u := range rec.Usages {
			if u.Name != def.Name {
				continue
			}
			switch m.bind(u) {
			case bound:
				refs = append(refs, Reference{File: file, Range: u.Range, Kind: u.Kind})
			case undecidable:
				undecided = append(undecided, Reference{File: file, Range: u.Range, Kind: u.Kind})
			}
		}
	}

	refs = dedupe(sortRefs(refs))
	undecided = dedupe(sortRefs(undecided))
	r.attachLines(refs)
	r.attachLines(undecided)
	return refs, undecided, nil
}

func sortRefs(refs []Reference) []Reference {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].File != refs[j].File {
			return refs[i].File < refs[j].File
		}
		return refs[i].Range.StartByte < refs[j].Range.StartByte
	})
	return refs
}

type binding int

const (
	unbound binding = iota
	bound
	undecidable
)

// matcher decides which usages of one file refer to def.
type matcher struct {
	def extraction.Symbol
	// shadowed is set when the file takes module-level names of this
	// spelling from somewhere else.
	shadowed bool
	// owners holds every (file, container) declaring a member of this name.
	owners map[ownerKey]bool
	// qualifiers are the local names the file binds to def's module.
	qualifiers map[string]bool
}

type ownerKey struct {
	file, container string
}

func (m *matcher) bind(u extraction.Usage) binding {
	def := m.def
	if def.Kind.IsMember() {
		if !u.Member {
			if u.File == def.File && u.Scope != "" && u.Scope == def.Scope {
				return bound
			}
			return unbound
		}
		if u.Owner != "" && m.owners[ownerKey{u.File, u.Owner}] {
			if u.File == def.File && u.Owner == def.Container {
				return bound
			}
			return unbound
		}
		if len(m.owners) > 1 {
			return undecidable
		}
		return bound
	}
	if u.Member {
		if def.Scope == "" && u.Qualifier != "" && m.qualifiers[u.Qualifier] {
			return bound
		}
		return unbound
	}
	if def.Scope != "" {
		if u.File == def.File && u.Scope == def.Scope {
			return bound
		}
		return unbound
	}
	if u.Scope == "" && !m.shadowed {
		return bound
	}
	return unbound
}

// memberOwners lists the containers declaring a member named name.
func (r *Resolver) memberOwners(name string) map[ownerKey]bool {
	out := make(map[ownerKey]bool)
	for _, s := range r.index.Symbols().Find(name) {
		if s.Kind.IsMember() {
			out[ownerKey{s.File, s.Container}] = true
		}
	}
	return out
}

// moduleQualifiers lists the names file binds to the module defFile, such as
// `util` for `import util` or `u` for `import * as u from './util'`.
func (r *Resolver) moduleQualifiers(file, defFile string) map[string]bool {
	starts := make(map[int]bool)
	for _, e := range r.index.Graph().Dependencies(file) {
		if e.To != defFile {
			continue
		}
		for _, st := range e.Statements {
			starts[st.Range.StartByte] = true
		}
	}
	if len(starts) == 0 {
		return nil
	}

	out := make(map[string]bool)
	stem := moduleStem(defFile)
	for _, dep := range r.index.Graph().Resolved(file) {
		if !starts[dep.Range.StartByte] {
			continue
		}
		if dep.Alias != "" {
			out[dep.Alias] = true
		}
		for _, name := range dep.Names {
			if name == stem {
				out[name] = true
			}
		}
	}
	return out
}

// moduleStem is the name a module file is imported under.
func moduleStem(p string) string {
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "__init__" || stem == "index" {
		return path.Base(path.Dir(p))
	}
	return stem
}

// moduleLevelDeclarers lists the files declaring name at module level.
func (r *Resolver) moduleLevelDeclarers(name string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range r.index.Symbols().Find(name) {
		if s.Scope == "" && !s.Kind.IsMember() {
			out[s.File] = true
		}
	}
	return out
}

// sourcesFrom decides whether module-level names used in file can come from
// defFile. A file declaring the name itself, or importing another declarer
// but not defFile, takes the name from elsewhere. With no evidence either
// way the name is assumed shared, as within a Go package.
func (r *Resolver) sourcesFrom(file, defFile string, providers map[string]bool) bool {
	if providers[file] {
		return false
	}
	fromOther := false
	for _, e := range r.index.Graph().Dependencies(file) {
		if !e.Internal() {
			continue
		}
		if e.To == defFile {
			return true
		}
		if providers[e.To] {
			fromOther = true
		}
	}
	return !fromOther
}

func dedupe(refs []Reference) []Reference {
	out := refs[:0]
	for i, ref := range refs {
		if i > 0 && ref.File == refs[i-1].File && ref.Range.StartByte == refs[i-1].Range.StartByte {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// attachLines fills Reference.Line from the cached file contents.
func (r *Resolver) attachLines(refs []Reference) {
	var file string
	var lines []string
	for i := range refs {
		if refs[i].File != file {
			file = refs[i].File
			lines = r.fileLines(file)
		}
		if n := refs[i].Range.Start.Line; n >= 1 && n <= len(lines) {
			refs[i].Line = lines[n-1]
		}
	}
}

// fileLines returns the lines of an indexed file, keyed in the cache by the
// record's checksum so edits never serve stale text.
func (r *Resolver) fileLines(file string) []string {
	rec, err := r.index.Record(file)
	if err != nil {
		return nil
	}
	if lines, ok := r.lines.Get(rec.Checksum); ok {
		return lines
	}
	content, err := os.ReadFile(r.index.AbsPath(file))
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	r.lines.Set(rec.Checksum, lines)
	return lines
}
