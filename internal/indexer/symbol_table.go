package indexer

import (
	"sort"
	"strings"
	"sync"

	"github.com/hbollon/go-edlib"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// MatchType says how a search result matched the query.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchPrefix    MatchType = "prefix"
	MatchSubstring MatchType = "substring"
	MatchFuzzy     MatchType = "fuzzy"
)

// DefaultFuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy
// match.
const DefaultFuzzyThreshold = 0.8

// SearchOptions narrows SymbolTable.Search.
type SearchOptions struct {
	Kind      extraction.SymbolKind // empty matches every kind
	Limit     int                   // 0 means unlimited
	Fuzzy     bool
	Threshold float32 // fuzzy similarity floor, DefaultFuzzyThreshold when 0
}

// SearchResult is one ranked symbol match.
type SearchResult struct {
	Symbol extraction.Symbol `json:"symbol"`
	Match  MatchType         `json:"match"`
	Score  float64           `json:"score"`
}

// SymbolTable indexes declarations by name and kind, and usage names by file.
// It is written only by the owning Index.
type SymbolTable struct {
	mu         sync.RWMutex
	files      map[string][]extraction.Symbol            // path -> declarations in file order
	byName     map[string]map[string]bool                // name -> declaring paths
	byKind     map[extraction.SymbolKind]map[string]bool // kind -> declaring paths
	usageFiles map[string]map[string]bool                // usage name -> referencing paths
	usageNames map[string][]string                       // path -> distinct usage names
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{}
	st.reset()
	return st
}

func (st *SymbolTable) reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.files = make(map[string][]extraction.Symbol)
	st.byName = make(map[string]map[string]bool)
	st.byKind = make(map[extraction.SymbolKind]map[string]bool)
	st.usageFiles = make(map[string]map[string]bool)
	st.usageNames = make(map[string][]string)
}

func (st *SymbolTable) add(rec *FileRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.files[rec.Path] = rec.Symbols
	for _, s := range rec.Symbols {
		addPath(st.byName, s.Name, rec.Path)
		addPath(st.byKind, s.Kind, rec.Path)
	}

	seen := make(map[string]bool)
	for _, u := range rec.Usages {
		if seen[u.Name] {
			continue
		}
		seen[u.Name] = true
		addPath(st.usageFiles, u.Name, rec.Path)
		st.usageNames[rec.Path] = append(st.usageNames[rec.Path], u.Name)
	}
}

func (st *SymbolTable) remove(path string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, s := range st.files[path] {
		removePath(st.byName, s.Name, path)
		removePath(st.byKind, s.Kind, path)
	}
	delete(st.files, path)

	for _, name := range st.usageNames[path] {
		removePath(st.usageFiles, name, path)
	}
	delete(st.usageNames, path)
}

// Find returns every declaration named name, ordered by path then position.
func (st *SymbolTable) Find(name string) []extraction.Symbol {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []extraction.Symbol
	for _, p := range sortedSet(st.byName[name]) {
		for _, s := range st.files[p] {
			if s.Name == name {
				out = append(out, s)
			}
		}
	}
	sortSymbols(out)
	return out
}

// FindByKind returns every declaration of a kind, ordered by path then
// position.
func (st *SymbolTable) FindByKind(kind extraction.SymbolKind) []extraction.Symbol {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []extraction.Symbol
	for _, p := range sortedSet(st.byKind[kind]) {
		for _, s := range st.files[p] {
			if s.Kind == kind {
				out = append(out, s)
			}
		}
	}
	sortSymbols(out)
	return out
}

// InFile returns the declarations of one file in file order.
func (st *SymbolTable) InFile(path string) []extraction.Symbol {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]extraction.Symbol(nil), st.files[path]...)
}

// FilesReferencing lists the files with at least one usage named name.
func (st *SymbolTable) FilesReferencing(name string) []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return sortedSet(st.usageFiles[name])
}

// Len returns the number of declarations.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for _, syms := range st.files {
		n += len(syms)
	}
	return n
}

// Search ranks declarations against query: exact, then prefix, then
// substring (case-insensitive), then fuzzy similarity when enabled. Ties are
// ordered by path, then position.
func (st *SymbolTable) Search(query string, opts SearchOptions) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	lowerQuery := strings.ToLower(query)
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []SearchResult
	for name, paths := range st.byName {
		match, score := scoreName(name, query, lowerQuery, opts.Fuzzy, threshold)
		if match == "" {
			continue
		}
		for p := range paths {
			for _, s := range st.files[p] {
				if s.Name != name || (opts.Kind != "" && s.Kind != opts.Kind) {
					continue
				}
				out = append(out, SearchResult{Symbol: s, Match: match, Score: score})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return symbolLess(out[i].Symbol, out[j].Symbol)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func scoreName(name, query, lowerQuery string, fuzzy bool, threshold float32) (MatchType, float64) {
	lowerName := strings.ToLower(name)
	switch {
	case name == query:
		return MatchExact, 1.0
	case lowerName == lowerQuery:
		return MatchExact, 0.95
	case strings.HasPrefix(lowerName, lowerQuery):
		return MatchPrefix, 0.8
	case strings.Contains(lowerName, lowerQuery):
		return MatchSubstring, 0.6
	}
	if !fuzzy {
		return "", 0
	}
	sim, err := edlib.StringsSimilarity(lowerName, lowerQuery, edlib.JaroWinkler)
	if err != nil || sim < threshold {
		return "", 0
	}
	return MatchFuzzy, 0.5 * float64(sim)
}

func sortSymbols(syms []extraction.Symbol) {
	sort.SliceStable(syms, func(i, j int) bool {
		return symbolLess(syms[i], syms[j])
	})
}

func symbolLess(a, b extraction.Symbol) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.NameRange.StartByte != b.NameRange.StartByte {
		return a.NameRange.StartByte < b.NameRange.StartByte
	}
	return a.Name < b.Name
}

func addPath[K comparable](m map[K]map[string]bool, key K, path string) {
	if m[key] == nil {
		m[key] = make(map[string]bool)
	}
	m[key][path] = true
}

func removePath[K comparable](m map[K]map[string]bool, key K, path string) {
	delete(m[key], path)
	if len(m[key]) == 0 {
		delete(m, key)
	}
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
