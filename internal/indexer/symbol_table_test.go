package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Test Plan for SymbolTable:
// - Find and FindByKind return declarations ordered by path then offset
// - Search ranks exact, case-insensitive exact, prefix, then substring
// - Fuzzy matches appear only when requested and above the threshold
// - Kind filter and limit apply after ranking
// - FilesReferencing tracks usage names per file
// - Removing a file drops its declarations and usage names

func sym(file, name string, kind extraction.SymbolKind, offset int) extraction.Symbol {
	return extraction.Symbol{
		Name:      name,
		Kind:      kind,
		File:      file,
		NameRange: extraction.Range{StartByte: offset, EndByte: offset + len(name)},
	}
}

func newTestTable() *SymbolTable {
	st := NewSymbolTable()
	st.add(&FileRecord{
		Path: "b.py",
		Symbols: []extraction.Symbol{
			sym("b.py", "load", extraction.KindFunction, 40),
			sym("b.py", "loader", extraction.KindVariable, 10),
		},
		Usages: []extraction.Usage{
			{Name: "process", Kind: extraction.UsageCall},
			{Name: "process", Kind: extraction.UsageRead},
		},
	})
	st.add(&FileRecord{
		Path: "a.py",
		Symbols: []extraction.Symbol{
			sym("a.py", "Load", extraction.KindClass, 0),
			sym("a.py", "reload", extraction.KindFunction, 20),
			sym("a.py", "process", extraction.KindFunction, 50),
		},
		Usages: []extraction.Usage{{Name: "load", Kind: extraction.UsageCall}},
	})
	return st
}

func names(results []SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Symbol.File + ":" + r.Symbol.Name
	}
	return out
}

func TestSymbolTable_Find(t *testing.T) {
	t.Parallel()

	st := newTestTable()

	load := st.Find("load")
	require.Len(t, load, 1)
	assert.Equal(t, "b.py", load[0].File)
	assert.Empty(t, st.Find("missing"))

	funcs := st.FindByKind(extraction.KindFunction)
	require.Len(t, funcs, 3)
	assert.Equal(t, []string{"reload", "process", "load"}, []string{funcs[0].Name, funcs[1].Name, funcs[2].Name})

	assert.Equal(t, 5, st.Len())
	assert.Len(t, st.InFile("a.py"), 3)
}

func TestSymbolTable_SearchRanking(t *testing.T) {
	t.Parallel()

	st := newTestTable()

	results := st.Search("load", SearchOptions{})
	assert.Equal(t, []string{"b.py:load", "a.py:Load", "b.py:loader", "a.py:reload"}, names(results))
	assert.Equal(t, []MatchType{MatchExact, MatchExact, MatchPrefix, MatchSubstring},
		[]MatchType{results[0].Match, results[1].Match, results[2].Match, results[3].Match})

	assert.Equal(t, []string{"b.py:load", "a.py:reload"}, names(st.Search("load", SearchOptions{Kind: extraction.KindFunction})))
	assert.Equal(t, []string{"b.py:load"}, names(st.Search("load", SearchOptions{Limit: 1})))
	assert.Empty(t, st.Search("  ", SearchOptions{}))
}

func TestSymbolTable_FuzzySearch(t *testing.T) {
	t.Parallel()

	st := newTestTable()

	assert.Empty(t, st.Search("procss", SearchOptions{}))

	results := st.Search("procss", SearchOptions{Fuzzy: true})
	require.Len(t, results, 1)
	assert.Equal(t, "process", results[0].Symbol.Name)
	assert.Equal(t, MatchFuzzy, results[0].Match)
	assert.Less(t, results[0].Score, 0.6, "fuzzy ranks below substring matches")

	assert.Empty(t, st.Search("zzzz", SearchOptions{Fuzzy: true}))
}

func TestSymbolTable_FilesReferencingAndRemove(t *testing.T) {
	t.Parallel()

	st := newTestTable()

	assert.Equal(t, []string{"b.py"}, st.FilesReferencing("process"))
	assert.Equal(t, []string{"a.py"}, st.FilesReferencing("load"))

	st.remove("b.py")

	assert.Empty(t, st.FilesReferencing("process"))
	assert.Empty(t, st.Find("load"))
	assert.Equal(t, []string{"a.py:Load", "a.py:reload"}, names(st.Search("load", SearchOptions{})))
	assert.Equal(t, 3, st.Len())
}
