package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Test Plan for Registry:
// - DefaultRegistry exposes every shipped language and extension
// - Extension lookup is case-insensitive and independent of directories
// - A language tag is the fallback when the extension is unknown
// - Duplicate languages are rejected unless Override is set
// - Higher priority wins a shared extension; equal priority keeps the first
// - Override removes the old adapter's extensions

type stubAdapter struct {
	lang string
	exts []string
}

func (s *stubAdapter) Language() string     { return s.lang }
func (s *stubAdapter) Extensions() []string { return s.exts }
func (s *stubAdapter) Parse(_ context.Context, p string, _ []byte) (*extraction.FileExtraction, error) {
	return &extraction.FileExtraction{Language: s.lang, Path: p}, nil
}
func (s *stubAdapter) Capabilities() Capabilities         { return Capabilities{} }
func (s *stubAdapter) IsValidIdentifier(name string) bool { return name != "" }
func (s *stubAdapter) ResolveImport(ImportContext, extraction.Dependency) []string {
	return nil
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	assert.Equal(t, []string{"c", "go", "java", "javascript", "php", "python", "ruby", "rust", "tsx", "typescript"}, r.Languages())

	tests := []struct {
		path string
		lang string
	}{
		{"main.go", "go"},
		{"pkg/app.py", "python"},
		{"stubs/app.pyi", "python"},
		{"src/index.ts", "typescript"},
		{"src/App.tsx", "tsx"},
		{"src/app.js", "javascript"},
		{"src/App.jsx", "javascript"},
		{"lib/util.mjs", "javascript"},
		{"Main.java", "java"},
		{"include/util.h", "c"},
		{"src/lib.rs", "rust"},
		{"lib/app.rb", "ruby"},
		{"src/App.php", "php"},
		{"README.MD", ""},
		{"Makefile", ""},
		{"UPPER.PY", "python"},
	}

	for _, tt := range tests {
		a, ok := r.ForPath(tt.path)
		if tt.lang == "" {
			assert.False(t, ok, "%s should have no adapter", tt.path)
			continue
		}
		require.True(t, ok, "%s should have an adapter", tt.path)
		assert.Equal(t, tt.lang, a.Language(), tt.path)
	}
}

func TestRegistry_ResolveFallsBackToLanguage(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	a, ok := r.Resolve("scripts/build", "python")
	require.True(t, ok)
	assert.Equal(t, "python", a.Language())

	// Extension wins over the hint.
	a, ok = r.Resolve("main.go", "python")
	require.True(t, ok)
	assert.Equal(t, "go", a.Language())

	_, ok = r.Resolve("scripts/build", "cobol")
	assert.False(t, ok)
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	assert.Error(t, r.Register(nil, RegisterOptions{}))
	assert.Error(t, r.Register(&stubAdapter{exts: []string{".x"}}, RegisterOptions{}))

	require.NoError(t, r.Register(&stubAdapter{lang: "x", exts: []string{".x"}}, RegisterOptions{}))
	assert.Error(t, r.Register(&stubAdapter{lang: "x", exts: []string{".y"}}, RegisterOptions{}))
}

func TestRegistry_PriorityOrdering(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := &stubAdapter{lang: "first", exts: []string{"tpl"}}
	second := &stubAdapter{lang: "second", exts: []string{".tpl"}}
	preferred := &stubAdapter{lang: "preferred", exts: []string{".TPL"}}

	require.NoError(t, r.Register(first, RegisterOptions{}))
	require.NoError(t, r.Register(second, RegisterOptions{}))

	a, ok := r.ForPath("page.tpl")
	require.True(t, ok)
	assert.Equal(t, "first", a.Language(), "equal priority keeps registration order")

	require.NoError(t, r.Register(preferred, RegisterOptions{Priority: 10}))
	a, ok = r.ForPath("page.tpl")
	require.True(t, ok)
	assert.Equal(t, "preferred", a.Language())

	assert.Equal(t, []string{".tpl"}, r.Extensions())
}

func TestRegistry_OverrideReplacesExtensions(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{lang: "x", exts: []string{".old"}}, RegisterOptions{}))
	require.NoError(t, r.Register(&stubAdapter{lang: "x", exts: []string{".new"}}, RegisterOptions{Override: true}))

	_, ok := r.ForPath("a.old")
	assert.False(t, ok)

	a, ok := r.ForLanguage("x")
	require.True(t, ok)
	assert.Equal(t, []string{".new"}, a.Extensions())
	assert.Equal(t, []string{".new"}, r.Extensions())
}

func TestAdapterCapabilities(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	tests := []struct {
		lang string
		caps Capabilities
	}{
		{"python", Capabilities{Rename: true, Move: true, ExtractFunction: true}},
		{"typescript", Capabilities{Rename: true, Move: true, ExtractFunction: true}},
		{"go", Capabilities{Rename: true, ExtractFunction: true}},
		{"java", Capabilities{Rename: true}},
		{"rust", Capabilities{Rename: true}},
	}

	for _, tt := range tests {
		a, ok := r.ForLanguage(tt.lang)
		require.True(t, ok, tt.lang)
		assert.Equal(t, tt.caps, a.Capabilities(), tt.lang)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	tests := []struct {
		lang  string
		name  string
		valid bool
	}{
		{"python", "snake_case", true},
		{"python", "class", false},
		{"python", "2fast", false},
		{"python", "has-dash", false},
		{"typescript", "$store", true},
		{"typescript", "function", false},
		{"go", "Exported", true},
		{"go", "_", false},
		{"go", "func", false},
		{"ruby", "empty?", true},
		{"ruby", "save!", true},
	}

	for _, tt := range tests {
		a, ok := r.ForLanguage(tt.lang)
		require.True(t, ok, tt.lang)
		assert.Equal(t, tt.valid, a.IsValidIdentifier(tt.name), "%s %q", tt.lang, tt.name)
	}
}
