package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

func parseSource(t *testing.T, a Adapter, path, src string) *extraction.FileExtraction {
	t.Helper()
	ex, err := a.Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	require.NotNil(t, ex)
	return ex
}

// symbolsNamed returns every declaration of name.
func symbolsNamed(ex *extraction.FileExtraction, name string) []extraction.Symbol {
	var out []extraction.Symbol
	for _, s := range ex.Symbols {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// requireSymbol returns the single declaration of name in scope.
func requireSymbol(t *testing.T, ex *extraction.FileExtraction, name, scope string) extraction.Symbol {
	t.Helper()
	for _, s := range ex.Symbols {
		if s.Name == name && s.Scope == scope {
			return s
		}
	}
	require.Failf(t, "symbol not found", "%s in scope %q; have %v", name, scope, ex.Symbols)
	return extraction.Symbol{}
}

func usagesNamed(ex *extraction.FileExtraction, name string) []extraction.Usage {
	var out []extraction.Usage
	for _, u := range ex.Usages {
		if u.Name == name {
			out = append(out, u)
		}
	}
	return out
}

func hasUsage(ex *extraction.FileExtraction, name string, kind extraction.UsageKind, scope string, member bool) bool {
	for _, u := range usagesNamed(ex, name) {
		if u.Kind == kind && u.Scope == scope && u.Member == member {
			return true
		}
	}
	return false
}

func dependencyRaws(ex *extraction.FileExtraction) []string {
	out := make([]string, 0, len(ex.Dependencies))
	for _, d := range ex.Dependencies {
		out = append(out, d.Raw)
	}
	return out
}

// fakeFiles builds an ImportContext over a fixed file set.
func fakeFiles(from string, files ...string) ImportContext {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	return ImportContext{
		Root: "/project",
		From: from,
		Exists: func(p string) bool {
			return set[p]
		},
		FilesInDir: func(dir string) []string {
			var out []string
			for _, f := range files {
				d := f
				if i := lastSlash(f); i >= 0 {
					d = f[:i]
				} else {
					d = ""
				}
				if d == dir {
					out = append(out, f)
				}
			}
			return out
		},
	}
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
