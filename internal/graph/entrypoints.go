package graph

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// builtinEntryNames are file names treated as entry points in every project.
var builtinEntryNames = map[string]bool{
	"main.go":     true,
	"main.py":     true,
	"__main__.py": true,
	"__init__.py": true,
	"setup.py":    true,
	"manage.py":   true,
	"conftest.py": true,
	"index.ts":    true,
	"index.tsx":   true,
	"index.js":    true,
	"index.jsx":   true,
	"index.mjs":   true,
	"main.ts":     true,
	"main.js":     true,
	"main.rs":     true,
	"lib.rs":      true,
	"build.rs":    true,
	"main.c":      true,
	"index.php":   true,
	"Rakefile":    true,
	"config.ru":   true,
}

var testFileSuffixes = []string{
	"_test.go", "_test.py", ".test.ts", ".test.tsx", ".test.js", ".spec.ts",
	".spec.tsx", ".spec.js", "_spec.rb", "_test.rb", "Test.java", "Tests.java",
}

// EntryPoints decides which files are roots of the dependency graph and so
// never orphans.
type EntryPoints struct {
	patterns []glob.Glob
}

// NewEntryPoints compiles extra entry-point globs on top of the built-in
// names and test-file conventions.
func NewEntryPoints(patterns []string) (*EntryPoints, error) {
	ep := &EntryPoints{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid entry point pattern %q: %w", p, err)
		}
		ep.patterns = append(ep.patterns, g)
	}
	return ep, nil
}

// Match reports whether the slash-separated path is an entry point.
func (ep *EntryPoints) Match(p string) bool {
	base := path.Base(p)
	if builtinEntryNames[base] {
		return true
	}
	if strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py") {
		return true
	}
	for _, suffix := range testFileSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	if ep == nil {
		return false
	}
	for _, g := range ep.patterns {
		if g.Match(p) {
			return true
		}
	}
	return false
}
