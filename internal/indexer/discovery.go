package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// builtinIgnoreDirs are never descended into.
var builtinIgnoreDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	".codemorph":    true,
	".idea":         true,
	".vscode":       true,
	".venv":         true,
	"venv":          true,
	"node_modules":  true,
	"vendor":        true,
	"dist":          true,
	"build":         true,
	"target":        true,
	"__pycache__":   true,
	".mypy_cache":   true,
	".pytest_cache": true,
	".next":         true,
	"coverage":      true,
}

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// FileDiscovery selects the files of a project by extension and exclude
// globs.
type FileDiscovery struct {
	rootDir    string
	extensions map[string]bool
	exclude    []compiledPattern
}

// NewFileDiscovery creates a new file discovery instance. Extensions are
// matched case-insensitively, with or without the leading dot.
func NewFileDiscovery(rootDir string, extensions, exclude []string) (*FileDiscovery, error) {
	fd := &FileDiscovery{
		rootDir:    rootDir,
		extensions: make(map[string]bool, len(extensions)),
	}

	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		fd.extensions[ext] = true
	}

	for _, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		fd.exclude = append(fd.exclude, compiledPattern{pattern: pattern, glob: g})
	}

	return fd, nil
}

// DiscoverFiles walks the directory tree and returns matching files as sorted,
// slash-separated paths relative to the root.
func (fd *FileDiscovery) DiscoverFiles(ctx context.Context) ([]string, error) {
	return fd.walk(ctx, fd.rootDir)
}

// DiscoverFilesUnder discovers the files below dir, an absolute directory
// inside the root. Paths are still relative to the root.
func (fd *FileDiscovery) DiscoverFilesUnder(dir string) ([]string, error) {
	return fd.walk(context.Background(), dir)
}

func (fd *FileDiscovery) walk(ctx context.Context, start string) ([]string, error) {
	files := []string{}

	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(fd.rootDir, p)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if relPath == "." {
			return nil
		}

		if d.IsDir() {
			if fd.shouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if fd.Matches(relPath) {
			files = append(files, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Matches reports whether a root-relative file path would be discovered.
func (fd *FileDiscovery) Matches(relPath string) bool {
	if fd.shouldIgnore(relPath) {
		return false
	}
	for dir := path.Dir(relPath); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if fd.shouldIgnore(dir) {
			return false
		}
	}
	return fd.extensions[strings.ToLower(path.Ext(relPath))]
}

// shouldIgnore checks if a path matches the built-in list or an exclude
// pattern.
func (fd *FileDiscovery) shouldIgnore(relPath string) bool {
	if builtinIgnoreDirs[path.Base(relPath)] {
		return true
	}

	if fd.matchesAnyPattern(relPath, fd.exclude) {
		return true
	}

	// "node_modules" should match pattern "node_modules/**"
	return fd.matchesAnyPattern(relPath+"/**", fd.exclude)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func (fd *FileDiscovery) matchesAnyPattern(p string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(p) {
			return true
		}
	}

	// A root-level path also matches patterns with the **/ prefix removed, so
	// "**/*.md" matches both "README.md" and "docs/guide.md".
	if !strings.Contains(p, "/") {
		for _, cp := range patterns {
			if strings.HasPrefix(cp.pattern, "**/") {
				simplified := strings.TrimPrefix(cp.pattern, "**/")
				if simplifiedGlob, err := glob.Compile(simplified, '/'); err == nil {
					if simplifiedGlob.Match(p) {
						return true
					}
				}
			}
		}
	}

	return false
}
