package refactor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/resolver"
)

type project struct {
	root   string
	index  *indexer.Index
	engine *Engine
}

func newProject(t *testing.T, files map[string]string, opts ...Option) *project {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	idx, err := indexer.New(root, nil, nil)
	require.NoError(t, err)
	_, err = idx.IndexProject(context.Background(), indexer.Filter{})
	require.NoError(t, err)

	res, err := resolver.New(idx)
	require.NoError(t, err)
	t.Cleanup(res.Close)

	return &project{root: root, index: idx, engine: New(idx, res, opts...)}
}

func (p *project) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (p *project) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(p.root, filepath.FromSlash(rel)))
	return err == nil
}

// checksums hashes every file under the root.
func (p *project) checksums(t *testing.T) map[string]string {
	t.Helper()
	sums := make(map[string]string)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		sums[filepath.ToSlash(rel)] = hex.EncodeToString(sum[:])
		return nil
	})
	require.NoError(t, err)
	return sums
}

// changedFiles lists the paths whose checksum differs between two snapshots,
// including added and removed files.
func changedFiles(before, after map[string]string) []string {
	var out []string
	for p, sum := range after {
		if before[p] != sum {
			out = append(out, p)
		}
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func ruleOf(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Rule
	}
	return ""
}

// failingFS fails writes to the listed absolute paths.
type failingFS struct {
	OSFileSystem
	failWrites map[string]bool
}

func (f failingFS) WriteFile(path string, data []byte) error {
	if f.failWrites[path] {
		return errors.New("disk full")
	}
	return f.OSFileSystem.WriteFile(path, data)
}
