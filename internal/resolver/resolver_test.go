package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Test Plan for Resolver:
// - An unknown name resolves to not_found without an error
// - Unrelated declarations of one name are ambiguous and list every candidate
// - File and scope hints break the tie
// - Module-level references skip files that declare their own symbol
// - A method declared by two classes leaves accesses on unknown receivers undecided
// - self receivers bind to the enclosing class's method
// - Module-qualified usages bind when the qualifier names the declaring module
// - Locals only match usages in their own scope
// - References are sorted by path then offset and carry source lines
// - Resolution.Err maps statuses to classified errors

const (
	modelsPy = `LIMIT = 10

class User:
    def save(self):
        return LIMIT

class Admin:
    def save(self):
        return 0
`
	appPy = `from pkg.models import User, LIMIT

def run():
    user = User()
    user.save()
    count = LIMIT
    return count
`
	otherPy = `LIMIT = 5

def show():
    return LIMIT
`
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{
		"pkg/__init__.py": "",
		"pkg/models.py":   modelsPy,
		"app.py":          appPy,
		"other.py":        otherPy,
	} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	idx, err := indexer.New(root, nil, nil)
	require.NoError(t, err)
	_, err = idx.IndexProject(context.Background(), indexer.Filter{})
	require.NoError(t, err)

	r, err := New(idx, WithCacheCapacity(8))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

type site struct {
	file string
	line int
}

func sites(refs []Reference) []site {
	out := make([]site, len(refs))
	for i, ref := range refs {
		out[i] = site{ref.File, ref.Range.Start.Line}
	}
	return out
}

func TestResolver_NotFound(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	res, err := r.Resolve(Query{Name: "Missing"})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
	assert.ErrorIs(t, res.Err("rename"), errs.ErrNotFound)

	_, err = r.Resolve(Query{Name: "  "})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestResolver_AmbiguousUntilHinted(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	res, err := r.Resolve(Query{Name: "LIMIT"})
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguous, res.Status)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "other.py", res.Candidates[0].File)
	assert.Equal(t, "pkg/models.py", res.Candidates[1].File)
	assert.Nil(t, res.Definition)

	err = res.Err("rename")
	assert.ErrorIs(t, err, errs.ErrAmbiguous)
	assert.Contains(t, err.Error(), "pkg/models.py")
	assert.Contains(t, err.Error(), "other.py")

	res, err = r.Resolve(Query{Name: "LIMIT", File: "models.py"})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "pkg/models.py", res.Definition.File)
	assert.NoError(t, res.Err("rename"))
}

func TestResolver_ModuleLevelReferences(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	res, err := r.Resolve(Query{Name: "LIMIT", File: "pkg/models.py"})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)

	assert.Equal(t, []site{
		{"app.py", 1},
		{"app.py", 6},
		{"pkg/models.py", 1},
		{"pkg/models.py", 5},
	}, sites(res.References))

	assert.True(t, res.References[2].Definition)
	assert.Equal(t, extraction.UsageImport, res.References[0].Kind)
	assert.Equal(t, "    count = LIMIT", res.References[1].Line)

	other, err := r.Resolve(Query{Name: "LIMIT", File: "other.py"})
	require.NoError(t, err)
	assert.Equal(t, []site{{"other.py", 1}, {"other.py", 4}}, sites(other.References))
}

func TestResolver_MemberReferences(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	res, err := r.Resolve(Query{Name: "save"})
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguous, res.Status)

	res, err = r.Resolve(Query{Name: "save", Scope: "User"})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "User", res.Definition.Container)
	assert.Equal(t, []site{{"pkg/models.py", 4}}, sites(res.References))
	assert.Equal(t, []site{{"app.py", 5}}, sites(res.Undecided))
	assert.Equal(t, extraction.UsageCall, res.Undecided[0].Kind)
	assert.Equal(t, "    user.save()", res.Undecided[0].Line)
}

func resolverFor(t *testing.T, files map[string]string) *Resolver {
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
	r, err := New(idx)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestResolver_SelfReceiverBindsOwnMethod(t *testing.T) {
	t.Parallel()

	r := resolverFor(t, map[string]string{
		"shapes.py": `class Circle:
    def area(self):
        return 1

    def describe(self):
        return self.area()


class Square:
    def area(self):
        return 2

    def describe(self):
        return self.area()
`,
	})

	res, err := r.Resolve(Query{Name: "area", Scope: "Square"})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, []site{{"shapes.py", 10}, {"shapes.py", 14}}, sites(res.References))
	assert.Empty(t, res.Undecided)
}

func TestResolver_ModuleQualifiedReferences(t *testing.T) {
	t.Parallel()

	r := resolverFor(t, map[string]string{
		"util.py":  "def helper():\n    return 1\n",
		"other.py": "def helper():\n    return 2\n",
		"main.py":  "import util\nimport other as o\n\nutil.helper()\no.helper()\n",
	})

	res, err := r.Resolve(Query{Name: "helper", File: "util.py"})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, []site{{"main.py", 4}, {"util.py", 1}}, sites(res.References))

	res, err = r.Resolve(Query{Name: "helper", File: "other.py"})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, []site{{"main.py", 5}, {"other.py", 1}}, sites(res.References))
}

func TestResolver_LocalReferences(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	res, err := r.Resolve(Query{Name: "count", Kind: extraction.KindVariable})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "run", res.Definition.Scope)
	assert.Equal(t, []site{{"app.py", 6}, {"app.py", 7}}, sites(res.References))

	res, err = r.Resolve(Query{Name: "count", Kind: extraction.KindFunction})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestResolver_ClassReferencesFollowImports(t *testing.T) {
	t.Parallel()

	r := newResolver(t)

	res, err := r.Resolve(Query{Name: "User", Kind: extraction.KindClass})
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, []site{{"app.py", 1}, {"app.py", 4}, {"pkg/models.py", 3}}, sites(res.References))
}

func TestResolver_Disposed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	idx, err := indexer.New(root, nil, nil)
	require.NoError(t, err)
	r, err := New(idx)
	require.NoError(t, err)
	defer r.Close()

	idx.Dispose()
	_, err = r.Resolve(Query{Name: "x"})
	assert.ErrorIs(t, err, errs.ErrDisposed)
}
