package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/graph"
	"github.com/mvp-joe/codemorph/internal/refactor"
	"github.com/mvp-joe/codemorph/internal/storage"
)

// Test Plan for CLI:
// - index reports stats as JSON, writes the cache, and reuses it on the next run
// - index re-parses only modified files, honors --include-ext and --no-cache
// - search ranks declarations and lists references with --refs
// - rename previews without writing, commits, and needs --force when warned
// - move rewrites imports and later runs see the new graph
// - refactor extract-function previews and commits
// - deps graph, cycles, impact and orphans report the sample project's graph
// - errors map to exit codes and JSON error documents

type result struct {
	stdout string
	stderr string
	code   int
}

// sampleProject copies testdata/sample into a temp dir.
func sampleProject(t *testing.T) string {
	t.Helper()
	src := filepath.Join("..", "..", "testdata", "sample")
	dst := t.TempDir()
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
	require.NoError(t, err)
	return dst
}

func run(t *testing.T, root string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--root", root}, args...)
	code := Run(context.Background(), full, &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func decode[T any](t *testing.T, r result) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &v), "stdout: %s\nstderr: %s", r.stdout, r.stderr)
	return v
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

const sampleFiles = 8

func TestIndex_ReportsAndReusesCache(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	first := run(t, root, "--json", "index")
	require.Equal(t, ExitOK, first.code, first.stderr)
	report := decode[indexReport](t, first)
	assert.Equal(t, sampleFiles, report.Stats.Files)
	assert.Equal(t, sampleFiles, report.Stats.Parsed)
	assert.Equal(t, 0, report.Stats.Reused)
	assert.Empty(t, report.Errors)
	assert.FileExists(t, filepath.Join(root, ".codemorph", storage.DefaultFileName))

	second := decode[indexReport](t, run(t, root, "--json", "index"))
	assert.Equal(t, sampleFiles, second.Stats.Reused)
	assert.Equal(t, 0, second.Stats.Parsed)

	require.NoError(t, os.WriteFile(filepath.Join(root, "tools", "b.py"), []byte("import a\n\nVALUE = 1\n"), 0644))
	third := decode[indexReport](t, run(t, root, "--json", "index"))
	assert.Equal(t, 1, third.Stats.Parsed)
	assert.Equal(t, sampleFiles-1, third.Stats.Reused)
}

func TestIndex_ReportsParseErrors(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.py"), []byte("def broken(:\n"), 0644))

	res := run(t, root, "--json", "index")
	require.Equal(t, ExitOK, res.code, res.stderr)
	report := decode[indexReport](t, res)
	assert.Equal(t, []string{"broken.py"}, report.Errors)
}

func TestIndex_Filters(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	goOnly := decode[indexReport](t, run(t, root, "--json", "index", "--include-ext", ".go"))
	assert.Equal(t, 1, goOnly.Stats.Files)

	noTools := decode[indexReport](t, run(t, root, "--json", "index", "--exclude", "tools/**"))
	assert.Equal(t, sampleFiles-2, noTools.Stats.Files)
}

func TestIndex_NoCache(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	res := run(t, root, "index", "--no-cache", "--quiet")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Indexing complete: 8 files")
	assert.NoDirExists(t, filepath.Join(root, ".codemorph"))
}

func TestIndex_PathArgument(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"--json", "index", filepath.Join(root, "tools")}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())

	var report indexReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 2, report.Stats.Files)
}

func TestIndex_WatchRejectsJSON(t *testing.T) {
	t.Parallel()
	res := run(t, sampleProject(t), "--json", "index", "--watch")
	assert.Equal(t, ExitRejected, res.code)

	doc := decode[map[string]errorBody](t, res)
	assert.Equal(t, "watch-without-json", doc["error"].Rule)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	res := run(t, root, "--json", "search", "User", "--refs")
	require.Equal(t, ExitOK, res.code, res.stderr)
	report := decode[searchReport](t, res)
	require.NotEmpty(t, report.Results)

	top := report.Results[0]
	assert.Equal(t, "User", top.Symbol.Name)
	assert.Equal(t, "pkg/models.py", top.Symbol.File)
	files := map[string]bool{}
	for _, ref := range top.References {
		files[ref.File] = true
	}
	assert.True(t, files["pkg/models.py"])
	assert.True(t, files["pkg/service.py"])

	text := run(t, root, "search", "Handl", "--kind", "struct")
	require.Equal(t, ExitOK, text.code, text.stderr)
	assert.Contains(t, text.stdout, "Handler")
	assert.Contains(t, text.stdout, "server/server.go")

	none := run(t, root, "search", "nothing_like_this")
	assert.Equal(t, ExitOK, none.code)
	assert.Contains(t, none.stdout, "No symbols match")

	bad := run(t, root, "search", "User", "--kind", "bogus")
	assert.Equal(t, ExitRejected, bad.code)
	assert.Contains(t, bad.stderr, "symbol-kind")
}

func TestRename_PreviewThenCommit(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)
	models := readFile(t, root, "pkg/models.py")

	preview := run(t, root, "rename", "--symbol", "LIMIT", "--new-name", "MAX_ITEMS", "--preview")
	require.Equal(t, ExitOK, preview.code, preview.stderr)
	assert.Contains(t, preview.stdout, "-LIMIT = 10")
	assert.Contains(t, preview.stdout, "+MAX_ITEMS = 10")
	assert.Contains(t, preview.stdout, "Would rename LIMIT to MAX_ITEMS: 4 edits in 2 files")
	assert.Equal(t, models, readFile(t, root, "pkg/models.py"))

	commit := run(t, root, "--json", "rename", "--symbol", "LIMIT", "--new-name", "MAX_ITEMS")
	require.Equal(t, ExitOK, commit.code, commit.stderr)
	res := decode[refactor.RenameResult](t, commit)
	assert.Equal(t, refactor.StateApplied, res.State)
	require.Len(t, res.Results, 2)
	assert.Empty(t, refactor.Failed(res.Results))

	assert.Contains(t, readFile(t, root, "app.py"), "from pkg.models import MAX_ITEMS\n")
	assert.Contains(t, readFile(t, root, "app.py"), "count = MAX_ITEMS\n")
	assert.Contains(t, readFile(t, root, "pkg/models.py"), "return MAX_ITEMS\n")

	after := decode[searchReport](t, run(t, root, "--json", "search", "LIMIT"))
	assert.Empty(t, after.Results)
}

func TestRename_WarningsNeedForce(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)
	app := readFile(t, root, "app.py")

	blocked := run(t, root, "rename", "--symbol", "count", "--new-name", "user", "--scope", "run")
	assert.Equal(t, ExitRejected, blocked.code)
	assert.Contains(t, blocked.stdout, "name-collision")
	assert.Contains(t, blocked.stderr, "confirm-warnings")
	assert.Equal(t, app, readFile(t, root, "app.py"))

	preview := run(t, root, "rename", "--symbol", "count", "--new-name", "user", "--scope", "run", "--preview")
	assert.Equal(t, ExitOK, preview.code, preview.stderr)

	forced := run(t, root, "rename", "--symbol", "count", "--new-name", "user", "--scope", "run", "--force")
	require.Equal(t, ExitOK, forced.code, forced.stderr)
	assert.Contains(t, readFile(t, root, "app.py"), "return user, user\n")
}

func TestRename_Rejections(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	tests := []struct {
		name string
		args []string
		kind errs.Kind
		rule string
	}{
		{name: "unknown symbol", args: []string{"--symbol", "Missing", "--new-name", "Found"}, kind: errs.KindNotFound},
		{name: "ambiguous symbol", args: []string{"--symbol", "run", "--new-name", "start"}, kind: errs.KindAmbiguous, rule: "scope-hint-required"},
		{name: "missing new name", args: []string{"--symbol", "LIMIT"}, kind: errs.KindValidation, rule: "new-name-required"},
		{name: "keyword", args: []string{"--symbol", "LIMIT", "--new-name", "class"}, kind: errs.KindValidation, rule: "identifier-syntax"},
		{name: "unknown kind", args: []string{"--symbol", "LIMIT", "--new-name", "MAX", "--type", "bogus"}, kind: errs.KindValidation, rule: "symbol-kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, root, append([]string{"--json", "rename"}, tt.args...)...)
			assert.Equal(t, ExitRejected, res.code)
			doc := decode[map[string]errorBody](t, res)
			assert.Equal(t, string(tt.kind), doc["error"].Kind)
			assert.Equal(t, tt.rule, doc["error"].Rule)
		})
	}

	resolved := run(t, root, "rename", "--symbol", "run", "--new-name", "start", "--file", "pkg/calc.py", "--preview")
	assert.Equal(t, ExitOK, resolved.code, resolved.stderr)
}

func TestMove(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	preview := run(t, root, "move", "pkg/models.py", "pkg/db/models.py", "--preview")
	require.Equal(t, ExitOK, preview.code, preview.stderr)
	assert.Contains(t, preview.stdout, "+from pkg.db.models import LIMIT")
	assert.FileExists(t, filepath.Join(root, "pkg", "models.py"))

	commit := run(t, root, "--json", "move", "pkg/models.py", "pkg/db/models.py")
	require.Equal(t, ExitOK, commit.code, commit.stderr)
	res := decode[refactor.MoveResult](t, commit)
	assert.Equal(t, []string{"app.py", "pkg/service.py"}, res.AffectedFiles)

	assert.NoFileExists(t, filepath.Join(root, "pkg", "models.py"))
	assert.Contains(t, readFile(t, root, "app.py"), "from pkg.db.models import LIMIT\n")
	assert.Contains(t, readFile(t, root, "pkg/service.py"), "from .db.models import User\n")

	impact := decode[graph.Impact](t, run(t, root, "--json", "deps", "impact", "pkg/db/models.py"))
	assert.Equal(t, []string{"app.py", "pkg/service.py"}, impact.Direct)

	exists := run(t, root, "move", "app.py", "pkg/service.py")
	assert.Equal(t, ExitRejected, exists.code)
	assert.Contains(t, exists.stderr, "target-exists")

	same := run(t, root, "move", "app.py", "./app.py")
	assert.Equal(t, ExitOK, same.code, same.stderr)
	assert.Contains(t, same.stdout, "nothing to do")
}

func TestExtractFunction(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)
	before := readFile(t, root, "pkg/calc.py")
	args := []string{"refactor", "extract-function", "--file", "pkg/calc.py", "--start-line", "4", "--end-line", "4", "--new-name", "combine"}

	preview := run(t, root, append(args, "--preview")...)
	require.Equal(t, ExitOK, preview.code, preview.stderr)
	assert.Contains(t, preview.stdout, "+def combine(y, x):")
	assert.Contains(t, preview.stdout, "Would extract lines 4-4")
	assert.Equal(t, before, readFile(t, root, "pkg/calc.py"))

	commit := run(t, root, append([]string{"--json"}, args...)...)
	require.Equal(t, ExitOK, commit.code, commit.stderr)
	res := decode[refactor.ExtractResult](t, commit)
	require.Len(t, res.Params, 2)
	assert.Equal(t, "y", res.Params[0].Name)
	assert.Equal(t, "x", res.Params[1].Name)

	assert.Equal(t, `def run():
    x = 1
    y = 2
    z = combine(y, x)
    return z

def combine(y, x):
    z = y + x
    return z
`, readFile(t, root, "pkg/calc.py"))

	outOfRange := run(t, root, "refactor", "extract-function", "--file", "pkg/calc.py", "--start-line", "0", "--end-line", "2", "--new-name", "f")
	assert.Equal(t, ExitRejected, outOfRange.code)
	assert.Contains(t, outOfRange.stderr, "range-in-bounds")
}

func TestDeps(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	cycles := decode[cyclesReport](t, run(t, root, "--json", "deps", "cycles"))
	assert.Equal(t, [][]string{{"tools/a.py", "tools/b.py"}}, cycles.Cycles)

	text := run(t, root, "deps", "cycles")
	assert.Contains(t, text.stdout, "tools/a.py -> tools/b.py -> tools/a.py")

	internal := decode[graphReport](t, run(t, root, "--json", "deps", "graph"))
	all := decode[graphReport](t, run(t, root, "--json", "deps", "graph", "--all"))
	assert.Len(t, internal.Nodes, sampleFiles)
	for _, e := range internal.Edges {
		assert.True(t, e.Internal(), fmt.Sprintf("%s -> %s", e.From, e.To))
	}
	assert.Greater(t, len(all.Edges), len(internal.Edges))
	assert.Equal(t, internal.Stats.Edges, len(internal.Edges))

	impact := decode[graph.Impact](t, run(t, root, "--json", "deps", "impact", "pkg/models.py"))
	assert.Equal(t, []string{"app.py", "pkg/service.py"}, impact.Direct)
	assert.Equal(t, graph.ImpactLow, impact.Level)

	missing := run(t, root, "deps", "impact", "nope.py")
	assert.Equal(t, ExitRejected, missing.code)

	orphans := decode[orphansReport](t, run(t, root, "--json", "deps", "orphans"))
	assert.Equal(t, []string{"app.py", "pkg/calc.py", "server/server.go"}, orphanPaths(orphans.Orphans))

	withEntries := decode[orphansReport](t, run(t, root, "--json", "deps", "orphans", "--all"))
	assert.Equal(t, []string{"app.py", "pkg/__init__.py", "pkg/calc.py", "server/server.go"}, orphanPaths(withEntries.Orphans))
}

func orphanPaths(orphans []graph.Orphan) []string {
	out := []string{}
	for _, o := range orphans {
		out = append(out, o.Path)
	}
	return out
}

func TestConfigFile(t *testing.T) {
	t.Parallel()
	root := sampleProject(t)

	cfgPath := filepath.Join(root, "custom.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("graph:\n  entry_points: [\"app.py\"]\n"), 0644))
	orphans := decode[orphansReport](t, run(t, root, "--json", "--config", cfgPath, "deps", "orphans"))
	assert.Equal(t, []string{"pkg/calc.py", "server/server.go"}, orphanPaths(orphans.Orphans))

	missing := run(t, root, "--config", filepath.Join(root, "missing.yml"), "deps", "cycles")
	assert.Equal(t, ExitFailure, missing.code)
	assert.Contains(t, missing.stderr, "failed to load configuration")
}

func TestVersion(t *testing.T) {
	t.Parallel()
	res := run(t, t.TempDir(), "version")
	assert.Equal(t, ExitOK, res.code)
	assert.Equal(t, "codemorph dev\n", res.stdout)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"not found", errs.NotFound("rename", "", "x"), ExitRejected},
		{"ambiguous", errs.Ambiguous("rename", "x", []string{"a", "b"}), ExitRejected},
		{"validation", errs.Validation("move", "a.py", "", "target-exists", "exists"), ExitRejected},
		{"wrapped validation", fmt.Errorf("outer: %w", errs.Validation("move", "", "", "r", "m")), ExitRejected},
		{"io", errs.IO("rename", "a.py", os.ErrPermission), ExitFailure},
		{"commit failure with stale content", &reportedError{err: errs.IO("rename", "a.py",
			errs.Validation("rename", "a.py", "", "content-unchanged", "changed"))}, ExitFailure},
		{"plain", fmt.Errorf("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-12,345", formatNumber(-12345))
}
