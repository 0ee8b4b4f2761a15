package refactor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/mvp-joe/codemorph/internal/errs"
)

// DefaultContextLines is the number of unchanged lines shown around a hunk.
const DefaultContextLines = 3

// FileDiff is the preview of one file.
type FileDiff struct {
	Path    string `json:"path"`
	NewPath string `json:"new_path,omitempty"` // set when the file also moves
	Edits   int    `json:"edits"`
	Diff    string `json:"diff"`
}

// Preview renders the plan as unified diffs without writing anything.
// renames maps a plan path to the path the file will have afterwards.
func Preview(fsys FileSystem, root string, plan *EditPlan, renames map[string]string, contextLines int) ([]FileDiff, error) {
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}

	var out []FileDiff
	for _, path := range plan.Files() {
		edits := plan.EditsFor(path)
		content, err := fsys.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
		if err != nil {
			return nil, errs.IO("preview", path, err)
		}
		updated, err := applyEdits(content, path, edits)
		if err != nil {
			return nil, err
		}

		to := path
		if moved, ok := renames[path]; ok {
			to = moved
		}
		diff, err := unifiedDiff(path, to, string(content), string(updated), contextLines)
		if err != nil {
			return nil, fmt.Errorf("failed to render diff for %s: %w", path, err)
		}

		fd := FileDiff{Path: path, Edits: len(edits), Diff: diff}
		if to != path {
			fd.NewPath = to
		}
		out = append(out, fd)
	}
	return out, nil
}

func unifiedDiff(from, to, a, b string, contextLines int) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "a/" + from,
		ToFile:   "b/" + to,
		Context:  contextLines,
	})
}

// RenderDiffs joins file diffs into one patch.
func RenderDiffs(diffs []FileDiff) string {
	var b strings.Builder
	for _, d := range diffs {
		b.WriteString(d.Diff)
		if d.Diff != "" && !strings.HasSuffix(d.Diff, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
