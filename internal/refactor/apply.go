package refactor

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/mvp-joe/codemorph/internal/errs"
)

// FileStatus is the outcome of applying a plan to one file.
type FileStatus string

const (
	StatusApplied FileStatus = "applied"
	StatusFailed  FileStatus = "failed"
)

// FileResult reports what happened to one file of a plan.
type FileResult struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
	Edits  int        `json:"edits"`
	Error  string     `json:"error,omitempty"`
	Err    error      `json:"-"`
}

// Failed returns the results that did not apply.
func Failed(results []FileResult) []FileResult {
	var out []FileResult
	for _, r := range results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Applied lists the paths of the files whose edits landed.
func Applied(results []FileResult) []string {
	var out []string
	for _, r := range results {
		if r.Status == StatusApplied {
			out = append(out, r.Path)
		}
	}
	return out
}

// Apply writes the plan file by file. A failure on one file is recorded in
// its result and the remaining files are still attempted; files already
// written stay written. redirect maps a plan path to the path it should be
// read from and written to, for plans built before a file moved.
func Apply(fsys FileSystem, root string, plan *EditPlan, redirect map[string]string) []FileResult {
	files := plan.Files()
	results := make([]FileResult, 0, len(files))
	for _, path := range files {
		edits := plan.EditsFor(path)
		target := path
		if to, ok := redirect[path]; ok {
			target = to
		}
		res := FileResult{Path: target, Edits: len(edits)}
		if err := applyFile(fsys, filepath.Join(root, filepath.FromSlash(target)), target, edits); err != nil {
			res.Status = StatusFailed
			res.Err = err
			res.Error = err.Error()
		} else {
			res.Status = StatusApplied
		}
		results = append(results, res)
	}
	return results
}

func applyFile(fsys FileSystem, abs, rel string, edits []FileEdit) error {
	content, err := fsys.ReadFile(abs)
	if err != nil {
		return errs.IO("apply", rel, err)
	}
	out, err := applyEdits(content, rel, edits)
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(abs, out); err != nil {
		return errs.IO("apply", rel, err)
	}
	return nil
}

// applyEdits returns content with edits applied. edits must be sorted by
// start offset and must not overlap. Each edit's OldText is checked against
// the current content so a file changed since planning is refused whole.
func applyEdits(content []byte, rel string, edits []FileEdit) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(content))

	pos := 0
	for _, e := range edits {
		start, end := e.Range.StartByte, e.Range.EndByte
		if start < pos || end > len(content) || start > end {
			return nil, errs.Validation("apply", rel, "", "edit-range",
				fmt.Sprintf("edit at line %d is outside the file or overlaps another edit", e.Range.Start.Line))
		}
		if string(content[start:end]) != e.OldText {
			return nil, errs.Validation("apply", rel, "", "content-unchanged",
				fmt.Sprintf("line %d changed since the plan was built: expected %q, found %q",
					e.Range.Start.Line, e.OldText, content[start:end]))
		}
		buf.Write(content[pos:start])
		buf.WriteString(e.NewText)
		pos = end
	}
	buf.Write(content[pos:])
	return buf.Bytes(), nil
}
