package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/refactor"
)

// reportedError is a failure whose details the command already wrote, so Run
// only turns it into an exit code.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func printValidation(w io.Writer, v refactor.ValidationResult) {
	for _, issue := range v.Errors {
		fmt.Fprintf(w, "✗ %s\n", issue)
	}
	for _, issue := range v.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", issue)
	}
}

// printDiffs writes the preview patch.
func printDiffs(w io.Writer, diffs []refactor.FileDiff) {
	if patch := refactor.RenderDiffs(diffs); patch != "" {
		fmt.Fprint(w, patch)
	}
}

// printResults lists per-file outcomes of a commit.
func printResults(w io.Writer, results []refactor.FileResult) {
	for _, r := range results {
		if r.Status == refactor.StatusApplied {
			fmt.Fprintf(w, "  ✓ %s (%s)\n", r.Path, plural(r.Edits, "edit"))
		} else {
			fmt.Fprintf(w, "  ✗ %s: %s\n", r.Path, r.Error)
		}
	}
}

// commitError reports the files a commit could not write. Files written
// before the failure stay written.
func commitError(op string, results []refactor.FileResult) error {
	failed := refactor.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	causes := make([]error, len(failed))
	for i, f := range failed {
		causes[i] = f.Err
	}
	return &reportedError{err: errs.IO(op, failed[0].Path,
		fmt.Errorf("%d of %d files failed to update: %w", len(failed), len(results), errors.Join(causes...)))}
}
