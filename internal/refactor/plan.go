// Package refactor builds and applies multi-file source transformations:
// rename a symbol, move a file, extract lines into a new function.
//
// Every operation produces an EditPlan of byte-range replacements. A plan is
// validated before anything is written, can be previewed as unified diffs,
// and is applied edit by edit with a result per file. Files touched by a
// committed plan are re-indexed so the index matches the new content.
package refactor

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Purpose tags what an edit does within its operation.
type Purpose string

const (
	PurposeDefinition Purpose = "definition"
	PurposeReference  Purpose = "reference"
	PurposeInsertion  Purpose = "insertion"
	PurposeImport     Purpose = "import"
)

// FileEdit replaces Range in Path. OldText is the text the range must still
// hold when the edit is applied; an empty range is an insertion.
type FileEdit struct {
	Path    string           `json:"path"`
	Range   extraction.Range `json:"range"`
	OldText string           `json:"old_text"`
	NewText string           `json:"new_text"`
	Purpose Purpose          `json:"purpose"`
}

// EditPlan is the ordered set of edits of one operation. Plans are transient.
type EditPlan struct {
	ID        string     `json:"id"`
	Operation string     `json:"operation"`
	Edits     []FileEdit `json:"edits"`
}

// NewPlan starts an empty plan for the named operation.
func NewPlan(operation string) *EditPlan {
	return &EditPlan{ID: uuid.NewString(), Operation: operation}
}

// Add appends an edit.
func (p *EditPlan) Add(e FileEdit) {
	p.Edits = append(p.Edits, e)
}

// Sort orders edits by path, then by start offset.
func (p *EditPlan) Sort() {
	sort.SliceStable(p.Edits, func(i, j int) bool {
		a, b := p.Edits[i], p.Edits[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Range.StartByte < b.Range.StartByte
	})
}

// Files lists the distinct paths the plan edits, sorted.
func (p *EditPlan) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range p.Edits {
		if !seen[e.Path] {
			seen[e.Path] = true
			out = append(out, e.Path)
		}
	}
	sort.Strings(out)
	return out
}

// EditsFor returns the edits of one file ordered by start offset.
func (p *EditPlan) EditsFor(path string) []FileEdit {
	var out []FileEdit
	for _, e := range p.Edits {
		if e.Path == path {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.StartByte < out[j].Range.StartByte
	})
	return out
}

// Len returns the number of edits.
func (p *EditPlan) Len() int {
	return len(p.Edits)
}

// Validate reports overlapping edits within a file and edits whose old text
// does not match their range length.
func (p *EditPlan) Validate() []Issue {
	var issues []Issue
	for _, path := range p.Files() {
		edits := p.EditsFor(path)
		for i, e := range edits {
			if e.Range.StartByte < 0 || e.Range.EndByte < e.Range.StartByte || len(e.OldText) != e.Range.Len() {
				issues = append(issues, Issue{
					Path:    path,
					Rule:    "edit-range",
					Message: fmt.Sprintf("edit at byte %d has an invalid range", e.Range.StartByte),
				})
			}
			if i > 0 && edits[i-1].Range.Overlaps(e.Range) {
				issues = append(issues, Issue{
					Path: path,
					Rule: "non-overlapping-edits",
					Message: fmt.Sprintf("edits at lines %d and %d overlap",
						edits[i-1].Range.Start.Line, e.Range.Start.Line),
				})
			}
		}
	}
	return issues
}

// Issue is one validation finding.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	subject := i.Path
	if i.Symbol != "" {
		if subject != "" {
			subject = fmt.Sprintf("symbol %q in %s", i.Symbol, subject)
		} else {
			subject = fmt.Sprintf("symbol %q", i.Symbol)
		}
	}
	if subject == "" {
		return fmt.Sprintf("%s [%s]", i.Message, i.Rule)
	}
	return fmt.Sprintf("%s: %s [%s]", subject, i.Message, i.Rule)
}

// ValidationResult gates an EditPlan. Errors block the operation, warnings
// are left to the caller.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

func newValidation() ValidationResult {
	return ValidationResult{Valid: true}
}

func (v *ValidationResult) fail(issue Issue) {
	v.Valid = false
	v.Errors = append(v.Errors, issue)
}

func (v *ValidationResult) warn(issue Issue) {
	v.Warnings = append(v.Warnings, issue)
}

// Err returns the first blocking issue as a ValidationFailed error.
func (v *ValidationResult) Err(op string) error {
	if v.Valid || len(v.Errors) == 0 {
		return nil
	}
	first := v.Errors[0]
	return errs.Validation(op, first.Path, first.Symbol, first.Rule, first.Message)
}
