package refactor

import (
	"context"
	"fmt"
	"strings"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
	"github.com/mvp-joe/codemorph/internal/resolver"
)

// RenameRequest names the symbol to rename. Kind, File and Scope narrow the
// lookup when several declarations share the name.
type RenameRequest struct {
	Symbol  string
	NewName string
	Kind    extraction.SymbolKind
	File    string
	Scope   string
	Preview bool
}

// RenameResult carries the operation through its states. Results is set on
// commit and holds one entry per edited file.
type RenameResult struct {
	State      State                `json:"state"`
	Symbol     string               `json:"symbol"`
	NewName    string               `json:"new_name"`
	Definition *extraction.Symbol   `json:"definition,omitempty"`
	Candidates []extraction.Symbol  `json:"candidates,omitempty"`
	Plan       *EditPlan            `json:"plan,omitempty"`
	Validation ValidationResult     `json:"validation"`
	Diffs      []FileDiff           `json:"diffs,omitempty"`
	Results    []FileResult         `json:"results,omitempty"`
	References []resolver.Reference `json:"-"`
	// Undecided are member accesses left unchanged because their receiver
	// may be another type declaring the same member name.
	Undecided []resolver.Reference `json:"undecided,omitempty"`
}

func (r *RenameResult) reject(err error) (*RenameResult, error) {
	r.State = StateRejected
	return r, err
}

// Rename replaces the identifier token at the definition and every reference
// site of the resolved symbol. A rejected rename returns its result together
// with the error that rejected it. On commit, partial write failures are
// reported in Results rather than as an error.
func (e *Engine) Rename(ctx context.Context, req RenameRequest) (*RenameResult, error) {
	const op = "rename"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}

	req.Symbol = strings.TrimSpace(req.Symbol)
	req.NewName = strings.TrimSpace(req.NewName)
	res := &RenameResult{State: StateRequested, Symbol: req.Symbol, NewName: req.NewName, Validation: newValidation()}

	if req.Symbol == "" {
		return res.reject(errs.Validation(op, req.File, "", "symbol-name-required", "a symbol name is required"))
	}
	if req.NewName == "" {
		return res.reject(errs.Validation(op, req.File, req.Symbol, "new-name-required", "a new name is required"))
	}

	resolution, err := e.resolver.Resolve(resolver.Query{Name: req.Symbol, Kind: req.Kind, File: req.File, Scope: req.Scope})
	if err != nil {
		return res.reject(err)
	}
	res.Candidates = resolution.Candidates
	if resolution.Status != resolver.StatusFound {
		return res.reject(resolution.Err(op))
	}
	def := *resolution.Definition
	res.Definition = &def
	res.References = resolution.References
	res.State = StateResolved

	res.Undecided = resolution.Undecided
	e.validateRename(def, req.NewName, resolution.References, &res.Validation)
	if !res.Validation.Valid {
		return res.reject(res.Validation.Err(op))
	}
	if len(res.Undecided) > 0 {
		locs := make([]string, len(res.Undecided))
		for i, ref := range res.Undecided {
			locs[i] = fmt.Sprintf("%s:%d:%d", ref.File, ref.Range.Start.Line, ref.Range.Start.Column+1)
		}
		res.Validation.warn(Issue{
			Path:    def.File,
			Symbol:  def.Name,
			Rule:    "member-receiver-unknown",
			Message: fmt.Sprintf("%d %s of %s may belong to another type and will not be renamed: %s", len(locs), pluralSites(len(locs)), def.QualifiedName(), strings.Join(locs, ", ")),
		})
	}

	plan := NewPlan(op)
	for _, ref := range resolution.References {
		purpose := PurposeReference
		switch {
		case ref.Definition:
			purpose = PurposeDefinition
		case ref.Kind == extraction.UsageImport:
			purpose = PurposeImport
		}
		plan.Add(FileEdit{Path: ref.File, Range: ref.Range, OldText: def.Name, NewText: req.NewName, Purpose: purpose})
	}
	plan.Sort()
	res.Plan = plan

	planIssues(plan, &res.Validation)
	if !res.Validation.Valid {
		return res.reject(res.Validation.Err(op))
	}
	res.State = StateValidated

	if req.Preview {
		diffs, err := e.preview(plan, nil)
		if err != nil {
			return res.reject(err)
		}
		res.Diffs = diffs
		res.State = StatePreviewed
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return res.reject(err)
	}
	res.Results = Apply(e.fs, e.index.Root(), plan, nil)
	e.reindex(ctx, plan.Files())
	res.State = StateApplied
	return res, nil
}

// validateRename checks the new name against the declaring file's adapter.
// Same-scope collisions are warnings.
func (e *Engine) validateRename(def extraction.Symbol, newName string, refs []resolver.Reference, v *ValidationResult) {
	adapter, ok := e.index.Adapter(def.File)
	if !ok || !adapter.Capabilities().Rename {
		v.fail(Issue{Path: def.File, Symbol: def.Name, Rule: "rename-supported", Message: "the file's language does not support rename"})
		return
	}
	if newName == def.Name {
		v.fail(Issue{Path: def.File, Symbol: def.Name, Rule: "name-unchanged", Message: "the new name equals the old name"})
		return
	}
	if !adapter.IsValidIdentifier(newName) {
		v.fail(Issue{
			Path:    def.File,
			Symbol:  newName,
			Rule:    "identifier-syntax",
			Message: fmt.Sprintf("%q is not a valid %s identifier", newName, adapter.Language()),
		})
		return
	}

	touched := make(map[string]bool)
	for _, ref := range refs {
		touched[ref.File] = true
	}
	for _, s := range e.index.Symbols().Find(newName) {
		if s.Scope != def.Scope || s.Container != def.Container {
			continue
		}
		if s.File != def.File && (def.Scope != "" || !touched[s.File]) {
			continue
		}
		v.warn(Issue{
			Path:    s.File,
			Symbol:  newName,
			Rule:    "name-collision",
			Message: fmt.Sprintf("%s %s already exists at %s", s.Kind, s.QualifiedName(), s.Location()),
		})
	}
}

func pluralSites(n int) string {
	if n == 1 {
		return "access"
	}
	return "accesses"
}
