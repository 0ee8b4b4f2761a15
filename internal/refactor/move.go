package refactor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path"
	"path/filepath"
	"sort"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
	"github.com/mvp-joe/codemorph/internal/indexer/parsers"
)

// MoveRequest moves Source to Target. Paths are absolute or relative to the
// index root.
type MoveRequest struct {
	Source    string
	Target    string
	Overwrite bool
	Preview   bool
}

// MoveResult describes a planned or committed move. AffectedFiles lists the
// files whose content the move rewrites, with the moved file under its new
// path.
type MoveResult struct {
	State         State            `json:"state"`
	Source        string           `json:"source"`
	Target        string           `json:"target"`
	NoOp          bool             `json:"no_op,omitempty"`
	AffectedFiles []string         `json:"affected_files"`
	Plan          *EditPlan        `json:"plan,omitempty"`
	Validation    ValidationResult `json:"validation"`
	Diffs         []FileDiff       `json:"diffs,omitempty"`
	Results       []FileResult     `json:"results,omitempty"`
}

func (r *MoveResult) reject(err error) (*MoveResult, error) {
	r.State = StateRejected
	return r, err
}

// Move relocates a file and rewrites the import statements that encode its
// path. For languages whose imports do not name file paths the move touches
// no other file, which is reported as a warning rather than an error.
func (e *Engine) Move(ctx context.Context, req MoveRequest) (*MoveResult, error) {
	const op = "move"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}

	res := &MoveResult{State: StateRequested, Source: req.Source, Target: req.Target, AffectedFiles: []string{}, Validation: newValidation()}
	if req.Source == "" || req.Target == "" {
		return res.reject(errs.Validation(op, req.Source, "", "source-and-target-required", "both a source and a target path are required"))
	}

	src, err := e.index.RelPath(req.Source)
	if err != nil {
		return res.reject(err)
	}
	tgt, err := e.index.RelPath(req.Target)
	if err != nil {
		return res.reject(err)
	}
	res.Source, res.Target = src, tgt

	if _, err := e.fs.Stat(e.index.AbsPath(src)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res.reject(errs.NotFound(op, src, ""))
		}
		return res.reject(errs.IO(op, src, err))
	}
	if !e.index.HasFile(src) {
		return res.reject(errs.NotFound(op, src, ""))
	}
	res.State = StateResolved

	if src == tgt {
		res.NoOp = true
		res.Plan = NewPlan(op)
		res.State = StateValidated
		if req.Preview {
			res.State = StatePreviewed
		} else {
			res.State = StateApplied
		}
		return res, nil
	}

	if info, err := e.fs.Stat(e.index.AbsPath(tgt)); err == nil {
		if info.IsDir() {
			return res.reject(errs.Validation(op, tgt, "", "target-is-file", "the target is a directory"))
		}
		if !req.Overwrite {
			return res.reject(errs.Validation(op, tgt, "", "target-exists", "the target already exists; pass overwrite to replace it"))
		}
		res.Validation.warn(Issue{Path: tgt, Rule: "target-exists", Message: "the existing target will be replaced"})
	}

	plan, err := e.planMove(src, tgt, &res.Validation)
	if err != nil {
		return res.reject(err)
	}
	res.Plan = plan
	res.AffectedFiles = affectedFiles(plan, src, tgt)

	planIssues(plan, &res.Validation)
	if !res.Validation.Valid {
		return res.reject(res.Validation.Err(op))
	}
	res.State = StateValidated

	renames := map[string]string{src: tgt}
	if req.Preview {
		diffs, err := e.preview(plan, renames)
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
	if err := e.fs.MkdirAll(filepath.Dir(e.index.AbsPath(tgt))); err != nil {
		return res.reject(errs.IO(op, tgt, err))
	}
	if err := e.fs.Rename(e.index.AbsPath(src), e.index.AbsPath(tgt)); err != nil {
		return res.reject(errs.IO(op, src, err))
	}

	res.Results = Apply(e.fs, e.index.Root(), plan, renames)
	e.reindexMove(ctx, src, tgt, plan)
	res.State = StateApplied
	return res, nil
}

// planMove collects the import rewrites of a move: statements in other files
// that point at src, and the relative imports of src itself.
func (e *Engine) planMove(src, tgt string, v *ValidationResult) (*EditPlan, error) {
	plan := NewPlan("move")

	adapter, ok := e.index.Adapter(src)
	if !ok {
		return nil, errs.Validation("move", src, "", "move-supported", "no adapter handles the source file")
	}
	if !adapter.Capabilities().Move {
		v.warn(Issue{
			Path:    src,
			Rule:    "path-independent-imports",
			Message: fmt.Sprintf("%s imports do not encode file paths; no references need updating", adapter.Language()),
		})
		return plan, nil
	}
	if dst, ok := e.index.Registry().ForPath(tgt); !ok || dst.Language() != adapter.Language() {
		v.warn(Issue{Path: tgt, Rule: "target-language", Message: "the target extension maps to a different language"})
	}

	graph := e.index.Graph()
	for _, importer := range graph.Dependents(src) {
		rw, ok := e.rewriter(importer)
		if !ok {
			continue
		}
		for _, dep := range e.statementsTo(importer, src) {
			if spec, ok := rw.RewriteImport(dep, importer, importer, src, tgt); ok {
				plan.Add(importEdit(importer, dep, spec))
			}
		}
	}

	if rw, ok := adapter.(parsers.ImportRewriter); ok {
		for _, edge := range graph.Dependencies(src) {
			if !edge.Internal() || edge.To == src {
				continue
			}
			for _, dep := range e.statementsTo(src, edge.To) {
				if spec, ok := rw.RewriteImport(dep, src, tgt, edge.To, edge.To); ok {
					plan.Add(importEdit(src, dep, spec))
				}
			}
		}
	}

	plan.Sort()
	return plan, nil
}

// rewriter returns the import rewriter of the adapter parsing file.
func (e *Engine) rewriter(file string) (parsers.ImportRewriter, bool) {
	a, ok := e.index.Adapter(file)
	if !ok || !a.Capabilities().Move {
		return nil, false
	}
	rw, ok := a.(parsers.ImportRewriter)
	return rw, ok
}

// statementsTo returns from's dependency statements whose edges reach to.
func (e *Engine) statementsTo(from, to string) []extraction.Dependency {
	starts := make(map[int]bool)
	for _, edge := range e.index.Graph().Dependencies(from) {
		if edge.To != to {
			continue
		}
		for _, st := range edge.Statements {
			starts[st.Range.StartByte] = true
		}
	}
	if len(starts) == 0 {
		return nil
	}

	rec, err := e.index.Record(from)
	if err != nil {
		return nil
	}
	var out []extraction.Dependency
	for _, dep := range rec.Dependencies {
		if starts[dep.Range.StartByte] {
			out = append(out, dep)
		}
	}
	return out
}

func importEdit(file string, dep extraction.Dependency, spec string) FileEdit {
	return FileEdit{Path: file, Range: dep.Range, OldText: dep.Raw, NewText: spec, Purpose: PurposeImport}
}

func affectedFiles(plan *EditPlan, src, tgt string) []string {
	out := []string{}
	for _, p := range plan.Files() {
		if p == src {
			p = tgt
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// reindexMove drops the old record, indexes the new path and refreshes the
// rewritten importers.
func (e *Engine) reindexMove(ctx context.Context, src, tgt string, plan *EditPlan) {
	if err := e.index.RemoveFile(src); err != nil && !errors.Is(err, errs.ErrNotFound) {
		log.Printf("Warning: failed to remove %s from the index: %v", src, err)
	}
	if _, err := e.index.IndexFile(ctx, tgt); err != nil {
		log.Printf("Warning: failed to index %s: %v", tgt, err)
	}

	var others []string
	for _, p := range plan.Files() {
		if p != src && path.Clean(p) != tgt {
			others = append(others, p)
		}
	}
	e.reindex(ctx, others)
}
