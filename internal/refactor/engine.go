package refactor

import (
	"context"
	"log"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/resolver"
)

// State tracks an operation through validation to its outcome.
type State string

const (
	StateRequested State = "requested"
	StateResolved  State = "resolved"
	StateValidated State = "validated"
	StatePreviewed State = "previewed"
	StateApplied   State = "applied"
	StateRejected  State = "rejected"
)

// Option configures an Engine.
type Option func(*Engine)

// WithFileSystem replaces the local disk, mainly for tests.
func WithFileSystem(fsys FileSystem) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithContextLines sets the diff context of previews.
func WithContextLines(n int) Option {
	return func(e *Engine) {
		e.contextLines = n
	}
}

// Engine runs rename, move and extract-function against one index.
type Engine struct {
	index        *indexer.Index
	resolver     *resolver.Resolver
	fs           FileSystem
	contextLines int
}

// New creates an engine over idx, resolving symbols through res.
func New(idx *indexer.Index, res *resolver.Resolver, opts ...Option) *Engine {
	e := &Engine{
		index:        idx,
		resolver:     res,
		fs:           OSFileSystem{},
		contextLines: DefaultContextLines,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) checkOpen(op string) error {
	if e.index.Disposed() {
		return errs.Disposed(op)
	}
	return nil
}

func (e *Engine) preview(plan *EditPlan, renames map[string]string) ([]FileDiff, error) {
	return Preview(e.fs, e.index.Root(), plan, renames, e.contextLines)
}

// reindex brings the touched files' records up to date. Failures are logged;
// the files are already written and a later index run will pick them up.
func (e *Engine) reindex(ctx context.Context, paths []string) {
	for _, p := range paths {
		if _, err := e.index.UpdateFile(ctx, p); err != nil {
			log.Printf("Warning: failed to re-index %s: %v", p, err)
		}
	}
}

// planIssues moves the plan's structural problems into v.
func planIssues(plan *EditPlan, v *ValidationResult) {
	for _, issue := range plan.Validate() {
		v.fail(issue)
	}
}
