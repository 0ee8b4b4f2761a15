package refactor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
	"github.com/mvp-joe/codemorph/internal/indexer/parsers"
)

// ExtractRequest selects whole lines StartLine..EndLine (1-based, inclusive)
// of File to move into a new function called NewName.
type ExtractRequest struct {
	File      string
	StartLine int
	EndLine   int
	NewName   string
	Preview   bool
}

// ExtractResult describes the new function and the call replacing the lines.
type ExtractResult struct {
	State       State            `json:"state"`
	File        string           `json:"file"`
	Name        string           `json:"name"`
	StartLine   int              `json:"start_line"`
	EndLine     int              `json:"end_line"`
	Params      []parsers.Param  `json:"params"`
	Outputs     []parsers.Output `json:"outputs,omitempty"`
	FinalReturn bool             `json:"final_return,omitempty"`
	Function    string           `json:"function,omitempty"`
	Call        string           `json:"call,omitempty"`
	Plan        *EditPlan        `json:"plan,omitempty"`
	Validation  ValidationResult `json:"validation"`
	Diffs       []FileDiff       `json:"diffs,omitempty"`
	Results     []FileResult     `json:"results,omitempty"`
}

func (r *ExtractResult) reject(err error) (*ExtractResult, error) {
	r.State = StateRejected
	return r, err
}

// lineSpan locates one line of a file. end excludes the line break, next is
// the offset of the following line.
type lineSpan struct {
	start, end, next int
}

// selection is a validated line range and what surrounds it.
type selection struct {
	file    string
	content []byte
	spans   []lineSpan
	lines   []string // selected lines without line breaks
	first   int      // 0-based index of the first selected line

	start, end         int // byte range of the whole lines, line breaks included
	codeStart, codeEnd int // byte range with surrounding whitespace trimmed

	indent      string
	finalReturn bool
}

// ExtractFunction moves a line range into a new function. Variables the
// lines read from the enclosing scope become parameters in order of first
// use; variables they assign and the enclosing scope reads afterwards become
// return values. A trailing return statement turns the call site into a
// return of the new function.
func (e *Engine) ExtractFunction(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	const op = "extract-function"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}

	req.NewName = strings.TrimSpace(req.NewName)
	res := &ExtractResult{
		State:      StateRequested,
		File:       req.File,
		Name:       req.NewName,
		StartLine:  req.StartLine,
		EndLine:    req.EndLine,
		Params:     []parsers.Param{},
		Validation: newValidation(),
	}

	rel, err := e.index.RelPath(req.File)
	if err != nil {
		return res.reject(err)
	}
	res.File = rel
	if req.NewName == "" {
		return res.reject(errs.Validation(op, rel, "", "new-name-required", "a name for the new function is required"))
	}

	// Refresh so symbol offsets match the bytes read below.
	rec, err := e.index.UpdateFile(ctx, rel)
	if err != nil {
		return res.reject(err)
	}
	if rec == nil {
		return res.reject(errs.NotFound(op, rel, ""))
	}

	adapter, ok := e.index.Adapter(rel)
	renderer, renders := adapter.(parsers.FunctionRenderer)
	if !ok || !renders || !adapter.Capabilities().ExtractFunction {
		return res.reject(errs.Validation(op, rel, "", "extract-supported", "the file's language does not support extract-function"))
	}
	if !adapter.IsValidIdentifier(req.NewName) {
		return res.reject(errs.Validation(op, rel, req.NewName, "identifier-syntax",
			fmt.Sprintf("%q is not a valid %s identifier", req.NewName, adapter.Language())))
	}

	content, err := e.fs.ReadFile(e.index.AbsPath(rel))
	if err != nil {
		return res.reject(errs.IO(op, rel, err))
	}
	res.State = StateResolved

	syn := renderer.Syntax()
	sel, issue := selectLines(rel, content, req.StartLine, req.EndLine, syn)
	if issue != nil {
		res.Validation.fail(*issue)
		return res.reject(res.Validation.Err(op))
	}

	fn := enclosingFunction(rec.Symbols, sel)
	if fn == nil && !syn.TopLevelStatements {
		res.Validation.fail(Issue{Path: rel, Rule: "inside-function", Message: "the lines must lie inside a function body"})
		return res.reject(res.Validation.Err(op))
	}
	scopeKey := ""
	if fn != nil {
		scopeKey = fn.QualifiedName()
	}

	for _, s := range rec.Symbols {
		if s.Name == req.NewName && s.Scope == "" {
			res.Validation.warn(Issue{
				Path:    rel,
				Symbol:  req.NewName,
				Rule:    "name-collision",
				Message: fmt.Sprintf("%s %s already exists at %s", s.Kind, s.QualifiedName(), s.Location()),
			})
		}
	}

	spec := parsers.ExtractSpec{
		Name:        req.NewName,
		Params:      inferParams(rec, sel, scopeKey),
		Body:        dedent(sel.lines, sel.indent),
		Indent:      sel.indent,
		Unit:        indentUnit(splitText(content), fallbackUnit(sel.indent)),
		FinalReturn: sel.finalReturn,
	}
	if !sel.finalReturn {
		spec.Outputs = inferOutputs(rec, sel, scopeKey, fn)
	}
	if fn != nil {
		spec.EnclosingDecl = fn.Signature
	}

	res.Params = spec.Params
	res.Outputs = spec.Outputs
	res.FinalReturn = spec.FinalReturn
	res.Function = renderer.RenderFunction(spec)
	res.Call = renderer.RenderCall(spec)

	plan := NewPlan(op)
	call := res.Call
	if sel.end == len(content) && !bytes.HasSuffix(content, []byte("\n")) {
		call = strings.TrimSuffix(call, "\n")
	}
	replaced := spanRange(sel.spans, sel.start, sel.end)
	oldText := string(content[sel.start:sel.end])

	if fn == nil {
		plan.Add(FileEdit{Path: rel, Range: replaced, OldText: oldText, NewText: res.Function + "\n" + call, Purpose: PurposeInsertion})
	} else {
		at, prefix := insertionPoint(rec.Symbols, sel, fn)
		plan.Add(FileEdit{Path: rel, Range: replaced, OldText: oldText, NewText: call, Purpose: PurposeReference})
		plan.Add(FileEdit{Path: rel, Range: spanRange(sel.spans, at, at), NewText: prefix + res.Function, Purpose: PurposeInsertion})
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

// selectLines validates the line range lexically and measures it.
func selectLines(rel string, content []byte, startLine, endLine int, syn parsers.Syntax) (*selection, *Issue) {
	spans := splitSpans(content)
	if startLine < 1 || endLine < startLine || endLine > len(spans) {
		return nil, &Issue{
			Path:    rel,
			Rule:    "range-in-bounds",
			Message: fmt.Sprintf("lines %d-%d are not a non-empty range within the file's %d lines", startLine, endLine, len(spans)),
		}
	}

	sel := &selection{
		file:    rel,
		content: content,
		spans:   spans,
		first:   startLine - 1,
		start:   spans[startLine-1].start,
		end:     spans[endLine-1].next,
	}
	for i := startLine - 1; i < endLine; i++ {
		sel.lines = append(sel.lines, strings.TrimSuffix(string(content[spans[i].start:spans[i].end]), "\r"))
	}

	block := content[sel.start:sel.end]
	sel.codeStart = sel.start + len(block) - len(bytes.TrimLeft(block, " \t\r\n"))
	sel.codeEnd = sel.start + len(bytes.TrimRight(block, " \t\r\n"))

	scan := scanLines(sel.lines, syn)
	switch {
	case !scan.hasCode():
		return nil, &Issue{Path: rel, Rule: "extractable-statements", Message: "the lines contain no statements"}
	case scan.mismatched || scan.unclosed > 0:
		return nil, &Issue{Path: rel, Rule: "balanced-brackets", Message: "the lines split a bracketed block"}
	case scan.unterminated:
		return nil, &Issue{Path: rel, Rule: "unterminated-literal", Message: "the lines split a string or comment"}
	}

	last := scan.lastCodeLine()
	for _, info := range scan.lines {
		if info.code && info.atDepth {
			sel.indent = info.indent
			break
		}
	}

	if syn.IndentBlocks {
		for _, info := range scan.lines {
			if info.code && info.atDepth && len(info.indent) < len(sel.indent) {
				return nil, &Issue{Path: rel, Rule: "block-boundary", Message: "the first line must be the least indented"}
			}
		}
		if scan.lines[last].opener {
			return nil, &Issue{Path: rel, Rule: "block-boundary", Message: "the last line opens a block whose body is not selected"}
		}
		if next, ok := nextCodeLine(content, spans, endLine, syn); ok && len(leadingSpace(next)) > len(sel.indent) {
			return nil, &Issue{Path: rel, Rule: "block-boundary", Message: "the lines end inside a block that continues below"}
		}
	}

	for _, r := range scan.returns {
		trimmed := strings.TrimSpace(sel.lines[r.line])
		final := r.line == last && r.depth == 0 &&
			strings.HasPrefix(trimmed, syn.ReturnKeyword) &&
			(!syn.IndentBlocks || scan.lines[r.line].indent == sel.indent)
		if !final {
			return nil, &Issue{
				Path:    rel,
				Rule:    "conditional-return",
				Message: fmt.Sprintf("line %d returns from inside the selection; only a final return can be extracted", startLine+r.line),
			}
		}
		sel.finalReturn = true
	}
	return sel, nil
}

// nextCodeLine returns the first non-blank, non-comment line after the
// 1-based line after.
func nextCodeLine(content []byte, spans []lineSpan, after int, syn parsers.Syntax) (string, bool) {
	for i := after; i < len(spans); i++ {
		line := strings.TrimSuffix(string(content[spans[i].start:spans[i].end]), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || hasAnyPrefix(trimmed, syn.LineComments) {
			continue
		}
		return line, true
	}
	return "", false
}

// enclosingFunction returns the innermost function or method whose body
// holds the selection.
func enclosingFunction(symbols []extraction.Symbol, sel *selection) *extraction.Symbol {
	var best *extraction.Symbol
	for i := range symbols {
		s := &symbols[i]
		if s.Kind != extraction.KindFunction && s.Kind != extraction.KindMethod {
			continue
		}
		if !surrounds(s.Range, sel) {
			continue
		}
		if best == nil || s.Range.Len() < best.Range.Len() {
			best = s
		}
	}
	return best
}

func surrounds(r extraction.Range, sel *selection) bool {
	return r.StartByte < sel.codeStart && sel.codeEnd <= r.EndByte
}

// insertionPoint places the new function after the outermost declaration
// holding the selection. prefix separates it from what precedes it.
func insertionPoint(symbols []extraction.Symbol, sel *selection, fn *extraction.Symbol) (int, string) {
	outer := *fn
	for _, s := range symbols {
		if s.Kind.IsValueBinding() || s.Kind == extraction.KindField || s.Kind == extraction.KindProperty {
			continue
		}
		if surrounds(s.Range, sel) && s.Range.Len() > outer.Range.Len() {
			outer = s
		}
	}

	endLine := outer.Range.End.Line
	if outer.Range.End.Column == 0 && endLine > outer.Range.Start.Line {
		endLine--
	}
	if endLine < 1 {
		endLine = 1
	}
	if endLine > len(sel.spans) {
		endLine = len(sel.spans)
	}
	span := sel.spans[endLine-1]
	if span.next == span.end {
		return span.end, "\n\n"
	}
	return span.next, "\n"
}
