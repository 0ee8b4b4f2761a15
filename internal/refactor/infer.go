package refactor

import (
	"sort"
	"strings"

	"github.com/mvp-joe/codemorph/internal/indexer"
	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
	"github.com/mvp-joe/codemorph/internal/indexer/parsers"
)

// inferParams lists the variables the selection reads whose binding lies in
// the enclosing scope before the selection, in order of first use.
func inferParams(rec *indexer.FileRecord, sel *selection, scopeKey string) []parsers.Param {
	params := []parsers.Param{}
	seen := make(map[string]bool)
	for _, u := range usagesIn(rec, sel) {
		if seen[u.Name] || !visibleFrom(u.Scope, scopeKey) {
			continue
		}
		decl, ok := binding(rec.Symbols, u.Name, u.Scope, u.Range.StartByte)
		if !ok {
			continue
		}
		seen[u.Name] = true
		if decl.NameRange.StartByte >= sel.codeStart {
			continue
		}
		params = append(params, parsers.Param{Name: u.Name, Type: decl.Signature})
	}
	return params
}

// inferOutputs lists the enclosing-scope variables the selection assigns and
// the code after it still reads, in order of first assignment.
func inferOutputs(rec *indexer.FileRecord, sel *selection, scopeKey string, fn *extraction.Symbol) []parsers.Output {
	type assigned struct {
		out parsers.Output
		pos int
	}
	byName := make(map[string]*assigned)
	note := func(name, typ string, pos int, here bool) {
		if a, ok := byName[name]; ok {
			if pos < a.pos {
				a.pos = pos
			}
			return
		}
		byName[name] = &assigned{out: parsers.Output{Name: name, Type: typ, DeclaredHere: here}, pos: pos}
	}

	for _, s := range rec.Symbols {
		if s.Kind.IsValueBinding() && s.Scope == scopeKey && within(s.NameRange, sel) {
			note(s.Name, s.Signature, s.NameRange.StartByte, true)
		}
	}
	for _, u := range usagesIn(rec, sel) {
		if u.Kind != extraction.UsageWrite || u.Scope != scopeKey {
			continue
		}
		if decl, ok := binding(rec.Symbols, u.Name, u.Scope, u.Range.StartByte); ok && !within(decl.NameRange, sel) {
			note(u.Name, decl.Signature, u.Range.StartByte, false)
		}
	}

	var list []*assigned
	for name, a := range byName {
		if readAfter(rec, sel, scopeKey, fn, name) {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].pos < list[j].pos })

	var outputs []parsers.Output
	for _, a := range list {
		outputs = append(outputs, a.out)
	}
	return outputs
}

// readAfter reports whether name is used in the enclosing scope after the
// selection.
func readAfter(rec *indexer.FileRecord, sel *selection, scopeKey string, fn *extraction.Symbol, name string) bool {
	for _, u := range rec.Usages {
		if u.Name != name || u.Member || u.Kind == extraction.UsageImport || u.Scope != scopeKey {
			continue
		}
		if u.Range.StartByte < sel.codeEnd {
			continue
		}
		if fn != nil && u.Range.EndByte > fn.Range.EndByte {
			continue
		}
		return true
	}
	return false
}

// usagesIn returns the plain-name usages inside the selection by offset.
func usagesIn(rec *indexer.FileRecord, sel *selection) []extraction.Usage {
	var out []extraction.Usage
	for _, u := range rec.Usages {
		if u.Member || u.Kind == extraction.UsageImport || !within(u.Range, sel) {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Range.StartByte < out[j].Range.StartByte })
	return out
}

// binding returns the value declaration of name in scope that is in effect
// at offset: the last one declared before it.
func binding(symbols []extraction.Symbol, name, scope string, offset int) (extraction.Symbol, bool) {
	var best extraction.Symbol
	found := false
	for _, s := range symbols {
		if s.Name != name || s.Scope != scope || !s.Kind.IsValueBinding() {
			continue
		}
		if s.NameRange.StartByte > offset {
			continue
		}
		if !found || s.NameRange.StartByte > best.NameRange.StartByte {
			best, found = s, true
		}
	}
	return best, found
}

// visibleFrom reports whether a usage bound in scope can be captured by code
// in the scope keyed by enclosing.
func visibleFrom(scope, enclosing string) bool {
	if enclosing == "" {
		return scope == ""
	}
	return scope == enclosing || strings.HasPrefix(scope, enclosing+".")
}

func within(r extraction.Range, sel *selection) bool {
	return r.StartByte >= sel.codeStart && r.EndByte <= sel.codeEnd
}

// dedent strips the selection's base indentation and trims blank lines at
// either end.
func dedent(lines []string, indent string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		switch {
		case strings.TrimSpace(line) == "":
			out = append(out, "")
		case strings.HasPrefix(line, indent):
			out = append(out, line[len(indent):])
		default:
			out = append(out, strings.TrimLeft(line, " \t"))
		}
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func fallbackUnit(indent string) string {
	if strings.HasPrefix(indent, "\t") {
		return "\t"
	}
	return "    "
}

// splitSpans measures every line of content. A trailing line break does not
// start another line.
func splitSpans(content []byte) []lineSpan {
	var spans []lineSpan
	start := 0
	for i, c := range content {
		if c == '\n' {
			spans = append(spans, lineSpan{start: start, end: i, next: i + 1})
			start = i + 1
		}
	}
	if start < len(content) {
		spans = append(spans, lineSpan{start: start, end: len(content), next: len(content)})
	}
	return spans
}

func splitText(content []byte) []string {
	spans := splitSpans(content)
	lines := make([]string, len(spans))
	for i, s := range spans {
		lines[i] = strings.TrimSuffix(string(content[s.start:s.end]), "\r")
	}
	return lines
}

// spanRange builds a Range with line and column positions for [start, end).
func spanRange(spans []lineSpan, start, end int) extraction.Range {
	return extraction.Range{
		Start:     positionAt(spans, start),
		End:       positionAt(spans, end),
		StartByte: start,
		EndByte:   end,
	}
}

func positionAt(spans []lineSpan, offset int) extraction.Position {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].next > offset })
	if i == len(spans) {
		if len(spans) == 0 {
			return extraction.Position{Line: 1}
		}
		last := spans[len(spans)-1]
		if last.next > last.end {
			return extraction.Position{Line: len(spans) + 1}
		}
		return extraction.Position{Line: len(spans), Column: offset - last.start}
	}
	return extraction.Position{Line: i + 1, Column: offset - spans[i].start}
}
