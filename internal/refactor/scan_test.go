package refactor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvp-joe/codemorph/internal/indexer/parsers"
)

// Test Plan for the line scanner:
// - Brackets inside strings and comments are ignored
// - Mismatched and unclosed brackets are reported
// - Strings left open at a line end are unterminated unless they may span lines
// - return is found only as a whole word, with its bracket depth
// - Indentation unit detection prefers tabs, then the smallest space run

var (
	pySyntax = parsers.NewPythonAdapter().Syntax()
	goSyntax = parsers.NewGoAdapter().Syntax()
)

func TestScanLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		lines        []string
		syn          parsers.Syntax
		mismatched   bool
		unclosed     int
		unterminated bool
		returns      []returnSite
	}{
		{name: "brackets in string", lines: []string{`x = "(("`}, syn: pySyntax},
		{name: "brackets in comment", lines: []string{"x = 1  # (", "y = 2"}, syn: pySyntax},
		{name: "block comment", lines: []string{"x := 1 /* {", "} */"}, syn: goSyntax},
		{name: "unclosed", lines: []string{"if x {", "  y()"}, syn: goSyntax, unclosed: 1},
		{name: "mismatched", lines: []string{"f(]"}, syn: goSyntax, mismatched: true, unclosed: 1},
		{name: "stray closer", lines: []string{"}"}, syn: goSyntax, mismatched: true},
		{name: "escaped quote", lines: []string{`s := "a\"(b"`}, syn: goSyntax},
		{name: "open string", lines: []string{`s = "abc`}, syn: pySyntax, unterminated: true},
		{name: "raw string spans lines", lines: []string{"s := `a", "b`"}, syn: goSyntax},
		{name: "triple quote spans lines", lines: []string{`doc = """(`, `"""`}, syn: pySyntax},
		{name: "open triple quote", lines: []string{`doc = """abc`}, syn: pySyntax, unterminated: true},
		{name: "return word", lines: []string{"returned = 1", "return returned"}, syn: pySyntax, returns: []returnSite{{line: 1}}},
		{name: "return in closure", lines: []string{"f := func() int {", "\treturn 1", "}"}, syn: goSyntax, returns: []returnSite{{line: 1, depth: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := scanLines(tt.lines, tt.syn)
			assert.Equal(t, tt.mismatched, res.mismatched)
			assert.Equal(t, tt.unclosed, res.unclosed)
			assert.Equal(t, tt.unterminated, res.unterminated)
			assert.Equal(t, tt.returns, res.returns)
		})
	}
}

func TestScanLines_LineInfo(t *testing.T) {
	t.Parallel()

	res := scanLines([]string{"    if ok:", "", "        # only a comment", "        call(a,", "             b)"}, pySyntax)

	assert.True(t, res.lines[0].code)
	assert.True(t, res.lines[0].opener)
	assert.Equal(t, "    ", res.lines[0].indent)
	assert.False(t, res.lines[1].code)
	assert.False(t, res.lines[2].code)
	assert.True(t, res.lines[3].atDepth)
	assert.False(t, res.lines[4].atDepth)
	assert.Equal(t, 4, res.lastCodeLine())
	assert.True(t, res.hasCode())
}

func TestIndentUnit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "\t", indentUnit([]string{"func f() {", "\tx := 1", "}"}, "    "))
	assert.Equal(t, "  ", indentUnit([]string{"def f():", "    if x:", "  y = 1"}, "    "))
	assert.Equal(t, "    ", indentUnit([]string{"a = 1", "", "b = 2"}, "    "))
}

func TestSplitSpans(t *testing.T) {
	t.Parallel()

	spans := splitSpans([]byte("ab\ncd\n"))
	assert.Equal(t, []lineSpan{{0, 2, 3}, {3, 5, 6}}, spans)

	spans = splitSpans([]byte("ab\ncd"))
	assert.Equal(t, []lineSpan{{0, 2, 3}, {3, 5, 5}}, spans)

	pos := positionAt(spans, 4)
	assert.Equal(t, 2, pos.Line)
	assert.Equal(t, 1, pos.Column)
}
