package refactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/errs"
	"github.com/mvp-joe/codemorph/internal/indexer/parsers"
)

// Test Plan for ExtractFunction:
// - Parameters are the outer variables read by the lines, in order of first use
// - Variables assigned in the lines and read afterwards become outputs
// - A trailing return becomes a returned call
// - Go extraction carries parameter and result types
// - Top-level Python lines are replaced by the function and its call
// - Preview writes nothing
// - Lexical and structural problems are rejected by rule

func TestExtractFunction_ParamsInOrderOfFirstUse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		expr   string
		params []string
	}{
		{name: "y first", expr: "y + x", params: []string{"y", "x"}},
		{name: "x first", expr: "x * 10 + y", params: []string{"x", "y"}},
		{name: "repeated use", expr: "x + x + y", params: []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := "def run():\n    x = 1\n    y = 2\n    z = " + tt.expr + "\n    return z\n"
			p := newProject(t, map[string]string{"calc.py": src})

			res, err := p.engine.ExtractFunction(context.Background(), ExtractRequest{File: "calc.py", StartLine: 4, EndLine: 4, NewName: "combine", Preview: true})
			require.NoError(t, err)

			var names []string
			for _, param := range res.Params {
				names = append(names, param.Name)
			}
			assert.Equal(t, tt.params, names)
			assert.Equal(t, []parsers.Output{{Name: "z", DeclaredHere: true}}, res.Outputs)
		})
	}
}

func TestExtractFunction_CommitPython(t *testing.T) {
	t.Parallel()
	p := newProject(t, map[string]string{"calc.py": "def run():\n    x = 1\n    y = 2\n    z = y + x\n    return z\n"})

	res, err := p.engine.ExtractFunction(context.Background(), ExtractRequest{File: "calc.py", StartLine: 4, EndLine: 4, NewName: "combine"})
	require.NoError(t, err)
	assert.Equal(t, StateApplied, res.State)
	assert.Equal(t, "def combine(y, x):\n    z = y + x\n    return z\n", res.Function)
	assert.Equal(t, "    z = combine(y, x)\n", res.Call)

	assert.Equal(t, `def run():
    x = 1
    y = 2
    z = combine(y, x)
    return z

def combine(y, x):
    z = y + x
    return z
`, p.read(t, "calc.py"))

	require.NotEmpty(t, p.index.Symbols().Find("combine"))
}

func TestExtractFunction_FinalReturn(t *testing.T) {
	t.Parallel()
	p := newProject(t, map[string]string{"sum.py": `def total(values):
    acc = 0
    for v in values:
        acc += v
    return acc
`})

	res, err := p.engine.ExtractFunction(context.Background(), ExtractRequest{File: "sum.py", StartLine: 2, EndLine: 5, NewName: "summed"})
	require.NoError(t, err)
	assert.True(t, res.FinalReturn)
	assert.Empty(t, res.Outputs)
	require.Len(t, res.Params, 1)
	assert.Equal(t, "values", res.Params[0].Name)

	assert.Equal(t, `def total(values):
    return summed(values)

def summed(values):
    acc = 0
    for v in values:
        acc += v
    return acc
`, p.read(t, "sum.py"))
}

func TestExtractFunction_Go(t *testing.T) {
	t.Parallel()
	p := newProject(t, map[string]string{"calc/calc.go": "package calc\n\nfunc Total(values []int) int {\n\tsum := 0\n\tfor _, v := range values {\n\t\tsum += v\n\t}\n\treturn sum\n}\n"})

	res, err := p.engine.ExtractFunction(context.Background(), ExtractRequest{File: "calc/calc.go", StartLine: 4, EndLine: 7, NewName: "accumulate"})
	require.NoError(t, err)
	assert.Equal(t, []parsers.Param{{Name: "values", Type: "[]int"}}, res.Params)
	assert.Equal(t, []parsers.Output{{Name: "sum", Type: "int", DeclaredHere: true}}, res.Outputs)

	assert.Equal(t, "package calc\n\nfunc Total(values []int) int {\n\tsum := accumulate(values)\n\treturn sum\n}\n\n"+
		"func accumulate(values []int) int {\n\tsum := 0\n\tfor _, v := range values {\n\t\tsum += v\n\t}\n\treturn sum\n}\n",
		p.read(t, "calc/calc.go"))
}

func TestExtractFunction_TopLevelPython(t *testing.T) {
	t.Parallel()
	p := newProject(t, map[string]string{"script.py": "a = 1\nb = a + 2\nprint(b)\n"})

	res, err := p.engine.ExtractFunction(context.Background(), ExtractRequest{File: "script.py", StartLine: 2, EndLine: 2, NewName: "compute"})
	require.NoError(t, err)
	assert.Equal(t, []parsers.Param{{Name: "a"}}, res.Params)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "b", res.Outputs[0].Name)

	assert.Equal(t, "a = 1\ndef compute(a):\n    b = a + 2\n    return b\n\nb = compute(a)\nprint(b)\n", p.read(t, "script.py"))
}

func TestExtractFunction_PreviewIsPure(t *testing.T) {
	t.Parallel()
	p := newProject(t, map[string]string{"calc.py": "def run():\n    x = 1\n    y = 2\n    z = y + x\n    return z\n"})
	before := p.checksums(t)

	res, err := p.engine.ExtractFunction(context.Background(), ExtractRequest{File: "calc.py", StartLine: 4, EndLine: 4, NewName: "combine", Preview: true})
	require.NoError(t, err)
	assert.Equal(t, StatePreviewed, res.State)
	require.Len(t, res.Diffs, 1)
	assert.Contains(t, res.Diffs[0].Diff, "+def combine(y, x):")
	assert.Equal(t, before, p.checksums(t))
}

func TestExtractFunction_Rejections(t *testing.T) {
	t.Parallel()

	const pick = "def pick(flag):\n    if flag:\n        return 1\n    return 2\n"
	const nested = "def run(items):\n    for item in items:\n        print(item)\n    return items\n"
	const script = `function run(a: number): number {
  if (a > 1) {
    a = a * 2;
  }
  return a;
}
`

	tests := []struct {
		name  string
		file  string
		src   string
		start int
		end   int
		fn    string
		kind  error
		rule  string
	}{
		{name: "out of bounds", file: "a.py", src: pick, start: 3, end: 12, fn: "f", kind: errs.ErrValidation, rule: "range-in-bounds"},
		{name: "inverted range", file: "a.py", src: pick, start: 3, end: 2, fn: "f", kind: errs.ErrValidation, rule: "range-in-bounds"},
		{name: "conditional return", file: "a.py", src: pick, start: 2, end: 3, fn: "f", kind: errs.ErrValidation, rule: "conditional-return"},
		{name: "comments only", file: "a.py", src: "def f():\n    # note\n    return 1\n", start: 2, end: 2, fn: "g", kind: errs.ErrValidation, rule: "extractable-statements"},
		{name: "block header without body", file: "a.py", src: nested, start: 2, end: 2, fn: "f", kind: errs.ErrValidation, rule: "block-boundary"},
		{name: "lines leave their block", file: "a.py", src: nested, start: 3, end: 4, fn: "f", kind: errs.ErrValidation, rule: "block-boundary"},
		{name: "unbalanced brackets", file: "a.ts", src: script, start: 2, end: 3, fn: "double", kind: errs.ErrValidation, rule: "balanced-brackets"},
		{name: "go top level", file: "main.go", src: "package main\n\nvar x = 1\n", start: 3, end: 3, fn: "f", kind: errs.ErrValidation, rule: "inside-function"},
		{name: "invalid name", file: "a.py", src: pick, start: 4, end: 4, fn: "for", kind: errs.ErrValidation, rule: "identifier-syntax"},
		{name: "missing name", file: "a.py", src: pick, start: 4, end: 4, kind: errs.ErrValidation, rule: "new-name-required"},
		{name: "unknown file", file: "b.py", start: 1, end: 1, fn: "f", kind: errs.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			files := map[string]string{"a.py": pick}
			if tt.src != "" {
				files[tt.file] = tt.src
			}
			p := newProject(t, files)
			before := p.checksums(t)

			res, err := p.engine.ExtractFunction(context.Background(), ExtractRequest{File: tt.file, StartLine: tt.start, EndLine: tt.end, NewName: tt.fn})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			if tt.rule != "" {
				assert.Equal(t, tt.rule, ruleOf(err))
			}
			assert.Equal(t, StateRejected, res.State)
			assert.Equal(t, before, p.checksums(t))
		})
	}
}
