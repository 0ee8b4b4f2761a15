package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Test Plan for PythonAdapter:
// - Module-level constants (ALL_CAPS) and variables are distinct kinds
// - Classes, methods and class attributes carry the class as container
// - Parameters and locals are scoped to their function
// - A local shadowing a module-level name is a separate symbol
// - Usages bind to the innermost declaring scope, attributes are members
// - Keyword argument names are not usages
// - from-imports record the module specifier, names and import usages
// - Plain and aliased imports record the local module name; member usages
//   record a module-level or self receiver and the class it names
// - Syntax errors become diagnostics, not failures
// - Relative and dotted imports resolve to .py and __init__.py files
// - Imports are rewritten relative or absolute after a move
// - Extracted functions render with returns and assignments

const pythonSample = `import os
from .models import User, helper

LIMIT = 10
value = 1

class Greeter:
    greeting = "hi"

    def greet(self, name):
        message = self.greeting + name
        return message

def process(items):
    value = 0
    for item in items:
        value += item
    return value

def use():
    return helper(value, key=LIMIT)
`

func TestPythonAdapter_Declarations(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewPythonAdapter(), "pkg/sample.py", pythonSample)

	assert.Equal(t, "python", ex.Language)
	assert.Equal(t, 21, ex.LineCount)
	assert.Empty(t, ex.Diagnostics)

	assert.Equal(t, extraction.KindConstant, requireSymbol(t, ex, "LIMIT", "").Kind)
	assert.Equal(t, extraction.KindVariable, requireSymbol(t, ex, "value", "").Kind)

	greeter := requireSymbol(t, ex, "Greeter", "")
	assert.Equal(t, extraction.KindClass, greeter.Kind)
	assert.Equal(t, 7, greeter.Range.Start.Line)

	greeting := requireSymbol(t, ex, "greeting", "Greeter")
	assert.Equal(t, extraction.KindField, greeting.Kind)
	assert.Equal(t, "Greeter", greeting.Container)

	greet := requireSymbol(t, ex, "greet", "Greeter")
	assert.Equal(t, extraction.KindMethod, greet.Kind)
	assert.Equal(t, "Greeter.greet", greet.QualifiedName())
	assert.Equal(t, "def greet(self, name):", greet.Signature)

	assert.Equal(t, extraction.KindParameter, requireSymbol(t, ex, "self", "Greeter.greet").Kind)
	assert.Equal(t, extraction.KindParameter, requireSymbol(t, ex, "name", "Greeter.greet").Kind)
	assert.Equal(t, extraction.KindVariable, requireSymbol(t, ex, "message", "Greeter.greet").Kind)

	assert.Equal(t, extraction.KindFunction, requireSymbol(t, ex, "process", "").Kind)
	assert.Equal(t, extraction.KindParameter, requireSymbol(t, ex, "items", "process").Kind)
	assert.Equal(t, extraction.KindVariable, requireSymbol(t, ex, "item", "process").Kind)
}

func TestPythonAdapter_ShadowedLocalIsSeparateSymbol(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewPythonAdapter(), "sample.py", pythonSample)

	values := symbolsNamed(ex, "value")
	require.Len(t, values, 2)
	assert.Equal(t, "", values[0].Scope)
	assert.Equal(t, "process", values[1].Scope)

	// The name token range covers only the identifier.
	src := []byte(pythonSample)
	for _, v := range values {
		assert.Equal(t, "value", string(src[v.NameRange.StartByte:v.NameRange.EndByte]))
	}
}

func TestPythonAdapter_UsagesBindToInnermostScope(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewPythonAdapter(), "sample.py", pythonSample)

	assert.True(t, hasUsage(ex, "value", extraction.UsageWrite, "process", false), "value += item writes the local")
	assert.True(t, hasUsage(ex, "value", extraction.UsageRead, "process", false), "return value reads the local")
	assert.True(t, hasUsage(ex, "value", extraction.UsageRead, "", false), "use() reads the module-level value")
	assert.True(t, hasUsage(ex, "message", extraction.UsageRead, "Greeter.greet", false))
	assert.True(t, hasUsage(ex, "greeting", extraction.UsageRead, "", true), "self.greeting is a member access")
	assert.True(t, hasUsage(ex, "helper", extraction.UsageCall, "", false))
	assert.True(t, hasUsage(ex, "LIMIT", extraction.UsageRead, "", false))

	for _, u := range usagesNamed(ex, "key") {
		t.Errorf("keyword argument name recorded as usage: %+v", u)
	}
}

func TestPythonAdapter_Imports(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewPythonAdapter(), "sample.py", pythonSample)

	require.Len(t, ex.Dependencies, 2)
	assert.Equal(t, "os", ex.Dependencies[0].Raw)
	assert.Equal(t, ".models", ex.Dependencies[1].Raw)
	assert.Equal(t, []string{"User", "helper"}, ex.Dependencies[1].Names)

	src := []byte(pythonSample)
	dep := ex.Dependencies[1]
	assert.Equal(t, ".models", string(src[dep.Range.StartByte:dep.Range.EndByte]))

	assert.True(t, hasUsage(ex, "User", extraction.UsageImport, "", false))
	assert.True(t, hasUsage(ex, "helper", extraction.UsageImport, "", false))
}

func TestPythonAdapter_ReceiversAndModuleAliases(t *testing.T) {
	t.Parallel()

	src := `import util
import pkg.helpers as h


class Job:
    def run(self):
        return self.step()

    def step(self):
        return 1


def main(job):
    util.helper()
    h.assist()
    Job.run(job)
    job.run()
`
	ex := parseSource(t, NewPythonAdapter(), "main.py", src)

	require.Len(t, ex.Dependencies, 2)
	assert.Equal(t, "util", ex.Dependencies[0].Alias)
	assert.Equal(t, "pkg.helpers", ex.Dependencies[1].Raw)
	assert.Equal(t, "h", ex.Dependencies[1].Alias)

	receivers := func(name string) [][2]string {
		var out [][2]string
		for _, u := range usagesNamed(ex, name) {
			if u.Member {
				out = append(out, [2]string{u.Qualifier, u.Owner})
			}
		}
		return out
	}
	assert.Equal(t, [][2]string{{"self", "Job"}}, receivers("step"))
	assert.Equal(t, [][2]string{{"util", ""}}, receivers("helper"))
	assert.Equal(t, [][2]string{{"h", ""}}, receivers("assist"))
	assert.Equal(t, [][2]string{{"Job", "Job"}, {"", ""}}, receivers("run"), "job is a parameter, so its receiver is unknown")
}

func TestPythonAdapter_GlobalStatementDoesNotDeclareLocal(t *testing.T) {
	t.Parallel()

	src := "count = 0\n\ndef bump():\n    global count\n    count = count + 1\n"
	ex := parseSource(t, NewPythonAdapter(), "g.py", src)

	require.Len(t, symbolsNamed(ex, "count"), 1)
	assert.True(t, hasUsage(ex, "count", extraction.UsageWrite, "", false))
}

func TestPythonAdapter_SyntaxErrorBecomesDiagnostic(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewPythonAdapter(), "broken.py", "def ok():\n    return 1\n\ndef broken(:\n")

	assert.NotEmpty(t, ex.Diagnostics)
	assert.Equal(t, extraction.SeverityError, ex.Diagnostics[0].Severity)
	requireSymbol(t, ex, "ok", "")
}

func TestPythonAdapter_HonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPythonAdapter().Parse(ctx, "a.py", []byte("x = 1\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPythonAdapter_ResolveImport(t *testing.T) {
	t.Parallel()

	a := NewPythonAdapter()
	files := []string{"pkg/__init__.py", "pkg/models.py", "pkg/sub/util.py", "app.py", "lib/helpers.py"}

	tests := []struct {
		name string
		from string
		dep  extraction.Dependency
		want []string
	}{
		{name: "relative module", from: "pkg/service.py", dep: extraction.Dependency{Raw: ".models"}, want: []string{"pkg/models.py"}},
		{name: "relative package", from: "pkg/sub/util.py", dep: extraction.Dependency{Raw: ".."}, want: []string{"pkg/__init__.py"}},
		{name: "dotted module", from: "app.py", dep: extraction.Dependency{Raw: "pkg.sub.util"}, want: []string{"pkg/sub/util.py"}},
		{name: "package with submodule name", from: "app.py", dep: extraction.Dependency{Raw: "pkg", Names: []string{"models"}}, want: []string{"pkg/__init__.py", "pkg/models.py"}},
		{name: "sibling of importer", from: "lib/main.py", dep: extraction.Dependency{Raw: "helpers"}, want: []string{"lib/helpers.py"}},
		{name: "external", from: "app.py", dep: extraction.Dependency{Raw: "requests"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.ResolveImport(fakeFiles(tt.from, files...), tt.dep))
		})
	}
}

func TestPythonAdapter_RewriteImport(t *testing.T) {
	t.Parallel()

	a := NewPythonAdapter()

	tests := []struct {
		name                             string
		raw                              string
		from, newFrom, target, newTarget string
		want                             string
		ok                               bool
	}{
		{name: "relative target moved", raw: ".models", from: "pkg/service.py", newFrom: "pkg/service.py", target: "pkg/models.py", newTarget: "pkg/db/models.py", want: ".db.models", ok: true},
		{name: "relative importer moved", raw: ".models", from: "pkg/service.py", newFrom: "pkg/api/service.py", target: "pkg/models.py", newTarget: "pkg/models.py", want: "..models", ok: true},
		{name: "absolute target moved", raw: "pkg.models", from: "app.py", newFrom: "app.py", target: "pkg/models.py", newTarget: "core/models.py", want: "core.models", ok: true},
		{name: "unchanged", raw: ".models", from: "pkg/a.py", newFrom: "pkg/a.py", target: "pkg/models.py", newTarget: "pkg/models.py", ok: false},
		{name: "names another module", raw: ".other", from: "pkg/a.py", newFrom: "pkg/a.py", target: "pkg/models.py", newTarget: "pkg/x.py", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := a.RewriteImport(extraction.Dependency{Raw: tt.raw}, tt.from, tt.newFrom, tt.target, tt.newTarget)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPythonAdapter_RenderExtractedFunction(t *testing.T) {
	t.Parallel()

	a := NewPythonAdapter()
	spec := ExtractSpec{
		Name:    "compute",
		Params:  []Param{{Name: "x"}, {Name: "y"}},
		Outputs: []Output{{Name: "total", DeclaredHere: true}},
		Body:    []string{"total = x + y", "", "total *= 2"},
		Indent:  "    ",
		Unit:    "    ",
	}

	assert.Equal(t, "def compute(x, y):\n    total = x + y\n\n    total *= 2\n    return total\n", a.RenderFunction(spec))
	assert.Equal(t, "    total = compute(x, y)\n", a.RenderCall(spec))

	spec.Outputs = nil
	spec.FinalReturn = true
	assert.Equal(t, "    return compute(x, y)\n", a.RenderCall(spec))
}

func TestIsConstantName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		isConstant bool
	}{
		{"MAX_SIZE", true},
		{"API_KEY", true},
		{"X", true},
		{"max_size", false},
		{"MaxSize", false},
		{"_", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.isConstant, isConstantName(tt.name), "isConstantName(%q)", tt.name)
	}
}
