package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Test Plan for ScriptAdapter:
// - Module-level const is a constant, let is a variable, arrow values are functions
// - Classes, interfaces, fields, methods and properties are scoped to their type
// - Typed parameters record their annotation as signature
// - Locals, loop bindings and arrow parameters are scoped to their function
// - Member accesses, calls, writes and type references are classified
// - ES imports, re-exports, require() and dynamic import() are dependencies
// - Relative specifiers resolve with extension, .js-to-.ts and index lookup
// - Rewritten specifiers keep extension and directory-index style
// - Rendering honors typed and untyped flavours and fresh vs existing outputs

const scriptSample = `import { join } from "path";
import helper, { format as fmt } from "./util";

const LIMIT = 10;
let counter = 0;

export class Store {
  items: string[] = [];

  add(item: string): void {
    this.items.push(item);
    counter++;
  }
}

interface Shape {
  area(): number;
  label: string;
}

function total(values: number[]): number {
  let sum = 0;
  for (const v of values) {
    sum += v;
  }
  return sum;
}

function make(): Store {
  return new Store();
}

const double = (x: number) => x * 2;
`

func TestScriptAdapter_Declarations(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewTypeScriptAdapter(), "src/app.ts", scriptSample)

	assert.Equal(t, "typescript", ex.Language)
	assert.Empty(t, ex.Diagnostics)

	assert.Equal(t, extraction.KindConstant, requireSymbol(t, ex, "LIMIT", "").Kind)
	assert.Equal(t, extraction.KindVariable, requireSymbol(t, ex, "counter", "").Kind)
	assert.Equal(t, extraction.KindClass, requireSymbol(t, ex, "Store", "").Kind)
	assert.Equal(t, extraction.KindInterface, requireSymbol(t, ex, "Shape", "").Kind)
	assert.Equal(t, extraction.KindFunction, requireSymbol(t, ex, "total", "").Kind)
	assert.Equal(t, extraction.KindFunction, requireSymbol(t, ex, "double", "").Kind)

	items := requireSymbol(t, ex, "items", "Store")
	assert.Equal(t, extraction.KindField, items.Kind)
	assert.Equal(t, "string[]", items.Signature)

	add := requireSymbol(t, ex, "add", "Store")
	assert.Equal(t, extraction.KindMethod, add.Kind)
	assert.Equal(t, "Store.add", add.QualifiedName())

	item := requireSymbol(t, ex, "item", "Store.add")
	assert.Equal(t, extraction.KindParameter, item.Kind)
	assert.Equal(t, "string", item.Signature)

	assert.Equal(t, extraction.KindMethod, requireSymbol(t, ex, "area", "Shape").Kind)
	assert.Equal(t, extraction.KindProperty, requireSymbol(t, ex, "label", "Shape").Kind)

	assert.Equal(t, extraction.KindVariable, requireSymbol(t, ex, "sum", "total").Kind)
	assert.Equal(t, extraction.KindVariable, requireSymbol(t, ex, "v", "total").Kind)
	assert.Equal(t, extraction.KindParameter, requireSymbol(t, ex, "x", "double").Kind)
}

func TestScriptAdapter_Usages(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewTypeScriptAdapter(), "src/app.ts", scriptSample)

	assert.True(t, hasUsage(ex, "items", extraction.UsageRead, "", true))
	assert.True(t, hasUsage(ex, "push", extraction.UsageCall, "", true))
	assert.True(t, hasUsage(ex, "item", extraction.UsageRead, "Store.add", false))
	assert.True(t, hasUsage(ex, "counter", extraction.UsageWrite, "", false), "counter++ writes the module variable")
	assert.True(t, hasUsage(ex, "sum", extraction.UsageWrite, "total", false))
	assert.True(t, hasUsage(ex, "v", extraction.UsageRead, "total", false))
	assert.True(t, hasUsage(ex, "Store", extraction.UsageReference, "", false), "return type annotation")
	assert.True(t, hasUsage(ex, "Store", extraction.UsageCall, "", false), "new Store()")
	assert.True(t, hasUsage(ex, "x", extraction.UsageRead, "double", false))
}

func TestScriptAdapter_Imports(t *testing.T) {
	t.Parallel()

	ex := parseSource(t, NewTypeScriptAdapter(), "src/app.ts", scriptSample)

	require.Equal(t, []string{"path", "./util"}, dependencyRaws(ex))
	assert.Equal(t, []string{"join"}, ex.Dependencies[0].Names)
	assert.Equal(t, []string{"default", "format"}, ex.Dependencies[1].Names)

	src := []byte(scriptSample)
	dep := ex.Dependencies[1]
	assert.Equal(t, "./util", string(src[dep.Range.StartByte:dep.Range.EndByte]), "range covers the specifier without quotes")

	assert.True(t, hasUsage(ex, "join", extraction.UsageImport, "", false))
	assert.True(t, hasUsage(ex, "helper", extraction.UsageImport, "", false))
	assert.True(t, hasUsage(ex, "format", extraction.UsageImport, "", false))
}

func TestScriptAdapter_JavaScriptDependencies(t *testing.T) {
	t.Parallel()

	src := `const fs = require("fs");
export { run } from "./runner";

async function load() {
  const mod = await import("./lazy");
  return mod;
}
`
	ex := parseSource(t, NewJavaScriptAdapter(), "lib/index.js", src)

	assert.Equal(t, "javascript", ex.Language)
	assert.ElementsMatch(t, []string{"fs", "./runner", "./lazy"}, dependencyRaws(ex))
	assert.Equal(t, extraction.KindConstant, requireSymbol(t, ex, "fs", "").Kind)
	assert.Equal(t, extraction.KindVariable, requireSymbol(t, ex, "mod", "load").Kind)
}

func TestScriptAdapter_ResolveImport(t *testing.T) {
	t.Parallel()

	a := NewTypeScriptAdapter()
	files := []string{"src/util.ts", "src/components/index.tsx", "src/lib/helper.js"}

	tests := []struct {
		name string
		from string
		raw  string
		want []string
	}{
		{name: "extensionless", from: "src/app.ts", raw: "./util", want: []string{"src/util.ts"}},
		{name: "directory index", from: "src/app.ts", raw: "./components", want: []string{"src/components/index.tsx"}},
		{name: "js specifier for ts source", from: "src/app.ts", raw: "./util.js", want: []string{"src/util.ts"}},
		{name: "parent directory", from: "src/pages/home.ts", raw: "../lib/helper.js", want: []string{"src/lib/helper.js"}},
		{name: "missing", from: "src/app.ts", raw: "./nope", want: nil},
		{name: "package", from: "src/app.ts", raw: "react", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.ResolveImport(fakeFiles(tt.from, files...), extraction.Dependency{Raw: tt.raw})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScriptAdapter_RewriteImport(t *testing.T) {
	t.Parallel()

	a := NewTypeScriptAdapter()

	tests := []struct {
		name                             string
		raw                              string
		from, newFrom, target, newTarget string
		want                             string
		ok                               bool
	}{
		{name: "target moved", raw: "./util", from: "src/app.ts", newFrom: "src/app.ts", target: "src/util.ts", newTarget: "src/shared/util.ts", want: "./shared/util", ok: true},
		{name: "importer moved", raw: "./util", from: "src/app.ts", newFrom: "src/pages/app.ts", target: "src/util.ts", newTarget: "src/util.ts", want: "../util", ok: true},
		{name: "directory index kept", raw: "./components", from: "src/app.ts", newFrom: "src/app.ts", target: "src/components/index.tsx", newTarget: "src/ui/index.tsx", want: "./ui", ok: true},
		{name: "js extension kept", raw: "./util.js", from: "src/app.ts", newFrom: "src/app.ts", target: "src/util.ts", newTarget: "src/core/util.ts", want: "./core/util.js", ok: true},
		{name: "other file", raw: "./other", from: "src/app.ts", newFrom: "src/app.ts", target: "src/util.ts", newTarget: "src/x.ts", ok: false},
		{name: "package", raw: "react", from: "src/app.ts", newFrom: "src/app.ts", target: "src/util.ts", newTarget: "src/x.ts", ok: false},
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

func TestScriptAdapter_Render(t *testing.T) {
	t.Parallel()

	spec := ExtractSpec{
		Name:    "scale",
		Params:  []Param{{Name: "x", Type: "number"}},
		Outputs: []Output{{Name: "y", DeclaredHere: true}},
		Body:    []string{"const y = x * 2;"},
		Indent:  "  ",
		Unit:    "  ",
	}

	assert.Equal(t, "function scale(x: number) {\n  const y = x * 2;\n  return y;\n}\n", NewTypeScriptAdapter().RenderFunction(spec))
	assert.Equal(t, "function scale(x) {\n  const y = x * 2;\n  return y;\n}\n", NewJavaScriptAdapter().RenderFunction(spec))
	assert.Equal(t, "  let y = scale(x);\n", NewTypeScriptAdapter().RenderCall(spec))

	spec.Outputs = []Output{{Name: "a", DeclaredHere: true}, {Name: "b"}}
	assert.Equal(t, "  let a;\n  [a, b] = scale(x);\n", NewTypeScriptAdapter().RenderCall(spec))

	spec.Outputs = []Output{{Name: "b"}}
	assert.Equal(t, "  b = scale(x);\n", NewTypeScriptAdapter().RenderCall(spec))
}
