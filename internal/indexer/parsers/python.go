package parsers

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// PythonAdapter parses Python files.
type PythonAdapter struct {
	treeSitterAdapter
}

// NewPythonAdapter creates the Python adapter.
func NewPythonAdapter() *PythonAdapter {
	return &PythonAdapter{treeSitterAdapter{g: &grammar{
		lang:       "python",
		exts:       []string{".py", ".pyi"},
		language:   sitter.NewLanguage(python.Language()),
		caps:       Capabilities{Rename: true, Move: true, ExtractFunction: true},
		keywords:   pythonKeywords,
		identifier: wordIdentifier,
		identKinds: kindSet("identifier"),
		classKinds: kindSet("class_definition"),
		funcKinds:  kindSet("function_definition", "lambda"),
		declare:    declarePython,
		imports:    importsPython,
		classify:   classifyPython,
	}}}
}

var pythonKeywords = keywordSet(
	"False", "None", "True", "and", "as", "assert", "async", "await", "break",
	"class", "continue", "def", "del", "elif", "else", "except", "finally", "for",
	"from", "global", "if", "import", "in", "is", "lambda", "nonlocal", "not", "or",
	"pass", "raise", "return", "try", "while", "with", "yield",
)

func declarePython(x *extractor, n *sitter.Node) {
	switch n.Kind() {
	case "function_definition":
		kind := extraction.KindFunction
		if x.inClass() {
			kind = extraction.KindMethod
		}
		x.declare(n.ChildByFieldName("name"), kind, n, x.signature(n))

	case "class_definition":
		x.declare(n.ChildByFieldName("name"), extraction.KindClass, n, x.signature(n))

	case "assignment":
		left := n.ChildByFieldName("left")
		if left == nil {
			return
		}
		for _, name := range pythonTargets(left) {
			x.declare(name, pythonBindingKind(x, x.text(name)), n, x.typeText(n, "type"))
		}

	case "global_statement", "nonlocal_statement":
		for _, name := range findChildrenByType(n, "identifier") {
			x.top().external[x.text(name)] = true
		}

	case "named_expression":
		x.declare(n.ChildByFieldName("name"), extraction.KindVariable, n, "")

	case "for_statement", "for_in_clause":
		for _, name := range pythonTargets(n.ChildByFieldName("left")) {
			x.declare(name, extraction.KindVariable, n, "")
		}

	case "parameters", "lambda_parameters":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			p := n.NamedChild(i)
			name := pythonParamName(p)
			x.declare(name, extraction.KindParameter, p, x.typeText(p, "type"))
		}
	}
}

// pythonTargets returns the names bound by an assignment target. Attribute
// and subscript targets bind nothing.
func pythonTargets(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	switch n.Kind() {
	case "identifier":
		return []*sitter.Node{n}
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern":
		var out []*sitter.Node
		for i := uint(0); i < n.NamedChildCount(); i++ {
			out = append(out, pythonTargets(n.NamedChild(i))...)
		}
		return out
	}
	return nil
}

// pythonParamName finds the identifier a parameter node binds.
func pythonParamName(p *sitter.Node) *sitter.Node {
	switch p.Kind() {
	case "identifier":
		return p
	case "default_parameter", "typed_default_parameter":
		return p.ChildByFieldName("name")
	}
	return firstDescendant(p, "identifier")
}

func pythonBindingKind(x *extractor, name string) extraction.SymbolKind {
	switch {
	case x.inClass():
		return extraction.KindField
	case x.atModule() && isConstantName(name):
		return extraction.KindConstant
	}
	return extraction.KindVariable
}

// isConstantName checks if a name follows Python constant naming convention (ALL_CAPS).
func isConstantName(name string) bool {
	if len(name) == 0 {
		return false
	}
	hasLetter := false
	for _, ch := range name {
		if ch >= 'a' && ch <= 'z' {
			return false
		}
		if ch >= 'A' && ch <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func importsPython(x *extractor, n *sitter.Node) bool {
	switch n.Kind() {
	case "import_statement":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			switch c.Kind() {
			case "dotted_name":
				if dep := x.dependency(c); dep != nil {
					dep.Alias = dep.Raw
				}
			case "aliased_import":
				if dep := x.dependency(c.ChildByFieldName("name")); dep != nil {
					if alias := c.ChildByFieldName("alias"); alias != nil {
						dep.Alias = x.text(alias)
					}
				}
			}
		}
		return true

	case "import_from_statement":
		module := n.ChildByFieldName("module_name")
		var names []string
		var nameNodes []*sitter.Node
		for i := uint(0); i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			if sameNode(c, module) {
				continue
			}
			switch c.Kind() {
			case "dotted_name":
				nameNodes = append(nameNodes, c)
			case "aliased_import":
				nameNodes = append(nameNodes, c.ChildByFieldName("name"))
			case "wildcard_import":
				names = append(names, "*")
			}
		}
		for _, nn := range nameNodes {
			if nn == nil {
				continue
			}
			names = append(names, x.text(nn))
			x.importUsage(nn)
		}
		x.dependency(module, names...)
		return true

	case "future_import_statement":
		return true
	}
	return false
}

func classifyPython(x *extractor, n *sitter.Node) (extraction.UsageKind, bool, bool) {
	p := n.Parent()
	if p == nil {
		return extraction.UsageRead, false, false
	}
	switch p.Kind() {
	case "attribute":
		if isField(p, "attribute", n) {
			return pythonAccessKind(p), true, false
		}
	case "keyword_argument":
		if isField(p, "name", n) {
			return "", false, true
		}
	case "type":
		return extraction.UsageReference, false, false
	}
	return pythonAccessKind(n), false, false
}

// pythonAccessKind classifies the expression n by the node that consumes it.
func pythonAccessKind(n *sitter.Node) extraction.UsageKind {
	p := n.Parent()
	for p != nil && (p.Kind() == "pattern_list" || p.Kind() == "tuple_pattern" || p.Kind() == "list_pattern") {
		n, p = p, p.Parent()
	}
	if p == nil {
		return extraction.UsageRead
	}
	switch p.Kind() {
	case "call":
		if isField(p, "function", n) {
			return extraction.UsageCall
		}
	case "assignment", "augmented_assignment":
		if isField(p, "left", n) {
			return extraction.UsageWrite
		}
	case "for_statement", "for_in_clause":
		if isField(p, "left", n) {
			return extraction.UsageWrite
		}
	case "decorator":
		return extraction.UsageCall
	}
	return extraction.UsageRead
}

// ResolveImport maps relative and dotted module specifiers to .py files or
// package __init__.py files.
func (a *PythonAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) bool {
		if p == "" || seen[p] || !ictx.exists(p) {
			return false
		}
		seen[p] = true
		out = append(out, p)
		return true
	}

	for _, base := range pythonModuleBases(dep.Raw, ictx.From) {
		found := add(base+".py") || add(path.Join(base, "__init__.py"))
		for _, name := range dep.Names {
			if name != "*" && add(path.Join(base, strings.ReplaceAll(name, ".", "/")+".py")) {
				found = true
			}
		}
		if found {
			break
		}
	}
	return out
}

// pythonModuleBases lists candidate module paths, without extension, for a
// specifier imported from the file at from.
func pythonModuleBases(raw, from string) []string {
	dots := len(raw) - len(strings.TrimLeft(raw, "."))
	rest := strings.ReplaceAll(raw[dots:], ".", "/")
	if dots > 0 {
		dir := path.Dir(from)
		for i := 1; i < dots; i++ {
			dir = path.Dir(dir)
		}
		return []string{cleanRel(path.Join(dir, rest))}
	}
	bases := []string{rest}
	if dir := path.Dir(from); dir != "." {
		bases = append(bases, path.Join(dir, rest))
	}
	return bases
}

// RewriteImport recomputes a module specifier after a move. Relative
// specifiers stay relative and dotted ones stay absolute.
func (a *PythonAdapter) RewriteImport(dep extraction.Dependency, from, newFrom, target, newTarget string) (string, bool) {
	oldModule := pythonModulePath(target)
	matched := false
	for _, base := range pythonModuleBases(dep.Raw, from) {
		if base == oldModule {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	newModule := pythonModulePath(newTarget)
	var spec string
	if strings.HasPrefix(dep.Raw, ".") {
		spec = relativePythonModule(path.Dir(newFrom), newModule)
	} else {
		spec = strings.ReplaceAll(newModule, "/", ".")
	}
	if spec == "" || spec == dep.Raw {
		return "", false
	}
	return spec, true
}

// pythonModulePath strips the extension and a trailing __init__.
func pythonModulePath(file string) string {
	mod := strings.TrimSuffix(strings.TrimSuffix(file, ".pyi"), ".py")
	if path.Base(mod) == "__init__" {
		mod = path.Dir(mod)
	}
	return cleanRel(mod)
}

func relativePythonModule(fromDir, module string) string {
	fromSegs := splitPath(fromDir)
	modSegs := splitPath(module)
	common := 0
	for common < len(fromSegs) && common < len(modSegs) && fromSegs[common] == modSegs[common] {
		common++
	}
	dots := strings.Repeat(".", len(fromSegs)-common+1)
	return dots + strings.Join(modSegs[common:], ".")
}

func splitPath(p string) []string {
	p = cleanRel(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func cleanRel(p string) string {
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// Syntax implements FunctionRenderer.
func (a *PythonAdapter) Syntax() Syntax {
	return Syntax{
		LineComments:       []string{"#"},
		Quotes:             `"'`,
		TripleQuotes:       true,
		IndentBlocks:       true,
		TopLevelStatements: true,
		ReturnKeyword:      "return",
	}
}

// RenderFunction implements FunctionRenderer.
func (a *PythonAdapter) RenderFunction(spec ExtractSpec) string {
	var b strings.Builder
	b.WriteString("def " + spec.Name + "(" + paramNames(spec.Params) + "):\n")
	writeBody(&b, spec.Body, spec.Unit)
	if !spec.FinalReturn && len(spec.Outputs) > 0 {
		b.WriteString(spec.Unit + "return " + outputNames(spec.Outputs) + "\n")
	}
	return b.String()
}

// RenderCall implements FunctionRenderer.
func (a *PythonAdapter) RenderCall(spec ExtractSpec) string {
	call := spec.Name + "(" + paramNames(spec.Params) + ")"
	switch {
	case spec.FinalReturn:
		call = "return " + call
	case len(spec.Outputs) > 0:
		call = outputNames(spec.Outputs) + " = " + call
	}
	return spec.Indent + call + "\n"
}

func paramNames(params []Param) string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func outputNames(outputs []Output) string {
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	return strings.Join(names, ", ")
}

// writeBody writes body lines one indentation level deep, keeping blank lines
// blank.
func writeBody(b *strings.Builder, body []string, unit string) {
	for _, line := range body {
		if strings.TrimSpace(line) == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(unit + line + "\n")
	}
}
