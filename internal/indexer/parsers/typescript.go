package parsers

import (
	"path"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// ScriptAdapter parses TypeScript, TSX and JavaScript with the TypeScript
// grammars.
type ScriptAdapter struct {
	treeSitterAdapter
	typed bool
}

// NewTypeScriptAdapter creates the TypeScript adapter.
func NewTypeScriptAdapter() *ScriptAdapter {
	return newScriptAdapter("typescript", []string{".ts", ".mts", ".cts"},
		sitter.NewLanguage(typescript.LanguageTypescript()), true)
}

// NewTSXAdapter creates the TSX adapter.
func NewTSXAdapter() *ScriptAdapter {
	return newScriptAdapter("tsx", []string{".tsx"},
		sitter.NewLanguage(typescript.LanguageTSX()), true)
}

// NewJavaScriptAdapter creates the JavaScript adapter. It uses the TSX grammar
// so that JSX parses.
func NewJavaScriptAdapter() *ScriptAdapter {
	return newScriptAdapter("javascript", []string{".js", ".jsx", ".mjs", ".cjs"},
		sitter.NewLanguage(typescript.LanguageTSX()), false)
}

func newScriptAdapter(lang string, exts []string, language *sitter.Language, typed bool) *ScriptAdapter {
	return &ScriptAdapter{
		treeSitterAdapter: treeSitterAdapter{g: &grammar{
			lang:       lang,
			exts:       exts,
			language:   language,
			caps:       Capabilities{Rename: true, Move: true, ExtractFunction: true},
			keywords:   scriptKeywords,
			identifier: scriptIdentifier,
			identKinds: kindSet("identifier", "type_identifier", "property_identifier",
				"shorthand_property_identifier", "shorthand_property_identifier_pattern"),
			classKinds: kindSet("class_declaration", "abstract_class_declaration", "class",
				"interface_declaration", "enum_declaration"),
			funcKinds: kindSet("function_declaration", "generator_function_declaration",
				"function_expression", "function", "generator_function", "arrow_function",
				"method_definition"),
			declare:  declareScript,
			imports:  importsScript,
			classify: classifyScript,
		}},
		typed: typed,
	}
}

var scriptKeywords = keywordSet(
	"await", "break", "case", "catch", "class", "const", "continue", "debugger",
	"default", "delete", "do", "else", "enum", "export", "extends", "false",
	"finally", "for", "function", "if", "implements", "import", "in", "instanceof",
	"interface", "let", "new", "null", "package", "private", "protected", "public",
	"return", "static", "super", "switch", "this", "throw", "true", "try", "typeof",
	"var", "void", "while", "with", "yield",
)

var scriptExtensions = []string{".ts", ".tsx", ".d.ts", ".js", ".jsx", ".mjs", ".cjs"}

func declareScript(x *extractor, n *sitter.Node) {
	name := n.ChildByFieldName("name")
	switch n.Kind() {
	case "function_declaration", "generator_function_declaration":
		x.declare(name, extraction.KindFunction, n, x.signature(n))
	case "class_declaration", "abstract_class_declaration":
		x.declare(name, extraction.KindClass, n, x.signature(n))
	case "interface_declaration":
		x.declare(name, extraction.KindInterface, n, x.signature(n))
	case "type_alias_declaration":
		x.declare(name, extraction.KindType, n, x.signature(n))
	case "enum_declaration":
		x.declare(name, extraction.KindEnum, n, x.signature(n))
	case "method_definition", "method_signature", "abstract_method_signature":
		x.declare(name, extraction.KindMethod, n, x.signature(n))
	case "public_field_definition", "field_definition":
		x.declare(name, extraction.KindField, n, x.typeText(n, "type"))
	case "property_signature":
		x.declare(name, extraction.KindProperty, n, x.typeText(n, "type"))

	case "enum_body":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			switch c.Kind() {
			case "property_identifier":
				x.declare(c, extraction.KindField, c, "")
			case "enum_assignment":
				x.declare(c.ChildByFieldName("name"), extraction.KindField, c, "")
			}
		}

	case "variable_declarator":
		if name == nil {
			return
		}
		if name.Kind() != "identifier" {
			for _, id := range patternNames(name, x.g.identKinds) {
				x.declare(id, extraction.KindVariable, n, "")
			}
			return
		}
		kind := extraction.KindVariable
		switch value := n.ChildByFieldName("value"); {
		case value != nil && x.g.funcKinds[value.Kind()]:
			kind = extraction.KindFunction
		case x.atModule() && isConstDeclaration(n.Parent()):
			kind = extraction.KindConstant
		}
		x.declare(name, kind, n, x.typeText(n, "type"))

	case "required_parameter", "optional_parameter":
		pattern := n.ChildByFieldName("pattern")
		if pattern == nil {
			return
		}
		typ := x.typeText(n, "type")
		for _, id := range patternNames(pattern, x.g.identKinds) {
			x.declare(id, extraction.KindParameter, n, typ)
		}

	case "catch_clause":
		for _, id := range patternNames(n.ChildByFieldName("parameter"), x.g.identKinds) {
			x.declare(id, extraction.KindVariable, n, "")
		}

	case "for_in_statement":
		if findChildByType(n, "const") == nil && findChildByType(n, "let") == nil && findChildByType(n, "var") == nil {
			return
		}
		for _, id := range patternNames(n.ChildByFieldName("left"), x.g.identKinds) {
			x.declare(id, extraction.KindVariable, n, "")
		}

	case "identifier":
		// A bare arrow parameter belongs to the arrow's own scope, which is
		// already on the stack when its children are visited.
		if p := n.Parent(); p != nil && p.Kind() == "arrow_function" && isField(p, "parameter", n) {
			x.declare(n, extraction.KindParameter, n, "")
		}
	}
}

func isConstDeclaration(n *sitter.Node) bool {
	return n != nil && n.Kind() == "lexical_declaration" && findChildByType(n, "const") != nil
}

func importsScript(x *extractor, n *sitter.Node) bool {
	switch n.Kind() {
	case "import_statement":
		var names []string
		alias := ""
		if clause := findChildByType(n, "import_clause"); clause != nil {
			names = scriptImportNames(x, clause)
			if ns := findChildByType(clause, "namespace_import"); ns != nil {
				if id := findChildByType(ns, "identifier"); id != nil {
					alias = x.text(id)
				}
			}
		}
		if dep := x.dependency(stringContent(n.ChildByFieldName("source")), names...); dep != nil {
			dep.Alias = alias
		}
		return true

	case "export_statement":
		source := n.ChildByFieldName("source")
		if source == nil {
			return false
		}
		var names []string
		if clause := findChildByType(n, "export_clause"); clause != nil {
			for _, spec := range findChildrenByType(clause, "export_specifier") {
				if name := spec.ChildByFieldName("name"); name != nil {
					names = append(names, x.text(name))
					x.importUsage(name)
				}
			}
		}
		x.dependency(stringContent(source), names...)
		return true

	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn == nil || !(fn.Kind() == "import" || (fn.Kind() == "identifier" && x.text(fn) == "require")) {
			return false
		}
		if args := n.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
			if arg := args.NamedChild(0); arg.Kind() == "string" {
				x.dependency(stringContent(arg))
			}
		}
	}
	return false
}

func scriptImportNames(x *extractor, clause *sitter.Node) []string {
	var names []string
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		c := clause.NamedChild(i)
		switch c.Kind() {
		case "identifier":
			names = append(names, "default")
			x.importUsage(c)
		case "named_imports":
			for _, spec := range findChildrenByType(c, "import_specifier") {
				if name := spec.ChildByFieldName("name"); name != nil {
					names = append(names, x.text(name))
					x.importUsage(name)
				}
			}
		case "namespace_import":
			names = append(names, "*")
		}
	}
	return names
}

func classifyScript(x *extractor, n *sitter.Node) (extraction.UsageKind, bool, bool) {
	p := n.Parent()
	switch n.Kind() {
	case "property_identifier":
		if p != nil && p.Kind() == "member_expression" {
			return scriptAccessKind(p), true, false
		}
		return extraction.UsageRead, true, false
	case "type_identifier":
		return extraction.UsageReference, false, false
	}
	if p != nil {
		switch p.Kind() {
		case "export_specifier":
			if isField(p, "alias", n) {
				return "", false, true
			}
		case "new_expression":
			if isField(p, "constructor", n) {
				return extraction.UsageCall, false, false
			}
		}
	}
	return scriptAccessKind(n), false, false
}

func scriptAccessKind(n *sitter.Node) extraction.UsageKind {
	p := n.Parent()
	if p == nil {
		return extraction.UsageRead
	}
	switch p.Kind() {
	case "call_expression":
		if isField(p, "function", n) {
			return extraction.UsageCall
		}
	case "assignment_expression", "augmented_assignment_expression":
		if isField(p, "left", n) {
			return extraction.UsageWrite
		}
	case "update_expression":
		return extraction.UsageWrite
	}
	return extraction.UsageRead
}

func isRelativeSpec(raw string) bool {
	return raw == "." || raw == ".." || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../")
}

// scriptCandidates lists the files a relative specifier may name, in lookup
// order.
func scriptCandidates(raw, from string) []string {
	base := path.Join(path.Dir(from), raw)
	out := []string{base}
	if ext := path.Ext(base); ext == ".js" || ext == ".jsx" || ext == ".mjs" {
		stem := strings.TrimSuffix(base, ext)
		out = append(out, stem+".ts", stem+".tsx")
	}
	for _, ext := range scriptExtensions {
		out = append(out, base+ext)
	}
	for _, ext := range scriptExtensions {
		out = append(out, path.Join(base, "index"+ext))
	}
	return out
}

// ResolveImport resolves relative specifiers. Bare package specifiers are
// external.
func (a *ScriptAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	if !isRelativeSpec(dep.Raw) {
		return nil
	}
	for _, c := range scriptCandidates(dep.Raw, ictx.From) {
		if ictx.exists(c) {
			return []string{c}
		}
	}
	return nil
}

// RewriteImport recomputes a relative specifier after a move, keeping the
// original extension style and directory-index style.
func (a *ScriptAdapter) RewriteImport(dep extraction.Dependency, from, newFrom, target, newTarget string) (string, bool) {
	if !isRelativeSpec(dep.Raw) {
		return "", false
	}
	matched := false
	for _, c := range scriptCandidates(dep.Raw, from) {
		if c == target {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	fromDir := path.Dir(newFrom)
	targetExt := scriptExt(newTarget)
	rawExt := path.Ext(dep.Raw)
	namedIndex := strings.HasPrefix(path.Base(dep.Raw), "index")

	var spec string
	if strings.HasPrefix(path.Base(target), "index.") && !namedIndex && strings.HasPrefix(path.Base(newTarget), "index.") {
		spec = relPath(fromDir, path.Dir(newTarget))
	} else {
		spec = relPath(fromDir, newTarget)
		switch {
		case rawExt == "":
			spec = strings.TrimSuffix(spec, targetExt)
		case rawExt != targetExt:
			spec = strings.TrimSuffix(spec, targetExt) + rawExt
		}
	}
	if !strings.HasPrefix(spec, ".") {
		spec = "./" + spec
	}
	if spec == dep.Raw {
		return "", false
	}
	return spec, true
}

func scriptExt(p string) string {
	if strings.HasSuffix(p, ".d.ts") {
		return ".d.ts"
	}
	return path.Ext(p)
}

// relPath returns a slash-separated path from dir to target.
func relPath(dir, target string) string {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

// Syntax implements FunctionRenderer.
func (a *ScriptAdapter) Syntax() Syntax {
	return Syntax{
		LineComments:       []string{"//"},
		BlockComment:       [2]string{"/*", "*/"},
		Quotes:             "\"'`",
		TopLevelStatements: true,
		ReturnKeyword:      "return",
	}
}

// RenderFunction implements FunctionRenderer.
func (a *ScriptAdapter) RenderFunction(spec ExtractSpec) string {
	params := make([]string, len(spec.Params))
	for i, p := range spec.Params {
		params[i] = p.Name
		if a.typed && p.Type != "" {
			params[i] += ": " + p.Type
		}
	}

	var b strings.Builder
	b.WriteString("function " + spec.Name + "(" + strings.Join(params, ", ") + ") {\n")
	writeBody(&b, spec.Body, spec.Unit)
	switch {
	case spec.FinalReturn:
	case len(spec.Outputs) == 1:
		b.WriteString(spec.Unit + "return " + spec.Outputs[0].Name + ";\n")
	case len(spec.Outputs) > 1:
		b.WriteString(spec.Unit + "return [" + outputNames(spec.Outputs) + "];\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// RenderCall implements FunctionRenderer.
func (a *ScriptAdapter) RenderCall(spec ExtractSpec) string {
	call := spec.Name + "(" + paramNames(spec.Params) + ");"
	if spec.FinalReturn {
		return spec.Indent + "return " + call + "\n"
	}
	if len(spec.Outputs) == 0 {
		return spec.Indent + call + "\n"
	}

	target := outputNames(spec.Outputs)
	if len(spec.Outputs) > 1 {
		target = "[" + target + "]"
	}
	var fresh []string
	for _, o := range spec.Outputs {
		if o.DeclaredHere {
			fresh = append(fresh, o.Name)
		}
	}
	switch len(fresh) {
	case len(spec.Outputs):
		return spec.Indent + "let " + target + " = " + call + "\n"
	case 0:
		return spec.Indent + target + " = " + call + "\n"
	}
	return spec.Indent + "let " + strings.Join(fresh, ", ") + ";\n" +
		spec.Indent + target + " = " + call + "\n"
}
