package parsers

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// CAdapter parses C sources and headers. Only file-level declarations and
// struct members are recorded.
type CAdapter struct {
	treeSitterAdapter
}

// NewCAdapter creates the C adapter.
func NewCAdapter() *CAdapter {
	return &CAdapter{treeSitterAdapter{g: &grammar{
		lang:       "c",
		exts:       []string{".c", ".h"},
		language:   sitter.NewLanguage(c.Language()),
		caps:       Capabilities{Rename: true},
		keywords:   cKeywords,
		identifier: wordIdentifier,
		identKinds: kindSet("identifier", "type_identifier", "field_identifier"),
		classKinds: kindSet("struct_specifier", "union_specifier"),
		declare:    declareC,
		imports:    importsC,
		classify:   classifyC,
	}}}
}

var cKeywords = keywordSet(
	"auto", "break", "case", "char", "const", "continue", "default", "do",
	"double", "else", "enum", "extern", "float", "for", "goto", "if", "inline",
	"int", "long", "register", "restrict", "return", "short", "signed", "sizeof",
	"static", "struct", "switch", "typedef", "union", "unsigned", "void",
	"volatile", "while",
)

func declareC(x *extractor, n *sitter.Node) {
	switch n.Kind() {
	case "function_definition":
		x.declare(declaratorName(n.ChildByFieldName("declarator")), extraction.KindFunction, n, x.signature(n))

	case "declaration":
		if p := n.Parent(); p == nil || p.Kind() != "translation_unit" {
			return
		}
		typeNode := n.ChildByFieldName("type")
		for i := uint(0); i < n.NamedChildCount(); i++ {
			d := n.NamedChild(i)
			if sameNode(d, typeNode) {
				continue
			}
			kind := extraction.KindVariable
			if firstDescendant(d, "function_declarator") != nil {
				kind = extraction.KindFunction
			}
			x.declare(declaratorName(d), kind, n, x.signature(n))
		}

	case "struct_specifier", "union_specifier":
		if n.ChildByFieldName("body") != nil {
			x.declare(n.ChildByFieldName("name"), extraction.KindStruct, n, "")
		}

	case "enum_specifier":
		if n.ChildByFieldName("body") == nil {
			return
		}
		x.declare(n.ChildByFieldName("name"), extraction.KindEnum, n, "")
		for _, e := range findChildrenByType(n.ChildByFieldName("body"), "enumerator") {
			x.declare(e.ChildByFieldName("name"), extraction.KindConstant, e, "")
		}

	case "type_definition":
		x.declare(declaratorName(n.ChildByFieldName("declarator")), extraction.KindType, n, "")

	case "field_declaration":
		typ := x.text(n.ChildByFieldName("type"))
		x.declare(declaratorName(n.ChildByFieldName("declarator")), extraction.KindField, n, typ)

	case "preproc_def", "preproc_function_def":
		x.declare(n.ChildByFieldName("name"), extraction.KindConstant, n, "")
	}
}

// declaratorName unwraps pointer, array, function and init declarators down to
// the declared identifier.
func declaratorName(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Kind() {
		case "identifier", "type_identifier", "field_identifier":
			return node
		case "function_declarator", "pointer_declarator", "array_declarator",
			"init_declarator", "parenthesized_declarator", "attributed_declarator":
			node = node.ChildByFieldName("declarator")
		default:
			return nil
		}
	}
	return nil
}

func importsC(x *extractor, n *sitter.Node) bool {
	if n.Kind() != "preproc_include" {
		return false
	}
	spec := n.ChildByFieldName("path")
	if spec == nil {
		return true
	}
	if spec.Kind() == "system_lib_string" {
		r := rangeOf(spec)
		r.StartByte++
		r.Start.Column++
		r.EndByte--
		r.End.Column--
		x.out.Dependencies = append(x.out.Dependencies, extraction.Dependency{
			Raw:   strings.Trim(x.text(spec), "<>"),
			Range: r,
			Names: []string{"system"},
		})
		return true
	}
	x.dependency(stringContent(spec))
	return true
}

func classifyC(x *extractor, n *sitter.Node) (extraction.UsageKind, bool, bool) {
	p := n.Parent()
	switch n.Kind() {
	case "type_identifier":
		return extraction.UsageReference, false, false
	case "field_identifier":
		if p != nil && p.Kind() == "field_expression" {
			return accessThroughAssignment(p, "assignment_expression"), true, false
		}
		return extraction.UsageRead, true, false
	}
	if p != nil {
		switch p.Kind() {
		case "call_expression":
			if isField(p, "function", n) {
				return extraction.UsageCall, false, false
			}
		case "assignment_expression":
			if isField(p, "left", n) {
				return extraction.UsageWrite, false, false
			}
		case "update_expression":
			return extraction.UsageWrite, false, false
		}
	}
	return extraction.UsageRead, false, false
}

// ResolveImport looks quoted includes up next to the including file, then
// from the root and its include directory.
func (a *CAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	if len(dep.Names) == 1 && dep.Names[0] == "system" {
		return ictx.firstExisting(path.Join("include", dep.Raw))
	}
	return ictx.firstExisting(
		path.Join(path.Dir(ictx.From), dep.Raw),
		dep.Raw,
		path.Join("include", dep.Raw),
	)
}
