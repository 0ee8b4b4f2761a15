package parsers

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// JavaAdapter parses Java files. Locals are not scoped; class members bind
// to their class.
type JavaAdapter struct {
	treeSitterAdapter
}

// NewJavaAdapter creates the Java adapter.
func NewJavaAdapter() *JavaAdapter {
	return &JavaAdapter{treeSitterAdapter{g: &grammar{
		lang:       "java",
		exts:       []string{".java"},
		language:   sitter.NewLanguage(java.Language()),
		caps:       Capabilities{Rename: true},
		keywords:   javaKeywords,
		identifier: scriptIdentifier,
		identKinds: kindSet("identifier", "type_identifier"),
		classKinds: kindSet("class_declaration", "interface_declaration", "enum_declaration", "record_declaration"),
		declare:    declareJava,
		imports:    importsJava,
		classify:   classifyJava,
	}}}
}

var javaKeywords = keywordSet(
	"abstract", "assert", "boolean", "break", "byte", "case", "catch", "char",
	"class", "const", "continue", "default", "do", "double", "else", "enum",
	"extends", "final", "finally", "float", "for", "goto", "if", "implements",
	"import", "instanceof", "int", "interface", "long", "native", "new", "package",
	"private", "protected", "public", "return", "short", "static", "strictfp",
	"super", "switch", "synchronized", "this", "throw", "throws", "transient",
	"try", "void", "volatile", "while", "true", "false", "null",
)

func declareJava(x *extractor, n *sitter.Node) {
	name := n.ChildByFieldName("name")
	switch n.Kind() {
	case "class_declaration", "record_declaration":
		x.declare(name, extraction.KindClass, n, x.signature(n))
	case "interface_declaration":
		x.declare(name, extraction.KindInterface, n, x.signature(n))
	case "enum_declaration":
		x.declare(name, extraction.KindEnum, n, x.signature(n))
	case "method_declaration":
		x.declare(name, extraction.KindMethod, n, x.signature(n))
	case "enum_constant":
		x.declare(name, extraction.KindConstant, n, "")
	case "field_declaration", "constant_declaration":
		kind := extraction.KindField
		if n.Kind() == "constant_declaration" {
			kind = extraction.KindConstant
		}
		typ := x.text(n.ChildByFieldName("type"))
		for _, d := range findChildrenByType(n, "variable_declarator") {
			x.declare(d.ChildByFieldName("name"), kind, n, typ)
		}
	}
}

func importsJava(x *extractor, n *sitter.Node) bool {
	switch n.Kind() {
	case "package_declaration":
		return true
	case "import_declaration":
		spec := findChildByType(n, "scoped_identifier")
		if spec == nil {
			spec = findChildByType(n, "identifier")
		}
		if findChildByType(n, "asterisk") != nil {
			x.dependency(spec, "*")
		} else {
			x.dependency(spec)
		}
		return true
	}
	return false
}

func classifyJava(x *extractor, n *sitter.Node) (extraction.UsageKind, bool, bool) {
	if n.Kind() == "type_identifier" {
		return extraction.UsageReference, false, false
	}
	p := n.Parent()
	if p == nil {
		return extraction.UsageRead, false, false
	}
	switch p.Kind() {
	case "method_invocation":
		if isField(p, "name", n) {
			return extraction.UsageCall, p.ChildByFieldName("object") != nil, false
		}
	case "field_access":
		if isField(p, "field", n) {
			return accessThroughAssignment(p, "assignment_expression"), true, false
		}
	case "assignment_expression":
		if isField(p, "left", n) {
			return extraction.UsageWrite, false, false
		}
	case "update_expression":
		return extraction.UsageWrite, false, false
	}
	return extraction.UsageRead, false, false
}

// accessThroughAssignment reports a write when n is the left side of its
// parent assignment.
func accessThroughAssignment(n *sitter.Node, assignKind string) extraction.UsageKind {
	if p := n.Parent(); p != nil && p.Kind() == assignKind && isField(p, "left", n) {
		return extraction.UsageWrite
	}
	return extraction.UsageRead
}

// ResolveImport maps a class import to its source file under the common
// source roots. Wildcard imports resolve to every file of the package.
func (a *JavaAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	rel := strings.ReplaceAll(dep.Raw, ".", "/")
	roots := []string{"", "src/main/java", "src", "src/test/java"}
	if len(dep.Names) == 1 && dep.Names[0] == "*" {
		for _, root := range roots {
			if files := ictx.filesInDir(path.Join(root, rel)); len(files) > 0 {
				return files
			}
		}
		return nil
	}
	candidates := make([]string, 0, len(roots))
	for _, root := range roots {
		candidates = append(candidates, path.Join(root, rel+".java"))
	}
	return ictx.firstExisting(candidates...)
}
