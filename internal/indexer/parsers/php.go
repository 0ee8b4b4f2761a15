package parsers

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	php "github.com/tree-sitter/tree-sitter-php/bindings/go"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// PHPAdapter parses PHP files.
type PHPAdapter struct {
	treeSitterAdapter
}

// NewPHPAdapter creates the PHP adapter.
func NewPHPAdapter() *PHPAdapter {
	return &PHPAdapter{treeSitterAdapter{g: &grammar{
		lang:       "php",
		exts:       []string{".php"},
		language:   sitter.NewLanguage(php.LanguagePHP()),
		caps:       Capabilities{Rename: true},
		keywords:   phpKeywords,
		identifier: wordIdentifier,
		identKinds: kindSet("name"),
		classKinds: kindSet("class_declaration", "interface_declaration", "trait_declaration", "enum_declaration"),
		declare:    declarePHP,
		imports:    importsPHP,
		classify:   classifyPHP,
	}}}
}

var phpKeywords = keywordSet(
	"abstract", "and", "array", "as", "break", "callable", "case", "catch",
	"class", "clone", "const", "continue", "declare", "default", "do", "echo",
	"else", "elseif", "empty", "enddeclare", "endfor", "endforeach", "endif",
	"endswitch", "endwhile", "extends", "final", "finally", "fn", "for",
	"foreach", "function", "global", "goto", "if", "implements", "include",
	"instanceof", "insteadof", "interface", "isset", "list", "match", "namespace",
	"new", "or", "print", "private", "protected", "public", "readonly", "require",
	"return", "static", "switch", "throw", "trait", "try", "unset", "use", "var",
	"while", "xor", "yield",
)

var phpIncludes = kindSet("include_expression", "include_once_expression", "require_expression", "require_once_expression")

func declarePHP(x *extractor, n *sitter.Node) {
	name := n.ChildByFieldName("name")
	switch n.Kind() {
	case "class_declaration", "trait_declaration":
		x.declare(name, extraction.KindClass, n, x.signature(n))
	case "interface_declaration":
		x.declare(name, extraction.KindInterface, n, x.signature(n))
	case "enum_declaration":
		x.declare(name, extraction.KindEnum, n, x.signature(n))
	case "function_definition":
		x.declare(name, extraction.KindFunction, n, x.signature(n))
	case "method_declaration":
		x.declare(name, extraction.KindMethod, n, x.signature(n))
	case "const_element":
		x.declare(findChildByType(n, "name"), extraction.KindConstant, n, "")
	case "property_element":
		if v := findChildByType(n, "variable_name"); v != nil {
			x.declare(findChildByType(v, "name"), extraction.KindProperty, n, "")
		}
	case "namespace_definition":
		x.declare(lastName(name), extraction.KindNamespace, n, "")
	}
}

// lastName returns the final name segment of a qualified or namespace name.
func lastName(n *sitter.Node) *sitter.Node {
	if n == nil || n.Kind() == "name" {
		return n
	}
	var last *sitter.Node
	for _, c := range findChildrenByType(n, "name") {
		last = c
	}
	return last
}

func importsPHP(x *extractor, n *sitter.Node) bool {
	switch {
	case n.Kind() == "namespace_use_declaration":
		walkTree(n, func(c *sitter.Node) bool {
			if c.Kind() != "namespace_use_clause" {
				return true
			}
			spec := findChildByType(c, "qualified_name")
			if spec == nil {
				spec = findChildByType(c, "name")
			}
			if spec != nil {
				x.dependency(spec)
				x.importUsage(lastName(spec))
			}
			return false
		})
		return true
	case n.Kind() == "namespace_definition":
		return false
	case phpIncludes[n.Kind()]:
		if s := firstDescendant(n, "string_content"); s != nil {
			x.dependency(s, "include")
		}
		return true
	}
	return false
}

func classifyPHP(x *extractor, n *sitter.Node) (extraction.UsageKind, bool, bool) {
	p := n.Parent()
	if p == nil {
		return extraction.UsageRead, false, false
	}
	switch p.Kind() {
	case "member_call_expression", "nullsafe_member_call_expression", "scoped_call_expression":
		if isField(p, "name", n) {
			return extraction.UsageCall, true, false
		}
	case "member_access_expression", "nullsafe_member_access_expression":
		if isField(p, "name", n) {
			return accessThroughAssignment(p, "assignment_expression"), true, false
		}
	case "function_call_expression":
		if isField(p, "function", n) {
			return extraction.UsageCall, false, false
		}
	case "variable_name":
		return accessThroughAssignment(p, "assignment_expression"), false, false
	case "named_type", "object_creation_expression":
		return extraction.UsageReference, false, false
	case "namespace_name", "namespace_definition":
		return "", false, true
	}
	return extraction.UsageRead, false, false
}

// ResolveImport maps namespace imports onto PSR-4 style paths and include
// strings relative to the including file.
func (a *PHPAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	if len(dep.Names) == 1 && dep.Names[0] == "include" {
		return ictx.firstExisting(path.Join(path.Dir(ictx.From), dep.Raw), dep.Raw)
	}
	rel := strings.ReplaceAll(strings.TrimPrefix(dep.Raw, `\`), `\`, "/") + ".php"
	var candidates []string
	for _, root := range []string{"", "src", "app", "lib"} {
		candidates = append(candidates, path.Join(root, rel))
	}
	if i := strings.Index(rel, "/"); i > 0 {
		for _, root := range []string{"src", "app", "lib"} {
			candidates = append(candidates, path.Join(root, rel[i+1:]))
		}
	}
	return ictx.firstExisting(candidates...)
}
