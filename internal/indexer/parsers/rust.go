package parsers

import (
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// RustAdapter parses Rust files. Items inside impl and trait blocks bind to
// the implementing type.
type RustAdapter struct {
	treeSitterAdapter
}

// NewRustAdapter creates the Rust adapter.
func NewRustAdapter() *RustAdapter {
	return &RustAdapter{treeSitterAdapter{g: &grammar{
		lang:       "rust",
		exts:       []string{".rs"},
		language:   sitter.NewLanguage(rust.Language()),
		caps:       Capabilities{Rename: true},
		keywords:   rustKeywords,
		identifier: wordIdentifier,
		identKinds: kindSet("identifier", "type_identifier", "field_identifier"),
		classKinds: kindSet("struct_item", "enum_item", "trait_item", "impl_item"),
		declare:    declareRust,
		imports:    importsRust,
		classify:   classifyRust,
	}}}
}

var rustKeywords = keywordSet(
	"as", "async", "await", "break", "const", "continue", "crate", "dyn", "else",
	"enum", "extern", "false", "fn", "for", "if", "impl", "in", "let", "loop",
	"match", "mod", "move", "mut", "pub", "ref", "return", "self", "Self",
	"static", "struct", "super", "trait", "true", "type", "unsafe", "use",
	"where", "while",
)

func declareRust(x *extractor, n *sitter.Node) {
	name := n.ChildByFieldName("name")
	switch n.Kind() {
	case "function_item", "function_signature_item":
		kind := extraction.KindFunction
		if x.inClass() {
			kind = extraction.KindMethod
		}
		x.declare(name, kind, n, x.signature(n))
	case "struct_item":
		x.declare(name, extraction.KindStruct, n, x.signature(n))
	case "enum_item":
		x.declare(name, extraction.KindEnum, n, x.signature(n))
	case "trait_item":
		x.declare(name, extraction.KindInterface, n, x.signature(n))
	case "type_item":
		x.declare(name, extraction.KindType, n, x.signature(n))
	case "const_item", "static_item":
		x.declare(name, extraction.KindConstant, n, x.text(n.ChildByFieldName("type")))
	case "mod_item":
		x.declare(name, extraction.KindModule, n, "")
	case "field_declaration":
		x.declare(name, extraction.KindField, n, x.text(n.ChildByFieldName("type")))
	case "enum_variant":
		x.declare(name, extraction.KindField, n, "")
	}
}

func importsRust(x *extractor, n *sitter.Node) bool {
	switch n.Kind() {
	case "use_declaration":
		arg := n.ChildByFieldName("argument")
		x.dependency(arg)
		if arg != nil {
			walkTree(arg, func(c *sitter.Node) bool {
				if c.Kind() == "identifier" || c.Kind() == "type_identifier" {
					if p := c.Parent(); p == nil || !isField(p, "path", c) {
						x.importUsage(c)
					}
				}
				return true
			})
		}
		return true
	case "mod_item":
		if n.ChildByFieldName("body") == nil {
			x.dependency(n.ChildByFieldName("name"), "mod")
		}
	}
	return false
}

func classifyRust(x *extractor, n *sitter.Node) (extraction.UsageKind, bool, bool) {
	p := n.Parent()
	switch n.Kind() {
	case "type_identifier":
		return extraction.UsageReference, false, false
	case "field_identifier":
		if p != nil && p.Kind() == "field_expression" {
			if g := p.Parent(); g != nil && g.Kind() == "call_expression" && isField(g, "function", p) {
				return extraction.UsageCall, true, false
			}
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
		case "scoped_identifier":
			if isField(p, "name", n) {
				if g := p.Parent(); g != nil && g.Kind() == "call_expression" && isField(g, "function", p) {
					return extraction.UsageCall, false, false
				}
			}
		case "assignment_expression", "compound_assignment_expr":
			if isField(p, "left", n) {
				return extraction.UsageWrite, false, false
			}
		}
	}
	return extraction.UsageRead, false, false
}

// ResolveImport maps crate::, self:: and super:: paths and out-of-line mod
// declarations to module files.
func (a *RustAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	modDir := rustModuleDir(ictx.From)
	if len(dep.Names) == 1 && dep.Names[0] == "mod" {
		return ictx.firstExisting(
			path.Join(modDir, dep.Raw+".rs"),
			path.Join(modDir, dep.Raw, "mod.rs"),
		)
	}

	raw := dep.Raw
	if i := strings.Index(raw, "::{"); i >= 0 {
		raw = raw[:i]
	}
	segs := strings.Split(raw, "::")
	var base string
	switch segs[0] {
	case "crate":
		base = "src"
	case "self":
		base = modDir
	case "super":
		base = path.Dir(modDir)
	default:
		return nil
	}
	segs = segs[1:]
	for n := len(segs); n > 0; n-- {
		p := path.Join(append([]string{base}, segs[:n]...)...)
		if found := ictx.firstExisting(p+".rs", path.Join(p, "mod.rs")); found != nil {
			return found
		}
	}
	return nil
}

// rustModuleDir is the directory holding the submodules of the module
// defined by file.
func rustModuleDir(file string) string {
	dir := path.Dir(file)
	switch path.Base(file) {
	case "mod.rs", "lib.rs", "main.rs":
		return dir
	}
	return path.Join(dir, strings.TrimSuffix(path.Base(file), ".rs"))
}
