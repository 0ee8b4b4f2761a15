package parsers

import (
	"path"
	"regexp"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// RubyAdapter parses Ruby files.
type RubyAdapter struct {
	treeSitterAdapter
}

// NewRubyAdapter creates the Ruby adapter.
func NewRubyAdapter() *RubyAdapter {
	return &RubyAdapter{treeSitterAdapter{g: &grammar{
		lang:       "ruby",
		exts:       []string{".rb"},
		language:   sitter.NewLanguage(ruby.Language()),
		caps:       Capabilities{Rename: true},
		keywords:   rubyKeywords,
		identifier: rubyIdentifier,
		identKinds: kindSet("identifier", "constant"),
		classKinds: kindSet("class", "module"),
		declare:    declareRuby,
		imports:    importsRuby,
		classify:   classifyRuby,
	}}}
}

var rubyIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*[?!]?$`)

var rubyKeywords = keywordSet(
	"BEGIN", "END", "alias", "and", "begin", "break", "case", "class", "def",
	"defined?", "do", "else", "elsif", "end", "ensure", "false", "for", "if", "in",
	"module", "next", "nil", "not", "or", "redo", "rescue", "retry", "return",
	"self", "super", "then", "true", "undef", "unless", "until", "when", "while",
	"yield",
)

var rubyRequires = keywordSet("require", "require_relative", "load")

func declareRuby(x *extractor, n *sitter.Node) {
	name := n.ChildByFieldName("name")
	switch n.Kind() {
	case "class":
		x.declare(name, extraction.KindClass, n, x.signature(n))
	case "module":
		x.declare(name, extraction.KindModule, n, x.signature(n))
	case "method", "singleton_method":
		kind := extraction.KindFunction
		if x.inClass() {
			kind = extraction.KindMethod
		}
		x.declare(name, kind, n, x.signature(n))
	case "assignment":
		left := n.ChildByFieldName("left")
		if left == nil {
			return
		}
		switch {
		case left.Kind() == "constant":
			x.declare(left, extraction.KindConstant, n, "")
		case left.Kind() == "identifier" && x.atModule():
			x.declare(left, extraction.KindVariable, n, "")
		}
	}
}

func importsRuby(x *extractor, n *sitter.Node) bool {
	if n.Kind() != "call" || n.ChildByFieldName("receiver") != nil {
		return false
	}
	method := n.ChildByFieldName("method")
	if method == nil || !rubyRequires[x.text(method)] {
		return false
	}
	args := n.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return true
	}
	x.dependency(stringContent(args.NamedChild(0)), x.text(method))
	return true
}

func classifyRuby(x *extractor, n *sitter.Node) (extraction.UsageKind, bool, bool) {
	p := n.Parent()
	if p == nil {
		return extraction.UsageRead, false, false
	}
	switch p.Kind() {
	case "call":
		if isField(p, "method", n) {
			return extraction.UsageCall, p.ChildByFieldName("receiver") != nil, false
		}
	case "assignment", "operator_assignment":
		if isField(p, "left", n) {
			return extraction.UsageWrite, false, false
		}
	case "scope_resolution":
		if isField(p, "name", n) {
			return extraction.UsageReference, false, false
		}
	}
	if n.Kind() == "constant" {
		return extraction.UsageReference, false, false
	}
	return extraction.UsageRead, false, false
}

// ResolveImport maps require_relative next to the requiring file and require
// to the root or lib/.
func (a *RubyAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	raw := dep.Raw
	if path.Ext(raw) == "" {
		raw += ".rb"
	}
	if len(dep.Names) > 0 && dep.Names[0] == "require_relative" {
		return ictx.firstExisting(path.Join(path.Dir(ictx.From), raw))
	}
	if strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") {
		return ictx.firstExisting(path.Join(path.Dir(ictx.From), raw))
	}
	return ictx.firstExisting(raw, path.Join("lib", raw))
}
