package parsers

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

const maxSyntaxDiagnostics = 10

type frameKind int

const (
	frameModule frameKind = iota
	frameClass
	frameFunction
)

// frame is one lexical scope on the walk stack. path is the dotted container
// path of the scope and doubles as its scope key.
type frame struct {
	kind     frameKind
	path     string
	declared map[string]bool
	external map[string]bool // names the scope explicitly borrows from outside
}

// grammar describes one tree-sitter language to the shared extractor.
type grammar struct {
	lang       string
	exts       []string
	language   *sitter.Language
	caps       Capabilities
	keywords   map[string]bool
	identifier *regexp.Regexp

	identKinds map[string]bool // token kinds that can name a symbol
	classKinds map[string]bool // nodes opening a member scope
	funcKinds  map[string]bool // nodes opening a function scope

	// declare records the declarations introduced by n.
	declare func(x *extractor, n *sitter.Node)

	// imports records n if it is a dependency statement. Returning true skips
	// the statement's subtree during usage extraction.
	imports func(x *extractor, n *sitter.Node) bool

	// classify decides how an identifier token is used.
	classify func(x *extractor, n *sitter.Node) (kind extraction.UsageKind, member, skip bool)
}

// treeSitterAdapter implements the Adapter methods shared by every tree-sitter
// language.
type treeSitterAdapter struct {
	g *grammar
}

func (a *treeSitterAdapter) Language() string           { return a.g.lang }
func (a *treeSitterAdapter) Extensions() []string       { return append([]string(nil), a.g.exts...) }
func (a *treeSitterAdapter) Capabilities() Capabilities { return a.g.caps }

func (a *treeSitterAdapter) IsValidIdentifier(name string) bool {
	return a.g.identifier.MatchString(name) && !a.g.keywords[name]
}

// Parse runs both extraction passes over the syntax tree.
func (a *treeSitterAdapter) Parse(ctx context.Context, path string, content []byte) (*extraction.FileExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()

	parser.SetLanguage(a.g.language)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s file: %s", a.g.lang, path)
	}
	defer tree.Close()

	root := tree.RootNode()
	x := &extractor{
		ctx:       ctx,
		g:         a.g,
		src:       content,
		frames:    make(map[uintptr]*frame),
		declNames: make(map[uintptr]bool),
		skip:      make(map[uintptr]bool),
		out: &extraction.FileExtraction{
			Language:  a.g.lang,
			Path:      path,
			LineCount: countLines(content),
		},
	}
	x.stack = []*frame{{kind: frameModule, declared: make(map[string]bool), external: make(map[string]bool)}}

	x.collect(root)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.stack = x.stack[:1]
	x.visit(root)

	if root.HasError() {
		x.out.Diagnostics = append(x.out.Diagnostics, syntaxDiagnostics(root)...)
	}
	return x.out, ctx.Err()
}

// extractor carries the state of one parse.
type extractor struct {
	ctx       context.Context
	g         *grammar
	src       []byte
	out       *extraction.FileExtraction
	stack     []*frame
	frames    map[uintptr]*frame
	declNames map[uintptr]bool
	skip      map[uintptr]bool
	visited   int
}

func (x *extractor) top() *frame {
	return x.stack[len(x.stack)-1]
}

func (x *extractor) inClass() bool {
	return x.top().kind == frameClass
}

func (x *extractor) atModule() bool {
	return x.top().kind == frameModule
}

func (x *extractor) scopeKey() string {
	return x.top().path
}

func (x *extractor) cancelled() bool {
	x.visited++
	return x.visited%1024 == 0 && x.ctx.Err() != nil
}

// collect is the declaration pass.
func (x *extractor) collect(n *sitter.Node) {
	if n == nil || x.cancelled() {
		return
	}
	if x.g.imports != nil && x.g.imports(x, n) {
		x.skip[n.Id()] = true
		return
	}
	if x.g.declare != nil {
		x.g.declare(x, n)
	}

	if f := x.openFrame(n); f != nil {
		x.stack = append(x.stack, f)
		defer func() { x.stack = x.stack[:len(x.stack)-1] }()
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		x.collect(n.Child(i))
	}
}

func (x *extractor) openFrame(n *sitter.Node) *frame {
	var kind frameKind
	switch {
	case x.g.classKinds[n.Kind()]:
		kind = frameClass
	case x.g.funcKinds[n.Kind()]:
		kind = frameFunction
	default:
		return nil
	}
	f := &frame{
		kind:     kind,
		path:     joinPath(x.top().path, x.frameName(n)),
		declared: make(map[string]bool),
		external: make(map[string]bool),
	}
	x.frames[n.Id()] = f
	return f
}

// frameName names a scope by its own name field, by the binding it is
// assigned to, or by its line when anonymous.
func (x *extractor) frameName(n *sitter.Node) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return x.text(name)
	}
	if t := n.ChildByFieldName("type"); t != nil && x.g.classKinds[n.Kind()] {
		return x.text(t)
	}
	if p := n.Parent(); p != nil {
		for _, field := range []string{"name", "left"} {
			if name := p.ChildByFieldName(field); name != nil && x.g.identKinds[name.Kind()] {
				return x.text(name)
			}
		}
	}
	return fmt.Sprintf("<anonymous@L%d>", n.StartPosition().Row+1)
}

// declare records a declaration in the current frame. A name already declared
// in the frame is a rebinding and is left to the usage pass.
func (x *extractor) declare(name *sitter.Node, kind extraction.SymbolKind, decl *sitter.Node, signature string) {
	if name == nil {
		return
	}
	text := x.text(name)
	if text == "" {
		return
	}
	top := x.top()
	if top.declared[text] || top.external[text] {
		return
	}
	top.declared[text] = true
	x.declNames[name.Id()] = true

	if decl == nil {
		decl = name
	}
	x.out.Symbols = append(x.out.Symbols, extraction.Symbol{
		Name:      text,
		Kind:      kind,
		File:      x.out.Path,
		Range:     rangeOf(decl),
		NameRange: rangeOf(name),
		Container: top.path,
		Scope:     x.scopeKey(),
		Signature: signature,
	})
}

// dependency records an import statement. The returned pointer is valid
// until the next statement is recorded.
func (x *extractor) dependency(spec *sitter.Node, names ...string) *extraction.Dependency {
	if spec == nil {
		return nil
	}
	raw := x.text(spec)
	if raw == "" {
		return nil
	}
	x.out.Dependencies = append(x.out.Dependencies, extraction.Dependency{
		Raw:   raw,
		Range: rangeOf(spec),
		Names: names,
	})
	return &x.out.Dependencies[len(x.out.Dependencies)-1]
}

// importUsage records a name pulled in by an import statement.
func (x *extractor) importUsage(n *sitter.Node) {
	if n == nil {
		return
	}
	x.out.Usages = append(x.out.Usages, extraction.Usage{
		Name:      x.text(n),
		Kind:      extraction.UsageImport,
		File:      x.out.Path,
		Range:     rangeOf(n),
		Container: x.top().path,
	})
}

// visit is the usage pass.
func (x *extractor) visit(n *sitter.Node) {
	if n == nil || x.cancelled() {
		return
	}
	id := n.Id()
	if x.skip[id] {
		return
	}
	if f, ok := x.frames[id]; ok {
		x.stack = append(x.stack, f)
		defer func() { x.stack = x.stack[:len(x.stack)-1] }()
	}
	if x.g.identKinds[n.Kind()] {
		x.usage(n)
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		x.visit(n.Child(i))
	}
}

func (x *extractor) usage(n *sitter.Node) {
	if x.declNames[n.Id()] {
		return
	}
	name := x.text(n)
	if name == "" || x.g.keywords[name] {
		return
	}
	kind, member, skip := extraction.UsageRead, false, false
	if x.g.classify != nil {
		kind, member, skip = x.g.classify(x, n)
	}
	if skip {
		return
	}
	u := extraction.Usage{
		Name:      name,
		Kind:      kind,
		File:      x.out.Path,
		Range:     rangeOf(n),
		Container: x.top().path,
		Member:    member,
	}
	if member {
		x.qualify(&u, n)
	} else {
		u.Scope = x.bind(name)
	}
	x.out.Usages = append(x.out.Usages, u)
}

// receiverFields name the receiver child of member access nodes across the
// grammars.
var receiverFields = []string{"object", "receiver", "value", "argument", "scope"}

// selfReceivers denote the enclosing instance.
var selfReceivers = map[string]bool{"self": true, "this": true, "cls": true, "$this": true}

var dottedName = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// qualify records the receiver of the member usage named by n when it is the
// enclosing instance or a module-level name.
func (x *extractor) qualify(u *extraction.Usage, n *sitter.Node) {
	p := n.Parent()
	if p == nil {
		return
	}
	var recv *sitter.Node
	for _, field := range receiverFields {
		if c := p.ChildByFieldName(field); c != nil && !sameNode(c, n) {
			recv = c
			break
		}
	}
	if recv == nil {
		return
	}
	text := x.text(recv)
	if !dottedName.MatchString(text) {
		return
	}
	head, _, dotted := strings.Cut(text, ".")
	if selfReceivers[head] {
		if cls := x.enclosingClass(); cls != "" && !dotted {
			u.Qualifier, u.Owner = text, cls
		}
		return
	}
	if x.bind(head) != "" {
		return
	}
	u.Qualifier = text
	if !dotted && x.declaresType(text) {
		u.Owner = text
	}
}

// enclosingClass returns the path of the innermost class frame.
func (x *extractor) enclosingClass() string {
	for i := len(x.stack) - 1; i > 0; i-- {
		if x.stack[i].kind == frameClass {
			return x.stack[i].path
		}
	}
	return ""
}

// declaresType reports whether the file declares name as a module-level type.
func (x *extractor) declaresType(name string) bool {
	for _, s := range x.out.Symbols {
		if s.Name != name || s.Scope != "" {
			continue
		}
		switch s.Kind {
		case extraction.KindClass, extraction.KindStruct, extraction.KindInterface, extraction.KindEnum, extraction.KindType:
			return true
		}
	}
	return false
}

// bind finds the scope that declares name, innermost first. Class bodies are
// only visible from their own statements, not from nested functions.
func (x *extractor) bind(name string) string {
	for i := len(x.stack) - 1; i > 0; i-- {
		f := x.stack[i]
		if f.kind == frameClass && i != len(x.stack)-1 {
			continue
		}
		if f.declared[name] {
			return f.path
		}
	}
	return ""
}

func (x *extractor) text(n *sitter.Node) string {
	return extractNodeText(n, x.src)
}

// signature renders a declaration header: everything before its body, with
// whitespace collapsed.
func (x *extractor) signature(n *sitter.Node) string {
	end := n.EndByte()
	if body := n.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	header := string(x.src[n.StartByte():end])
	if i := strings.IndexByte(header, '\n'); i >= 0 && n.ChildByFieldName("body") == nil {
		header = header[:i]
	}
	return strings.Join(strings.Fields(header), " ")
}

// typeText returns the annotation under field, without a leading colon.
func (x *extractor) typeText(n *sitter.Node, field string) string {
	t := n.ChildByFieldName(field)
	if t == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(x.text(t), ":"))
}

// patternNames returns the identifier tokens bound by a destructuring pattern.
func patternNames(n *sitter.Node, identKinds map[string]bool) []*sitter.Node {
	if n == nil {
		return nil
	}
	if identKinds[n.Kind()] {
		return []*sitter.Node{n}
	}
	switch n.Kind() {
	case "pair_pattern":
		return patternNames(n.ChildByFieldName("value"), identKinds)
	case "assignment_pattern", "object_assignment_pattern":
		return patternNames(n.ChildByFieldName("left"), identKinds)
	case "default_parameter", "typed_default_parameter":
		return patternNames(n.ChildByFieldName("name"), identKinds)
	}
	var out []*sitter.Node
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() == "type" || c.Kind() == "type_annotation" {
			continue
		}
		out = append(out, patternNames(c, identKinds)...)
	}
	return out
}

// extractNodeText extracts the text content of a tree-sitter node.
func extractNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

func rangeOf(n *sitter.Node) extraction.Range {
	start, end := n.StartPosition(), n.EndPosition()
	return extraction.Range{
		Start:     extraction.Position{Line: int(start.Row) + 1, Column: int(start.Column)},
		End:       extraction.Position{Line: int(end.Row) + 1, Column: int(end.Column)},
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}
}

// sameNode reports whether a and b are the same syntax node.
func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.Id() == b.Id()
}

// isField reports whether n is parent's child under field.
func isField(parent *sitter.Node, field string, n *sitter.Node) bool {
	return parent != nil && sameNode(parent.ChildByFieldName(field), n)
}

// walkTree recursively walks a tree-sitter tree and calls the visitor for each node.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}

	if !visitor(node) {
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		walkTree(node.Child(i), visitor)
	}
}

// findChildByType finds the first child node with the given type.
func findChildByType(node *sitter.Node, nodeType string) *sitter.Node {
	if node == nil {
		return nil
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == nodeType {
			return child
		}
	}
	return nil
}

// findChildrenByType finds all child nodes with the given type.
func findChildrenByType(node *sitter.Node, nodeType string) []*sitter.Node {
	var results []*sitter.Node
	if node == nil {
		return results
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == nodeType {
			results = append(results, child)
		}
	}
	return results
}

// firstDescendant returns the first node of kind in a preorder walk.
func firstDescendant(node *sitter.Node, kind string) *sitter.Node {
	var found *sitter.Node
	walkTree(node, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Kind() == kind {
			found = n
			return false
		}
		return true
	})
	return found
}

// stringContent returns the inner fragment of a string literal node.
func stringContent(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	for _, kind := range []string{"string_fragment", "string_content"} {
		if c := firstDescendant(n, kind); c != nil {
			return c
		}
	}
	return nil
}

func syntaxDiagnostics(root *sitter.Node) []extraction.Diagnostic {
	var diags []extraction.Diagnostic
	walkTree(root, func(n *sitter.Node) bool {
		if len(diags) >= maxSyntaxDiagnostics {
			return false
		}
		if n.IsError() || n.IsMissing() {
			msg := "syntax error"
			if n.IsMissing() {
				msg = fmt.Sprintf("syntax error: missing %s", n.Kind())
			}
			pos := n.StartPosition()
			diags = append(diags, extraction.Diagnostic{
				Severity: extraction.SeverityError,
				Message:  msg,
				Line:     int(pos.Row) + 1,
				Column:   int(pos.Column) + 1,
			})
			return false
		}
		return n.HasError()
	})
	return diags
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func keywordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func kindSet(kinds ...string) map[string]bool {
	return keywordSet(kinds...)
}

var (
	wordIdentifier   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	scriptIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)
