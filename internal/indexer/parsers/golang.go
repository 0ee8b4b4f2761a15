package parsers

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/mod/modfile"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// GoAdapter parses Go files with go/parser. Go resolves imports by package
// path rather than file path, so moving a file never requires rewriting
// imports and the adapter does not claim the Move capability.
type GoAdapter struct {
	mu      sync.Mutex
	modules map[string]string // index root -> module path
}

// NewGoAdapter creates the Go adapter.
func NewGoAdapter() *GoAdapter {
	return &GoAdapter{modules: make(map[string]string)}
}

func (a *GoAdapter) Language() string     { return "go" }
func (a *GoAdapter) Extensions() []string { return []string{".go"} }

func (a *GoAdapter) Capabilities() Capabilities {
	return Capabilities{Rename: true, ExtractFunction: true}
}

func (a *GoAdapter) IsValidIdentifier(name string) bool {
	return token.IsIdentifier(name) && name != "_"
}

// Parse extracts package-level declarations, locals with their scopes, and
// usages resolved through the parser's object resolution.
func (a *GoAdapter) Parse(ctx context.Context, filePath string, content []byte) (*extraction.FileExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &extraction.FileExtraction{
		Language:  "go",
		Path:      filePath,
		LineCount: countLines(content),
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.ParseComments|parser.AllErrors)
	if err != nil {
		out.Diagnostics = goDiagnostics(err)
	}
	if file == nil {
		return out, nil
	}

	w := &goWalker{
		fset:      fset,
		tf:        fset.File(file.Pos()),
		src:       content,
		out:       out,
		info:      typeCheck(fset, file),
		imports:   make(map[string]bool),
		declScope: make(map[token.Pos]string),
		declName:  make(map[*ast.Ident]bool),
		skip:      make(map[*ast.Ident]bool),
	}
	w.walk(file)
	return out, ctx.Err()
}

func goDiagnostics(err error) []extraction.Diagnostic {
	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return []extraction.Diagnostic{{Severity: extraction.SeverityError, Message: err.Error()}}
	}
	var diags []extraction.Diagnostic
	for i, e := range list {
		if i == maxSyntaxDiagnostics {
			break
		}
		diags = append(diags, extraction.Diagnostic{
			Severity: extraction.SeverityError,
			Message:  e.Msg,
			Line:     e.Pos.Line,
			Column:   e.Pos.Column,
		})
	}
	return diags
}

// stubImporter satisfies imports with empty packages so a single file can be
// type-checked in isolation. Types from other packages come out invalid.
type stubImporter struct{}

func (stubImporter) Import(importPath string) (*types.Package, error) {
	pkg := types.NewPackage(importPath, guessPackageName(importPath))
	pkg.MarkComplete()
	return pkg, nil
}

func typeCheck(fset *token.FileSet, file *ast.File) *types.Info {
	info := &types.Info{
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
	}
	conf := types.Config{
		Importer:    stubImporter{},
		FakeImportC: true,
		Error:       func(error) {},
	}
	// Errors are expected for anything that crosses a package boundary.
	_, _ = conf.Check(file.Name.Name, fset, []*ast.File{file}, info)
	return info
}

// guessPackageName derives the conventional package name from an import path.
func guessPackageName(importPath string) string {
	segs := strings.Split(importPath, "/")
	name := segs[len(segs)-1]
	if len(segs) > 1 && len(name) > 1 && name[0] == 'v' && isDigits(name[1:]) {
		name = segs[len(segs)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 && isDigits(name[i+2:]) {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	name = strings.TrimSuffix(name, "-go")
	return strings.NewReplacer("-", "", ".", "").Replace(name)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type goWalker struct {
	fset *token.FileSet
	tf   *token.File
	src  []byte
	out  *extraction.FileExtraction
	info *types.Info

	imports   map[string]bool // local names of imported packages
	declScope map[token.Pos]string
	declName  map[*ast.Ident]bool
	skip      map[*ast.Ident]bool

	stack  []ast.Node
	scopes []scopeEntry
}

type scopeEntry struct {
	node ast.Node
	key  string
}

func (w *goWalker) scopeKey() string {
	if len(w.scopes) == 0 {
		return ""
	}
	return w.scopes[len(w.scopes)-1].key
}

func (w *goWalker) walk(file *ast.File) {
	w.skip[file.Name] = true
	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			top := w.stack[len(w.stack)-1]
			w.stack = w.stack[:len(w.stack)-1]
			if len(w.scopes) > 0 && w.scopes[len(w.scopes)-1].node == top {
				w.scopes = w.scopes[:len(w.scopes)-1]
			}
			return true
		}

		switch n := n.(type) {
		case *ast.Ident:
			w.ident(n)
			return false
		case *ast.ImportSpec:
			w.importSpec(n)
			return false
		case *ast.BranchStmt:
			if n.Label != nil {
				w.skip[n.Label] = true
			}
		case *ast.LabeledStmt:
			w.skip[n.Label] = true
		}

		w.stack = append(w.stack, n)

		switch n := n.(type) {
		case *ast.FuncDecl:
			w.funcDecl(n)
		case *ast.FuncLit:
			key := joinPath(w.scopeKey(), fmt.Sprintf("<anonymous@L%d>", w.fset.Position(n.Pos()).Line))
			w.scopes = append(w.scopes, scopeEntry{node: n, key: key})
			w.params(n.Type, nil, key)
		case *ast.TypeSpec:
			w.typeSpec(n)
		case *ast.ValueSpec:
			w.valueSpec(n)
		case *ast.AssignStmt:
			if n.Tok == token.DEFINE {
				for _, lhs := range n.Lhs {
					if id, ok := lhs.(*ast.Ident); ok && id.Obj != nil && id.Obj.Decl == n {
						w.declare(id, extraction.KindVariable, n, w.scopeKey(), w.scopeKey(), w.objectType(id))
					}
				}
			}
		case *ast.RangeStmt:
			if n.Tok == token.DEFINE {
				for _, e := range []ast.Expr{n.Key, n.Value} {
					if id, ok := e.(*ast.Ident); ok {
						w.declare(id, extraction.KindVariable, n, w.scopeKey(), w.scopeKey(), w.objectType(id))
					}
				}
			}
		case *ast.TypeSwitchStmt:
			if as, ok := n.Assign.(*ast.AssignStmt); ok && as.Tok == token.DEFINE {
				for _, lhs := range as.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						w.declare(id, extraction.KindVariable, as, w.scopeKey(), w.scopeKey(), "")
					}
				}
			}
		}
		return true
	})
}

func (w *goWalker) funcDecl(d *ast.FuncDecl) {
	container := ""
	kind := extraction.KindFunction
	if d.Recv != nil && len(d.Recv.List) > 0 {
		container = receiverTypeName(d.Recv.List[0].Type)
		kind = extraction.KindMethod
	}
	w.declare(d.Name, kind, d, container, container, w.text(d.Pos(), d.Type.End()))

	key := joinPath(container, d.Name.Name)
	w.scopes = append(w.scopes, scopeEntry{node: d, key: key})
	w.params(d.Type, d.Recv, key)
}

// params declares receiver, type parameters, parameters and named results.
func (w *goWalker) params(ft *ast.FuncType, recv *ast.FieldList, key string) {
	lists := []*ast.FieldList{recv, ft.TypeParams, ft.Params, ft.Results}
	for i, list := range lists {
		if list == nil {
			continue
		}
		kind := extraction.KindParameter
		if i == 1 {
			kind = extraction.KindType
		}
		for _, field := range list.List {
			typ := w.text(field.Type.Pos(), field.Type.End())
			if rest, ok := strings.CutPrefix(typ, "..."); ok {
				typ = "[]" + rest
			}
			for _, name := range field.Names {
				w.declare(name, kind, field, key, key, typ)
			}
		}
	}
}

func (w *goWalker) typeSpec(ts *ast.TypeSpec) {
	kind := extraction.KindType
	switch ts.Type.(type) {
	case *ast.StructType:
		kind = extraction.KindStruct
	case *ast.InterfaceType:
		kind = extraction.KindInterface
	}
	scope := w.scopeKey()
	w.declare(ts.Name, kind, ts, scope, scope, "type "+ts.Name.Name+" "+w.firstLine(ts.Type))

	typePath := joinPath(scope, ts.Name.Name)
	switch t := ts.Type.(type) {
	case *ast.StructType:
		for _, field := range t.Fields.List {
			typ := w.text(field.Type.Pos(), field.Type.End())
			for _, name := range field.Names {
				w.declare(name, extraction.KindField, field, typePath, typePath, typ)
			}
		}
	case *ast.InterfaceType:
		for _, field := range t.Methods.List {
			for _, name := range field.Names {
				w.declare(name, extraction.KindMethod, field, typePath, typePath, name.Name+w.text(field.Type.Pos(), field.Type.End()))
			}
		}
	}
}

func (w *goWalker) valueSpec(vs *ast.ValueSpec) {
	kind := extraction.KindVariable
	if gd, ok := w.parent(1).(*ast.GenDecl); ok && gd.Tok == token.CONST {
		kind = extraction.KindConstant
	}
	scope := w.scopeKey()
	for _, name := range vs.Names {
		typ := ""
		if vs.Type != nil {
			typ = w.text(vs.Type.Pos(), vs.Type.End())
		} else {
			typ = w.objectType(name)
		}
		w.declare(name, kind, vs, scope, scope, typ)
	}
}

func (w *goWalker) importSpec(spec *ast.ImportSpec) {
	raw, err := strconv.Unquote(spec.Path.Value)
	if err != nil || raw == "" {
		return
	}
	local := guessPackageName(raw)
	var names []string
	if spec.Name != nil {
		w.skip[spec.Name] = true
		local = spec.Name.Name
		names = append(names, local)
	}
	if local != "_" && local != "." {
		w.imports[local] = true
	}
	w.out.Dependencies = append(w.out.Dependencies, extraction.Dependency{
		Raw:   raw,
		Range: w.rangeOf(spec.Path.Pos()+1, spec.Path.End()-1),
		Names: names,
	})
}

func (w *goWalker) declare(id *ast.Ident, kind extraction.SymbolKind, decl ast.Node, container, scope, signature string) {
	if id == nil || id.Name == "_" || w.declName[id] {
		return
	}
	w.declName[id] = true
	w.declScope[id.Pos()] = scope
	w.out.Symbols = append(w.out.Symbols, extraction.Symbol{
		Name:      id.Name,
		Kind:      kind,
		File:      w.out.Path,
		Range:     w.rangeOf(decl.Pos(), decl.End()),
		NameRange: w.rangeOf(id.Pos(), id.End()),
		Container: container,
		Scope:     scope,
		Signature: signature,
	})
}

func (w *goWalker) ident(id *ast.Ident) {
	if w.declName[id] || w.skip[id] || id.Name == "_" {
		return
	}

	member := false
	switch p := w.parent(0).(type) {
	case *ast.SelectorExpr:
		if p.Sel == id {
			x, ok := p.X.(*ast.Ident)
			member = !(ok && x.Obj == nil && w.imports[x.Name])
		} else if id.Obj == nil && w.imports[id.Name] {
			return
		}
	case *ast.KeyValueExpr:
		if _, lit := w.parent(1).(*ast.CompositeLit); lit && p.Key == id {
			member = true
		}
	}
	if !member && id.Obj == nil && types.Universe.Lookup(id.Name) != nil {
		return
	}

	u := extraction.Usage{
		Name:      id.Name,
		Kind:      w.accessKind(id),
		File:      w.out.Path,
		Range:     w.rangeOf(id.Pos(), id.End()),
		Container: w.scopeKey(),
		Member:    member,
	}
	if !member && id.Obj != nil {
		u.Scope = w.declScope[id.Obj.Pos()]
	}
	if sel, ok := w.parent(0).(*ast.SelectorExpr); ok && member && sel.Sel == id {
		u.Owner = w.selectionOwner(sel)
	}
	w.out.Usages = append(w.out.Usages, u)
}

// selectionOwner names the package-level type declaring the selected method
// or field, or "" when the checker could not see it.
func (w *goWalker) selectionOwner(sel *ast.SelectorExpr) string {
	s, ok := w.info.Selections[sel]
	if !ok {
		return ""
	}
	switch obj := s.Obj().(type) {
	case *types.Func:
		sig, ok := obj.Type().(*types.Signature)
		if !ok || sig.Recv() == nil {
			return ""
		}
		return packageTypeName(sig.Recv().Type())
	case *types.Var:
		if len(s.Index()) != 1 {
			return ""
		}
		return packageTypeName(s.Recv())
	}
	return ""
}

func packageTypeName(t types.Type) string {
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	n, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return ""
	}
	obj := n.Obj()
	if obj.Pkg() == nil || obj.Parent() != obj.Pkg().Scope() {
		return ""
	}
	return obj.Name()
}

func (w *goWalker) accessKind(id *ast.Ident) extraction.UsageKind {
	if obj, ok := w.info.Uses[id]; ok {
		if _, isType := obj.(*types.TypeName); isType {
			return extraction.UsageReference
		}
	}

	var node ast.Node = id
	depth := 0
	if sel, ok := w.parent(0).(*ast.SelectorExpr); ok && sel.Sel == id {
		node = sel
		depth = 1
	}
	switch p := w.parent(depth).(type) {
	case *ast.CallExpr:
		if p.Fun == node {
			return extraction.UsageCall
		}
	case *ast.AssignStmt:
		for _, lhs := range p.Lhs {
			if lhs == node {
				return extraction.UsageWrite
			}
		}
	case *ast.IncDecStmt:
		return extraction.UsageWrite
	}
	return extraction.UsageRead
}

// parent returns the ancestor depth levels above the node being visited.
func (w *goWalker) parent(depth int) ast.Node {
	i := len(w.stack) - 1 - depth
	if i < 0 {
		return nil
	}
	return w.stack[i]
}

// objectType renders the inferred type of a defined identifier, or "" when
// the checker could not determine it.
func (w *goWalker) objectType(id *ast.Ident) string {
	obj := w.info.Defs[id]
	if obj == nil || obj.Type() == nil {
		return ""
	}
	if basic, ok := obj.Type().(*types.Basic); ok && basic.Kind() == types.Invalid {
		return ""
	}
	s := types.TypeString(types.Default(obj.Type()), func(p *types.Package) string {
		if obj.Pkg() != nil && p.Path() == obj.Pkg().Path() {
			return ""
		}
		return p.Name()
	})
	if strings.Contains(s, "invalid type") {
		return ""
	}
	return s
}

func (w *goWalker) text(start, end token.Pos) string {
	s, e := w.tf.Offset(start), w.tf.Offset(end)
	if s < 0 || e > len(w.src) || s > e {
		return ""
	}
	return strings.Join(strings.Fields(string(w.src[s:e])), " ")
}

func (w *goWalker) firstLine(n ast.Node) string {
	s, e := w.tf.Offset(n.Pos()), w.tf.Offset(n.End())
	line := string(w.src[s:e])
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func (w *goWalker) rangeOf(start, end token.Pos) extraction.Range {
	s, e := w.fset.Position(start), w.fset.Position(end)
	return extraction.Range{
		Start:     extraction.Position{Line: s.Line, Column: s.Column - 1},
		End:       extraction.Position{Line: e.Line, Column: e.Column - 1},
		StartByte: s.Offset,
		EndByte:   e.Offset,
	}
}

// receiverTypeName returns T for receivers of type T, *T, T[P] and *T[P].
func receiverTypeName(expr ast.Expr) string {
	for {
		switch e := expr.(type) {
		case *ast.StarExpr:
			expr = e.X
		case *ast.IndexExpr:
			expr = e.X
		case *ast.IndexListExpr:
			expr = e.X
		case *ast.ParenExpr:
			expr = e.X
		case *ast.Ident:
			return e.Name
		default:
			return ""
		}
	}
}

// ResolveImport maps imports under the root module's path to the package
// directory's non-test files.
func (a *GoAdapter) ResolveImport(ictx ImportContext, dep extraction.Dependency) []string {
	mod := a.modulePath(ictx.Root)
	if mod == "" || (dep.Raw != mod && !strings.HasPrefix(dep.Raw, mod+"/")) {
		return nil
	}
	dir := strings.TrimPrefix(strings.TrimPrefix(dep.Raw, mod), "/")
	var out []string
	for _, f := range ictx.filesInDir(dir) {
		if path.Ext(f) == ".go" && !strings.HasSuffix(f, "_test.go") {
			out = append(out, f)
		}
	}
	return out
}

func (a *GoAdapter) modulePath(root string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mod, ok := a.modules[root]; ok {
		return mod
	}
	mod := ""
	if data, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		mod = modfile.ModulePath(data)
	}
	a.modules[root] = mod
	return mod
}

// Syntax implements FunctionRenderer.
func (a *GoAdapter) Syntax() Syntax {
	return Syntax{
		LineComments:  []string{"//"},
		BlockComment:  [2]string{"/*", "*/"},
		Quotes:        "\"'`",
		ReturnKeyword: "return",
	}
}

// RenderFunction implements FunctionRenderer.
func (a *GoAdapter) RenderFunction(spec ExtractSpec) string {
	params := make([]string, len(spec.Params))
	for i, p := range spec.Params {
		params[i] = p.Name + " " + typeOrAny(p.Type)
	}

	var results []string
	if spec.FinalReturn {
		results = goResultTypes(spec.EnclosingDecl)
	} else {
		for _, o := range spec.Outputs {
			results = append(results, typeOrAny(o.Type))
		}
	}

	var b strings.Builder
	b.WriteString("func " + spec.Name + "(" + strings.Join(params, ", ") + ")")
	switch len(results) {
	case 0:
	case 1:
		b.WriteString(" " + results[0])
	default:
		b.WriteString(" (" + strings.Join(results, ", ") + ")")
	}
	b.WriteString(" {\n")
	writeBody(&b, spec.Body, spec.Unit)
	if !spec.FinalReturn && len(spec.Outputs) > 0 {
		b.WriteString(spec.Unit + "return " + outputNames(spec.Outputs) + "\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// RenderCall implements FunctionRenderer.
func (a *GoAdapter) RenderCall(spec ExtractSpec) string {
	call := spec.Name + "(" + paramNames(spec.Params) + ")"
	switch {
	case spec.FinalReturn:
		if len(goResultTypes(spec.EnclosingDecl)) == 0 {
			return spec.Indent + call + "\n" + spec.Indent + "return\n"
		}
		return spec.Indent + "return " + call + "\n"
	case len(spec.Outputs) > 0:
		op := " = "
		for _, o := range spec.Outputs {
			if o.DeclaredHere {
				op = " := "
				break
			}
		}
		return spec.Indent + outputNames(spec.Outputs) + op + call + "\n"
	}
	return spec.Indent + call + "\n"
}

func typeOrAny(t string) string {
	if t == "" {
		return "any"
	}
	return t
}

// goResultTypes lists the result types of a function header such as
// "func (s *S) Load(path string) (int, error)".
func goResultTypes(decl string) []string {
	if decl == "" {
		return nil
	}
	file, err := parser.ParseFile(token.NewFileSet(), "", "package p\n"+decl+" {}", 0)
	if err != nil || len(file.Decls) == 0 {
		return nil
	}
	fn, ok := file.Decls[0].(*ast.FuncDecl)
	if !ok || fn.Type.Results == nil {
		return nil
	}
	var out []string
	for _, field := range fn.Type.Results.List {
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, types.ExprString(field.Type))
		}
	}
	return out
}
