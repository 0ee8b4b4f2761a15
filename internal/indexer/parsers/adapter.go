// Package parsers turns source files into symbols, usages and dependency
// statements. Each language is an Adapter; adapters are looked up through an
// explicit Registry built once by DefaultRegistry and passed to the index.
package parsers

import (
	"context"

	"github.com/mvp-joe/codemorph/internal/indexer/extraction"
)

// Capabilities advertises which transformations an adapter supports.
type Capabilities struct {
	Rename          bool `json:"rename"`
	Move            bool `json:"move"` // rewrites path-dependent imports when a file moves
	ExtractFunction bool `json:"extract_function"`
}

// ImportContext gives an adapter read access to the indexed file set while it
// resolves a dependency statement.
type ImportContext struct {
	Root string // absolute index root
	From string // importing file, slash-separated and relative to Root

	// Exists reports whether a root-relative path is indexed.
	Exists func(path string) bool

	// FilesInDir lists indexed files directly inside a root-relative directory.
	FilesInDir func(dir string) []string
}

func (c ImportContext) exists(path string) bool {
	return c.Exists != nil && c.Exists(path)
}

func (c ImportContext) filesInDir(dir string) []string {
	if c.FilesInDir == nil {
		return nil
	}
	return c.FilesInDir(dir)
}

// Adapter parses one language.
type Adapter interface {
	Language() string
	Extensions() []string

	// Parse extracts declarations, usages and dependencies. A syntax error is
	// reported as a diagnostic on the returned extraction, not as an error.
	Parse(ctx context.Context, path string, content []byte) (*extraction.FileExtraction, error)

	Capabilities() Capabilities
	IsValidIdentifier(name string) bool

	// ResolveImport maps a dependency statement to the indexed files it refers
	// to. An empty result means the dependency is external.
	ResolveImport(ictx ImportContext, dep extraction.Dependency) []string
}

// ImportRewriter is implemented by adapters whose imports name file paths.
type ImportRewriter interface {
	// RewriteImport returns the specifier dep must carry once the importing file
	// lives at newFrom and the imported file at newTarget. ok is false when the
	// specifier does not change or cannot be expressed.
	RewriteImport(dep extraction.Dependency, from, newFrom, target, newTarget string) (spec string, ok bool)
}

// Syntax describes the lexical rules the extract-function validator needs.
type Syntax struct {
	LineComments       []string
	BlockComment       [2]string
	Quotes             string // characters that open a string literal
	TripleQuotes       bool   // doubled-up quotes open multi-line strings
	IndentBlocks       bool   // blocks are delimited by indentation
	TopLevelStatements bool   // statements may appear outside any function
	ReturnKeyword      string
}

// Output is a value an extracted function hands back to its caller.
type Output struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	DeclaredHere bool   `json:"declared_here"` // first declared inside the extracted lines
}

// Param is an extracted function parameter.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// ExtractSpec is everything a FunctionRenderer needs to emit the new function
// and the call that replaces the selected lines.
type ExtractSpec struct {
	Name          string
	Params        []Param
	Outputs       []Output
	Body          []string // selected lines with the common indentation removed
	Indent        string   // indentation of the selected lines
	Unit          string   // one level of indentation in this file
	FinalReturn   bool     // the selection ends with a return statement
	ResultTypes   []string // enclosing function result types, when FinalReturn
	EnclosingDecl string   // signature of the enclosing function, if any
}

// FunctionRenderer is implemented by adapters that support extract-function.
type FunctionRenderer interface {
	Syntax() Syntax
	RenderFunction(spec ExtractSpec) string
	RenderCall(spec ExtractSpec) string
}

// firstExisting returns the first indexed candidate.
func (c ImportContext) firstExisting(candidates ...string) []string {
	for _, p := range candidates {
		if p = cleanRel(p); p != "" && c.exists(p) {
			return []string{p}
		}
	}
	return nil
}
