package extraction

import "fmt"

// SymbolKind is the kind of a declaration.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindStruct    SymbolKind = "struct"
	KindVariable  SymbolKind = "variable"
	KindConstant  SymbolKind = "constant"
	KindParameter SymbolKind = "parameter"
	KindField     SymbolKind = "field"
	KindProperty  SymbolKind = "property"
	KindType      SymbolKind = "type"
	KindEnum      SymbolKind = "enum"
	KindModule    SymbolKind = "module"
	KindNamespace SymbolKind = "namespace"
)

// AllKinds lists every kind the adapters produce.
var AllKinds = []SymbolKind{
	KindFunction, KindMethod, KindClass, KindInterface, KindStruct,
	KindVariable, KindConstant, KindParameter, KindField, KindProperty,
	KindType, KindEnum, KindModule, KindNamespace,
}

// ParseSymbolKind validates a user-supplied kind name.
func ParseSymbolKind(s string) (SymbolKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown symbol kind %q", s)
}

// IsMember reports whether symbols of this kind are reached through a receiver
// (obj.name) rather than by bare name.
func (k SymbolKind) IsMember() bool {
	return k == KindMethod || k == KindField || k == KindProperty
}

// IsValueBinding reports whether the kind names a runtime value that can be
// captured by an extracted function.
func (k SymbolKind) IsValueBinding() bool {
	return k == KindVariable || k == KindParameter
}

// Position is a location in a file. Line is 1-based, Column is the 0-based
// byte offset within the line.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a half-open byte range [StartByte, EndByte) with matching positions.
type Range struct {
	Start     Position `json:"start"`
	End       Position `json:"end"`
	StartByte int      `json:"start_byte"`
	EndByte   int      `json:"end_byte"`
}

// Contains reports whether other lies entirely within r.
func (r Range) Contains(other Range) bool {
	return other.StartByte >= r.StartByte && other.EndByte <= r.EndByte
}

// Overlaps reports whether r and other share at least one byte. Two empty
// ranges at the same offset (insertions) also overlap.
func (r Range) Overlaps(other Range) bool {
	if r.StartByte == other.StartByte {
		return true
	}
	return r.StartByte < other.EndByte && other.StartByte < r.EndByte
}

// Len returns the byte length of the range.
func (r Range) Len() int {
	return r.EndByte - r.StartByte
}

// Symbol is a named, kinded declaration at a specific location.
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	File      string     `json:"file"`
	Range     Range      `json:"range"`      // whole declaration
	NameRange Range      `json:"name_range"` // identifier token only
	Container string     `json:"container,omitempty"`
	Scope     string     `json:"scope,omitempty"` // lexical scope key, empty at module level
	Signature string     `json:"signature,omitempty"`
}

// QualifiedName returns Container.Name, or Name at module level.
func (s Symbol) QualifiedName() string {
	if s.Container == "" {
		return s.Name
	}
	return s.Container + "." + s.Name
}

// Location renders file:line:column.
func (s Symbol) Location() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.NameRange.Start.Line, s.NameRange.Start.Column+1)
}

// UsageKind is how a usage site touches its symbol.
type UsageKind string

const (
	UsageRead      UsageKind = "read"
	UsageWrite     UsageKind = "write"
	UsageCall      UsageKind = "call"
	UsageReference UsageKind = "reference"
	UsageImport    UsageKind = "import"
)

// Usage is a reference to a symbol distinct from its declaration.
type Usage struct {
	Name      string    `json:"name"`
	Kind      UsageKind `json:"kind"`
	File      string    `json:"file"`
	Range     Range     `json:"range"` // identifier token
	Container string    `json:"container,omitempty"`
	Scope     string    `json:"scope,omitempty"` // binding scope the name resolved to
	Member    bool      `json:"member,omitempty"`

	// Qualifier is the receiver of a member usage, as a dotted name, when it
	// is a module-level name or the enclosing instance (self, this).
	Qualifier string `json:"qualifier,omitempty"`
	// Owner is the container declaring the member, when the adapter could
	// tell from the receiver. The container is declared in the same file.
	Owner string `json:"owner,omitempty"`
}

// DependencyKind classifies a dependency edge endpoint.
type DependencyKind string

const (
	DependencyInternal DependencyKind = "internal"
	DependencyExternal DependencyKind = "external"
)

// Dependency is one import/include/use statement in a file.
type Dependency struct {
	Raw    string         `json:"raw"`   // specifier as written, without quotes
	Range  Range          `json:"range"` // span of Raw in the source
	Names  []string       `json:"names,omitempty"`
	Alias  string         `json:"alias,omitempty"` // local name bound to the whole module
	Kind   DependencyKind `json:"kind,omitempty"`
	Target string         `json:"target,omitempty"` // resolved indexed path for internal edges
	Module string         `json:"module,omitempty"` // external module name
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a parse problem attached to a file.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

// FileExtraction is everything an adapter extracts from one file.
type FileExtraction struct {
	Language     string
	Path         string
	LineCount    int
	Symbols      []Symbol
	Usages       []Usage
	Dependencies []Dependency
	Diagnostics  []Diagnostic
}
