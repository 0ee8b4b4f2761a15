package graph

import "github.com/mvp-joe/codemorph/internal/indexer/extraction"

// Statement is one dependency statement backing an edge.
type Statement struct {
	Raw   string           `json:"raw"`
	Range extraction.Range `json:"range"`
}

// Edge connects a file to an indexed file (internal) or to an external module
// name. Statements lists every import in From that produced the edge.
type Edge struct {
	From       string                    `json:"from"`
	To         string                    `json:"to"`
	Kind       extraction.DependencyKind `json:"kind"`
	Statements []Statement               `json:"statements"`
}

// Internal reports whether the edge points at an indexed file.
func (e Edge) Internal() bool {
	return e.Kind == extraction.DependencyInternal
}

// Orphan is an internal file that nothing depends on.
type Orphan struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ImpactLevel classifies how far a change to a file reaches.
type ImpactLevel string

const (
	ImpactNone   ImpactLevel = "none"
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// Impact describes the files affected by a change to File.
type Impact struct {
	File       string      `json:"file"`
	Direct     []string    `json:"direct"`
	Transitive []string    `json:"transitive"` // every reverse-reachable file, direct ones included
	Level      ImpactLevel `json:"level"`
	Score      int         `json:"score"`
}

// Thresholds bound the dependent counts of the low and medium impact levels.
type Thresholds struct {
	Low    int
	Medium int
}

// DefaultThresholds: 1-3 dependents is low, 4-10 medium, more is high.
var DefaultThresholds = Thresholds{Low: 3, Medium: 10}

// Stats summarizes the graph.
type Stats struct {
	Nodes     int `json:"nodes"`
	Edges     int `json:"edges"`
	Externals int `json:"externals"`
}
