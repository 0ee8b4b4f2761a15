package graph

import (
	"sort"
	"strings"

	"github.com/mvp-joe/codemorph/internal/errs"
)

// Cycles finds dependency cycles over internal edges. Nodes and neighbours
// are visited in lexicographic order; every cycle is reported once, starting
// at its smallest member.
func (d *DependencyGraph) Cycles() [][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	adj := d.adjacency()
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(adj))
	pos := make(map[string]int)
	var stack []string
	seen := make(map[string]bool)
	var cycles [][]string

	var visit func(n string)
	visit = func(n string) {
		state[n] = onStack
		pos[n] = len(stack)
		stack = append(stack, n)

		for _, m := range adj[n] {
			switch state[m] {
			case unvisited:
				visit(m)
			case onStack:
				cycle := canonicalCycle(stack[pos[m]:])
				key := strings.Join(cycle, "\x00")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(pos, n)
		state[n] = done
	}

	for _, n := range sortedKeys(d.deps) {
		if state[n] == unvisited {
			visit(n)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], "\x00") < strings.Join(cycles[j], "\x00")
	})
	return cycles
}

// canonicalCycle rotates a cycle to start at its smallest member.
func canonicalCycle(path []string) []string {
	start := 0
	for i, p := range path {
		if p < path[start] {
			start = i
		}
	}
	out := make([]string, 0, len(path))
	out = append(out, path[start:]...)
	return append(out, path[:start]...)
}

// Orphans lists internal files no other file depends on, skipping entry
// points when isEntry is non-nil.
func (d *DependencyGraph) Orphans(isEntry func(path string) bool) []Orphan {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pred, err := d.g.PredecessorMap()
	if err != nil {
		return nil
	}

	var out []Orphan
	for _, p := range sortedKeys(d.deps) {
		if len(pred[p]) > 0 {
			continue
		}
		if isEntry != nil && isEntry(p) {
			continue
		}
		reason := "no indexed file imports it"
		if len(d.internal[p]) == 0 {
			reason = "isolated: no indexed file imports it and it imports no indexed file"
		}
		out = append(out, Orphan{Path: p, Reason: reason})
	}
	return out
}

// Impact computes the files affected by a change to path.
func (d *DependencyGraph) Impact(path string) (*Impact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.deps[path]; !ok {
		return nil, errs.NotFound("impact", path, "")
	}

	pred, err := d.g.PredecessorMap()
	if err != nil {
		return nil, err
	}

	direct := sortedKeys(pred[path])
	visited := map[string]bool{path: true}
	queue := append([]string(nil), direct...)
	for _, p := range direct {
		visited[p] = true
	}
	var transitive []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		transitive = append(transitive, n)
		for _, p := range sortedKeys(pred[n]) {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	sort.Strings(transitive)

	return &Impact{
		File:       path,
		Direct:     nonNil(direct),
		Transitive: nonNil(transitive),
		Level:      d.level(len(transitive)),
		Score:      impactScore(len(direct), len(transitive)),
	}, nil
}

func (d *DependencyGraph) level(dependents int) ImpactLevel {
	switch {
	case dependents == 0:
		return ImpactNone
	case dependents <= d.thresholds.Low:
		return ImpactLow
	case dependents <= d.thresholds.Medium:
		return ImpactMedium
	}
	return ImpactHigh
}

func impactScore(direct, transitive int) int {
	score := direct*10 + transitive*5
	if score > 100 {
		return 100
	}
	return score
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
