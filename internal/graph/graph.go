// Package graph implements the directed dependency graph behind solution
// planning: topological ordering, cycle detection, and transitive
// dependency queries over opaque node ids.
package graph

import (
	"fmt"
	"sync"
)

// Node represents one provider step in the dependency graph. Nodes are
// identified by an opaque uint64 id assigned by the caller; the label is
// used only in error messages.
type Node struct {
	ID    uint64
	Label string

	// Graph metadata maintained by the graph.
	InDegree  int
	OutDegree int

	Dependencies []uint64 // nodes this node depends on
	Dependents   []uint64 // nodes that depend on this node
}

// Graph is a directed dependency graph. Edges point from a node to the
// nodes it depends on, so a topological sort yields dependencies first.
type Graph struct {
	mu    sync.RWMutex
	nodes map[uint64]*Node
	edges map[uint64][]uint64

	sortedIDs   []uint64
	sortedDirty bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       make(map[uint64]*Node),
		edges:       make(map[uint64][]uint64),
		sortedDirty: true,
	}
}

// AddNode inserts or replaces a node and its dependency edges. Dependency
// nodes that do not exist yet are created as placeholders so edges are
// never dangling.
func (g *Graph) AddNode(id uint64, label string, deps []uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		node = &Node{ID: id}
		g.nodes[id] = node
	}
	node.Label = label

	dependencies := make([]uint64, 0, len(deps))
	for _, dep := range deps {
		dependencies = append(dependencies, dep)
		if _, ok := g.nodes[dep]; !ok {
			g.nodes[dep] = &Node{ID: dep, Label: fmt.Sprintf("node(%d)", dep)}
		}
	}

	node.Dependencies = dependencies
	g.edges[id] = dependencies

	g.updateDegrees()
	g.sortedDirty = true
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Size returns the number of nodes.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Label returns the label of a node, or the empty string if absent.
func (g *Graph) Label(id uint64) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return n.Label
	}
	return ""
}

// updateDegrees recalculates in/out degrees and dependent lists. Callers
// must hold the write lock.
func (g *Graph) updateDegrees() {
	for _, node := range g.nodes {
		node.InDegree = 0
		node.OutDegree = 0
		node.Dependents = node.Dependents[:0]
	}

	for from, tos := range g.edges {
		fromNode, ok := g.nodes[from]
		if !ok {
			continue
		}
		fromNode.OutDegree = len(tos)
		for _, to := range tos {
			if toNode, ok := g.nodes[to]; ok {
				toNode.InDegree++
				toNode.Dependents = append(toNode.Dependents, from)
			}
		}
	}
}

// TopologicalSort returns node ids ordered so that every node appears
// after all of its dependencies (Kahn's algorithm). The result is cached
// until the graph changes. Returns an error when the graph contains a
// cycle; use DetectCycles for a report with the offending path.
func (g *Graph) TopologicalSort() ([]uint64, error) {
	g.mu.RLock()
	if !g.sortedDirty && g.sortedIDs != nil {
		result := make([]uint64, len(g.sortedIDs))
		copy(result, g.sortedIDs)
		g.mu.RUnlock()
		return result, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Nodes with no dependencies of their own come first.
	outDegrees := make(map[uint64]int, len(g.nodes))
	for id, node := range g.nodes {
		outDegrees[id] = len(node.Dependencies)
	}

	queue := make([]uint64, 0, len(g.nodes))
	for id, degree := range outDegrees {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]uint64, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		node := g.nodes[current]
		if node == nil {
			continue
		}
		for _, dependent := range node.Dependents {
			outDegrees[dependent]--
			if outDegrees[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("graph contains %d nodes but only %d could be ordered", len(g.nodes), len(result))
	}

	g.sortedIDs = result
	g.sortedDirty = false

	resultCopy := make([]uint64, len(result))
	copy(resultCopy, result)
	return resultCopy, nil
}

// DetectCycles checks every node for membership in a cycle using DFS and
// returns a *CycleError naming the re-entrant node and the full path, or
// nil when the graph is acyclic.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[uint64]int, len(g.nodes))

	var path []uint64
	var visit func(id uint64) *CycleError
	visit = func(id uint64) *CycleError {
		switch state[id] {
		case done:
			return nil
		case visiting:
			// Re-entry on the current DFS path: a genuine cycle, not
			// merely a diamond.
			start := 0
			for i, p := range path {
				if p == id {
					start = i
					break
				}
			}
			cycle := append([]uint64{}, path[start:]...)
			return &CycleError{Node: g.ref(id), Path: g.refs(cycle)}
		}

		state[id] = visiting
		path = append(path, id)
		for _, dep := range g.edges[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for id := range g.nodes {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// TransitiveDependencies returns every node reachable from id along
// dependency edges, excluding id itself.
func (g *Graph) TransitiveDependencies(id uint64) []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(id, func(n *Node) []uint64 { return n.Dependencies })
}

// TransitiveDependents returns every node that directly or indirectly
// depends on id, excluding id itself.
func (g *Graph) TransitiveDependents(id uint64) []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(id, func(n *Node) []uint64 { return n.Dependents })
}

func (g *Graph) collect(root uint64, next func(*Node) []uint64) []uint64 {
	visited := map[uint64]bool{root: true}
	result := make([]uint64, 0)

	stack := []uint64{root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, ok := g.nodes[current]
		if !ok {
			continue
		}
		for _, n := range next(node) {
			if !visited[n] {
				visited[n] = true
				result = append(result, n)
				stack = append(stack, n)
			}
		}
	}
	return result
}

// Roots returns all nodes no other node depends on.
func (g *Graph) Roots() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	roots := make([]*Node, 0)
	for _, node := range g.nodes {
		if node.InDegree == 0 {
			roots = append(roots, node)
		}
	}
	return roots
}

// Leaves returns all nodes with no dependencies of their own.
func (g *Graph) Leaves() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	leaves := make([]*Node, 0)
	for _, node := range g.nodes {
		if len(node.Dependencies) == 0 {
			leaves = append(leaves, node)
		}
	}
	return leaves
}

func (g *Graph) ref(id uint64) NodeRef {
	label := fmt.Sprintf("node(%d)", id)
	if n, ok := g.nodes[id]; ok && n.Label != "" {
		label = n.Label
	}
	return NodeRef{ID: id, Label: label}
}

func (g *Graph) refs(ids []uint64) []NodeRef {
	out := make([]NodeRef, len(ids))
	for i, id := range ids {
		out[i] = g.ref(id)
	}
	return out
}
