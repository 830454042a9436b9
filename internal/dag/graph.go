// Package dag provides the directed acyclic graph container the workflow
// planner builds on: insertion-ordered nodes, dependency edges, deterministic
// topological ordering, and cycle detection.
package dag

import (
	"fmt"
	"sync"
)

// Graph is a collection of nodes and their dependency edges. All operations
// are concurrency-safe. Node and edge enumeration follow insertion order, so
// every traversal is deterministic.
type Graph struct {
	// mutex protects the node map and insertion order during concurrent access.
	mutex sync.RWMutex
	nodes map[string]*node
	order []string
}

// node is a single vertex. It is un-exported to enforce interaction with the
// graph via the public API (string IDs), not direct struct manipulation.
type node struct {
	id string
	// deps holds predecessors in insertion order.
	deps []*node
	// dependents holds successors in insertion order.
	dependents []*node
	depSet     map[string]struct{}
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode adds a new node with the given ID to the graph. If a node with the
// same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node{id: id, depSet: make(map[string]struct{})}
	g.order = append(g.order, id)
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.nodes)
}

// Nodes returns all node IDs in insertion order.
func (g *Graph) Nodes() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is
// returned if either node does not exist or if the edge would create a
// self-reference. Duplicate edges are ignored.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	if _, dup := toNode.depSet[fromID]; dup {
		return nil
	}
	toNode.depSet[fromID] = struct{}{}
	toNode.deps = append(toNode.deps, fromNode)
	fromNode.dependents = append(fromNode.dependents, toNode)

	return nil
}

// Dependencies returns the node IDs the given node depends on, in insertion
// order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	deps := make([]string, 0, len(n.deps))
	for _, dep := range n.deps {
		deps = append(deps, dep.id)
	}
	return deps, nil
}

// Dependents returns the node IDs that depend on the given node, in insertion
// order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	dependents := make([]string, 0, len(n.dependents))
	for _, dep := range n.dependents {
		dependents = append(dependents, dep.id)
	}
	return dependents, nil
}

// Descendants returns every transitive dependent of the given node in
// breadth-first order. Used for fail-fast propagation.
func (g *Graph) Descendants(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	var out []string
	seen := make(map[string]struct{})
	queue := append([]*node(nil), start.dependents...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, dup := seen[n.id]; dup {
			continue
		}
		seen[n.id] = struct{}{}
		out = append(out, n.id)
		queue = append(queue, n.dependents...)
	}
	return out, nil
}

// TopologicalOrder returns every node ID ordered so that each node appears
// after all of its dependencies. Ties break by original insertion order
// (Kahn's algorithm with a FIFO ready queue), so repeated calls on the same
// graph yield identical sequences.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.nodes[id].deps)
	}

	var queue []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	out := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		for _, dep := range g.nodes[id].dependents {
			indegree[dep.id]--
			if indegree[dep.id] == 0 {
				queue = append(queue, dep.id)
			}
		}
	}

	if len(out) != len(g.nodes) {
		return nil, fmt.Errorf("graph is not acyclic: ordered %d of %d nodes", len(out), len(g.nodes))
	}
	return out, nil
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, indicating the first node involved in the detected
// cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with three sets of nodes:
	// permanent: fully visited and known not to be part of a cycle.
	// temporary: currently in the recursion stack.
	// unvisited: all others.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving node '%s'", n.id)
		}

		temporary[n.id] = true

		for _, dependent := range n.dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}

		delete(temporary, n.id)
		permanent[n.id] = true

		return nil
	}

	// Iterate in insertion order so a defect reports deterministically.
	for _, id := range g.order {
		if !permanent[id] {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}

	return nil
}
