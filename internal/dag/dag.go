// Package dag models the static dependency graph declared by builder and
// step configuration. The graph is built once at registry construction and
// exists for one purpose: rejecting cyclic builder requirements before any
// build work starts, instead of letting recursion run unbounded.
package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed graph of string-identified nodes.
type Graph struct {
	nodes map[string]*node
}

type node struct {
	id   string
	deps []string
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode adds a node with the given id. Adding an existing id is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{id: id}
}

// AddEdge declares that toID depends on fromID. Both nodes must exist, and a
// self-reference is rejected.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential dependency not allowed: %s -> %s", fromID, fromID)
	}
	if _, ok := g.nodes[fromID]; !ok {
		return fmt.Errorf("dependency node not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("dependent node not found: %s", toID)
	}
	to.deps = append(to.deps, fromID)
	return nil
}

// DetectCycles walks the graph depth-first and returns an error naming a node
// on the first cycle found. Nodes are visited in sorted order so the reported
// node is deterministic.
func (g *Graph) DetectCycles() error {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(g.nodes))

	var visit func(n *node) error
	visit = func(n *node) error {
		switch state[n.id] {
		case done:
			return nil
		case inStack:
			return fmt.Errorf("dependency cycle detected involving %q", n.id)
		}
		state[n.id] = inStack
		for _, dep := range n.deps {
			if err := visit(g.nodes[dep]); err != nil {
				return err
			}
		}
		state[n.id] = done
		return nil
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}
