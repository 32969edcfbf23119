// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package depgraph builds the data-flow graph between the statements
// (units) of a code fragment and computes minimal restrictions of it.
//
// The graph uses an arena layout. Units are identified by their index
// in the slice passed to Build; names are interned in a table. A node
// is either a unit or a name, and edges are pairs of nodes pointing
// from a dependent to the node it depends on:
//
//	unit -> name   the unit reads an external input
//	unit -> unit   the unit reads a name the other unit produced
//	name -> unit   the name is (last) produced by the unit
//
// A stub unit reads from outside the names it re-binds; that read has
// no edge in the graph, only on the input side of a restriction.
package depgraph // import "github.com/enthought/codetools-sub000/depgraph"

import (
	"fmt"
	"sort"
	"strings"

	"github.com/enthought/codetools-sub000/names"
)

// A Unit describes the names of one statement.
type Unit struct {
	Label       string // used in error messages; defaults to "#index"
	Inputs      []string
	Outputs     []string // bound on every path
	Conditional []string // bound on some paths
	Stub        bool     // re-binds its inputs to themselves ("x = x")
}

// NodeKind distinguishes unit nodes from name nodes.
type NodeKind uint8

const (
	UnitNode NodeKind = iota
	NameNode
)

// A Node is a vertex of the graph: a unit index or a name index.
type Node struct {
	Kind  NodeKind
	Index int
}

// A Graph is the dependency graph of a sequence of units.
// It is immutable once built.
type Graph struct {
	units []Unit
	names []string
	index map[string]int // name -> index in names

	// deps holds the out-edges of each node.
	deps map[Node]map[Node]bool

	// via records, for each unit -> unit edge, the names that caused it.
	via map[[2]int]names.Set

	// external records the unit -> name edges made because the unit
	// read the name before any unconditional producer; condRead those
	// made because the name had conditional producers.
	external map[[2]int]bool
	condRead map[[2]int]bool

	// selfRead records the external reads of stub units of the names
	// they re-bind. They are left out of deps.
	selfRead map[[2]int]bool

	inputs      names.Set
	outputs     names.Set
	conditional names.Set
	passthrough names.Set // conditional outputs that are also inputs
}

// A CycleError reports a cyclic dependency between nodes.
type CycleError struct {
	Nodes []string // the nodes of the cycle, in order
}

func (e *CycleError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Nodes, " -> ")
}

// Build constructs the dependency graph of units, which are
// considered in order. It returns a *CycleError if the data flow
// between the units is cyclic.
func Build(units []Unit) (*Graph, error) {
	g := &Graph{
		units:       units,
		index:       make(map[string]int),
		deps:        make(map[Node]map[Node]bool),
		via:         make(map[[2]int]names.Set),
		external:    make(map[[2]int]bool),
		condRead:    make(map[[2]int]bool),
		selfRead:    make(map[[2]int]bool),
		inputs:      make(names.Set),
		outputs:     make(names.Set),
		conditional: make(names.Set),
		passthrough: make(names.Set),
	}

	env := make(map[string]int) // name -> most recent unconditional producer
	var deferred []string       // conditional outputs awaiting the input check

	for u, unit := range units {
		un := Node{UnitNode, u}
		var rebound names.Set
		if unit.Stub {
			rebound = names.MakeSet(unit.Outputs...)
		}
		for _, in := range unit.Inputs {
			// The longest bound prefix of a dotted name is the dependency.
			provider, bound := "", false
			for _, cand := range append(names.Prefixes(in), in) {
				if _, ok := env[cand]; ok {
					provider, bound = cand, true
				}
			}
			if bound {
				p := env[provider]
				g.addEdge(un, Node{UnitNode, p})
				key := [2]int{u, p}
				if g.via[key] == nil {
					g.via[key] = make(names.Set)
				}
				g.via[key].Add(provider)
			} else if rebound.Has(in) {
				g.inputs.Add(in)
				g.selfRead[[2]int{u, g.name(in).Index}] = true
			} else {
				g.inputs.Add(in)
				n := g.name(in)
				g.addEdge(un, n)
				g.external[[2]int{u, n.Index}] = true
			}
			// The conditional producers of the name are not guaranteed
			// to run, so the edge is added anyway.
			if g.conditional.Has(in) {
				n := g.name(in)
				g.addEdge(un, n)
				g.condRead[[2]int{u, n.Index}] = true
			}
		}
		for _, c := range unit.Conditional {
			n := g.name(c)
			g.clearDeps(n)
			g.addEdge(n, un)
			g.conditional.Add(c)
			deferred = append(deferred, c)
		}
		for _, o := range unit.Outputs {
			n := g.name(o)
			g.clearDeps(n)
			g.addEdge(n, un)
			env[o] = u
			g.outputs.Add(o)
			g.conditional.Remove(o)
		}
	}

	// A name that is only conditionally produced may still be supplied
	// from outside; it remains an input of the composite.
	for _, c := range deferred {
		if g.conditional.Has(c) && g.inputs.Has(c) {
			g.passthrough.Add(c)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Nodes: g.labels(cycle)}
	}
	return g, nil
}

func (g *Graph) name(name string) Node {
	i, ok := g.index[name]
	if !ok {
		i = len(g.names)
		g.names = append(g.names, name)
		g.index[name] = i
	}
	return Node{NameNode, i}
}

func (g *Graph) addEdge(from, to Node) {
	m := g.deps[from]
	if m == nil {
		m = make(map[Node]bool)
		g.deps[from] = m
	}
	m[to] = true
}

func (g *Graph) clearDeps(n Node) { delete(g.deps, n) }

// Units returns the number of units in the graph.
func (g *Graph) Units() int { return len(g.units) }

// Inputs returns the names the composite reads from outside, in lexical order.
func (g *Graph) Inputs() []string { return g.inputs.Sorted() }

// Outputs returns the names some unit produces unconditionally.
func (g *Graph) Outputs() []string { return g.outputs.Sorted() }

// ConditionalOutputs returns the names produced only conditionally.
func (g *Graph) ConditionalOutputs() []string { return g.conditional.Sorted() }

// PassThrough returns the conditional outputs that are also inputs:
// when none of their producers runs, the output is the input value.
func (g *Graph) PassThrough() []string { return g.passthrough.Sorted() }

// Deps returns the nodes on which node n directly depends, in order.
func (g *Graph) Deps(n Node) []Node { return sortedNodes(g.deps[n]) }

// Producers returns the units that the named node points to:
// the last unconditional producer of the name and any conditional
// producers after it.
func (g *Graph) Producers(name string) []int {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	var units []int
	for _, n := range g.Deps(Node{NameNode, i}) {
		if n.Kind == UnitNode {
			units = append(units, n.Index)
		}
	}
	return units
}

// Label returns a printable description of node n.
func (g *Graph) Label(n Node) string {
	if n.Kind == NameNode {
		return g.names[n.Index]
	}
	if label := g.units[n.Index].Label; label != "" {
		return label
	}
	return fmt.Sprintf("#%d", n.Index)
}

func (g *Graph) labels(nodes []Node) []string {
	labels := make([]string, len(nodes))
	for i, n := range nodes {
		labels[i] = g.Label(n)
	}
	return labels
}

// allNodes returns every node, units first, in a deterministic order.
func (g *Graph) allNodes() []Node {
	nodes := make([]Node, 0, len(g.units)+len(g.names))
	for u := range g.units {
		nodes = append(nodes, Node{UnitNode, u})
	}
	for i := range g.names {
		nodes = append(nodes, Node{NameNode, i})
	}
	return nodes
}

// findCycle returns the nodes of some cycle, or nil if the graph is acyclic.
func (g *Graph) findCycle() []Node {
	return findCycle(g.allNodes(), g.deps)
}

func findCycle(nodes []Node, deps map[Node]map[Node]bool) []Node {
	const (
		white = iota
		grey
		black
	)
	color := make(map[Node]int)
	var stack []Node
	var cycle []Node
	var visit func(n Node) bool
	visit = func(n Node) bool {
		color[n] = grey
		stack = append(stack, n)
		for _, d := range sortedNodes(deps[n]) {
			switch color[d] {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == d {
						cycle = append(append([]Node{}, stack[i:]...), d)
						break
					}
				}
				return true
			case white:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}
	for _, n := range nodes {
		if color[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}

func sortedNodes(set map[Node]bool) []Node {
	nodes := make([]Node, 0, len(set))
	for n := range set {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Kind != nodes[j].Kind {
			return nodes[i].Kind < nodes[j].Kind
		}
		return nodes[i].Index < nodes[j].Index
	})
	return nodes
}
