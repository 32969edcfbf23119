// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package depgraph

import (
	"errors"

	"github.com/enthought/codetools-sub000/names"
)

// ErrEmptyRestriction is returned by Restrict when neither inputs
// nor outputs are given.
var ErrEmptyRestriction = errors.New("restriction requires inputs or outputs")

// Node kinds private to the side-tagged graph used by Restrict.
const (
	inNode   NodeKind = iota + 2 // a name read from outside
	outNode                      // a name as produced by units
	stubNode                     // a "name = name" stub for an intermediate input
)

// A Plan is the result of a restriction.
type Plan struct {
	// Stubs lists the intermediate inputs that must be re-bound to
	// themselves ("x = x") so that they stay visible as outputs.
	// Stubs run before every unit.
	Stubs []string

	// Units lists the retained units in execution order.
	Units []int
}

// tagged is a copy of a graph in which every name is split into an
// input side and an output side, so that a name that is both read
// from outside and produced inside does not form a loop.
type tagged struct {
	g     *Graph
	deps  map[Node]map[Node]bool
	via   map[[2]int]names.Set
	stubs []string
}

func (t *tagged) addEdge(from, to Node) {
	m := t.deps[from]
	if m == nil {
		m = make(map[Node]bool)
		t.deps[from] = m
	}
	m[to] = true
}

func (t *tagged) removeEdge(from, to Node) {
	delete(t.deps[from], to)
}

func (g *Graph) tag() *tagged {
	t := &tagged{
		g:    g,
		deps: make(map[Node]map[Node]bool),
		via:  make(map[[2]int]names.Set),
	}
	for from, tos := range g.deps {
		for to := range tos {
			switch {
			case from.Kind == UnitNode && to.Kind == UnitNode:
				t.addEdge(from, to)
			case from.Kind == UnitNode && to.Kind == NameNode:
				key := [2]int{from.Index, to.Index}
				if g.external[key] {
					t.addEdge(from, Node{inNode, to.Index})
				}
				if g.condRead[key] {
					t.addEdge(from, Node{outNode, to.Index})
				}
			case from.Kind == NameNode && to.Kind == UnitNode:
				t.addEdge(Node{outNode, from.Index}, to)
			}
		}
	}
	for key := range g.selfRead {
		t.addEdge(Node{UnitNode, key[0]}, Node{inNode, key[1]})
	}
	for key, set := range g.via {
		t.via[key] = set.Copy()
	}
	for name := range g.passthrough {
		i := g.index[name]
		t.addEdge(Node{outNode, i}, Node{inNode, i})
	}
	return t
}

// detach turns the produced name x into an external input: readers
// that depended on its producer because of x now depend on In(x).
// If x is also a requested output, Out(x) is re-bound by a stub.
func (t *tagged) detach(x string, i int, stub bool) {
	in := Node{inNode, i}
	for key, via := range t.via {
		var hit []string
		for provider := range via {
			if names.HasPrefix(provider, x) {
				hit = append(hit, provider)
			}
		}
		if len(hit) == 0 {
			continue
		}
		for _, provider := range hit {
			via.Remove(provider)
		}
		reader := Node{UnitNode, key[0]}
		t.addEdge(reader, in)
		if len(via) == 0 {
			t.removeEdge(reader, Node{UnitNode, key[1]})
		}
	}
	out := Node{outNode, i}
	for from, tos := range t.deps {
		if from.Kind == UnitNode && tos[out] {
			delete(tos, out)
			tos[in] = true
		}
	}
	delete(t.deps, out)
	if stub {
		s := Node{stubNode, len(t.stubs)}
		t.stubs = append(t.stubs, x)
		t.addEdge(out, s)
		t.addEdge(s, in)
	}
}

// Restrict computes the units needed to recompute outputs from inputs.
//
// With inputs only, the result is every unit affected by a change of
// the inputs. With outputs only, it is every unit needed to compute
// the outputs. With both, it is the units affected by the inputs that
// the outputs need. An input that some unit produces is treated as
// supplied from outside: its producer is not re-run.
//
// Names unknown to the graph select nothing; callers validate them.
// A dotted-prefix input such as "a" selects the reads of "a.b".
func (g *Graph) Restrict(inputs, outputs []string) (*Plan, error) {
	if len(inputs) == 0 && len(outputs) == 0 {
		return nil, ErrEmptyRestriction
	}
	t := g.tag()

	wanted := names.MakeSet(outputs...)
	for _, x := range inputs {
		if i, ok := g.index[x]; ok && (g.outputs.Has(x) || g.conditional.Has(x)) {
			t.detach(x, i, wanted.Has(x))
		}
	}

	var selected map[Node]bool
	if len(inputs) > 0 {
		var start []Node
		for _, x := range inputs {
			for i, name := range g.names {
				if names.HasPrefix(name, x) {
					start = append(start, Node{inNode, i})
				}
			}
		}
		selected = t.reach(start, t.reverse(), nil)
	}
	if len(outputs) > 0 {
		var start []Node
		for _, o := range outputs {
			if i, ok := g.index[o]; ok {
				start = append(start, Node{outNode, i})
			}
		}
		selected = t.reach(start, t.deps, selected)
	}

	if cycle := findCycle(sortedNodes(selected), t.deps); cycle != nil {
		return nil, &CycleError{Nodes: t.labels(cycle)}
	}
	return t.order(selected), nil
}

func (t *tagged) reverse() map[Node]map[Node]bool {
	rev := make(map[Node]map[Node]bool)
	for from, tos := range t.deps {
		for to := range tos {
			m := rev[to]
			if m == nil {
				m = make(map[Node]bool)
				rev[to] = m
			}
			m[from] = true
		}
	}
	return rev
}

// reach returns the nodes reachable from start along edges.
// If within is non-nil, the search is confined to it.
func (t *tagged) reach(start []Node, edges map[Node]map[Node]bool, within map[Node]bool) map[Node]bool {
	seen := make(map[Node]bool)
	queue := make([]Node, 0, len(start))
	for _, n := range start {
		if within == nil || within[n] {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		for _, m := range sortedNodes(edges[n]) {
			if !seen[m] && (within == nil || within[m]) {
				queue = append(queue, m)
			}
		}
	}
	return seen
}

// order sorts the selected units and stubs so that dependencies come
// first. Among independent units the original order is kept.
func (t *tagged) order(selected map[Node]bool) *Plan {
	plan := new(Plan)
	done := make(map[Node]bool)
	var visit func(n Node)
	visit = func(n Node) {
		if done[n] {
			return
		}
		done[n] = true
		for _, d := range sortedNodes(t.deps[n]) {
			if selected[d] {
				visit(d)
			}
		}
		switch n.Kind {
		case UnitNode:
			plan.Units = append(plan.Units, n.Index)
		case stubNode:
			plan.Stubs = append(plan.Stubs, t.stubs[n.Index])
		}
	}
	for i := range t.stubs {
		if n := (Node{stubNode, i}); selected[n] {
			visit(n)
		}
	}
	for u := range t.g.units {
		if n := (Node{UnitNode, u}); selected[n] {
			visit(n)
		}
	}
	return plan
}

func (t *tagged) labels(nodes []Node) []string {
	labels := make([]string, len(nodes))
	for i, n := range nodes {
		switch n.Kind {
		case inNode, outNode:
			labels[i] = t.g.names[n.Index]
		case stubNode:
			labels[i] = t.stubs[n.Index] + " = " + t.stubs[n.Index]
		default:
			labels[i] = t.g.Label(n)
		}
	}
	return labels
}
