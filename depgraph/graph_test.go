// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package depgraph_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/enthought/codetools-sub000/depgraph"
)

func unit(inputs, outputs, conditional string) depgraph.Unit {
	return depgraph.Unit{
		Inputs:      strings.Fields(inputs),
		Outputs:     strings.Fields(outputs),
		Conditional: strings.Fields(conditional),
	}
}

// stub is the unit of "name = name".
func stub(name string) depgraph.Unit {
	return depgraph.Unit{Inputs: []string{name}, Outputs: []string{name}, Stub: true}
}

func mustBuild(t *testing.T, units ...depgraph.Unit) *depgraph.Graph {
	t.Helper()
	g, err := depgraph.Build(units)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestBuild(t *testing.T) {
	// x = a + b; y = b - c; z = c * c
	g := mustBuild(t,
		unit("a b", "x", ""),
		unit("b c", "y", ""),
		unit("c", "z", ""),
	)
	if got, want := g.Inputs(), []string{"a", "b", "c"}; !cmp.Equal(got, want) {
		t.Errorf("Inputs = %v, want %v", got, want)
	}
	if got, want := g.Outputs(), []string{"x", "y", "z"}; !cmp.Equal(got, want) {
		t.Errorf("Outputs = %v, want %v", got, want)
	}
	if got := g.Units(); got != 3 {
		t.Errorf("Units = %d, want 3", got)
	}
	for _, n := range g.Deps(depgraph.Node{Kind: depgraph.UnitNode, Index: 0}) {
		if n.Kind != depgraph.NameNode {
			t.Errorf("unit 0 depends on unit %d, want names only", n.Index)
		}
	}
}

func TestProducerOverwrite(t *testing.T) {
	// x = 1; x = 2; y = x
	g := mustBuild(t,
		unit("", "x", ""),
		unit("", "x", ""),
		unit("x", "y", ""),
	)
	if got, want := g.Producers("x"), []int{1}; !cmp.Equal(got, want) {
		t.Errorf("Producers(x) = %v, want %v", got, want)
	}
	deps := g.Deps(depgraph.Node{Kind: depgraph.UnitNode, Index: 2})
	want := []depgraph.Node{{Kind: depgraph.UnitNode, Index: 1}}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("Deps(#2) mismatch (-want +got):\n%s", diff)
	}
	if len(g.Inputs()) != 0 {
		t.Errorf("Inputs = %v, want none", g.Inputs())
	}
}

func TestDottedPrefix(t *testing.T) {
	// a = f(); y = a.b
	g := mustBuild(t,
		unit("f", "a", ""),
		unit("a.b", "y", ""),
	)
	if got, want := g.Inputs(), []string{"f"}; !cmp.Equal(got, want) {
		t.Errorf("Inputs = %v, want %v", got, want)
	}
	deps := g.Deps(depgraph.Node{Kind: depgraph.UnitNode, Index: 1})
	want := []depgraph.Node{{Kind: depgraph.UnitNode, Index: 0}}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("Deps(#1) mismatch (-want +got):\n%s", diff)
	}
}

func TestCycle(t *testing.T) {
	// b = x; x = b
	_, err := depgraph.Build([]depgraph.Unit{
		{Label: "b = x", Inputs: []string{"x"}, Outputs: []string{"b"}},
		{Label: "x = b", Inputs: []string{"b"}, Outputs: []string{"x"}},
	})
	var cycle *depgraph.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("Build returned %v, want *CycleError", err)
	}
	// The first node is repeated at the end.
	want := []string{"b = x", "x", "x = b", "b = x"}
	if diff := cmp.Diff(want, cycle.Nodes); diff != "" {
		t.Errorf("cycle nodes mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "cyclic dependency") {
		t.Errorf("error %q does not mention the cycle", err)
	}
}

func TestConditionalProducers(t *testing.T) {
	// if t: c = 1
	// y = c
	g := mustBuild(t,
		unit("t", "", "c"),
		unit("c", "y", ""),
	)
	if got, want := g.Inputs(), []string{"c", "t"}; !cmp.Equal(got, want) {
		t.Errorf("Inputs = %v, want %v", got, want)
	}
	if got, want := g.ConditionalOutputs(), []string{"c"}; !cmp.Equal(got, want) {
		t.Errorf("ConditionalOutputs = %v, want %v", got, want)
	}
	if got, want := g.PassThrough(), []string{"c"}; !cmp.Equal(got, want) {
		t.Errorf("PassThrough = %v, want %v", got, want)
	}
}

func TestRestrict(t *testing.T) {
	for _, test := range []struct {
		desc            string
		units           []depgraph.Unit
		inputs, outputs []string
		wantUnits       []int
		wantStubs       []string
	}{
		{
			desc:      "inputs select affected units",
			units:     []depgraph.Unit{unit("a b", "x", ""), unit("b c", "y", ""), unit("c", "z", "")},
			inputs:    []string{"a"},
			wantUnits: []int{0},
		},
		{
			desc:      "outputs select needed units",
			units:     []depgraph.Unit{unit("a b", "x", ""), unit("b c", "y", ""), unit("c", "z", "")},
			outputs:   []string{"z"},
			wantUnits: []int{2},
		},
		{
			desc:      "intermediate input detaches its producer",
			units:     []depgraph.Unit{unit("a b", "c", ""), unit("c", "d", "")},
			inputs:    []string{"c"},
			wantUnits: []int{1},
		},
		{
			desc:      "intermediate input requested as output gets a stub",
			units:     []depgraph.Unit{unit("a b", "c", ""), unit("c", "d", "")},
			inputs:    []string{"c"},
			outputs:   []string{"c"},
			wantStubs: []string{"c"},
		},
		{
			desc:      "inputs and outputs intersect",
			units:     []depgraph.Unit{unit("a b", "x", ""), unit("x c", "y", ""), unit("k", "m", "")},
			inputs:    []string{"a"},
			outputs:   []string{"y"},
			wantUnits: []int{0, 1},
		},
		{
			desc:      "unaffected upstream units are left out",
			units:     []depgraph.Unit{unit("c", "k", ""), unit("a k", "y", "")},
			inputs:    []string{"a"},
			outputs:   []string{"y"},
			wantUnits: []int{1},
		},
		{
			desc:      "dependencies come first, original order otherwise",
			units:     []depgraph.Unit{unit("", "a", ""), unit("", "b", ""), unit("a b", "c", "")},
			outputs:   []string{"c"},
			wantUnits: []int{0, 1, 2},
		},
		{
			desc:      "conditional producer is kept for its readers",
			units:     []depgraph.Unit{unit("t", "", "c"), unit("c", "y", "")},
			outputs:   []string{"y"},
			wantUnits: []int{0, 1},
		},
		{
			desc:      "reading before a conditional producer",
			units:     []depgraph.Unit{unit("c", "y", ""), unit("t", "", "c")},
			outputs:   []string{"y"},
			wantUnits: []int{0},
		},
		{
			desc:      "dotted prefix input",
			units:     []depgraph.Unit{unit("p.x", "q", ""), unit("r", "s", "")},
			inputs:    []string{"p"},
			wantUnits: []int{0},
		},
		{
			desc:      "existing stub is replaced by a new one",
			units:     []depgraph.Unit{stub("c"), unit("c", "d", "")},
			inputs:    []string{"c"},
			outputs:   []string{"c", "d"},
			wantUnits: []int{1},
			wantStubs: []string{"c"},
		},
		{
			desc:      "outputs reach an existing stub",
			units:     []depgraph.Unit{stub("c"), unit("c", "d", "")},
			outputs:   []string{"c"},
			wantUnits: []int{0},
		},
		{
			desc:      "transitive consumers",
			units:     []depgraph.Unit{unit("a", "b", ""), unit("b", "c", ""), unit("c", "d", ""), unit("e", "f", "")},
			inputs:    []string{"a"},
			wantUnits: []int{0, 1, 2},
		},
	} {
		g := mustBuild(t, test.units...)
		plan, err := g.Restrict(test.inputs, test.outputs)
		if err != nil {
			t.Errorf("%s: Restrict: %v", test.desc, err)
			continue
		}
		if diff := cmp.Diff(test.wantUnits, plan.Units, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s: units mismatch (-want +got):\n%s", test.desc, diff)
		}
		if diff := cmp.Diff(test.wantStubs, plan.Stubs, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s: stubs mismatch (-want +got):\n%s", test.desc, diff)
		}
	}
}

func TestStubUnit(t *testing.T) {
	// c = c; d = c * 3
	g := mustBuild(t, stub("c"), unit("c", "d", ""))
	if got, want := g.Inputs(), []string{"c"}; !cmp.Equal(got, want) {
		t.Errorf("Inputs = %v, want %v", got, want)
	}
	if got, want := g.Outputs(), []string{"c", "d"}; !cmp.Equal(got, want) {
		t.Errorf("Outputs = %v, want %v", got, want)
	}
	if got := g.Deps(depgraph.Node{Kind: depgraph.UnitNode, Index: 0}); len(got) != 0 {
		t.Errorf("stub depends on %v, want nothing", got)
	}

	// The same unit without the stub flag reads its own output.
	if _, err := depgraph.Build([]depgraph.Unit{unit("c", "c", "")}); err == nil {
		t.Error("Build of c = c as an ordinary unit succeeded")
	}
}

func TestRestrictEmpty(t *testing.T) {
	g := mustBuild(t, unit("a", "b", ""))
	if _, err := g.Restrict(nil, nil); !errors.Is(err, depgraph.ErrEmptyRestriction) {
		t.Errorf("Restrict() = %v, want ErrEmptyRestriction", err)
	}
}
