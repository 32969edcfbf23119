// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"strings"

	"github.com/enthought/codetools-sub000/names"
)

// Restrict returns the smallest block that recomputes outputs when
// inputs change.
//
// With inputs only, the result holds every sub-block affected by the
// inputs. With outputs only, it holds every sub-block needed to compute
// the outputs. With both, it holds the sub-blocks affected by the
// inputs that the outputs need. An input that the block itself binds
// is taken as given: the sub-block that binds it is left out, and if
// it is also an output the result re-binds it to itself.
//
// Load statements are always kept, ahead of the other sub-blocks.
// Results are remembered until the block is edited.
func (b *Block) Restrict(inputs, outputs []string) (*Block, error) {
	if len(inputs) == 0 && len(outputs) == 0 {
		return nil, ErrEmptyRestriction
	}
	inputs = names.MakeSet(inputs...).Sorted()
	outputs = names.MakeSet(outputs...).Sorted()
	key := strings.Join(inputs, ",") + "|" + strings.Join(outputs, ",")
	if r, ok := b.memo.Get(key); ok {
		return r, nil
	}

	res, err := b.analysis()
	if err != nil {
		return nil, err
	}
	known := res.Free.Union(res.AllLocals())
	var unknown []string
	for _, x := range inputs {
		if !known.Has(x) && !hasDotted(known, x) {
			unknown = append(unknown, x)
		}
	}
	if unknown != nil {
		return nil, &UnknownInputError{Names: unknown}
	}
	all := res.AllLocals()
	for _, o := range outputs {
		if !all.Has(o) {
			unknown = append(unknown, o)
		}
	}
	if unknown != nil {
		return nil, &UnknownOutputError{Names: unknown}
	}

	var imports []*Block
	for _, sub := range b.SubBlocks() {
		if sub.isImport() {
			imports = append(imports, sub)
			continue
		}
		if sub.stub {
			continue
		}
		if rmw := readModifyWrite(sub.result()); len(rmw) > 0 {
			return nil, &UnfitError{Block: sub, Names: rmw}
		}
	}

	g, units, err := b.DependencyGraph()
	if err != nil {
		return nil, err
	}
	plan, err := g.Restrict(inputs, outputs)
	if err != nil {
		return nil, err
	}

	parts := dedup(imports)
	for _, x := range plan.Stubs {
		stub, err := b.stubFor(x)
		if err != nil {
			return nil, err
		}
		parts = append(parts, stub)
	}
	for _, u := range plan.Units {
		parts = append(parts, units[u])
	}
	r, err := composite(b.cfg, b.filename, parts)
	if err != nil {
		return nil, err
	}
	b.memo.Add(key, r)
	return r, nil
}

// readModifyWrite returns the plain names that res both reads and binds.
func readModifyWrite(res *names.Result) []string {
	var rmw []string
	for _, name := range res.Free.Intersect(res.AllLocals()).Sorted() {
		if !strings.Contains(name, ".") {
			rmw = append(rmw, name)
		}
	}
	return rmw
}

// hasDotted reports whether set holds a dotted name below prefix.
func hasDotted(set names.Set, prefix string) bool {
	for name := range set {
		if names.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// dedup removes repeated load sub-blocks, by identity or by text.
func dedup(blocks []*Block) []*Block {
	var out []*Block
	seen := make(map[*Block]bool)
	texts := make(names.Set)
	for _, b := range blocks {
		text := b.Source()
		if seen[b] || (text != "" && texts.Has(text)) {
			continue
		}
		seen[b] = true
		if text != "" {
			texts.Add(text)
		}
		out = append(out, b)
	}
	return out
}

// stubFor returns a block re-binding name to itself.
func (b *Block) stubFor(name string) (*Block, error) {
	src := name + " = " + name
	f, err := b.cfg.fileOptions.Parse(b.filename, src, 0)
	if err != nil {
		return nil, err
	}
	stub := newBlock(b.cfg, b.filename)
	stub.stmts = f.Stmts
	stub.source = src
	stub.stub = true
	return stub, stub.check()
}
