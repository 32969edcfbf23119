// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"github.com/enthought/codetools-sub000/depgraph"
	"github.com/enthought/codetools-sub000/names"
)

// analysis returns the name classification of b, computing it if needed.
func (b *Block) analysis() (*names.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.names != nil {
		return b.names, nil
	}
	res, err := b.cfg.analyzer.Stmts(b.stmts)
	if err != nil {
		return nil, err
	}
	b.names = res
	return res, nil
}

func (b *Block) result() *names.Result {
	res, err := b.analysis()
	if err != nil {
		// Construction and edits report analysis errors,
		// so a block in use always has a classification.
		return &names.Result{}
	}
	return res
}

// Inputs returns the names that b reads before binding them,
// in lexical order.
func (b *Block) Inputs() []string { return b.result().Free.Sorted() }

// Outputs returns the names that b binds on every path.
func (b *Block) Outputs() []string { return b.result().Locals.Sorted() }

// ConditionalOutputs returns the names that b binds on some paths only.
func (b *Block) ConditionalOutputs() []string { return b.result().Conditional.Sorted() }

// AllOutputs returns the union of Outputs and ConditionalOutputs.
func (b *Block) AllOutputs() []string { return b.result().AllLocals().Sorted() }

// Imports returns the names bound by b's load statements.
func (b *Block) Imports() []string { return b.result().Imports.Sorted() }

// DependencyGraph returns the dependency graph between the sub-blocks
// of b that are not load statements. The unit indices of the graph
// index the returned slice of sub-blocks.
func (b *Block) DependencyGraph() (*depgraph.Graph, []*Block, error) {
	b.mu.Lock()
	if b.graph != nil || b.graphErr != nil {
		defer b.mu.Unlock()
		return b.graph, b.units, b.graphErr
	}
	subs := b.subBlocks()
	b.mu.Unlock()

	var units []depgraph.Unit
	var blocks []*Block
	for _, sub := range subs {
		if sub.isImport() {
			continue
		}
		res := sub.result()
		units = append(units, depgraph.Unit{
			Label:       sub.label(),
			Inputs:      res.Free.Sorted(),
			Outputs:     res.Locals.Sorted(),
			Conditional: res.Conditional.Sorted(),
			Stub:        sub.stub,
		})
		blocks = append(blocks, sub)
	}
	g, err := depgraph.Build(units)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.graph, b.units, b.graphErr = g, blocks, err
	return g, blocks, err
}

func (b *Block) label() string {
	if b.source != "" {
		return b.source
	}
	return b.String()
}
