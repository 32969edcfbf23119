// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package executing

import (
	"errors"

	"github.com/enthought/codetools-sub000/block"
	"github.com/enthought/codetools-sub000/depgraph"
	"github.com/enthought/codetools-sub000/names"
)

// An Executable is code that a Context runs. inputs names the inputs
// that changed; nil means that everything may have changed.
type Executable interface {
	Execute(ns block.Namespace, inputs []string) error
}

// ExecutableFunc adapts a function to the Executable interface.
type ExecutableFunc func(ns block.Namespace, inputs []string) error

func (f ExecutableFunc) Execute(ns block.Namespace, inputs []string) error { return f(ns, inputs) }

// Code returns an Executable that runs the part of b affected by its
// inputs. Inputs that b neither reads nor binds are ignored; if none
// remain, nothing runs. If b cannot be restricted, all of it runs.
func Code(b *block.Block, opts ...block.ExecOption) Executable {
	return &code{b: b, opts: opts}
}

type code struct {
	b    *block.Block
	opts []block.ExecOption
}

func (c *code) Execute(ns block.Namespace, inputs []string) error {
	if inputs == nil {
		return c.b.Execute(ns, c.opts...)
	}
	known := names.MakeSet(c.b.Inputs()...)
	known.AddAll(names.MakeSet(c.b.AllOutputs()...))
	var hints []string
	for _, x := range inputs {
		if knows(known, x) {
			hints = append(hints, x)
		}
	}
	if len(hints) == 0 {
		return nil
	}
	r, err := c.b.Restrict(hints, nil)
	var (
		unfit *block.UnfitError
		cycle *depgraph.CycleError
	)
	switch {
	case errors.As(err, &unfit), errors.As(err, &cycle):
		return c.b.Execute(ns, c.opts...)
	case err != nil:
		return err
	}
	return r.Execute(ns, c.opts...)
}

// knows reports whether x, or a dotted name with prefix x, is in known.
func knows(known names.Set, x string) bool {
	if known.Has(x) {
		return true
	}
	for name := range known {
		if names.HasPrefix(name, x) {
			return true
		}
	}
	return false
}
