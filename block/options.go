// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"go.starlark.net/syntax"

	"github.com/enthought/codetools-sub000/names"
)

// FileOptions returns the dialect used when no WithFileOptions option
// is given. It lets fragments behave like straight-line scripts:
// top-level if/for/while, reassignment of globals, while loops,
// recursion, set literals and module-level load bindings are all
// permitted.
func FileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:               true,
		While:             true,
		TopLevelControl:   true,
		GlobalReassign:    true,
		LoadBindsGlobally: true,
		Recursion:         true,
	}
}

// The size of each block's cache of restrictions.
const defaultMemoSize = 128

type config struct {
	fileOptions       *syntax.FileOptions
	loader            Loader
	analyzer          *names.Analyzer
	suppressFilenames bool
	memoSize          int
}

// An Option configures the construction of a Block.
// The options of a Block carry over to the blocks derived from it.
type Option func(*config)

// WithFileOptions sets the dialect in which the code is parsed and
// compiled. Top-level control flow and global reassignment are always
// enabled at compilation, since blocks bind their outputs as globals.
func WithFileOptions(opts *syntax.FileOptions) Option {
	return func(c *config) { c.fileOptions = opts }
}

// WithLoader sets the loader used to expand wildcard loads and to
// execute load statements.
func WithLoader(l Loader) Option {
	return func(c *config) { c.loader = l }
}

// WithAnalyzer sets the name analyzer. The default analyzer treats the
// names of starlark.Universe as built-in and has no magic names.
func WithAnalyzer(a *names.Analyzer) Option {
	return func(c *config) { c.analyzer = a }
}

// SuppressFilenames compiles each block as a single unit, without
// keeping the file name of each sub-block for error messages.
func SuppressFilenames() Option {
	return func(c *config) { c.suppressFilenames = true }
}

// WithMemoSize sets the number of restrictions remembered per block.
func WithMemoSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.memoSize = n
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{memoSize: defaultMemoSize}
	for _, opt := range opts {
		opt(c)
	}
	if c.fileOptions == nil {
		c.fileOptions = FileOptions()
	}
	if c.analyzer == nil {
		c.analyzer = names.Default()
	}
	return c
}

// compileOptions returns the dialect used for compilation.
func (c *config) compileOptions() *syntax.FileOptions {
	opts := *c.fileOptions
	opts.TopLevelControl = true
	opts.GlobalReassign = true
	opts.LoadBindsGlobally = true
	return &opts
}
