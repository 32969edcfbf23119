// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader provides the modules named by load statements.
//
// A Loader serves built-in modules (math, time and json by default) and
// Starlark files found relative to a directory. Each file is executed
// once; its globals are cached, as is its error.
package loader // import "github.com/enthought/codetools-sub000/loader"

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// ErrCycle reports a module that loads itself, directly or not.
var ErrCycle = errors.New("cycle in load graph")

// A Loader loads modules. It is safe for concurrent use.
type Loader struct {
	dir         string
	opts        *syntax.FileOptions
	predeclared starlark.StringDict
	builtins    map[string]starlark.StringDict

	mu    sync.Mutex
	cache map[string]*entry
}

type entry struct {
	globals starlark.StringDict
	err     error
	ready   chan struct{} // closed once globals and err are set
}

// An Option configures a Loader.
type Option func(*Loader)

// WithFileOptions sets the dialect of module files.
func WithFileOptions(opts *syntax.FileOptions) Option {
	return func(l *Loader) { l.opts = opts }
}

// WithPredeclared sets the predeclared names of module files.
// By default they are struct and module from starlarkstruct.
func WithPredeclared(predeclared starlark.StringDict) Option {
	return func(l *Loader) { l.predeclared = predeclared }
}

// WithModule adds a built-in module.
func WithModule(name string, members starlark.StringDict) Option {
	return func(l *Loader) { l.builtins[name] = members }
}

// New returns a Loader for the files of dir.
func New(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir: dir,
		opts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
		predeclared: starlark.StringDict{
			"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
			"module": starlark.NewBuiltin("module", starlarkstruct.MakeModule),
		},
		builtins: map[string]starlark.StringDict{
			"math": math.Module.Members,
			"time": time.Module.Members,
			"json": json.Module.Members,
		},
		cache: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the globals of module.
func (l *Loader) Load(module string) (starlark.StringDict, error) {
	return l.load(nil, module)
}

// LoadFunc returns l as the Load function of a thread.
func (l *Loader) LoadFunc() func(*starlark.Thread, string) (starlark.StringDict, error) {
	return func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
		return l.Load(module)
	}
}

// load loads module on behalf of the modules of stack, which are
// being loaded.
func (l *Loader) load(stack []string, module string) (starlark.StringDict, error) {
	if members, ok := l.builtins[module]; ok {
		return members, nil
	}
	for _, m := range stack {
		if m == module {
			return nil, ErrCycle
		}
	}

	l.mu.Lock()
	e, ok := l.cache[module]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		l.cache[module] = e
	}
	l.mu.Unlock()
	if ok {
		<-e.ready
		return e.globals, e.err
	}

	next := append(stack[:len(stack):len(stack)], module)
	thread := &starlark.Thread{
		Name: "exec " + module,
		Load: func(_ *starlark.Thread, m string) (starlark.StringDict, error) {
			return l.load(next, m)
		},
	}
	e.globals, e.err = starlark.ExecFileOptions(l.opts, thread, l.path(module), nil, l.predeclared)
	if e.err != nil {
		e.err = fmt.Errorf("load %s: %w", module, e.err)
	}
	close(e.ready)
	return e.globals, e.err
}

// path returns the file of module. A name without an extension
// refers to a .star file.
func (l *Loader) path(module string) string {
	if filepath.Ext(module) == "" {
		module += ".star"
	}
	if filepath.IsAbs(module) {
		return module
	}
	return filepath.Join(l.dir, module)
}
