// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/enthought/codetools-sub000/names"
)

// A Namespace is the environment a block executes in.
// Reads of free names are resolved by Get; bindings are stored by Set.
type Namespace interface {
	Get(name string) (starlark.Value, bool)
	Set(name string, v starlark.Value) error
}

// A Mapping is a Namespace whose names can be listed.
type Mapping interface {
	Namespace
	Keys() []string
}

// Dict is a Mapping backed by a starlark.StringDict.
type Dict starlark.StringDict

func (d Dict) Get(name string) (starlark.Value, bool) {
	v, ok := d[name]
	return v, ok
}

func (d Dict) Set(name string, v starlark.Value) error {
	d[name] = v
	return nil
}

func (d Dict) Keys() []string { return starlark.StringDict(d).Keys() }

// An ExecOption configures an execution.
type ExecOption func(*execConfig)

type execConfig struct {
	globals          Namespace
	continueOnErrors bool
	thread           *starlark.Thread
	print            func(thread *starlark.Thread, msg string)
}

// WithGlobals sets a namespace consulted for names that the local
// namespace lacks. Bindings always go to the local namespace.
func WithGlobals(ns Namespace) ExecOption {
	return func(c *execConfig) { c.globals = ns }
}

// ContinueOnErrors executes the sub-blocks one at a time, in order,
// and collects their failures instead of stopping at the first.
func ContinueOnErrors() ExecOption {
	return func(c *execConfig) { c.continueOnErrors = true }
}

// WithThread sets the thread the code runs in. By default each
// execution uses a new thread whose Load function uses the block's loader.
func WithThread(thread *starlark.Thread) ExecOption {
	return func(c *execConfig) { c.thread = thread }
}

// WithPrint sets the implementation of the print built-in for threads
// created by the execution.
func WithPrint(fn func(thread *starlark.Thread, msg string)) ExecOption {
	return func(c *execConfig) { c.print = fn }
}

func (c *execConfig) newThread(b *Block) *starlark.Thread {
	if c.thread != nil {
		return c.thread
	}
	thread := &starlark.Thread{Name: b.filename, Print: c.print}
	if l := b.cfg.loader; l != nil {
		thread.Load = func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return l.Load(module)
		}
	}
	return thread
}

// Execute runs b in the local namespace ns.
//
// Free names are read from ns, then from the WithGlobals namespace.
// Every name the code binds is stored into ns when the code finishes
// or fails. A name that the code both reads and binds, or binds
// conditionally, starts out with its value in ns; it is stored back
// only if that value changed.
//
// By default the code is compiled once per file of origin. With
// ContinueOnErrors, each sub-block runs on its own; the failures are
// returned as an *ExecutionError if there is one, and as an
// *AggregateError if there are several.
func (b *Block) Execute(ns Namespace, opts ...ExecOption) error {
	c := new(execConfig)
	for _, opt := range opts {
		opt(c)
	}
	thread := c.newThread(b)
	if c.continueOnErrors {
		return b.executeEach(thread, ns, c)
	}
	segments, err := b.compiled()
	if err != nil {
		return err
	}
	for _, seg := range segments {
		if err := seg.run(thread, ns, c.globals, ns.Set); err != nil {
			return err
		}
	}
	return nil
}

func (b *Block) executeEach(thread *starlark.Thread, ns Namespace, c *execConfig) error {
	var errs []*ExecutionError
	for _, leaf := range b.leaves() {
		segments, err := leaf.compiled()
		if err == nil {
			for _, seg := range segments {
				if err = seg.run(thread, ns, c.globals, ns.Set); err != nil {
					break
				}
			}
		}
		if err != nil {
			errs = append(errs, &ExecutionError{Block: leaf, Err: err, Traceback: backtrace(err)})
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &AggregateError{Errors: errs}
}

// ExecuteImpure runs b against a copy of m and returns every binding
// the code made. m itself is not modified.
//
// If clean is set, the result omits names beginning with an
// underscore, functions and modules.
func (b *Block) ExecuteImpure(m Mapping, clean bool, opts ...ExecOption) (starlark.StringDict, error) {
	c := new(execConfig)
	for _, opt := range opts {
		opt(c)
	}
	env := make(Dict)
	for _, name := range m.Keys() {
		if v, ok := m.Get(name); ok {
			env[name] = v
		}
	}
	shadow := make(starlark.StringDict)
	write := func(name string, v starlark.Value) error {
		env[name] = v
		shadow[name] = v
		return nil
	}
	segments, err := b.compiled()
	if err != nil {
		return nil, err
	}
	thread := c.newThread(b)
	for _, seg := range segments {
		if err = seg.run(thread, env, c.globals, write); err != nil {
			break
		}
	}
	if clean {
		for name, v := range shadow {
			if strings.HasPrefix(name, "_") || isCode(v) {
				delete(shadow, name)
			}
		}
	}
	return shadow, err
}

func isCode(v starlark.Value) bool {
	switch v.(type) {
	case *starlark.Function, *starlark.Builtin, *starlarkstruct.Module:
		return true
	}
	return false
}

// A segment is the compiled form of a run of statements from one file.
//
// Its program binds every name of the run as a global and resolves
// every other non-universal name as predeclared. A prelude copies the
// values of the seeded names from the predeclared dict __seed__.
type segment struct {
	filename string
	seeds    []string // names the prelude initializes
	idents   []string // identifiers that may resolve as predeclared
	prog     *starlark.Program
}

const seedName = "__seed__"

// The resolver annotates the syntax tree in place, and blocks share
// statements, so compilations are serialized.
var compileMu sync.Mutex

// compiled returns the compiled segments of b.
func (b *Block) compiled() ([]*segment, error) {
	b.mu.Lock()
	if b.segments != nil {
		defer b.mu.Unlock()
		return b.segments, nil
	}
	b.mu.Unlock()

	var groups [][]*Block
	leaves := b.leaves()
	for i, leaf := range leaves {
		if i == 0 || (!b.cfg.suppressFilenames && leaf.filename != leaves[i-1].filename) {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], leaf)
	}
	segments := make([]*segment, 0, len(groups))
	for _, group := range groups {
		filename := group[0].filename
		if b.cfg.suppressFilenames {
			filename = b.filename
		}
		var stmts []syntax.Stmt
		for _, leaf := range group {
			stmts = append(stmts, leaf.Stmts()...)
		}
		seg, err := compileSegment(b.cfg, filename, stmts)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = segments
	return segments, nil
}

func compileSegment(cfg *config, filename string, stmts []syntax.Stmt) (*segment, error) {
	res, err := cfg.analyzer.Stmts(stmts)
	if err != nil {
		return nil, err
	}
	seg := &segment{filename: filename}
	for _, name := range res.Free.Intersect(res.AllLocals()).Union(res.Conditional).Sorted() {
		if !strings.Contains(name, ".") {
			seg.seeds = append(seg.seeds, name)
		}
	}

	opts := cfg.compileOptions()
	var prelude strings.Builder
	for _, name := range seg.seeds {
		fmt.Fprintf(&prelude, "if %q in %s:\n    %s = %s[%q]\n", name, seedName, name, seedName, name)
	}
	f, err := opts.Parse(filename, prelude.String(), 0)
	if err != nil {
		return nil, err
	}
	f.Stmts = append(f.Stmts, stmts...)

	idents := make(names.Set)
	for _, stmt := range stmts {
		syntax.Walk(stmt, func(n syntax.Node) bool {
			if id, ok := n.(*syntax.Ident); ok && !starlark.Universe.Has(id.Name) {
				idents.Add(id.Name)
			}
			return true
		})
	}
	seg.idents = idents.Sorted()

	compileMu.Lock()
	defer compileMu.Unlock()
	seg.prog, err = starlark.FileProgram(f, func(name string) bool {
		return !starlark.Universe.Has(name)
	})
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// run executes the segment with free names read from ns and globals,
// passing each binding to write.
func (seg *segment) run(thread *starlark.Thread, ns, globals Namespace, write func(string, starlark.Value) error) error {
	lookup := func(name string) (starlark.Value, bool) {
		if v, ok := ns.Get(name); ok {
			return v, true
		}
		if globals != nil {
			return globals.Get(name)
		}
		return nil, false
	}

	seed := starlark.NewDict(len(seg.seeds))
	predeclared := starlark.StringDict{seedName: seed}
	for _, name := range seg.idents {
		if v, ok := lookup(name); ok {
			predeclared[name] = v
		}
	}
	seeded := make(starlark.StringDict)
	for _, name := range seg.seeds {
		if v, ok := lookup(name); ok {
			if err := seed.SetKey(starlark.String(name), v); err != nil {
				return err
			}
			seeded[name] = v
		}
	}

	out, err := seg.prog.Init(thread, predeclared)
	for _, name := range out.Keys() {
		v := out[name]
		if old, ok := seeded[name]; ok {
			if eq, cmpErr := starlark.Equal(old, v); cmpErr == nil && eq {
				continue
			}
		}
		if werr := write(name, v); werr != nil && err == nil {
			err = werr
		}
	}
	return translate(err)
}

var unboundRE = regexp.MustCompile(`(?:predeclared|global|local) variable (\w+) (?:is uninitialized|referenced before assignment)`)

// translate turns the evaluation errors of unbound names into
// *NameError values.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		if m := unboundRE.FindStringSubmatch(evalErr.Msg); m != nil {
			return &NameError{Name: m[1], Err: err}
		}
	}
	return err
}

func backtrace(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return ""
}
