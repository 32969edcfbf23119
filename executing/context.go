// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package executing provides a context that runs code whenever one of
// its names changes.
//
// A Context wraps another context and an Executable. Each write is
// followed by an execution of the code with the written name as its
// input hint. Executions can be deferred, in which case the hints
// accumulate until deferral ends, and they can be asynchronous, in
// which case writes accumulate in a pending delta that a single worker
// at a time applies and executes.
package executing // import "github.com/enthought/codetools-sub000/executing"

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"go.starlark.net/starlark"

	"github.com/enthought/codetools-sub000/contexts"
	"github.com/enthought/codetools-sub000/names"
)

// ErrorUpdate is the value of CompletedUpdate after a failed
// asynchronous execution.
const ErrorUpdate int64 = -1

// A Context is a contexts.Context that executes code on changes.
type Context struct {
	sub      contexts.Context
	exe      Executable
	executor Executor
	log      *slog.Logger
	events   contexts.Emitter
	cancel   func()

	mu        sync.Mutex
	deferExec bool
	hints     names.Set // inputs of deferred executions
	all       bool      // a deferred execution had no hint

	dataMu  sync.Mutex
	delta   map[string]write
	pending int64 // writes accepted so far

	futureMu sync.Mutex
	inFlight bool
	changed  chan struct{} // closed when an execution completes
	err      error

	completed atomic.Int64
}

// A write is a pending change; a nil value is a deletion.
type write struct {
	v   starlark.Value
	seq int64
}

// An Option configures a Context.
type Option func(*Context)

// WithExecutor makes the context asynchronous: executions run as tasks
// submitted to e.
func WithExecutor(e Executor) Option {
	return func(c *Context) { c.executor = e }
}

// WithLogger sets the logger of execution failures and completions.
// The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.log = l }
}

// DeferExecution starts the context with execution deferred.
func DeferExecution() Option {
	return func(c *Context) { c.deferExec = true }
}

// New returns a Context that stores its names in sub and runs exe when
// they change. The events of sub are reported as events of the new
// context.
func New(sub contexts.Context, exe Executable, opts ...Option) *Context {
	c := &Context{
		sub:     sub,
		exe:     exe,
		log:     slog.Default(),
		hints:   make(names.Set),
		delta:   make(map[string]write),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cancel = sub.Listen(func(ev *contexts.Event) {
		c.events.Emit(&contexts.Event{
			Context:  c,
			Added:    ev.Added,
			Removed:  ev.Removed,
			Modified: ev.Modified,
			Err:      ev.Err,
		})
	})
	return c
}

var _ contexts.Context = (*Context)(nil)

// Subcontext returns the context that holds the names.
func (c *Context) Subcontext() contexts.Context { return c.sub }

// Close stops forwarding the events of the subcontext.
func (c *Context) Close() { c.cancel() }

func (c *Context) async() bool { return c.executor != nil }

func (c *Context) Get(name string) (starlark.Value, bool) {
	if c.async() {
		c.dataMu.Lock()
		w, ok := c.delta[name]
		c.dataMu.Unlock()
		if ok {
			return w.v, w.v != nil
		}
	}
	return c.sub.Get(name)
}

// Set binds name to v, then executes the code for name.
// In asynchronous mode, the write is queued and Set returns at once.
func (c *Context) Set(name string, v starlark.Value) error {
	if !c.sub.Allows(v, name) {
		return &contexts.DisallowedError{Name: name, Value: v}
	}
	if c.async() {
		c.enqueue(starlark.StringDict{name: v})
		return nil
	}
	prev := c.sub.DeferEvents(true)
	defer c.sub.DeferEvents(prev)
	if err := c.sub.Set(name, v); err != nil {
		return err
	}
	return c.ExecuteFor([]string{name})
}

// Update binds each name of data, then executes the code once for all
// of them.
func (c *Context) Update(data starlark.StringDict) error {
	keys := data.Keys()
	for _, name := range keys {
		if v := data[name]; !c.sub.Allows(v, name) {
			return &contexts.DisallowedError{Name: name, Value: v}
		}
	}
	if c.async() {
		c.enqueue(data)
		return nil
	}
	prev := c.sub.DeferEvents(true)
	defer c.sub.DeferEvents(prev)
	for _, name := range keys {
		if err := c.sub.Set(name, data[name]); err != nil {
			return err
		}
	}
	return c.ExecuteFor(keys)
}

// Delete removes the binding of name. It does not execute the code.
func (c *Context) Delete(name string) error {
	if !c.async() {
		return c.sub.Delete(name)
	}
	if !c.Has(name) {
		return &contexts.KeyError{Name: name}
	}
	c.enqueue(starlark.StringDict{name: nil})
	return nil
}

func (c *Context) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

func (c *Context) Keys() []string {
	keys := names.MakeSet(c.sub.Keys()...)
	if c.async() {
		c.dataMu.Lock()
		for name, w := range c.delta {
			if w.v == nil {
				keys.Remove(name)
			} else {
				keys.Add(name)
			}
		}
		c.dataMu.Unlock()
	}
	return keys.Sorted()
}

func (c *Context) Len() int { return len(c.Keys()) }

func (c *Context) Allows(v starlark.Value, name string) bool { return c.sub.Allows(v, name) }

// Checkpoint returns a synchronous Context over a checkpoint of the
// subcontext with the pending writes applied.
func (c *Context) Checkpoint() (contexts.Context, error) {
	cp, err := c.sub.Checkpoint()
	if err != nil {
		return nil, err
	}
	c.dataMu.Lock()
	delta := make(map[string]write, len(c.delta))
	for name, w := range c.delta {
		delta[name] = w
	}
	c.dataMu.Unlock()

	keys := make([]string, 0, len(delta))
	for name := range delta {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	for _, name := range keys {
		w := delta[name]
		switch {
		case w.v != nil:
			err = cp.Set(name, w.v)
		case cp.Has(name):
			err = cp.Delete(name)
		}
		if err != nil {
			return nil, fmt.Errorf("checkpoint: %s: %w", name, err)
		}
	}
	return New(cp, c.exe, WithLogger(c.log)), nil
}

func (c *Context) DeferEvents(deferred bool) bool { return c.sub.DeferEvents(deferred) }

func (c *Context) Listen(fn contexts.Listener) func() { return c.events.Listen(fn) }

func (c *Context) String() string { return fmt.Sprintf("executing.Context(%v)", c.sub) }

// DeferredExecution reports whether execution is deferred.
func (c *Context) DeferredExecution() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferExec
}

// SetDeferExecution starts or ends the deferral of execution.
//
// Ending deferral runs one execution for the union of the deferred
// hints, or for everything if a deferred execution had no hint. In
// asynchronous mode it submits the writes queued in the meantime.
// Deferral does not interrupt an execution in flight.
func (c *Context) SetDeferExecution(deferred bool) error {
	c.mu.Lock()
	prev := c.deferExec
	c.deferExec = deferred
	var inputs []string
	all := c.all
	if prev && !deferred {
		inputs = c.hints.Sorted()
		c.hints, c.all = make(names.Set), false
	}
	c.mu.Unlock()
	if !prev || deferred {
		return nil
	}
	if c.async() {
		c.submit()
		return nil
	}
	if all {
		inputs = nil
	} else if len(inputs) == 0 {
		return nil
	}
	return c.execute(inputs)
}

// ExecuteFor executes the code for a change of inputs, or for a change
// of everything if inputs is nil. While execution is deferred, it only
// records the hint.
func (c *Context) ExecuteFor(inputs []string) error {
	c.mu.Lock()
	if c.deferExec {
		if inputs == nil {
			c.all = true
		}
		for _, x := range inputs {
			c.hints.Add(x)
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.execute(inputs)
}

func (c *Context) execute(inputs []string) error {
	prev := c.sub.DeferEvents(true)
	defer c.sub.DeferEvents(prev)
	if err := c.exe.Execute(c.sub, inputs); err != nil {
		c.log.Debug("execution failed", slog.Any("inputs", inputs), slog.Any("err", err))
		return err
	}
	return nil
}

// enqueue adds data to the pending delta and submits a task unless
// one is in flight.
func (c *Context) enqueue(data starlark.StringDict) {
	c.dataMu.Lock()
	for _, name := range data.Keys() {
		c.pending++
		c.delta[name] = write{data[name], c.pending}
	}
	c.dataMu.Unlock()
	c.submit()
}

func (c *Context) submit() {
	if c.DeferredExecution() {
		return
	}
	c.futureMu.Lock()
	if c.inFlight {
		c.futureMu.Unlock()
		return
	}
	c.inFlight = true
	c.futureMu.Unlock()
	c.executor.Submit(c.work)
}

// work applies a snapshot of the pending delta and executes the code
// for it. The writes of a failed execution stay in the delta, below
// any newer write of the same name.
func (c *Context) work() {
	c.dataMu.Lock()
	upto := c.pending
	snapshot := make(map[string]write, len(c.delta))
	for name, w := range c.delta {
		snapshot[name] = w
	}
	c.dataMu.Unlock()

	err := c.apply(snapshot)

	if err == nil {
		c.dataMu.Lock()
		for name, w := range snapshot {
			if c.delta[name].seq == w.seq {
				delete(c.delta, name)
			}
		}
		c.dataMu.Unlock()
	}
	c.done(upto, err)
}

func (c *Context) apply(snapshot map[string]write) error {
	keys := make([]string, 0, len(snapshot))
	for name := range snapshot {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	prev := c.sub.DeferEvents(true)
	defer c.sub.DeferEvents(prev)
	var changed []string
	for _, name := range keys {
		w := snapshot[name]
		if w.v == nil {
			if c.sub.Has(name) {
				if err := c.sub.Delete(name); err != nil {
					return err
				}
			}
			continue
		}
		if err := c.sub.Set(name, w.v); err != nil {
			return err
		}
		changed = append(changed, name)
	}
	if len(changed) == 0 {
		return nil
	}
	return c.exe.Execute(c.sub, changed)
}

// done completes the task that covered the writes up to upto, and
// submits another if writes arrived since.
func (c *Context) done(upto int64, err error) {
	if err != nil {
		c.log.Error("asynchronous execution failed", slog.Int64("update", upto), slog.Any("err", err))
		c.events.Emit(&contexts.Event{Context: c, Err: err})
	} else {
		c.log.Debug("asynchronous execution completed", slog.Int64("update", upto))
	}

	c.futureMu.Lock()
	c.inFlight = false
	c.err = err
	if err != nil {
		c.completed.Store(ErrorUpdate)
	} else {
		c.completed.Store(upto)
	}
	close(c.changed)
	c.changed = make(chan struct{})
	c.futureMu.Unlock()

	c.dataMu.Lock()
	more := c.pending > upto
	c.dataMu.Unlock()
	if more {
		c.submit()
	}
}

// CompletedUpdate returns the number of writes covered by the last
// completed asynchronous execution, or ErrorUpdate if it failed.
func (c *Context) CompletedUpdate() int64 { return c.completed.Load() }

// Err returns the error of the last asynchronous execution.
func (c *Context) Err() error {
	c.futureMu.Lock()
	defer c.futureMu.Unlock()
	return c.err
}

// Wait blocks until an asynchronous execution has covered every write
// made before the call, an execution fails, or ctx is done.
// It returns the execution error or the error of ctx.
func (c *Context) Wait(ctx context.Context) error {
	c.dataMu.Lock()
	target := c.pending
	c.dataMu.Unlock()
	for {
		c.futureMu.Lock()
		changed, err := c.changed, c.err
		completed := c.completed.Load()
		c.futureMu.Unlock()
		switch {
		case completed == ErrorUpdate:
			return err
		case completed >= target:
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
