// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package contexts provides event-emitting namespaces for the
// execution of blocks.
//
// A Context maps names to Starlark values. Each change is reported to
// the context's listeners as an Event, and changes made while events
// are deferred are merged into a single event. A policy decides which
// values a context accepts.
//
// DataContext is the basic implementation. MultiContext stacks several
// contexts and routes each write to the first that accepts it.
// AdaptedContext rewrites the names and values read from and written
// to another context through a stack of adapters.
package contexts // import "github.com/enthought/codetools-sub000/contexts"

import (
	"fmt"
	"sync"

	"go.starlark.net/starlark"
)

// A Context is an observable namespace.
type Context interface {
	// Get returns the value bound to name.
	Get(name string) (starlark.Value, bool)

	// Set binds name to v, if the context allows it.
	// It returns a *DisallowedError otherwise.
	Set(name string, v starlark.Value) error

	// Delete removes the binding of name.
	// It returns a *KeyError if name is not bound.
	Delete(name string) error

	Has(name string) bool
	Keys() []string // in lexical order
	Len() int

	// Allows reports whether the context accepts v as the value of name.
	Allows(v starlark.Value, name string) bool

	// Checkpoint returns an independent copy of the context
	// whose values are the same values as the original's.
	Checkpoint() (Context, error)

	// DeferEvents starts or ends the deferral of events and returns
	// the previous state.
	DeferEvents(deferred bool) (prev bool)

	// Listen registers a listener and returns a function that
	// unregisters it.
	Listen(fn Listener) (cancel func())
}

// A DisallowedError reports a binding that a context refused.
type DisallowedError struct {
	Name  string
	Value starlark.Value
}

func (e *DisallowedError) Error() string {
	return fmt.Sprintf("context does not allow %s for %q", e.Value.Type(), e.Name)
}

// A KeyError reports a name that is not bound.
type KeyError struct {
	Name string
}

func (e *KeyError) Error() string { return fmt.Sprintf("name %q is not bound", e.Name) }

// A Policy reports whether a context accepts v as the value of name.
type Policy func(v starlark.Value, name string) bool

// A DataContext is a Context backed by a map.
type DataContext struct {
	mu     sync.RWMutex
	data   starlark.StringDict
	policy Policy
	events Emitter
}

// An Option configures a DataContext.
type Option func(*DataContext)

// WithPolicy sets the policy of the context. By default every value
// is accepted.
func WithPolicy(p Policy) Option {
	return func(c *DataContext) { c.policy = p }
}

// WithData sets the initial bindings of the context.
// The map is copied.
func WithData(data starlark.StringDict) Option {
	return func(c *DataContext) {
		for k, v := range data {
			c.data[k] = v
		}
	}
}

// NewDataContext returns a new DataContext.
func NewDataContext(opts ...Option) *DataContext {
	c := &DataContext{data: make(starlark.StringDict)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Context = (*DataContext)(nil)

func (c *DataContext) Get(name string) (starlark.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[name]
	return v, ok
}

func (c *DataContext) Set(name string, v starlark.Value) error {
	if !c.Allows(v, name) {
		return &DisallowedError{Name: name, Value: v}
	}
	c.mu.Lock()
	_, existed := c.data[name]
	c.data[name] = v
	c.mu.Unlock()
	if existed {
		c.events.Record(c, nil, nil, []string{name})
	} else {
		c.events.Record(c, []string{name}, nil, nil)
	}
	return nil
}

// Update binds each name of data and reports the changes as one event.
// The bindings are checked against the policy first; if any is
// refused, none is made.
func (c *DataContext) Update(data starlark.StringDict) error {
	for _, name := range data.Keys() {
		if v := data[name]; !c.Allows(v, name) {
			return &DisallowedError{Name: name, Value: v}
		}
	}
	var added, modified []string
	c.mu.Lock()
	for _, name := range data.Keys() {
		if _, ok := c.data[name]; ok {
			modified = append(modified, name)
		} else {
			added = append(added, name)
		}
		c.data[name] = data[name]
	}
	c.mu.Unlock()
	c.events.Record(c, added, nil, modified)
	return nil
}

func (c *DataContext) Delete(name string) error {
	c.mu.Lock()
	_, ok := c.data[name]
	delete(c.data, name)
	c.mu.Unlock()
	if !ok {
		return &KeyError{Name: name}
	}
	c.events.Record(c, nil, []string{name}, nil)
	return nil
}

func (c *DataContext) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

func (c *DataContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Keys()
}

func (c *DataContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Items returns a copy of the bindings of c.
func (c *DataContext) Items() starlark.StringDict {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := make(starlark.StringDict, len(c.data))
	for k, v := range c.data {
		items[k] = v
	}
	return items
}

func (c *DataContext) Allows(v starlark.Value, name string) bool {
	return c.policy == nil || c.policy(v, name)
}

// Checkpoint returns a copy of c with the same policy and no listeners.
func (c *DataContext) Checkpoint() (Context, error) {
	return NewDataContext(WithPolicy(c.policy), WithData(c.Items())), nil
}

func (c *DataContext) DeferEvents(deferred bool) bool {
	return c.events.DeferEvents(c, deferred)
}

func (c *DataContext) Listen(fn Listener) func() { return c.events.Listen(fn) }

func (c *DataContext) String() string {
	return fmt.Sprintf("DataContext(%d names)", c.Len())
}
