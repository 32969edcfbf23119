// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contexts

import (
	"sync"

	"go.starlark.net/starlark"
)

// An Adapter rewrites the names and values that pass between an
// AdaptedContext and its base. An adapter implements any subset of
// NameAdapter, GetAdapter, SetAdapter and KeysAdapter; a missing
// method is the identity.
type Adapter interface{}

// A NameAdapter maps the names used by clients to names of the base.
type NameAdapter interface {
	AdaptName(name string) string
}

// A GetAdapter rewrites a value read from the base.
type GetAdapter interface {
	AdaptGet(name string, v starlark.Value) starlark.Value
}

// A SetAdapter rewrites, or refuses, a value written to the base.
type SetAdapter interface {
	AdaptSet(name string, v starlark.Value) (starlark.Value, error)
}

// A KeysAdapter rewrites the list of names of the base.
type KeysAdapter interface {
	AdaptKeys(keys []string) []string
}

// An AdaptedContext is a context seen through a stack of adapters.
//
// Names are adapted in stack order on both reads and writes. Values
// read from the base pass through the adapters in stack order, so the
// adapter nearest the base sees the stored value first. Values written
// pass through them in reverse order, so the adapter nearest the
// client sees the client's value first.
//
// Events of the base are forwarded with their names adapted as Keys
// adapts them, so a change of an aliased name is also reported under
// its alias.
type AdaptedContext struct {
	base   Context
	cancel func()
	events Emitter

	mu       sync.RWMutex
	adapters []Adapter
}

// NewAdaptedContext returns an AdaptedContext over base with the
// specified adapters, the first nearest the base.
func NewAdaptedContext(base Context, adapters ...Adapter) *AdaptedContext {
	c := &AdaptedContext{base: base, adapters: append([]Adapter(nil), adapters...)}
	c.cancel = base.Listen(func(ev *Event) {
		adapters := c.Adapters()
		c.events.Emit(&Event{
			Context:  c,
			Added:    adaptChanged(adapters, ev.Added),
			Removed:  adaptChanged(adapters, ev.Removed),
			Modified: adaptChanged(adapters, ev.Modified),
			Err:      ev.Err,
		})
	})
	return c
}

func adaptChanged(adapters []Adapter, changed []string) []string {
	if len(changed) == 0 {
		return changed
	}
	return adaptKeys(adapters, changed)
}

func adaptKeys(adapters []Adapter, keys []string) []string {
	for _, a := range adapters {
		if ka, ok := a.(KeysAdapter); ok {
			keys = ka.AdaptKeys(keys)
		}
	}
	return keys
}

var _ Context = (*AdaptedContext)(nil)

// Base returns the adapted context.
func (c *AdaptedContext) Base() Context { return c.base }

// Close stops forwarding the events of the base.
func (c *AdaptedContext) Close() { c.cancel() }

// Push adds an adapter at the client end of the stack.
func (c *AdaptedContext) Push(a Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters = append(c.adapters, a)
}

// Pop removes and returns the adapter at the client end of the stack,
// or nil if there is none.
func (c *AdaptedContext) Pop() Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.adapters) == 0 {
		return nil
	}
	a := c.adapters[len(c.adapters)-1]
	c.adapters = c.adapters[:len(c.adapters)-1]
	return a
}

// Adapters returns the adapter stack, nearest the base first.
func (c *AdaptedContext) Adapters() []Adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Adapter(nil), c.adapters...)
}

func (c *AdaptedContext) adaptName(adapters []Adapter, name string) string {
	for _, a := range adapters {
		if na, ok := a.(NameAdapter); ok {
			name = na.AdaptName(name)
		}
	}
	return name
}

func (c *AdaptedContext) Get(name string) (starlark.Value, bool) {
	adapters := c.Adapters()
	v, ok := c.base.Get(c.adaptName(adapters, name))
	if !ok {
		return nil, false
	}
	for _, a := range adapters {
		if ga, ok := a.(GetAdapter); ok {
			v = ga.AdaptGet(name, v)
		}
	}
	return v, true
}

func (c *AdaptedContext) Set(name string, v starlark.Value) error {
	adapters := c.Adapters()
	for i := len(adapters) - 1; i >= 0; i-- {
		if sa, ok := adapters[i].(SetAdapter); ok {
			var err error
			if v, err = sa.AdaptSet(name, v); err != nil {
				return err
			}
		}
	}
	return c.base.Set(c.adaptName(adapters, name), v)
}

func (c *AdaptedContext) Delete(name string) error {
	return c.base.Delete(c.adaptName(c.Adapters(), name))
}

func (c *AdaptedContext) Has(name string) bool {
	return c.base.Has(c.adaptName(c.Adapters(), name))
}

func (c *AdaptedContext) Keys() []string {
	return adaptKeys(c.Adapters(), c.base.Keys())
}

func (c *AdaptedContext) Len() int { return len(c.Keys()) }

func (c *AdaptedContext) Allows(v starlark.Value, name string) bool {
	return c.base.Allows(v, c.adaptName(c.Adapters(), name))
}

// Checkpoint returns an AdaptedContext over a checkpoint of the base,
// sharing the adapters of c.
func (c *AdaptedContext) Checkpoint() (Context, error) {
	cp, err := c.base.Checkpoint()
	if err != nil {
		return nil, err
	}
	return NewAdaptedContext(cp, c.Adapters()...), nil
}

// DeferEvents defers the events of the base.
func (c *AdaptedContext) DeferEvents(deferred bool) bool {
	return c.base.DeferEvents(deferred)
}

func (c *AdaptedContext) Listen(fn Listener) func() { return c.events.Listen(fn) }
