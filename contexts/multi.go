// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contexts

import (
	"fmt"
	"strings"
	"sync"

	"go.starlark.net/starlark"

	"github.com/enthought/codetools-sub000/names"
)

// AllowTypes returns a policy that accepts the values of the named
// Starlark types, such as "int" or "list".
func AllowTypes(types ...string) Policy {
	set := names.MakeSet(types...)
	return func(v starlark.Value, _ string) bool { return set.Has(v.Type()) }
}

// A MultiContext presents a stack of contexts as one.
//
// Reads resolve in stack order. A write goes to the first context that
// allows the value, and the name is deleted from the contexts before
// it, so that the new binding is the one visible. Changes made through
// the MultiContext are reported once, as its own events; changes made
// directly to a member context are reported again with the
// MultiContext as their source.
type MultiContext struct {
	subs    []Context
	cancels []func()
	events  Emitter

	mu      sync.Mutex
	writing int // depth of writes in progress through the MultiContext
}

// NewMultiContext returns a MultiContext over subs, which must not be empty.
func NewMultiContext(subs ...Context) *MultiContext {
	m := &MultiContext{subs: append([]Context(nil), subs...)}
	for i, sub := range m.subs {
		i := i
		m.cancels = append(m.cancels, sub.Listen(func(ev *Event) { m.subEvent(i, ev) }))
	}
	return m
}

var _ Context = (*MultiContext)(nil)

// Subcontexts returns the contexts of the stack, in order.
func (m *MultiContext) Subcontexts() []Context { return append([]Context(nil), m.subs...) }

// Close stops listening to the member contexts.
func (m *MultiContext) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}

func (m *MultiContext) Get(name string) (starlark.Value, bool) {
	for _, sub := range m.subs {
		if v, ok := sub.Get(name); ok {
			return v, true
		}
	}
	return nil, false
}

func (m *MultiContext) Set(name string, v starlark.Value) error {
	target := -1
	for i, sub := range m.subs {
		if sub.Allows(v, name) {
			target = i
			break
		}
	}
	if target < 0 {
		return &DisallowedError{Name: name, Value: v}
	}
	existed := m.Has(name)

	m.begin()
	defer m.end()
	if err := m.subs[target].Set(name, v); err != nil {
		return err
	}
	for _, sub := range m.subs[:target] {
		if sub.Has(name) {
			if err := sub.Delete(name); err != nil {
				return err
			}
		}
	}
	if existed {
		m.events.Record(m, nil, nil, []string{name})
	} else {
		m.events.Record(m, []string{name}, nil, nil)
	}
	return nil
}

func (m *MultiContext) Delete(name string) error {
	m.begin()
	defer m.end()
	found := false
	for _, sub := range m.subs {
		if sub.Has(name) {
			if err := sub.Delete(name); err != nil {
				return err
			}
			found = true
		}
	}
	if !found {
		return &KeyError{Name: name}
	}
	m.events.Record(m, nil, []string{name}, nil)
	return nil
}

func (m *MultiContext) begin() {
	m.mu.Lock()
	m.writing++
	m.mu.Unlock()
}

func (m *MultiContext) end() {
	m.mu.Lock()
	m.writing--
	m.mu.Unlock()
}

// subEvent handles an event of member i.
func (m *MultiContext) subEvent(i int, ev *Event) {
	m.mu.Lock()
	writing := m.writing > 0
	m.mu.Unlock()
	if writing {
		ev.Veto()
		return
	}
	if ev.Err != nil {
		m.events.Emit(&Event{Context: m, Err: ev.Err})
		return
	}
	var added, removed, modified []string
	for _, name := range ev.Added {
		switch {
		case m.shadowed(i, name):
		case m.heldAfter(i, name):
			modified = append(modified, name)
		default:
			added = append(added, name)
		}
	}
	for _, name := range ev.Modified {
		if !m.shadowed(i, name) {
			modified = append(modified, name)
		}
	}
	for _, name := range ev.Removed {
		if m.shadowed(i, name) {
			continue
		}
		if m.Has(name) {
			modified = append(modified, name)
		} else {
			removed = append(removed, name)
		}
	}
	if added != nil || removed != nil || modified != nil {
		m.events.Record(m, added, removed, modified)
	}
}

// shadowed reports whether a member before i binds name.
func (m *MultiContext) shadowed(i int, name string) bool {
	for _, sub := range m.subs[:i] {
		if sub.Has(name) {
			return true
		}
	}
	return false
}

// heldAfter reports whether a member after i binds name.
func (m *MultiContext) heldAfter(i int, name string) bool {
	for _, sub := range m.subs[i+1:] {
		if sub.Has(name) {
			return true
		}
	}
	return false
}

func (m *MultiContext) Has(name string) bool {
	for _, sub := range m.subs {
		if sub.Has(name) {
			return true
		}
	}
	return false
}

func (m *MultiContext) Keys() []string {
	keys := make(names.Set)
	for _, sub := range m.subs {
		for _, k := range sub.Keys() {
			keys.Add(k)
		}
	}
	return keys.Sorted()
}

func (m *MultiContext) Len() int { return len(m.Keys()) }

// Allows reports whether some member allows v as the value of name.
func (m *MultiContext) Allows(v starlark.Value, name string) bool {
	for _, sub := range m.subs {
		if sub.Allows(v, name) {
			return true
		}
	}
	return false
}

// Checkpoint returns a MultiContext over checkpoints of the members.
func (m *MultiContext) Checkpoint() (Context, error) {
	subs := make([]Context, len(m.subs))
	for i, sub := range m.subs {
		cp, err := sub.Checkpoint()
		if err != nil {
			return nil, err
		}
		subs[i] = cp
	}
	return NewMultiContext(subs...), nil
}

func (m *MultiContext) DeferEvents(deferred bool) bool {
	return m.events.DeferEvents(m, deferred)
}

func (m *MultiContext) Listen(fn Listener) func() { return m.events.Listen(fn) }

func (m *MultiContext) String() string {
	var parts []string
	for _, sub := range m.subs {
		parts = append(parts, fmt.Sprint(sub))
	}
	return "MultiContext(" + strings.Join(parts, ", ") + ")"
}
