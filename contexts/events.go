// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contexts

import (
	"sync"

	"github.com/enthought/codetools-sub000/names"
)

// An Event reports the names that changed in a context.
//
// An event with a non-nil Err reports a failed execution rather than
// a change of names.
type Event struct {
	Context  Context
	Added    []string
	Removed  []string
	Modified []string
	Err      error

	vetoed bool
}

// Veto stops the delivery of the event to the remaining listeners.
func (e *Event) Veto() { e.vetoed = true }

// Vetoed reports whether a listener vetoed the event.
func (e *Event) Vetoed() bool { return e.vetoed }

// Empty reports whether the event carries no change and no error.
func (e *Event) Empty() bool {
	return len(e.Added) == 0 && len(e.Removed) == 0 && len(e.Modified) == 0 && e.Err == nil
}

// Changed returns the added and modified names, in lexical order.
func (e *Event) Changed() []string {
	return names.MakeSet(e.Added...).Union(names.MakeSet(e.Modified...)).Sorted()
}

// A Listener is called with each event of the contexts it listens to.
// Listeners run on the goroutine that caused the event.
type Listener func(*Event)

// An Emitter delivers the events of a context to its listeners.
//
// While events are deferred, the changes are merged into one pending
// event, which is delivered when deferral ends:
//
//	add X, then remove X       nothing
//	add X, then modify X       add X
//	modify X, then remove X    remove X
//	remove X, then add X       modify X
//
// The zero Emitter is ready to use. It is safe for concurrent use.
type Emitter struct {
	mu        sync.Mutex
	listeners []*listener
	deferred  bool
	added     names.Set
	removed   names.Set
	modified  names.Set
}

type listener struct{ fn Listener }

// Listen registers fn and returns a function that unregisters it.
func (em *Emitter) Listen(fn Listener) (cancel func()) {
	l := &listener{fn}
	em.mu.Lock()
	em.listeners = append(em.listeners, l)
	em.mu.Unlock()
	return func() {
		em.mu.Lock()
		defer em.mu.Unlock()
		for i, x := range em.listeners {
			if x == l {
				em.listeners = append(em.listeners[:i:i], em.listeners[i+1:]...)
				return
			}
		}
	}
}

// DeferEvents starts or ends deferral and returns the previous state.
// Ending deferral delivers the pending event of ctx, if any.
func (em *Emitter) DeferEvents(ctx Context, deferred bool) (prev bool) {
	em.mu.Lock()
	prev = em.deferred
	em.deferred = deferred
	var ev *Event
	if prev && !deferred {
		ev = em.takeLocked(ctx)
	}
	em.mu.Unlock()
	if ev != nil {
		em.Emit(ev)
	}
	return prev
}

// Record notes a change of ctx and delivers it, unless events are
// deferred.
func (em *Emitter) Record(ctx Context, added, removed, modified []string) {
	em.mu.Lock()
	if em.added == nil {
		em.added, em.removed, em.modified = make(names.Set), make(names.Set), make(names.Set)
	}
	for _, x := range added {
		if em.removed.Has(x) {
			em.removed.Remove(x)
			em.modified.Add(x)
		} else {
			em.added.Add(x)
		}
	}
	for _, x := range modified {
		if !em.added.Has(x) {
			em.modified.Add(x)
		}
	}
	for _, x := range removed {
		switch {
		case em.added.Has(x):
			em.added.Remove(x)
		default:
			em.modified.Remove(x)
			em.removed.Add(x)
		}
	}
	var ev *Event
	if !em.deferred {
		ev = em.takeLocked(ctx)
	}
	em.mu.Unlock()
	if ev != nil {
		em.Emit(ev)
	}
}

// takeLocked returns and clears the pending event, or returns nil if
// there is no change. em.mu must be held.
func (em *Emitter) takeLocked(ctx Context) *Event {
	ev := &Event{
		Context:  ctx,
		Added:    em.added.Sorted(),
		Removed:  em.removed.Sorted(),
		Modified: em.modified.Sorted(),
	}
	if ev.Empty() {
		return nil
	}
	em.added, em.removed, em.modified = make(names.Set), make(names.Set), make(names.Set)
	return ev
}

// Emit delivers ev to the listeners in registration order, stopping
// at a veto. It does not consult deferral.
func (em *Emitter) Emit(ev *Event) {
	em.mu.Lock()
	listeners := append([]*listener(nil), em.listeners...)
	em.mu.Unlock()
	for _, l := range listeners {
		l.fn(ev)
		if ev.Vetoed() {
			return
		}
	}
}
