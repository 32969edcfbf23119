// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contexts

import (
	"sort"

	"go.starlark.net/starlark"

	"github.com/enthought/codetools-sub000/names"
)

// A NameMap is an adapter that gives names of the base an alias.
// It maps each alias to the name it stands for.
type NameMap map[string]string

func (m NameMap) AdaptName(name string) string {
	if target, ok := m[name]; ok {
		return target
	}
	return name
}

// AdaptKeys adds the aliases whose targets are bound.
func (m NameMap) AdaptKeys(keys []string) []string {
	set := names.MakeSet(keys...)
	for alias, target := range m {
		if set.Has(target) {
			set.Add(alias)
		}
	}
	return set.Sorted()
}

// ReadOnly is an adapter that refuses writes to its names.
// An empty ReadOnly refuses every write.
type ReadOnly names.Set

// NewReadOnly returns a ReadOnly adapter for the specified names.
func NewReadOnly(readOnly ...string) ReadOnly {
	ro := make(ReadOnly)
	for _, name := range readOnly {
		ro[name] = struct{}{}
	}
	return ro
}

func (ro ReadOnly) AdaptSet(name string, v starlark.Value) (starlark.Value, error) {
	if _, ok := ro[name]; ok || len(ro) == 0 {
		return nil, &DisallowedError{Name: name, Value: v}
	}
	return v, nil
}

// Funcs is an adapter made of functions. A nil function is the identity.
type Funcs struct {
	Name func(name string) string
	Get  func(name string, v starlark.Value) starlark.Value
	Set  func(name string, v starlark.Value) (starlark.Value, error)
	Keys func(keys []string) []string
}

func (f Funcs) AdaptName(name string) string {
	if f.Name == nil {
		return name
	}
	return f.Name(name)
}

func (f Funcs) AdaptGet(name string, v starlark.Value) starlark.Value {
	if f.Get == nil {
		return v
	}
	return f.Get(name, v)
}

func (f Funcs) AdaptSet(name string, v starlark.Value) (starlark.Value, error) {
	if f.Set == nil {
		return v, nil
	}
	return f.Set(name, v)
}

func (f Funcs) AdaptKeys(keys []string) []string {
	if f.Keys == nil {
		return keys
	}
	keys = f.Keys(keys)
	sort.Strings(keys)
	return keys
}
