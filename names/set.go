// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package names

import (
	"sort"
	"strings"
)

// A Set is a set of identifiers.
// The zero value is not usable; use MakeSet or make(Set).
type Set map[string]struct{}

// MakeSet returns a set containing the specified names.
func MakeSet(names ...string) Set {
	s := make(Set, len(names))
	for _, name := range names {
		s[name] = struct{}{}
	}
	return s
}

func (s Set) Has(name string) bool { _, ok := s[name]; return ok }
func (s Set) Add(name string)      { s[name] = struct{}{} }
func (s Set) Remove(name string)   { delete(s, name) }

// AddAll adds each element of t to s.
func (s Set) AddAll(t Set) {
	for name := range t {
		s[name] = struct{}{}
	}
}

// Sorted returns the elements of s in lexical order.
func (s Set) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Copy returns a shallow copy of s.
func (s Set) Copy() Set {
	t := make(Set, len(s))
	t.AddAll(s)
	return t
}

// Union returns a new set holding the elements of s and t.
func (s Set) Union(t Set) Set {
	u := s.Copy()
	u.AddAll(t)
	return u
}

// Intersect returns a new set holding the elements common to s and t.
func (s Set) Intersect(t Set) Set {
	u := make(Set)
	for name := range s {
		if t.Has(name) {
			u.Add(name)
		}
	}
	return u
}

// Diff returns a new set holding the elements of s that are not in t.
func (s Set) Diff(t Set) Set {
	u := make(Set)
	for name := range s {
		if !t.Has(name) {
			u.Add(name)
		}
	}
	return u
}

func (s Set) String() string { return "{" + strings.Join(s.Sorted(), ", ") + "}" }

// Root returns the leftmost component of a dotted identifier.
func Root(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// Prefixes returns the proper dotted prefixes of name, shortest first:
// Prefixes("a.b.c") is ["a", "a.b"].
func Prefixes(name string) []string {
	var prefixes []string
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			prefixes = append(prefixes, name[:i])
		}
	}
	return prefixes
}

// HasPrefix reports whether prefix equals name or is a dotted prefix of it.
func HasPrefix(name, prefix string) bool {
	return name == prefix || strings.HasPrefix(name, prefix) && name[len(prefix)] == '.'
}
