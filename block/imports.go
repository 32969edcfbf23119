// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/enthought/codetools-sub000/names"
)

// A Loader provides the members of the modules named by load statements.
type Loader interface {
	Load(module string) (starlark.StringDict, error)
}

// expandWildcards applies expandWildcard to each statement.
func expandWildcards(cfg *config, stmts []syntax.Stmt) ([]syntax.Stmt, error) {
	out := make([]syntax.Stmt, 0, len(stmts))
	for _, stmt := range stmts {
		stmt, ok, err := expandWildcard(cfg, stmt)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, stmt)
		}
	}
	return out, nil
}

// expandWildcard rewrites load("m", "*") into a load of each public
// member of m, as reported by the loader. The members are bound under
// their own names, in lexical order. It reports false if nothing
// remains of the statement.
//
// Without a loader, a wildcard load is an *names.UnsupportedError.
func expandWildcard(cfg *config, stmt syntax.Stmt) (syntax.Stmt, bool, error) {
	load, ok := stmt.(*syntax.LoadStmt)
	if !ok {
		return stmt, true, nil
	}
	star := -1
	for i, from := range load.From {
		if from.Name == "*" {
			star = i
			break
		}
	}
	if star < 0 {
		return stmt, true, nil
	}
	module := load.ModuleName()
	if cfg.loader == nil {
		return nil, false, &names.UnsupportedError{
			Pos:       syntax.Start(load),
			Construct: `load("` + module + `", "*") without a module loader`,
		}
	}
	members, err := cfg.loader.Load(module)
	if err != nil {
		return nil, false, &ImportError{Module: module, Err: err}
	}

	expanded := *load
	expanded.From, expanded.To = nil, nil
	seen := make(names.Set)
	pos := load.From[star].NamePos
	for i, from := range load.From {
		if i == star {
			for _, name := range members.Keys() {
				if strings.HasPrefix(name, "_") || seen.Has(name) {
					continue
				}
				seen.Add(name)
				expanded.From = append(expanded.From, &syntax.Ident{NamePos: pos, Name: name})
				expanded.To = append(expanded.To, &syntax.Ident{NamePos: pos, Name: name})
			}
			continue
		}
		if from.Name == "*" {
			continue
		}
		seen.Add(load.To[i].Name)
		expanded.From = append(expanded.From, from)
		expanded.To = append(expanded.To, load.To[i])
	}
	if len(expanded.From) == 0 {
		return nil, false, nil
	}
	return &expanded, true, nil
}

// isImport reports whether every statement of b is a load.
func (b *Block) isImport() bool {
	stmts := b.Stmts()
	if len(stmts) == 0 {
		return false
	}
	for _, stmt := range stmts {
		if _, ok := stmt.(*syntax.LoadStmt); !ok {
			return false
		}
	}
	return true
}
