// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package names classifies the identifiers of a Starlark syntax tree.
//
// For a region of code (a list of statements or an expression) the
// Analyzer reports three sets:
//
//   - free names, referenced before any binding within the region;
//   - unconditional locals, bound on every path through the region;
//   - conditional locals, bound on some but not all paths.
//
// Dotted identifiers such as a.b.c are kept as a single name. A dotted
// read is free unless one of its prefixes is already bound, in which
// case the attribute is reached through the local. A dotted assignment
// target a.b.c = ... binds the name "a.b.c" but not "a".
//
// The classification is purely syntactic. It assumes that a fragment's
// only effect is to bind its locals as a function of its free names.
package names // import "github.com/enthought/codetools-sub000/names"

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// An Analyzer classifies names. Its zero value treats nothing as
// built-in; use Default for the Starlark universe.
type Analyzer struct {
	// IsBuiltin reports whether a name is predeclared by the
	// interpreter. Built-in names are never free.
	IsBuiltin func(name string) bool

	// Magic names are bound by the execution environment itself
	// and are never free.
	Magic Set

	// LeakComprehensionVars makes the iteration variables of list
	// and dict comprehensions conditional locals of the enclosing
	// region, as in Python 2. Starlark scopes them to the comprehension.
	LeakComprehensionVars bool
}

// Default returns an analyzer whose built-ins are the names of
// starlark.Universe, with the specified magic names. Comprehension
// variables stay local to their comprehension, as Starlark executes
// them; set LeakComprehensionVars to report them as conditional
// locals of the enclosing region.
func Default(magic ...string) *Analyzer {
	return &Analyzer{
		IsBuiltin: starlark.Universe.Has,
		Magic:     MakeSet(magic...),
	}
}

// A Result is the classification of a region.
type Result struct {
	Free        Set // referenced before being bound
	Locals      Set // bound on every path
	Conditional Set // bound on some paths only
	Imports     Set // bound by load statements (a subset of Locals)
}

// AllLocals returns the union of the unconditional and conditional locals.
func (r *Result) AllLocals() Set { return r.Locals.Union(r.Conditional) }

// An UnsupportedError reports a construct the analyzer refuses to classify.
type UnsupportedError struct {
	Pos       syntax.Position
	Construct string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: unsupported construct: %s", e.Pos, e.Construct)
}

// Stmts classifies the names of a list of statements.
func (a *Analyzer) Stmts(stmts []syntax.Stmt) (res *Result, err error) {
	r := a.region(nil)
	defer recoverUnsupported(&err)
	r.stmts(stmts)
	return r.result(), nil
}

// Expr classifies the names of an expression.
func (a *Analyzer) Expr(e syntax.Expr) (res *Result, err error) {
	r := a.region(nil)
	defer recoverUnsupported(&err)
	r.expr(e)
	return r.result(), nil
}

// The walk reports unsupported constructs by panicking with a
// *UnsupportedError; the entry points turn the panic back into an error.
func recoverUnsupported(err *error) {
	if x := recover(); x != nil {
		if u, ok := x.(*UnsupportedError); ok {
			*err = u
			return
		}
		panic(x)
	}
}

func unsupported(n syntax.Node, format string, args ...interface{}) {
	panic(&UnsupportedError{Pos: syntax.Start(n), Construct: fmt.Sprintf(format, args...)})
}

// A region accumulates the classification of a straight-line run of
// statements. Branches, loop bodies and function bodies are analyzed
// in child regions whose results are merged into the parent.
type region struct {
	a       *Analyzer
	outer   *region // enclosing region, consulted for locality
	free    Set
	uncond  Set
	cond    Set
	imports Set
	loops   int  // depth of enclosing loops within the current function
	inFunc  bool // within a def or lambda body
}

func (a *Analyzer) region(outer *region) *region {
	r := &region{
		a:       a,
		outer:   outer,
		free:    make(Set),
		uncond:  make(Set),
		cond:    make(Set),
		imports: make(Set),
	}
	if outer != nil {
		r.loops = outer.loops
		r.inFunc = outer.inFunc
	}
	return r
}

func (r *region) result() *Result {
	return &Result{
		Free:        r.free,
		Locals:      r.uncond,
		Conditional: r.cond.Diff(r.uncond),
		Imports:     r.imports,
	}
}

func (r *region) isLocal(name string) bool {
	for x := r; x != nil; x = x.outer {
		if x.uncond.Has(name) || x.cond.Has(name) {
			return true
		}
	}
	return false
}

func (r *region) isBuiltin(name string) bool {
	if r.a.Magic.Has(name) {
		return true
	}
	root := Root(name)
	if r.a.Magic.Has(root) {
		return true
	}
	return r.a.IsBuiltin != nil && r.a.IsBuiltin(root) && !r.isLocal(root)
}

// use records a read of name.
func (r *region) use(name string) {
	if r.isLocal(name) {
		return
	}
	for _, prefix := range Prefixes(name) {
		if r.isLocal(prefix) {
			return
		}
	}
	if r.isBuiltin(name) {
		return
	}
	r.free.Add(name)
}

// bind records a binding of name on some or all paths.
func (r *region) bind(name string, conditional bool) {
	if conditional {
		if !r.uncond.Has(name) {
			r.cond.Add(name)
		}
		return
	}
	r.uncond.Add(name)
	r.cond.Remove(name)
}

// absorb merges the free names and imports of a child region.
func (r *region) absorb(children ...*region) {
	for _, c := range children {
		r.free.AddAll(c.free)
		r.imports.AddAll(c.imports)
	}
}

func (r *region) stmts(stmts []syntax.Stmt) {
	for _, stmt := range stmts {
		r.stmt(stmt)
	}
}

func (r *region) stmt(stmt syntax.Stmt) {
	switch stmt := stmt.(type) {
	case *syntax.ExprStmt:
		r.expr(stmt.X)

	case *syntax.AssignStmt:
		r.expr(stmt.RHS)
		if stmt.Op != syntax.EQ {
			// x op= y is x = x op y.
			r.readTarget(stmt.LHS)
		}
		r.assign(stmt.LHS)

	case *syntax.IfStmt:
		r.expr(stmt.Cond)
		t := r.a.region(r)
		t.stmts(stmt.True)
		f := r.a.region(r)
		f.stmts(stmt.False)
		r.absorb(t, f)
		hasElse := len(stmt.False) > 0
		for name := range t.uncond {
			r.bind(name, !(hasElse && f.uncond.Has(name)))
		}
		for name := range f.uncond {
			if !t.uncond.Has(name) {
				r.bind(name, true)
			}
		}
		for name := range t.cond.Union(f.cond) {
			r.bind(name, true)
		}

	case *syntax.ForStmt:
		r.expr(stmt.X)
		r.assign(stmt.Vars)
		body := r.a.region(r)
		body.loops++
		body.stmts(stmt.Body)
		r.absorb(body)
		for name := range body.uncond.Union(body.cond) {
			r.bind(name, true)
		}

	case *syntax.WhileStmt:
		r.expr(stmt.Cond)
		body := r.a.region(r)
		body.loops++
		body.stmts(stmt.Body)
		r.absorb(body)
		for name := range body.uncond.Union(body.cond) {
			r.bind(name, true)
		}

	case *syntax.DefStmt:
		r.params(stmt.Params)
		r.bind(stmt.Name.Name, false)
		body := r.function(stmt.Params)
		for name := range boundIn(stmt.Body) {
			body.bind(name, false)
		}
		body.stmts(stmt.Body)
		r.free.AddAll(body.free)

	case *syntax.LoadStmt:
		for i, from := range stmt.From {
			if from.Name == "*" {
				unsupported(stmt, "load(%q, \"*\") must be expanded before analysis", stmt.ModuleName())
			}
			name := stmt.To[i].Name
			r.bind(name, false)
			r.imports.Add(name)
		}

	case *syntax.ReturnStmt:
		if !r.inFunc {
			unsupported(stmt, "return statement outside a function")
		}
		if stmt.Result != nil {
			r.expr(stmt.Result)
		}

	case *syntax.BranchStmt:
		if stmt.Token != syntax.PASS && r.loops == 0 {
			unsupported(stmt, "%s statement outside a loop", stmt.Token)
		}

	default:
		unsupported(stmt, "statement %T", stmt)
	}
}

// function returns a fresh region for the body of a def or lambda
// whose parameters are bound.
func (r *region) function(params []syntax.Expr) *region {
	body := r.a.region(r)
	body.inFunc = true
	body.loops = 0
	for _, param := range params {
		if id := paramIdent(param); id != nil {
			body.bind(id.Name, false)
		}
	}
	return body
}

// params records the reads of parameter default values, which are
// evaluated in the enclosing region.
func (r *region) params(params []syntax.Expr) {
	for _, param := range params {
		if bin, ok := param.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
			r.expr(bin.Y)
		}
	}
}

func paramIdent(param syntax.Expr) *syntax.Ident {
	switch param := param.(type) {
	case *syntax.Ident:
		return param
	case *syntax.BinaryExpr: // name=default
		id, _ := param.X.(*syntax.Ident)
		return id
	case *syntax.UnaryExpr: // *args, **kwargs, or bare *
		id, _ := param.X.(*syntax.Ident)
		return id
	}
	return nil
}

// readTarget records the reads implied by an augmented assignment.
func (r *region) readTarget(lhs syntax.Expr) {
	switch lhs := lhs.(type) {
	case *syntax.Ident, *syntax.DotExpr, *syntax.IndexExpr:
		r.expr(lhs)
	case *syntax.ParenExpr:
		r.readTarget(lhs.X)
	default:
		unsupported(lhs, "augmented assignment to %T", lhs)
	}
}

// assign records the bindings of an assignment target.
func (r *region) assign(lhs syntax.Expr) {
	switch lhs := lhs.(type) {
	case *syntax.Ident:
		r.bind(lhs.Name, false)

	case *syntax.TupleExpr:
		for _, elem := range lhs.List {
			r.assign(elem)
		}

	case *syntax.ListExpr:
		for _, elem := range lhs.List {
			r.assign(elem)
		}

	case *syntax.ParenExpr:
		r.assign(lhs.X)

	case *syntax.DotExpr:
		if name, ok := Dotted(lhs); ok {
			r.bind(name, false)
		} else {
			r.expr(lhs.X)
		}

	case *syntax.IndexExpr:
		// x[i] = y mutates x but binds nothing.
		r.expr(lhs.X)
		r.expr(lhs.Y)

	default:
		unsupported(lhs, "assignment to %T", lhs)
	}
}

func (r *region) exprs(list []syntax.Expr) {
	for _, x := range list {
		r.expr(x)
	}
}

func (r *region) expr(e syntax.Expr) {
	switch e := e.(type) {
	case nil:
		// optional operand, e.g. a slice bound

	case *syntax.Ident:
		r.use(e.Name)

	case *syntax.Literal:

	case *syntax.DotExpr:
		if name, ok := Dotted(e); ok {
			r.use(name)
		} else {
			r.expr(e.X)
		}

	case *syntax.CallExpr:
		r.expr(e.Fn)
		for _, arg := range e.Args {
			if bin, ok := arg.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
				r.expr(bin.Y) // keyword argument
			} else {
				r.expr(arg)
			}
		}

	case *syntax.IndexExpr:
		r.expr(e.X)
		r.expr(e.Y)

	case *syntax.SliceExpr:
		r.expr(e.X)
		r.expr(e.Lo)
		r.expr(e.Hi)
		r.expr(e.Step)

	case *syntax.ListExpr:
		r.exprs(e.List)

	case *syntax.TupleExpr:
		r.exprs(e.List)

	case *syntax.DictExpr:
		r.exprs(e.List)

	case *syntax.DictEntry:
		r.expr(e.Key)
		r.expr(e.Value)

	case *syntax.ParenExpr:
		r.expr(e.X)

	case *syntax.UnaryExpr:
		r.expr(e.X)

	case *syntax.BinaryExpr:
		r.expr(e.X)
		r.expr(e.Y)

	case *syntax.CondExpr:
		r.expr(e.Cond)
		r.expr(e.True)
		r.expr(e.False)

	case *syntax.LambdaExpr:
		r.params(e.Params)
		body := r.function(e.Params)
		body.expr(e.Body)
		r.free.AddAll(body.free)

	case *syntax.Comprehension:
		r.comprehension(e)

	default:
		unsupported(e, "expression %T", e)
	}
}

func (r *region) comprehension(e *syntax.Comprehension) {
	c := r.a.region(r)
	for i, clause := range e.Clauses {
		switch clause := clause.(type) {
		case *syntax.ForClause:
			// The first operand is evaluated in the enclosing region.
			if i == 0 {
				r.expr(clause.X)
			} else {
				c.expr(clause.X)
			}
			c.assign(clause.Vars)
		case *syntax.IfClause:
			c.expr(clause.Cond)
		default:
			unsupported(clause, "comprehension clause %T", clause)
		}
	}
	c.expr(e.Body)
	r.free.AddAll(c.free)
	if r.a.LeakComprehensionVars {
		for name := range c.uncond.Union(c.cond) {
			r.bind(name, true)
		}
	}
}

// Dotted returns the dotted name of a chain of attribute selections
// rooted at an identifier, such as a.b.c.
func Dotted(e *syntax.DotExpr) (string, bool) {
	switch x := e.X.(type) {
	case *syntax.Ident:
		return x.Name + "." + e.Name.Name, true
	case *syntax.DotExpr:
		if prefix, ok := Dotted(x); ok {
			return prefix + "." + e.Name.Name, true
		}
	}
	return "", false
}

// boundIn returns the names a def body binds anywhere, excluding
// nested functions and comprehensions. Starlark, like Python, treats
// such names as local to the function throughout its body.
func boundIn(stmts []syntax.Stmt) Set {
	bound := make(Set)
	var targets func(lhs syntax.Expr)
	targets = func(lhs syntax.Expr) {
		switch lhs := lhs.(type) {
		case *syntax.Ident:
			bound.Add(lhs.Name)
		case *syntax.TupleExpr:
			for _, x := range lhs.List {
				targets(x)
			}
		case *syntax.ListExpr:
			for _, x := range lhs.List {
				targets(x)
			}
		case *syntax.ParenExpr:
			targets(lhs.X)
		}
	}
	var walk func(stmts []syntax.Stmt)
	walk = func(stmts []syntax.Stmt) {
		for _, stmt := range stmts {
			switch stmt := stmt.(type) {
			case *syntax.AssignStmt:
				targets(stmt.LHS)
			case *syntax.ForStmt:
				targets(stmt.Vars)
				walk(stmt.Body)
			case *syntax.WhileStmt:
				walk(stmt.Body)
			case *syntax.IfStmt:
				walk(stmt.True)
				walk(stmt.False)
			case *syntax.DefStmt:
				bound.Add(stmt.Name.Name)
			}
		}
	}
	walk(stmts)
	return bound
}
