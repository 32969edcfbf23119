// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package repl provides a read/eval/print loop over a context.
//
// It supports readline-style command editing,
// and interrupts through Control-C.
//
// If an input line can be parsed as an expression,
// the REPL evaluates it against the names of the context and prints
// its result. Otherwise the REPL reads lines until a blank line and
// runs the input as a block whose bindings are stored into the
// context. Each change of the context is printed as it is reported,
// so the names recomputed by an executing context appear too.
package repl // import "github.com/enthought/codetools-sub000/repl"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/chzyer/readline"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/enthought/codetools-sub000/block"
	"github.com/enthought/codetools-sub000/contexts"
)

var interrupted = make(chan os.Signal, 1)

// An Updater stores several bindings at once.
// Executing contexts run their code once per update.
type Updater interface {
	Update(data starlark.StringDict) error
}

// REPL executes a read, eval, print loop against ctx.
//
// Before evaluating each item, it sets the Starlark thread local
// variable named "context" to a context.Context that is cancelled by a
// SIGINT (Control-C).
func REPL(thread *starlark.Thread, ctx contexts.Context, opts ...block.Option) {
	signal.Notify(interrupted, os.Interrupt)
	defer signal.Stop(interrupted)

	var mu sync.Mutex
	cancel := ctx.Listen(func(ev *contexts.Event) {
		mu.Lock()
		defer mu.Unlock()
		PrintEvent(os.Stdout, ctx, ev)
	})
	defer cancel()

	rl, err := readline.New(">>> ")
	if err != nil {
		PrintError(err)
		return
	}
	defer rl.Close()
	for {
		if err := rep(rl, thread, ctx, opts); err != nil {
			if err == readline.ErrInterrupt {
				fmt.Println(err)
				continue
			}
			break
		}
	}
	fmt.Println()
}

// rep reads, evaluates, and prints one item.
//
// It returns an error (possibly readline.ErrInterrupt)
// only if readline failed. Starlark errors are printed.
func rep(rl *readline.Instance, thread *starlark.Thread, ctx contexts.Context, opts []block.Option) error {
	// Each item gets its own context,
	// which is cancelled by a SIGINT.
	//
	// Note: during Readline calls, Control-C causes Readline to return
	// ErrInterrupt but does not generate a SIGINT.
	cctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-interrupted:
			cancel()
		case <-cctx.Done():
		}
	}()

	thread.SetLocal("context", cctx)

	eof := false

	// readline returns EOF, ErrInterrupted, or a line including "\n".
	rl.SetPrompt(">>> ")
	readline := func() ([]byte, error) {
		line, err := rl.Readline()
		rl.SetPrompt("... ")
		if err != nil {
			if err == io.EOF {
				eof = true
			}
			return nil, err
		}
		return []byte(line + "\n"), nil
	}

	f, err := block.FileOptions().ParseCompoundStmt("<stdin>", readline)
	if err != nil {
		if eof {
			return io.EOF
		}
		PrintError(err)
		return nil
	}

	if err := Eval(os.Stdout, thread, ctx, f, opts...); err != nil {
		PrintError(err)
	}
	return nil
}

// Eval runs one parsed item against ctx. The value of a sole
// expression other than None is printed to out. Statements run as a
// block on a view of ctx, and their bindings are then stored into ctx
// together.
func Eval(out io.Writer, thread *starlark.Thread, ctx contexts.Context, f *syntax.File, opts ...block.Option) error {
	if expr := soleExpr(f); expr != nil {
		env := make(starlark.StringDict)
		for _, name := range ctx.Keys() {
			if v, ok := ctx.Get(name); ok {
				env[name] = v
			}
		}
		v, err := starlark.EvalExprOptions(block.FileOptions(), thread, expr, env)
		if err != nil {
			return err
		}
		if v != starlark.None {
			fmt.Fprintln(out, v)
		}
		return nil
	}

	b, err := block.FromFile(f, opts...)
	if err != nil {
		return err
	}
	bindings, err := b.ExecuteImpure(ctx, false, block.WithThread(thread))
	if err != nil {
		return err
	}
	if u, ok := ctx.(Updater); ok {
		return u.Update(bindings)
	}
	for _, name := range bindings.Keys() {
		if err := ctx.Set(name, bindings[name]); err != nil {
			return err
		}
	}
	return nil
}

func soleExpr(f *syntax.File) syntax.Expr {
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			return stmt.X
		}
	}
	return nil
}

// PrintEvent prints the names added or modified by ev, with their
// values in ctx, and the names it removed.
func PrintEvent(out io.Writer, ctx contexts.Context, ev *contexts.Event) {
	if ev.Err != nil {
		fmt.Fprintln(out, "error:", ev.Err)
		return
	}
	for _, name := range ev.Changed() {
		if v, ok := ctx.Get(name); ok {
			fmt.Fprintf(out, "%s = %s\n", name, v)
		}
	}
	for _, name := range ev.Removed {
		fmt.Fprintf(out, "del %s\n", name)
	}
}

// PrintError prints the error to stderr,
// or its backtrace if it is a Starlark evaluation error.
func PrintError(err error) {
	var (
		evalErr *starlark.EvalError
		execErr *block.ExecutionError
		aggErr  *block.AggregateError
	)
	switch {
	case errors.As(err, &aggErr):
		for _, e := range aggErr.Errors {
			PrintError(e)
		}
	case errors.As(err, &execErr) && execErr.Traceback != "":
		fmt.Fprintln(os.Stderr, execErr.Traceback)
	case errors.As(err, &evalErr):
		fmt.Fprintln(os.Stderr, evalErr.Backtrace())
	default:
		fmt.Fprintln(os.Stderr, err)
	}
}
