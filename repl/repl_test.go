// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package repl_test

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/enthought/codetools-sub000/block"
	"github.com/enthought/codetools-sub000/contexts"
	"github.com/enthought/codetools-sub000/executing"
	"github.com/enthought/codetools-sub000/repl"
)

func parse(t *testing.T, src string) *syntax.File {
	t.Helper()
	f, err := block.FileOptions().Parse("<stdin>", src, 0)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestEval(t *testing.T) {
	ctx := contexts.NewDataContext()
	thread := &starlark.Thread{Name: "test"}
	var out bytes.Buffer

	if err := repl.Eval(&out, thread, ctx, parse(t, "x = 1\ny = x + 1\n")); err != nil {
		t.Fatal(err)
	}
	if err := repl.Eval(&out, thread, ctx, parse(t, "y * 10\n")); err != nil {
		t.Fatal(err)
	}
	if err := repl.Eval(&out, thread, ctx, parse(t, "None\n")); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "20\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if err := repl.Eval(&out, thread, ctx, parse(t, "z = undefined_name\n")); err == nil {
		t.Error("Eval of an undefined name succeeded")
	}
}

func TestEvalExecuting(t *testing.T) {
	b, err := block.Parse("code.star", "z = y * 2\n")
	if err != nil {
		t.Fatal(err)
	}
	quiet := executing.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := executing.New(contexts.NewDataContext(), executing.Code(b), quiet)
	var out bytes.Buffer
	ctx.Listen(func(ev *contexts.Event) { repl.PrintEvent(&out, ctx, ev) })

	thread := &starlark.Thread{Name: "test"}
	if err := repl.Eval(&out, thread, ctx, parse(t, "y = 5\n")); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "y = 5\nz = 10\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
