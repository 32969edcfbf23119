// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package names_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.starlark.net/syntax"

	"github.com/enthought/codetools-sub000/internal/chunkedfile"
	"github.com/enthought/codetools-sub000/names"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

func TestNames(t *testing.T) {
	const filename = "testdata/names.star"
	analyzer := names.Default("magic_value", "magic_ns")
	for _, chunk := range chunkedfile.Read(filename, t) {
		f, err := fileOptions.Parse(filename, chunk.Source, 0)
		if err != nil {
			t.Error(err)
			continue
		}
		res, err := analyzer.Stmts(f.Stmts)
		if err != nil {
			var unsupported *names.UnsupportedError
			if !errors.As(err, &unsupported) {
				t.Errorf("%s: unexpected error type %T: %v", filename, err, err)
				continue
			}
			chunk.GotError(int(unsupported.Pos.Line), err.Error())
			chunk.Done()
			continue
		}
		chunk.Done()

		for key, got := range map[string]names.Set{
			"free":        res.Free,
			"locals":      res.Locals,
			"conditional": res.Conditional,
			"imports":     res.Imports,
		} {
			want, ok := chunk.Want(key)
			if !ok {
				continue
			}
			if diff := cmp.Diff(want, got.Sorted()); diff != "" {
				t.Errorf("%s:%d: %s mismatch (-want +got):\n%s",
					filename, syntax.Start(f.Stmts[0]).Line, key, diff)
			}
		}
		if both := res.Locals.Intersect(res.Conditional); len(both) > 0 {
			t.Errorf("%s:%d: names both local and conditional: %s",
				filename, syntax.Start(f.Stmts[0]).Line, both)
		}
	}
}

func TestLeakComprehensionVars(t *testing.T) {
	f, err := fileOptions.Parse("leak.star", "ys = [x for x in xs]\n", 0)
	if err != nil {
		t.Fatal(err)
	}
	analyzer := names.Default()
	analyzer.LeakComprehensionVars = true
	res, err := analyzer.Stmts(f.Stmts)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Conditional.Sorted(), []string{"x"}; !cmp.Equal(got, want) {
		t.Errorf("Conditional = %v, want %v", got, want)
	}
	if got, want := res.Free.Sorted(), []string{"xs"}; !cmp.Equal(got, want) {
		t.Errorf("Free = %v, want %v", got, want)
	}
}

func TestExpr(t *testing.T) {
	expr, err := fileOptions.ParseExpr("expr.star", "f(a.b, c)[d] + len(e)", 0)
	if err != nil {
		t.Fatal(err)
	}
	res, err := names.Default().Expr(expr)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Free.Sorted(), []string{"a.b", "c", "d", "e", "f"}; !cmp.Equal(got, want) {
		t.Errorf("Free = %v, want %v", got, want)
	}
	if len(res.AllLocals()) != 0 {
		t.Errorf("AllLocals = %s, want empty", res.AllLocals())
	}
}

func TestWildcardLoadUnsupported(t *testing.T) {
	f, err := fileOptions.Parse("star.star", `load("m", "*")`+"\n", 0)
	if err != nil {
		t.Skipf("parser rejects wildcard load: %v", err)
	}
	_, err = names.Default().Stmts(f.Stmts)
	var unsupported *names.UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedError", err)
	}
}

func TestDottedHelpers(t *testing.T) {
	if got, want := names.Prefixes("a.b.c"), []string{"a", "a.b"}; !cmp.Equal(got, want) {
		t.Errorf("Prefixes = %v, want %v", got, want)
	}
	if got := names.Root("a.b.c"); got != "a" {
		t.Errorf("Root = %q, want a", got)
	}
	for _, test := range []struct {
		name, prefix string
		want         bool
	}{
		{"a.b", "a", true},
		{"a", "a", true},
		{"ab", "a", false},
		{"a.b", "a.b.c", false},
	} {
		if got := names.HasPrefix(test.name, test.prefix); got != test.want {
			t.Errorf("HasPrefix(%q, %q) = %t, want %t", test.name, test.prefix, got, test.want)
		}
	}
}
