// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contexts_test

import (
	"bytes"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/enthought/codetools-sub000/contexts"
)

// summary formats an event as "+added -removed ~modified".
func summary(ev *contexts.Event) string {
	var parts []string
	for _, x := range ev.Added {
		parts = append(parts, "+"+x)
	}
	for _, x := range ev.Removed {
		parts = append(parts, "-"+x)
	}
	for _, x := range ev.Modified {
		parts = append(parts, "~"+x)
	}
	return strings.Join(parts, " ")
}

func isInt(v starlark.Value, want int) bool {
	x, err := starlark.AsInt32(v)
	return err == nil && x == want
}

// record collects the summaries of the events of ctx.
func record(ctx contexts.Context) *[]string {
	var got []string
	ctx.Listen(func(ev *contexts.Event) { got = append(got, summary(ev)) })
	return &got
}

func TestEmitterMerge(t *testing.T) {
	for _, test := range []struct {
		ops  string
		want string
	}{
		{"+x -x", ""},
		{"+x ~x", "+x"},
		{"~x -x", "-x"},
		{"-x +x", "~x"},
		{"+x -x +x", "+x"},
		{"~x ~x ~x", "~x"},
		{"+x +y -x ~z", "+y ~z"},
	} {
		var em contexts.Emitter
		var got []string
		em.Listen(func(ev *contexts.Event) { got = append(got, summary(ev)) })
		em.DeferEvents(nil, true)
		for _, op := range strings.Fields(test.ops) {
			name := []string{op[1:]}
			switch op[0] {
			case '+':
				em.Record(nil, name, nil, nil)
			case '-':
				em.Record(nil, nil, name, nil)
			case '~':
				em.Record(nil, nil, nil, name)
			}
		}
		if len(got) != 0 {
			t.Errorf("%s: events delivered while deferred: %q", test.ops, got)
		}
		em.DeferEvents(nil, false)
		var want []string
		if test.want != "" {
			want = []string{test.want}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: events (-want +got):\n%s", test.ops, diff)
		}
	}
}

func TestDeferEvents(t *testing.T) {
	c := contexts.NewDataContext(contexts.WithData(starlark.StringDict{"old": starlark.MakeInt(0)}))
	got := record(c)

	if prev := c.DeferEvents(true); prev {
		t.Errorf("DeferEvents(true) = %t, want false", prev)
	}
	if prev := c.DeferEvents(false); !prev {
		t.Errorf("DeferEvents(false) = %t, want true", prev)
	}
	if len(*got) != 0 {
		t.Fatalf("empty deferral emitted %q", *got)
	}

	c.DeferEvents(true)
	c.Set("tmp", starlark.MakeInt(1))
	c.Delete("tmp")
	c.DeferEvents(false)
	if len(*got) != 0 {
		t.Fatalf("add then remove emitted %q", *got)
	}

	c.DeferEvents(true)
	for i := 0; i < 3; i++ {
		c.Set("b", starlark.MakeInt(i))
	}
	c.Set("old", starlark.MakeInt(1))
	c.DeferEvents(false)

	c.DeferEvents(true)
	c.Set("old", starlark.MakeInt(2))
	c.Delete("old")
	c.DeferEvents(false)

	c.Set("b", starlark.MakeInt(9))

	want := []string{"+b ~old", "-old", "~b"}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}

	var keyErr *contexts.KeyError
	if err := c.Delete("old"); !errors.As(err, &keyErr) || keyErr.Name != "old" {
		t.Errorf("Delete of unbound name returned %v, want KeyError", err)
	}
}

func TestVeto(t *testing.T) {
	c := contexts.NewDataContext()
	var (
		first  *contexts.Event
		second bool
	)
	c.Listen(func(ev *contexts.Event) {
		if ev.Vetoed() {
			t.Error("event vetoed before any listener ran")
		}
		first = ev
		ev.Veto()
	})
	c.Listen(func(ev *contexts.Event) { second = true })
	c.Set("x", starlark.None)
	if second {
		t.Error("listener after a veto was called")
	}
	if first == nil || !first.Vetoed() {
		t.Error("event not marked vetoed")
	}
}

func TestEventEmpty(t *testing.T) {
	for _, test := range []struct {
		ev   contexts.Event
		want bool
	}{
		{contexts.Event{}, true},
		{contexts.Event{Added: []string{"a"}}, false},
		{contexts.Event{Removed: []string{"a"}}, false},
		{contexts.Event{Modified: []string{"a"}}, false},
		{contexts.Event{Err: errors.New("failed")}, false},
	} {
		if got := test.ev.Empty(); got != test.want {
			t.Errorf("%+v.Empty() = %t, want %t", test.ev, got, test.want)
		}
	}

	// Setting and deleting a name while deferred leaves nothing to deliver.
	c := contexts.NewDataContext()
	events := record(c)
	c.DeferEvents(true)
	c.Set("x", starlark.None)
	c.Delete("x")
	c.DeferEvents(false)
	if len(*events) != 0 {
		t.Errorf("got events %q, want none", *events)
	}
}

func TestListenCancel(t *testing.T) {
	c := contexts.NewDataContext()
	n := 0
	cancel := c.Listen(func(*contexts.Event) { n++ })
	c.Set("x", starlark.None)
	cancel()
	c.Set("x", starlark.True)
	if n != 1 {
		t.Errorf("listener called %d times, want 1", n)
	}
}

func TestUpdate(t *testing.T) {
	c := contexts.NewDataContext(
		contexts.WithData(starlark.StringDict{"a": starlark.MakeInt(1)}),
		contexts.WithPolicy(contexts.AllowTypes("int")))
	got := record(c)
	err := c.Update(starlark.StringDict{"a": starlark.MakeInt(2), "b": starlark.MakeInt(3)})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"+b ~a"}, *got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}

	err = c.Update(starlark.StringDict{"c": starlark.MakeInt(4), "d": starlark.String("no")})
	var disallowed *contexts.DisallowedError
	if !errors.As(err, &disallowed) || disallowed.Name != "d" {
		t.Fatalf("Update returned %v, want DisallowedError for d", err)
	}
	if c.Has("c") {
		t.Error("refused Update made a binding")
	}
	if diff := cmp.Diff([]string{"a", "b"}, c.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestCheckpoint(t *testing.T) {
	list := starlark.NewList([]starlark.Value{starlark.MakeInt(1)})
	c := contexts.NewDataContext(contexts.WithData(starlark.StringDict{"l": list}))
	cp, err := c.Checkpoint()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := cp.Get("l"); v != list {
		t.Errorf("checkpoint holds %v, want the original list", v)
	}
	cp.Set("x", starlark.None)
	if c.Has("x") {
		t.Error("write to checkpoint changed the original")
	}
}

func TestMultiContext(t *testing.T) {
	ints := contexts.NewDataContext(contexts.WithPolicy(contexts.AllowTypes("int")))
	other := contexts.NewDataContext()
	m := contexts.NewMultiContext(ints, other)
	defer m.Close()
	got := record(m)

	mustSet := func(ctx contexts.Context, name string, v starlark.Value) {
		t.Helper()
		if err := ctx.Set(name, v); err != nil {
			t.Fatal(err)
		}
	}

	mustSet(m, "a", starlark.MakeInt(1))
	if !ints.Has("a") || other.Has("a") {
		t.Fatal("int was not routed to the first context")
	}
	mustSet(m, "a", starlark.String("s"))
	if ints.Has("a") || !other.Has("a") {
		t.Fatal("string was not routed to the second context, or the shadowing binding survived")
	}

	// Direct writes to the members.
	mustSet(other, "b", starlark.String("y"))
	mustSet(ints, "a", starlark.MakeInt(2))
	mustSet(other, "a", starlark.String("z")) // shadowed by ints
	if err := ints.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Get("a"); v != starlark.String("z") {
		t.Errorf("a = %v after deleting the shadowing binding, want \"z\"", v)
	}

	if err := m.Delete("b"); err != nil {
		t.Fatal(err)
	}
	var keyErr *contexts.KeyError
	if err := m.Delete("nope"); !errors.As(err, &keyErr) {
		t.Errorf("Delete(nope) returned %v, want KeyError", err)
	}

	want := []string{"+a", "~a", "+b", "~a", "~a", "-b"}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, m.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}

	only := contexts.NewMultiContext(ints)
	var disallowed *contexts.DisallowedError
	if err := only.Set("s", starlark.String("x")); !errors.As(err, &disallowed) {
		t.Errorf("Set returned %v, want DisallowedError", err)
	}
}

func TestMultiSetFails(t *testing.T) {
	strs := contexts.NewDataContext(
		contexts.WithPolicy(contexts.AllowTypes("string")),
		contexts.WithData(starlark.StringDict{"x": starlark.String("s")}),
	)
	locked := contexts.NewAdaptedContext(contexts.NewDataContext(), contexts.NewReadOnly("x"))
	defer locked.Close()
	m := contexts.NewMultiContext(strs, locked)
	defer m.Close()

	var disallowed *contexts.DisallowedError
	if err := m.Set("x", starlark.MakeInt(1)); !errors.As(err, &disallowed) {
		t.Fatalf("Set(x) returned %v, want DisallowedError", err)
	}
	if v, ok := m.Get("x"); !ok || v != starlark.String("s") {
		t.Errorf("x = %v after a failed write, want \"s\"", v)
	}
}

func TestMultiCheckpoint(t *testing.T) {
	a := contexts.NewDataContext(contexts.WithData(starlark.StringDict{"x": starlark.MakeInt(1)}))
	m := contexts.NewMultiContext(a, contexts.NewDataContext())
	cp, err := m.Checkpoint()
	if err != nil {
		t.Fatal(err)
	}
	if err := cp.Set("x", starlark.MakeInt(2)); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Get("x"); !isInt(v, 1) {
		t.Errorf("x = %v in the original, want 1", v)
	}
	if _, ok := cp.(*contexts.MultiContext); !ok {
		t.Errorf("checkpoint is %T, want *MultiContext", cp)
	}
}

func TestAdaptedContext(t *testing.T) {
	base := contexts.NewDataContext(contexts.WithData(starlark.StringDict{"x": starlark.MakeInt(1)}))
	var trace []string
	tracer := func(label string) contexts.Funcs {
		return contexts.Funcs{
			Get: func(name string, v starlark.Value) starlark.Value {
				trace = append(trace, "get "+label)
				return v
			},
			Set: func(name string, v starlark.Value) (starlark.Value, error) {
				trace = append(trace, "set "+label)
				return v, nil
			},
		}
	}
	c := contexts.NewAdaptedContext(base, tracer("near"), tracer("far"))
	defer c.Close()

	c.Get("x")
	c.Set("y", starlark.MakeInt(2))
	want := []string{"get near", "get far", "set far", "set near"}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("adapter order (-want +got):\n%s", diff)
	}

	c.Push(contexts.NameMap{"alias": "x"})
	if v, ok := c.Get("alias"); !ok || !isInt(v, 1) {
		t.Errorf("Get(alias) = %v, %t", v, ok)
	}
	if diff := cmp.Diff([]string{"alias", "x", "y"}, c.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if err := c.Set("alias", starlark.MakeInt(5)); err != nil {
		t.Fatal(err)
	}
	if v, _ := base.Get("x"); !isInt(v, 5) {
		t.Errorf("write through alias left x = %v", v)
	}
	if _, ok := c.Pop().(contexts.NameMap); !ok {
		t.Error("Pop did not return the NameMap")
	}

	c.Push(contexts.NewReadOnly("x"))
	var disallowed *contexts.DisallowedError
	if err := c.Set("x", starlark.None); !errors.As(err, &disallowed) {
		t.Errorf("Set(x) returned %v, want DisallowedError", err)
	}
	if err := c.Set("z", starlark.None); err != nil {
		t.Errorf("Set(z) returned %v", err)
	}
	c.Pop()

	var from contexts.Context
	c.Listen(func(ev *contexts.Event) { from = ev.Context })
	base.Set("w", starlark.None)
	if from != contexts.Context(c) {
		t.Errorf("forwarded event has context %v, want the adapted context", from)
	}
}

func TestAdaptedEvents(t *testing.T) {
	base := contexts.NewDataContext()
	c := contexts.NewAdaptedContext(base, contexts.NameMap{"alias": "x"})
	defer c.Close()
	events := record(c)

	if err := c.Set("alias", starlark.MakeInt(1)); err != nil {
		t.Fatal(err)
	}
	base.Set("x", starlark.MakeInt(2))
	base.Set("y", starlark.MakeInt(3))
	c.Delete("alias")
	want := []string{"+alias +x", "~alias ~x", "+y", "-alias -x"}
	if diff := cmp.Diff(want, *events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestAdaptedValues(t *testing.T) {
	base := contexts.NewDataContext(contexts.WithData(starlark.StringDict{"m": starlark.MakeInt(2000)}))
	km := contexts.Funcs{
		Get: func(name string, v starlark.Value) starlark.Value {
			x, _ := starlark.AsInt32(v)
			return starlark.MakeInt(x / 1000)
		},
		Set: func(name string, v starlark.Value) (starlark.Value, error) {
			x, _ := starlark.AsInt32(v)
			return starlark.MakeInt(x * 1000), nil
		},
	}
	c := contexts.NewAdaptedContext(base, km)
	if v, _ := c.Get("m"); !isInt(v, 2) {
		t.Errorf("m = %v, want 2", v)
	}
	c.Set("m", starlark.MakeInt(3))
	if v, _ := base.Get("m"); !isInt(v, 3000) {
		t.Errorf("base m = %v, want 3000", v)
	}
	if cp, err := c.Checkpoint(); err != nil {
		t.Fatal(err)
	} else if _, ok := cp.(*contexts.AdaptedContext); !ok {
		t.Error("checkpoint of an AdaptedContext is not adapted")
	}
}

func reprs(ctx contexts.Context) map[string]string {
	m := make(map[string]string)
	for _, name := range ctx.Keys() {
		v, _ := ctx.Get(name)
		m[name] = v.String()
	}
	return m
}

func TestSaveLoad(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	dict := starlark.NewDict(2)
	dict.SetKey(starlark.String("k"), starlark.MakeInt(1))
	dict.SetKey(starlark.MakeInt(2), starlark.Tuple{starlark.True})
	set := starlark.NewSet(2)
	set.Insert(starlark.MakeInt(1))
	set.Insert(starlark.String("a"))
	c := contexts.NewDataContext(contexts.WithData(starlark.StringDict{
		"n":     starlark.MakeInt(-3),
		"big":   starlark.MakeBigInt(huge),
		"f":     starlark.Float(0.5),
		"s":     starlark.String("text"),
		"b":     starlark.Bytes("\x00\xff"),
		"none":  starlark.None,
		"t":     starlark.True,
		"list":  starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.NewList(nil)}),
		"dict":  dict,
		"set":   set,
		"point": starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{"x": starlark.MakeInt(1)}),
		"fn":    starlark.NewBuiltin("fn", nil),
	}))
	var buf bytes.Buffer
	if err := contexts.Save(&buf, c); err != nil {
		t.Fatal(err)
	}
	loaded, err := contexts.Load(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := reprs(c)
	delete(want, "fn")
	if diff := cmp.Diff(want, reprs(loaded)); diff != "" {
		t.Errorf("loaded context (-want +got):\n%s", diff)
	}
}

func TestSaveUnsupported(t *testing.T) {
	c := contexts.NewDataContext(contexts.WithData(starlark.StringDict{
		"l": starlark.NewList([]starlark.Value{starlark.NewBuiltin("fn", nil)}),
	}))
	err := contexts.Save(new(bytes.Buffer), c)
	if err == nil || !strings.Contains(err.Error(), "cannot save value of type builtin_function_or_method") {
		t.Errorf("Save returned %v", err)
	}
}

func TestSaveFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "ctx.pb")
	c := contexts.NewDataContext(contexts.WithData(starlark.StringDict{"x": starlark.MakeInt(7)}))
	if err := contexts.SaveFile(filename, c); err != nil {
		t.Fatal(err)
	}
	loaded, err := contexts.LoadFile(filename, contexts.WithPolicy(contexts.AllowTypes("int")))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := loaded.Get("x"); !isInt(v, 7) {
		t.Errorf("x = %v, want 7", v)
	}
	if loaded.Allows(starlark.None, "y") {
		t.Error("policy option was not applied")
	}
}

func marshal(t *testing.T, fields map[string]interface{}) *bytes.Buffer {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatal(err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(data)
}

func TestLoadVersion1(t *testing.T) {
	for _, withVersion := range []bool{false, true} {
		fields := map[string]interface{}{
			"n": 3.0,
			"f": 2.5,
			"s": "x",
			"l": []interface{}{1.0, "a", nil},
			"d": map[string]interface{}{"k": true},
		}
		if withVersion {
			fields["_context_version"] = 1.0
		}
		c, err := contexts.Load(marshal(t, fields))
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]string{
			"n": "3",
			"f": "2.5",
			"s": `"x"`,
			"l": `[1, "a", None]`,
			"d": `{"k": True}`,
		}
		if diff := cmp.Diff(want, reprs(c)); diff != "" {
			t.Errorf("migrated context (-want +got):\n%s", diff)
		}
	}

	_, err := contexts.Load(marshal(t, map[string]interface{}{"_context_version": 9.0}))
	if err == nil || !strings.Contains(err.Error(), "unknown context version 9") {
		t.Errorf("Load of version 9 returned %v", err)
	}
}

func TestFromGo(t *testing.T) {
	v, err := contexts.FromGo(map[string]interface{}{
		"b": 1,
		"a": []interface{}{true, nil, 1.5, []byte("x")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v.String(), `{"a": [True, None, 1.5, b"x"], "b": 1}`; got != want {
		t.Errorf("FromGo = %s, want %s", got, want)
	}
	if _, err := contexts.FromGo(struct{}{}); err == nil {
		t.Error("FromGo(struct{}{}) succeeded")
	}

	back, err := contexts.ToGo(v)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"a": []interface{}{true, nil, 1.5, []byte("x")},
		"b": int64(1),
	}
	if diff := cmp.Diff(want, back); diff != "" {
		t.Errorf("ToGo (-want +got):\n%s", diff)
	}
}
