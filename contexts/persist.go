// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contexts

import (
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Version is the format version written by Save.
//
// A version 1 stream holds the bindings as the top-level fields of a
// Struct, with untyped values. A version 2 stream holds them under
// "values", each encoded as a single-field Struct naming its type.
const Version = 2

const versionField = "_context_version"

var nonPicklable = struct {
	sync.RWMutex
	types map[string]bool
}{types: map[string]bool{
	"function":                   true,
	"builtin_function_or_method": true,
	"module":                     true,
}}

// RegisterNonPicklable marks the Starlark type name as one whose
// values Save silently drops.
func RegisterNonPicklable(typeName string) {
	nonPicklable.Lock()
	nonPicklable.types[typeName] = true
	nonPicklable.Unlock()
}

func isNonPicklable(v starlark.Value) bool {
	nonPicklable.RLock()
	defer nonPicklable.RUnlock()
	return nonPicklable.types[v.Type()]
}

// Save writes the bindings of ctx to w. Values of non-picklable types
// are dropped; other values that cannot be encoded are an error.
func Save(w io.Writer, ctx Context) error {
	values := &structpb.Struct{Fields: make(map[string]*structpb.Value)}
	for _, name := range ctx.Keys() {
		v, ok := ctx.Get(name)
		if !ok || isNonPicklable(v) {
			continue
		}
		enc, err := encode(v)
		if err != nil {
			return fmt.Errorf("saving %s: %w", name, err)
		}
		values.Fields[name] = enc
	}
	top := &structpb.Struct{Fields: map[string]*structpb.Value{
		versionField: structpb.NewNumberValue(Version),
		"values":     structpb.NewStructValue(values),
	}}
	data, err := proto.Marshal(top)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// SaveFile saves ctx to the named file.
func SaveFile(filename string, ctx Context) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := Save(f, ctx); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a stream written by Save, or by an earlier format
// version, into a new DataContext configured by opts.
func Load(r io.Reader, opts ...Option) (*DataContext, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var top structpb.Struct
	if err := proto.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("loading context: %w", err)
	}
	version := 1
	if v, ok := top.Fields[versionField]; ok {
		version = int(v.GetNumberValue())
	}
	bindings := make(starlark.StringDict)
	switch version {
	case 1:
		for name, v := range top.Fields {
			if name == versionField {
				continue
			}
			x, err := migrate(v)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", name, err)
			}
			bindings[name] = x
		}
	case 2:
		for name, v := range top.Fields["values"].GetStructValue().GetFields() {
			x, err := decode(v)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", name, err)
			}
			bindings[name] = x
		}
	default:
		return nil, fmt.Errorf("unknown context version %d", version)
	}
	return NewDataContext(append(opts, WithData(bindings))...), nil
}

// LoadFile loads a context from the named file.
func LoadFile(filename string, opts ...Option) (*DataContext, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, opts...)
}

func tagged(tag string, v *structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{tag: v}})
}

func encodeAll(iterable starlark.Iterable) (*structpb.Value, error) {
	list := &structpb.ListValue{}
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		enc, err := encode(x)
		if err != nil {
			return nil, err
		}
		list.Values = append(list.Values, enc)
	}
	return structpb.NewListValue(list), nil
}

func encode(v starlark.Value) (*structpb.Value, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return tagged("none", structpb.NewNullValue()), nil
	case starlark.Bool:
		return tagged("bool", structpb.NewBoolValue(bool(v))), nil
	case starlark.Int:
		return tagged("int", structpb.NewStringValue(v.String())), nil
	case starlark.Float:
		return tagged("float", structpb.NewNumberValue(float64(v))), nil
	case starlark.String:
		return tagged("string", structpb.NewStringValue(string(v))), nil
	case starlark.Bytes:
		return tagged("bytes", structpb.NewStringValue(base64.StdEncoding.EncodeToString([]byte(v)))), nil
	case *starlark.List:
		list, err := encodeAll(v)
		if err != nil {
			return nil, err
		}
		return tagged("list", list), nil
	case starlark.Tuple:
		list, err := encodeAll(v)
		if err != nil {
			return nil, err
		}
		return tagged("tuple", list), nil
	case *starlark.Set:
		list, err := encodeAll(v)
		if err != nil {
			return nil, err
		}
		return tagged("set", list), nil
	case *starlark.Dict:
		pairs := &structpb.ListValue{}
		for _, item := range v.Items() {
			pair, err := encodeAll(item)
			if err != nil {
				return nil, err
			}
			pairs.Values = append(pairs.Values, pair)
		}
		return tagged("dict", structpb.NewListValue(pairs)), nil
	case *starlarkstruct.Struct:
		fields := &structpb.Struct{Fields: make(map[string]*structpb.Value)}
		for _, name := range v.AttrNames() {
			x, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			enc, err := encode(x)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fields.Fields[name] = enc
		}
		return tagged("struct", structpb.NewStructValue(fields)), nil
	}
	return nil, fmt.Errorf("cannot save value of type %s", v.Type())
}

func decodeAll(v *structpb.Value) ([]starlark.Value, error) {
	var elems []starlark.Value
	for _, e := range v.GetListValue().GetValues() {
		x, err := decode(e)
		if err != nil {
			return nil, err
		}
		elems = append(elems, x)
	}
	return elems, nil
}

func decode(v *structpb.Value) (starlark.Value, error) {
	fields := v.GetStructValue().GetFields()
	if len(fields) != 1 {
		return nil, fmt.Errorf("malformed value %v", v)
	}
	var tag string
	var x *structpb.Value
	for t, e := range fields {
		tag, x = t, e
	}
	switch tag {
	case "none":
		return starlark.None, nil
	case "bool":
		return starlark.Bool(x.GetBoolValue()), nil
	case "int":
		n, ok := new(big.Int).SetString(x.GetStringValue(), 10)
		if !ok {
			return nil, fmt.Errorf("malformed int %q", x.GetStringValue())
		}
		return starlark.MakeBigInt(n), nil
	case "float":
		return starlark.Float(x.GetNumberValue()), nil
	case "string":
		return starlark.String(x.GetStringValue()), nil
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(x.GetStringValue())
		if err != nil {
			return nil, err
		}
		return starlark.Bytes(b), nil
	case "list":
		elems, err := decodeAll(x)
		if err != nil {
			return nil, err
		}
		return starlark.NewList(elems), nil
	case "tuple":
		elems, err := decodeAll(x)
		if err != nil {
			return nil, err
		}
		return starlark.Tuple(elems), nil
	case "set":
		elems, err := decodeAll(x)
		if err != nil {
			return nil, err
		}
		set := starlark.NewSet(len(elems))
		for _, e := range elems {
			if err := set.Insert(e); err != nil {
				return nil, err
			}
		}
		return set, nil
	case "dict":
		pairs := x.GetListValue().GetValues()
		d := starlark.NewDict(len(pairs))
		for _, pair := range pairs {
			kv, err := decodeAll(pair)
			if err != nil {
				return nil, err
			}
			if len(kv) != 2 {
				return nil, fmt.Errorf("malformed dict entry %v", pair)
			}
			if err := d.SetKey(kv[0], kv[1]); err != nil {
				return nil, err
			}
		}
		return d, nil
	case "struct":
		members := make(starlark.StringDict)
		for k, attr := range x.GetStructValue().GetFields() {
			e, err := decode(attr)
			if err != nil {
				return nil, err
			}
			members[k] = e
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, members), nil
	}
	return nil, fmt.Errorf("unknown value tag %q", tag)
}

// migrate converts an untyped version 1 value.
func migrate(v *structpb.Value) (starlark.Value, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return fromNumber(k.NumberValue), nil
	case *structpb.Value_ListValue:
		var elems []starlark.Value
		for _, e := range k.ListValue.GetValues() {
			x, err := migrate(e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, x)
		}
		return starlark.NewList(elems), nil
	case *structpb.Value_StructValue:
		fields := k.StructValue.GetFields()
		keys := make([]string, 0, len(fields))
		for name := range fields {
			keys = append(keys, name)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(keys))
		for _, name := range keys {
			x, err := migrate(fields[name])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(name), x); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return FromGo(v.AsInterface())
}
