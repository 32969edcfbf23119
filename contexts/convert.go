// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contexts

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// FromGo converts plain Go data, as decoded from YAML or JSON, to a
// Starlark value. Maps become dicts and slices become lists.
func FromGo(x interface{}) (starlark.Value, error) {
	switch x := x.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int32:
		return starlark.MakeInt64(int64(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint:
		return starlark.MakeUint(x), nil
	case uint32:
		return starlark.MakeUint64(uint64(x)), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case float32:
		return starlark.Float(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []byte:
		return starlark.Bytes(x), nil
	case []interface{}:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			v, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(x))
		for _, k := range keys {
			v, err := FromGo(x[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), v); err != nil {
				return nil, err
			}
		}
		return d, nil
	case map[interface{}]interface{}:
		d := starlark.NewDict(len(x))
		for k, e := range x {
			kv, err := FromGo(k)
			if err != nil {
				return nil, err
			}
			v, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(kv, v); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot convert %T to a Starlark value", x)
}

// fromNumber converts a number of an untyped stream, in which
// integers are stored as floats.
func fromNumber(f float64) starlark.Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return starlark.MakeInt64(int64(f))
	}
	return starlark.Float(f)
}

// ToGo converts a Starlark value to plain Go data suitable for
// encoding as YAML or JSON. Dict keys are converted to strings.
func ToGo(v starlark.Value) (interface{}, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.String(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Bytes:
		return []byte(v), nil
	case *starlark.Dict:
		m := make(map[string]interface{}, v.Len())
		for _, item := range v.Items() {
			e, err := ToGo(item[1])
			if err != nil {
				return nil, err
			}
			if s, ok := item[0].(starlark.String); ok {
				m[string(s)] = e
			} else {
				m[item[0].String()] = e
			}
		}
		return m, nil
	case *starlarkstruct.Struct:
		m := make(map[string]interface{})
		for _, name := range v.AttrNames() {
			x, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			e, err := ToGo(x)
			if err != nil {
				return nil, err
			}
			m[name] = e
		}
		return m, nil
	case starlark.Iterable:
		var list []interface{}
		iter := v.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			e, err := ToGo(x)
			if err != nil {
				return nil, err
			}
			list = append(list, e)
		}
		return list, nil
	}
	return v.String(), nil
}
