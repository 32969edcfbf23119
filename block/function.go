// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
)

// Function returns a Starlark built-in that computes outputs from
// inputs using b. Its parameters are the inputs, in order; it returns
// the single output, or a tuple of the outputs.
//
// The built-in runs the restriction of b to inputs and outputs, or all
// of b if b cannot be restricted.
func (b *Block) Function(name string, inputs, outputs []string) (*starlark.Builtin, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("function %s: no outputs", name)
	}
	code := b
	if len(inputs) > 0 {
		r, err := b.Restrict(inputs, outputs)
		var unfit *UnfitError
		switch {
		case errors.As(err, &unfit):
		case err != nil:
			return nil, fmt.Errorf("function %s: %w", name, err)
		default:
			code = r
		}
	}
	inputs = append([]string(nil), inputs...)
	outputs = append([]string(nil), outputs...)

	impl := func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		values := make([]starlark.Value, len(inputs))
		pairs := make([]interface{}, 0, 2*len(inputs))
		for i, in := range inputs {
			pairs = append(pairs, in, &values[i])
		}
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, pairs...); err != nil {
			return nil, err
		}
		env := make(Dict, len(inputs))
		for i, in := range inputs {
			env[in] = values[i]
		}
		if err := code.Execute(env, WithThread(thread)); err != nil {
			return nil, err
		}
		results := make(starlark.Tuple, len(outputs))
		for i, out := range outputs {
			v, ok := env[out]
			if !ok {
				return nil, fmt.Errorf("%s: output %s was not bound", fn.Name(), out)
			}
			results[i] = v
		}
		if len(results) == 1 {
			return results[0], nil
		}
		return results, nil
	}
	return starlark.NewBuiltin(name, impl), nil
}
