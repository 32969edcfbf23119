// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"fmt"
	"strings"

	"github.com/enthought/codetools-sub000/depgraph"
)

// ErrEmptyRestriction is returned by Restrict when neither inputs
// nor outputs are given.
var ErrEmptyRestriction = depgraph.ErrEmptyRestriction

// An UnknownInputError reports restriction inputs that the block
// neither reads nor binds.
type UnknownInputError struct {
	Names []string
}

func (e *UnknownInputError) Error() string {
	return "unknown restriction inputs: " + strings.Join(e.Names, ", ")
}

// An UnknownOutputError reports restriction outputs that the block
// does not bind.
type UnknownOutputError struct {
	Names []string
}

func (e *UnknownOutputError) Error() string {
	return "unknown restriction outputs: " + strings.Join(e.Names, ", ")
}

// An UnfitError reports a sub-block that both reads and binds the same
// plain name, which makes its block unfit for restriction.
type UnfitError struct {
	Block *Block
	Names []string
}

func (e *UnfitError) Error() string {
	return fmt.Sprintf("block cannot be restricted: %s both reads and binds %s",
		e.Block.label(), strings.Join(e.Names, ", "))
}

// An ImportError reports a module that could not be loaded while
// expanding a wildcard load.
type ImportError struct {
	Module string
	Err    error
}

func (e *ImportError) Error() string { return fmt.Sprintf("load %q: %v", e.Module, e.Err) }
func (e *ImportError) Unwrap() error { return e.Err }

// A NameError reports a read of a name that is not bound.
type NameError struct {
	Name string
	Err  error // the underlying evaluation error
}

func (e *NameError) Error() string { return fmt.Sprintf("name %q is not defined", e.Name) }
func (e *NameError) Unwrap() error { return e.Err }

// An ExecutionError reports the failure of one sub-block during
// an execution that continues on errors.
type ExecutionError struct {
	Block     *Block
	Err       error
	Traceback string // the Starlark backtrace, if any
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %s: %v", e.Block.label(), e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// An AggregateError collects the failures of an execution that
// continued on errors.
type AggregateError struct {
	Errors []*ExecutionError
}

func (e *AggregateError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d sub-blocks failed:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n\t")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap returns the collected errors, for errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}
