// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package executing

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// An Executor runs submitted tasks. Submit must not wait for the task
// to finish, except in the Inline executor.
type Executor interface {
	Submit(task func())
}

// Inline is an Executor that runs each task on the submitting goroutine.
var Inline Executor = inline{}

type inline struct{}

func (inline) Submit(task func()) { task() }

// A Pool is an Executor that runs tasks on goroutines, at most n at a time.
type Pool struct {
	g   errgroup.Group
	sem *semaphore.Weighted
}

// NewPool returns a Pool that runs at most n tasks at once.
// A non-positive n means no limit.
func NewPool(n int) *Pool {
	p := new(Pool)
	if n > 0 {
		p.sem = semaphore.NewWeighted(int64(n))
	}
	return p
}

// Submit starts task once a slot is free. It does not block.
func (p *Pool) Submit(task func()) {
	p.g.Go(func() error {
		if p.sem != nil {
			if err := p.sem.Acquire(context.Background(), 1); err != nil {
				return err
			}
			defer p.sem.Release(1)
		}
		task()
		return nil
	})
}

// Close waits for the submitted tasks to finish.
func (p *Pool) Close() error { return p.g.Wait() }
