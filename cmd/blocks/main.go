// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The blocks command runs a Starlark file as a block against a context.
//
// The context starts out with the bindings of a saved context (-load)
// and of a YAML data file (-data). The block, optionally restricted to
// the inputs and outputs named by -in and -out, runs once; then, with
// -i, a read-eval-print loop re-runs it whenever a name changes.
package main // import "github.com/enthought/codetools-sub000/cmd/blocks"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"go.starlark.net/starlark"
	"golang.org/x/term"

	"github.com/enthought/codetools-sub000/block"
	"github.com/enthought/codetools-sub000/contexts"
	"github.com/enthought/codetools-sub000/executing"
	"github.com/enthought/codetools-sub000/loader"
	"github.com/enthought/codetools-sub000/repl"
)

// flags
var (
	execprog    = flag.String("c", "", "execute program `prog`")
	inputs      = flag.String("in", "", "restrict the block to the comma-separated `inputs`")
	outputs     = flag.String("out", "", "restrict the block to the comma-separated `outputs`")
	continueErr = flag.Bool("continue", false, "run every statement even if some fail")
	dataFile    = flag.String("data", "", "read initial bindings from the YAML `file`")
	savePath    = flag.String("save", "", "on success, save the context to `file`")
	loadPath    = flag.String("load", "", "start from the context saved in `file`")
	showenv     = flag.Bool("showenv", false, "on success, print the final context")
	async       = flag.Bool("async", false, "in the REPL, execute in the background")
	interactive = flag.Bool("i", false, "start a read-eval-print loop after running the block")
)

func main() {
	os.Exit(doMain())
}

func doMain() int {
	log.SetPrefix("blocks: ")
	log.SetFlags(0)
	env, err := loadEnv()
	if err != nil {
		log.Print(err)
		return 1
	}
	flag.Parse()

	l := loader.New(env.ModuleDir)
	thread := &starlark.Thread{Load: l.LoadFunc()}

	var ctx *contexts.DataContext
	if *loadPath != "" {
		ctx, err = contexts.LoadFile(*loadPath)
		if err != nil {
			log.Print(err)
			return 1
		}
	} else {
		ctx = contexts.NewDataContext()
	}
	if filename := firstNonEmpty(*dataFile, env.DataFile); filename != "" {
		data, err := readData(filename)
		if err != nil {
			log.Print(err)
			return 1
		}
		if err := ctx.Update(data); err != nil {
			log.Print(err)
			return 1
		}
	}

	var (
		filename string
		src      interface{}
	)
	switch {
	case *execprog != "":
		filename, src = "cmdline", *execprog
	case flag.NArg() == 1:
		filename = flag.Arg(0)
	case flag.NArg() == 0 && *interactive:
		filename, src = "<empty>", ""
	default:
		log.Print("want one Starlark file name, or -c prog")
		return 1
	}
	thread.Name = "exec " + filename

	b, err := block.Parse(filename, src, block.WithLoader(l))
	if err != nil {
		repl.PrintError(err)
		return 1
	}
	if *inputs != "" || *outputs != "" {
		b, err = b.Restrict(splitNames(*inputs), splitNames(*outputs))
		if err != nil {
			log.Print(err)
			return 1
		}
	}

	var opts []block.ExecOption
	if *continueErr {
		opts = append(opts, block.ContinueOnErrors())
	}
	if err := b.Execute(ctx, append(opts, block.WithThread(thread))...); err != nil {
		repl.PrintError(err)
		return 1
	}

	if *interactive {
		if code := interact(thread, ctx, b, l, env.Workers, opts); code != 0 {
			return code
		}
	}

	if *showenv {
		for _, name := range ctx.Keys() {
			if !strings.HasPrefix(name, "_") {
				v, _ := ctx.Get(name)
				fmt.Fprintf(os.Stderr, "%s = %s\n", name, v)
			}
		}
	}
	if *savePath != "" {
		if err := contexts.SaveFile(*savePath, ctx); err != nil {
			log.Print(err)
			return 1
		}
	}
	return 0
}

// interact runs a read-eval-print loop over an executing context on
// ctx, or evaluates standard input if it is not a terminal.
// Executions of b use threads of their own.
func interact(thread *starlark.Thread, ctx contexts.Context, b *block.Block, l *loader.Loader, workers int, opts []block.ExecOption) int {
	var execOpts []executing.Option
	var pool *executing.Pool
	if *async {
		pool = executing.NewPool(workers)
		execOpts = append(execOpts, executing.WithExecutor(pool))
	}
	ex := executing.New(ctx, executing.Code(b, opts...), execOpts...)
	defer ex.Close()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println("Welcome to blocks (go.starlark.net)")
		thread.Name = "REPL"
		repl.REPL(thread, ex, block.WithLoader(l))
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Print(err)
			return 1
		}
		f, err := block.FileOptions().Parse("<stdin>", data, 0)
		if err != nil {
			repl.PrintError(err)
			return 1
		}
		cancel := ex.Listen(func(ev *contexts.Event) { repl.PrintEvent(os.Stdout, ex, ev) })
		defer cancel()
		if err := repl.Eval(os.Stdout, thread, ex, f, block.WithLoader(l)); err != nil {
			repl.PrintError(err)
			return 1
		}
	}
	if pool != nil {
		if err := ex.Wait(context.Background()); err != nil {
			repl.PrintError(err)
		}
		if err := pool.Close(); err != nil {
			log.Print(err)
			return 1
		}
	}
	return 0
}
