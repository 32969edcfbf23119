// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"

	"github.com/enthought/codetools-sub000/contexts"
)

// env holds the defaults read from the environment, and from a .env
// file in the working directory if there is one.
type env struct {
	DataFile  string // BLOCKS_DATA
	ModuleDir string // BLOCKS_MODULE_DIR
	Workers   int    // BLOCKS_WORKERS
}

func loadEnv() (*env, error) {
	_ = godotenv.Load()

	e := &env{
		DataFile:  strings.TrimSpace(os.Getenv("BLOCKS_DATA")),
		ModuleDir: firstNonEmpty(strings.TrimSpace(os.Getenv("BLOCKS_MODULE_DIR")), "."),
		Workers:   1,
	}
	if raw := strings.TrimSpace(os.Getenv("BLOCKS_WORKERS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("BLOCKS_WORKERS: %w", err)
		}
		e.Workers = n
	}
	return e, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// readData reads the bindings of a YAML file whose top level is a mapping.
func readData(filename string) (starlark.StringDict, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	bindings := make(starlark.StringDict, len(doc))
	for name, x := range doc {
		v, err := contexts.FromGo(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", filename, name, err)
		}
		bindings[name] = v
	}
	return bindings, nil
}

// splitNames splits a comma-separated list of names.
func splitNames(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
