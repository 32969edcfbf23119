// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chunkedfile reads golden test files made of several chunks
// of Starlark source separated by "---" lines.
//
// Two kinds of annotation may appear in a chunk. A line containing
// "###" expects a failure on that line: the rest of the line is a Go
// string literal holding a regular expression that the failure message
// must match. A line of the form
//
//	#: key name1 name2 ...
//
// records the expected set of names for the given key; a key with no
// names expects the empty set. Example:
//
//	x = a + 1
//	#: free a
//	#: locals x
//	---
//	return x ### "outside a function"
//
// A client test analyzes each chunk, compares Want(key) with what it
// computed, calls GotError for each failure, and finally Done.
package chunkedfile // import "github.com/enthought/codetools-sub000/internal/chunkedfile"

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// A Chunk is a portion of a golden file.
type Chunk struct {
	Source   string
	filename string
	report   Reporter
	want     map[string][]string
	wantErrs map[int]*regexp.Regexp
}

// Reporter is implemented by *testing.T.
type Reporter interface {
	Errorf(format string, args ...interface{})
}

// Read parses a chunked file and returns its chunks.
// Line numbers within each chunk's Source match the original file.
func Read(filename string, report Reporter) (chunks []Chunk) {
	data, err := os.ReadFile(filename)
	if err != nil {
		report.Errorf("%s", err)
		return
	}
	return readBytes(filename, data, report)
}

func readBytes(filename string, data []byte, report Reporter) (chunks []Chunk) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	linenum := 1
	for _, chunk := range strings.Split(text, "\n---\n") {
		c := Chunk{
			Source:   strings.Repeat("\n", linenum-1) + chunk,
			filename: filename,
			report:   report,
			want:     make(map[string][]string),
			wantErrs: make(map[int]*regexp.Regexp),
		}
		for _, line := range strings.Split(chunk, "\n") {
			c.annotate(linenum, line)
			linenum++
		}
		linenum++ // the "---" separator
		chunks = append(chunks, c)
	}
	return chunks
}

func (c *Chunk) annotate(linenum int, line string) {
	if i := strings.Index(line, "###"); i >= 0 {
		rest := strings.TrimSpace(line[i+len("###"):])
		pattern, err := strconv.Unquote(rest)
		if err != nil {
			c.report.Errorf("\n%s:%d: not a quoted regexp: %s", c.filename, linenum, rest)
			return
		}
		rx, err := regexp.Compile(pattern)
		if err != nil {
			c.report.Errorf("\n%s:%d: %v", c.filename, linenum, err)
			return
		}
		c.wantErrs[linenum] = rx
		return
	}
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#:") {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(trimmed, "#:"))
	if len(fields) == 0 {
		c.report.Errorf("\n%s:%d: annotation without a key", c.filename, linenum)
		return
	}
	names := append([]string{}, fields[1:]...)
	sort.Strings(names)
	c.want[fields[0]] = names
}

// Want returns the sorted names expected for key, and whether the
// chunk annotates key at all.
func (c *Chunk) Want(key string) ([]string, bool) {
	names, ok := c.want[key]
	return names, ok
}

// GotError should be called by the client to report an error at a particular line.
// GotError reports unexpected errors to the chunk's reporter.
func (c *Chunk) GotError(linenum int, msg string) {
	if rx, ok := c.wantErrs[linenum]; ok {
		delete(c.wantErrs, linenum)
		if !rx.MatchString(msg) {
			c.report.Errorf("\n%s:%d: error %q does not match pattern %q", c.filename, linenum, msg, rx)
		}
	} else {
		c.report.Errorf("\n%s:%d: unexpected error: %v", c.filename, linenum, msg)
	}
}

// Done should be called by the client to indicate that the chunk has no more errors.
// Done reports expected errors that did not occur to the chunk's reporter.
func (c *Chunk) Done() {
	for linenum, rx := range c.wantErrs {
		c.report.Errorf("\n%s:%d: expected error matching %q", c.filename, linenum, rx)
	}
}
