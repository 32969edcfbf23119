// Copyright 2026 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block wraps Starlark code fragments as analyzable,
// restrictable and executable units.
//
// A Block is a list of statements together with the names it reads
// (Inputs), the names it binds on every path (Outputs) and the names it
// binds on some paths only (ConditionalOutputs). A Block with several
// statements is decomposed into an ordered list of sub-blocks, one per
// top-level statement, whose data flow forms a dependency graph. The
// Restrict method uses that graph to produce the smallest Block that
// recomputes a chosen set of outputs from a chosen set of inputs.
//
// Blocks are compared by identity: each Block has a UUID that
// survives edits of its statements.
package block // import "github.com/enthought/codetools-sub000/block"

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.starlark.net/syntax"

	"github.com/enthought/codetools-sub000/depgraph"
	"github.com/enthought/codetools-sub000/names"
)

// A Block is an analyzed fragment of Starlark code.
//
// A Block is safe for concurrent use, but editing its statements while
// it executes in another goroutine yields unspecified results.
type Block struct {
	id       uuid.UUID
	cfg      *config
	filename string // origin of the code
	source   string // text of a single-statement block, if known
	stub     bool   // a "name = name" re-binding made by Restrict

	mu    sync.Mutex
	stmts []syntax.Stmt
	subs  []*Block // nil for a block of at most one statement

	// derived state, reset by invalidate
	names    *names.Result
	graph    *depgraph.Graph
	graphErr error
	units    []*Block // sub-blocks of graph, by unit index
	segments []*segment
	memo     *lru.Cache[string, *Block]
}

// A NamedReader is a source of code that knows its file name,
// such as an *os.File.
type NamedReader interface {
	io.Reader
	Name() string
}

// Parse parses a Starlark fragment and returns its Block.
//
// The src argument may be a string, a []byte or an io.Reader.
// If src is nil, the code is read from the named file.
func Parse(filename string, src interface{}, opts ...Option) (*Block, error) {
	cfg := newConfig(opts)
	data, err := readSource(filename, src)
	if err != nil {
		return nil, err
	}
	f, err := cfg.fileOptions.Parse(filename, data, 0)
	if err != nil {
		return nil, err
	}
	sources := make([]string, len(f.Stmts))
	for i, stmt := range f.Stmts {
		start, end := stmt.Span()
		sources[i] = extract(data, start, end)
	}
	return build(cfg, filename, f.Stmts, sources)
}

// ReadFrom parses the fragment read from r, using r's name as the
// file name.
func ReadFrom(r NamedReader, opts ...Option) (*Block, error) {
	return Parse(r.Name(), r, opts...)
}

// FromFile returns the Block of a parsed file.
func FromFile(f *syntax.File, opts ...Option) (*Block, error) {
	return FromStmts(f.Path, f.Stmts, opts...)
}

// FromStmts returns the Block of a list of statements.
// The statements are not copied and must not be modified afterwards
// except through SetStmts.
func FromStmts(filename string, stmts []syntax.Stmt, opts ...Option) (*Block, error) {
	return build(newConfig(opts), filename, stmts, nil)
}

// Concat returns a Block whose sub-blocks are the specified blocks.
// The blocks keep their identities and origins. The new Block uses the
// options of the first block.
func Concat(blocks ...*Block) (*Block, error) {
	cfg := newConfig(nil)
	filename := ""
	if len(blocks) > 0 {
		cfg = blocks[0].cfg
		filename = blocks[0].filename
	}
	return composite(cfg, filename, blocks)
}

// New returns the Block of x, which must be one of: a string or []byte
// of source code, a NamedReader or io.Reader, a *syntax.File, a
// syntax.Stmt or []syntax.Stmt, a *Block or a []*Block.
func New(x interface{}, opts ...Option) (*Block, error) {
	switch x := x.(type) {
	case string:
		return Parse("<string>", x, opts...)
	case []byte:
		return Parse("<string>", x, opts...)
	case NamedReader:
		return ReadFrom(x, opts...)
	case io.Reader:
		return Parse("<reader>", x, opts...)
	case *syntax.File:
		return FromFile(x, opts...)
	case syntax.Stmt:
		return FromStmts("<ast>", []syntax.Stmt{x}, opts...)
	case []syntax.Stmt:
		return FromStmts("<ast>", x, opts...)
	case *Block:
		return Concat(x)
	case []*Block:
		return Concat(x...)
	}
	return nil, fmt.Errorf("block.New: unsupported type %T", x)
}

func readSource(filename string, src interface{}) ([]byte, error) {
	switch src := src.(type) {
	case nil:
		return os.ReadFile(filename)
	case string:
		return []byte(src), nil
	case []byte:
		return src, nil
	case io.Reader:
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filename, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("invalid source: %T", src)
}

// build makes the Block of stmts, one sub-block per statement.
// sources, if non-nil, holds the text of each statement.
func build(cfg *config, filename string, stmts []syntax.Stmt, sources []string) (*Block, error) {
	var subs []*Block
	for i, stmt := range stmts {
		stmt, ok, err := expandWildcard(cfg, stmt)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		sub := newBlock(cfg, filename)
		sub.stmts = []syntax.Stmt{stmt}
		if i < len(sources) {
			sub.source = sources[i]
		}
		subs = append(subs, sub)
	}
	if len(subs) == 1 {
		return subs[0], subs[0].check()
	}
	return composite(cfg, filename, subs)
}

func composite(cfg *config, filename string, subs []*Block) (*Block, error) {
	b := newBlock(cfg, filename)
	b.setSubs(subs)
	return b, b.check()
}

func newBlock(cfg *config, filename string) *Block {
	memo, err := lru.New[string, *Block](cfg.memoSize)
	if err != nil {
		panic(err) // memoSize is positive
	}
	return &Block{
		id:       uuid.New(),
		cfg:      cfg,
		filename: filename,
		memo:     memo,
	}
}

// check reports the analysis error of b, if any.
func (b *Block) check() error {
	_, err := b.analysis()
	return err
}

// ID returns the identity of b.
func (b *Block) ID() uuid.UUID { return b.id }

// Equal reports whether b and other are the same block.
func (b *Block) Equal(other *Block) bool { return other != nil && b.id == other.id }

// Filename returns the name of the file b came from.
func (b *Block) Filename() string { return b.filename }

// String returns a short description of b.
func (b *Block) String() string {
	return fmt.Sprintf("<block %s %s>", b.filename, b.id)
}

// Source returns the source text of b's statements, where known.
func (b *Block) Source() string {
	subs := b.SubBlocks()
	if len(subs) == 1 && subs[0] == b {
		return b.source
	}
	var texts []string
	for _, sub := range subs {
		if text := sub.Source(); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

// Stmts returns the statements of b.
func (b *Block) Stmts() []syntax.Stmt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]syntax.Stmt(nil), b.stmts...)
}

// SubBlocks returns the sub-blocks of b. A block of one statement is
// its own only sub-block.
func (b *Block) SubBlocks() []*Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subBlocks()
}

func (b *Block) subBlocks() []*Block {
	switch {
	case b.subs != nil:
		return append([]*Block(nil), b.subs...)
	case len(b.stmts) == 1:
		return []*Block{b}
	}
	return nil
}

// SetStmts replaces the statements of b. The sub-blocks are derived
// anew, except that a statement already held by a sub-block keeps
// that sub-block.
func (b *Block) SetStmts(stmts []syntax.Stmt) error {
	stmts, err := expandWildcards(b.cfg, stmts)
	if err != nil {
		return err
	}
	b.mu.Lock()
	old := make(map[syntax.Stmt]*Block)
	for _, sub := range b.subs {
		if s := sub.Stmts(); len(s) == 1 {
			old[s[0]] = sub
		}
	}
	if len(stmts) == 1 {
		b.subs = nil
		b.stmts = stmts
	} else {
		subs := make([]*Block, len(stmts))
		for i, stmt := range stmts {
			if sub, ok := old[stmt]; ok {
				subs[i] = sub
				continue
			}
			sub := newBlock(b.cfg, b.filename)
			sub.stmts = []syntax.Stmt{stmt}
			subs[i] = sub
		}
		b.setSubsLocked(subs)
	}
	b.invalidate()
	b.mu.Unlock()
	return b.check()
}

// SetSubBlocks replaces the sub-blocks of b; its statements become
// the concatenation of theirs.
func (b *Block) SetSubBlocks(subs []*Block) error {
	for _, sub := range subs {
		if sub == b {
			return fmt.Errorf("block %s cannot be its own sub-block", b.id)
		}
	}
	b.setSubs(subs)
	return b.check()
}

func (b *Block) setSubs(subs []*Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setSubsLocked(subs)
	b.invalidate()
}

func (b *Block) setSubsLocked(subs []*Block) {
	var stmts []syntax.Stmt
	for _, sub := range subs {
		stmts = append(stmts, sub.Stmts()...)
	}
	b.stmts = stmts
	b.subs = append(make([]*Block, 0, len(subs)), subs...)
}

// invalidate discards all state derived from the statements.
// b.mu must be held.
func (b *Block) invalidate() {
	b.names = nil
	b.graph = nil
	b.graphErr = nil
	b.units = nil
	b.segments = nil
	b.memo.Purge()
}

// leaves returns the single-statement blocks of b, in order.
func (b *Block) leaves() []*Block {
	var leaves []*Block
	for _, sub := range b.SubBlocks() {
		if sub == b {
			leaves = append(leaves, b)
		} else {
			leaves = append(leaves, sub.leaves()...)
		}
	}
	return leaves
}

// extract returns the text of src between start and end, whose
// columns count runes. Some spans end at the start of their closing
// bracket rather than after it; the bracket is included.
func extract(src []byte, start, end syntax.Position) string {
	if !start.IsValid() || !end.IsValid() {
		return ""
	}
	lines := strings.SplitAfter(string(src), "\n")
	first, last := int(start.Line)-1, int(end.Line)-1
	if first < 0 || last >= len(lines) || first > last {
		return ""
	}
	var sb strings.Builder
	for i := first; i <= last; i++ {
		line := lines[i]
		lo, hi := 0, len(line)
		if i == first {
			lo = byteOffset(line, int(start.Col)-1)
		}
		if i == last {
			hi = byteOffset(line, int(end.Col)-1)
			if hi < len(line) && (line[hi] == ')' || line[hi] == ']') {
				hi++
			}
		}
		if lo < hi {
			sb.WriteString(line[lo:hi])
		}
	}
	return strings.TrimRight(sb.String(), " \t\r\n")
}

func byteOffset(line string, runes int) int {
	offset := 0
	for i := 0; i < runes && offset < len(line); i++ {
		_, size := utf8.DecodeRuneInString(line[offset:])
		offset += size
	}
	return offset
}
