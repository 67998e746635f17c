// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package slflink implements the link pass of the Simple Linking
// Format: it concatenates a sequence of slffile.Views into a single
// output image, resolves imports against exports across modules, and
// applies internal pointer relocations.
package slflink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bpowers/slf/internal/stringdigest"
	"github.com/bpowers/slf/slffile"
	"github.com/bpowers/slf/slfio"
)

// Errors returned by Link, in addition to ErrValueDoesNotFit from
// patch.go.
var (
	// ErrNothingToLink is returned when Link is invoked with zero
	// modules.
	ErrNothingToLink = errors.New("slflink: nothing to link")

	// ErrMismatchingSymbolSize is returned when a module's symbol_size
	// disagrees with the link-wide size (declared via WithSymbolSize, or
	// inferred from the first module).
	ErrMismatchingSymbolSize = errors.New("slflink: mismatching symbol_size")

	// ErrInvalidModuleAlignment is returned when the configured module
	// alignment is zero or not a power of two.
	ErrInvalidModuleAlignment = errors.New("slflink: module alignment must be a positive power of two")
)

const defaultModuleAlignment = 16

// Option configures a Linker.
type Option func(*linkConfig)

type linkConfig struct {
	moduleAlignment    uint64
	symbolSizeOverride *slffile.SymbolSize
	baseAddress        uint64
	logger             *slog.Logger
}

func defaultConfig() linkConfig {
	return linkConfig{
		moduleAlignment: defaultModuleAlignment,
		baseAddress:     0,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithModuleAlignment sets the alignment every module's advance is
// rounded up to. Must be a positive power of two. Default 16.
func WithModuleAlignment(n uint64) Option {
	return func(c *linkConfig) {
		c.moduleAlignment = n
	}
}

// WithSymbolSize overrides the link-wide symbol_size. If not given, the
// first module's symbol_size is adopted.
func WithSymbolSize(s slffile.SymbolSize) Option {
	return func(c *linkConfig) {
		c.symbolSizeOverride = &s
	}
}

// WithBaseAddress sets the logical load address of the concatenated
// image. Default 0.
func WithBaseAddress(addr uint64) Option {
	return func(c *linkConfig) {
		c.baseAddress = addr
	}
}

// WithLogger sets an optional logger for link progress and unresolved-
// symbol warnings. If not provided, output is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(c *linkConfig) {
		c.logger = logger
	}
}

// Result reports the linker's final state after a successful Link: the
// resolved symbol table and any externals that remained unresolved.
// Formatting either for human consumption is a surface-layer concern;
// the core's only obligation is to expose both.
type Result struct {
	symbols    map[string]uint64
	unresolved []string
}

// Symbols returns a copy of the final name -> absolute address map, as
// published by every module's exports (later modules shadow earlier
// ones). The copy is the caller's to mutate freely.
func (r *Result) Symbols() map[string]uint64 {
	out := make(map[string]uint64, len(r.symbols))
	for name, addr := range r.symbols {
		out[name] = addr
	}
	return out
}

// Unresolved returns the names of imports that were never satisfied by
// any module's exports. Policy (fatal vs. warning) is a caller decision.
func (r *Result) Unresolved() []string {
	return r.unresolved
}

// Linker links a sequence of modules into a single output image.
// Instances are not safe to share across concurrent Link calls; each
// call owns its own symbol table and pending-patch list, released when
// Link returns.
type Linker struct {
	cfg linkConfig
}

// New constructs a Linker with the given options applied over the
// defaults (module_alignment=16, base_address=0, symbol_size inferred
// from the first module, logging discarded).
func New(opts ...Option) *Linker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Linker{cfg: cfg}
}

// Link is a convenience wrapper equivalent to New(opts...).Link(modules, out).
func Link(modules []*slffile.View, out slfio.WriteSeeker, opts ...Option) (*Result, error) {
	return New(opts...).Link(modules, out)
}

type moduleLayout struct {
	view       *slffile.View
	baseOffset uint64
}

type pendingPatch struct {
	site int64
	name string
}

// Link concatenates modules' data sections into out starting at
// base_address, resolves imports against exports (later modules'
// exports shadow earlier ones), and applies internal relocations. The
// order of modules is meaningful. A failed Link leaves out in an
// indeterminate state; callers must discard it.
func (l *Linker) Link(modules []*slffile.View, out slfio.WriteSeeker) (*Result, error) {
	if len(modules) == 0 {
		return nil, ErrNothingToLink
	}
	if !isPowerOfTwo(l.cfg.moduleAlignment) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidModuleAlignment, l.cfg.moduleAlignment)
	}

	symSize := modules[0].SymbolSize()
	if l.cfg.symbolSizeOverride != nil {
		symSize = *l.cfg.symbolSizeOverride
	}

	// Pass 1: layout.
	layouts := make([]moduleLayout, len(modules))
	cursor := l.cfg.baseAddress
	for i, m := range modules {
		if m.SymbolSize() != symSize {
			return nil, fmt.Errorf("%w: module %d has symbol_size %s, link-wide size is %s", ErrMismatchingSymbolSize, i, m.SymbolSize(), symSize)
		}
		layouts[i] = moduleLayout{view: m, baseOffset: cursor}
		cursor += alignUp64(uint64(len(m.Data())), l.cfg.moduleAlignment)
	}

	symbolTable := make(map[string]uint64)
	var pending []pendingPatch
	names := newStringInterner()

	// Pass 2: emit and patch.
	for i, lay := range layouts {
		m := lay.view
		base := lay.baseOffset

		l.cfg.logger.Info("laying out module", "index", i, "base_offset", base, "size", len(m.Data()))

		if len(m.Data()) > 0 {
			if _, err := out.WriteAt(m.Data(), int64(base)); err != nil {
				return nil, fmt.Errorf("slflink: writing module %d data at %#x: %w", i, base, err)
			}
		}

		if imports, ok := m.Imports(); ok {
			it := imports.Iterator()
			for {
				sym, ok := it.Next()
				if !ok {
					break
				}
				name := resolveName(m, sym.NameOffset, names)
				site := int64(base) + int64(sym.DataOffset)
				if addr, found := symbolTable[name]; found {
					if err := patch(out, site, symSize, addr, patchReplace); err != nil {
						return nil, err
					}
				} else {
					pending = append(pending, pendingPatch{site: site, name: name})
				}
			}
		}

		if exports, ok := m.Exports(); ok {
			it := exports.Iterator()
			for {
				sym, ok := it.Next()
				if !ok {
					break
				}
				name := resolveName(m, sym.NameOffset, names)
				symbolTable[name] = base + uint64(sym.DataOffset)
			}
		}

		var err error
		pending, err = resweep(out, symSize, symbolTable, pending)
		if err != nil {
			return nil, err
		}

		if relocs, ok := m.Relocations(); ok {
			it := relocs.Iterator()
			for {
				r, ok := it.Next()
				if !ok {
					break
				}
				site := int64(base) + int64(r)
				if err := patch(out, site, symSize, base, patchAdd); err != nil {
					return nil, err
				}
			}
		}
	}

	unresolved := make([]string, 0, len(pending))
	for _, p := range pending {
		unresolved = append(unresolved, p.name)
		l.cfg.logger.Warn("unresolved external symbol", "name", p.name, "site", p.site)
	}

	return &Result{symbols: symbolTable, unresolved: unresolved}, nil
}

// resweep scans pending for entries now resolvable against
// symbolTable, patches them, and returns the entries still pending.
// Removal order is not observable, so we rebuild in place.
func resweep(out slfio.WriteSeeker, symSize slffile.SymbolSize, symbolTable map[string]uint64, pending []pendingPatch) ([]pendingPatch, error) {
	remaining := pending[:0]
	for _, p := range pending {
		addr, found := symbolTable[p.name]
		if !found {
			remaining = append(remaining, p)
			continue
		}
		if err := patch(out, p.site, symSize, addr, patchReplace); err != nil {
			return nil, err
		}
	}
	return remaining, nil
}

func resolveName(v *slffile.View, nameOffset uint32, names *stringInterner) string {
	strs, ok := v.Strings()
	if !ok {
		return ""
	}
	return names.intern(strs.Get(nameOffset).Text)
}

func alignUp64(n, alignment uint64) uint64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// stringInterner reuses a single canonical Go string for byte-identical
// symbol names decoded from different modules' (and different string
// table offsets') raw bytes. A digest bucket lookup narrows the byte
// comparison to names with the same digest, and a repeat name reuses
// the stored string instead of allocating a new one.
type stringInterner struct {
	buckets map[stringdigest.Digest][]internedName
}

type internedName struct {
	raw []byte
	str string
}

func newStringInterner() *stringInterner {
	return &stringInterner{buckets: make(map[stringdigest.Digest][]internedName)}
}

func (si *stringInterner) intern(b []byte) string {
	d := stringdigest.Of(b)
	for _, e := range si.buckets[d] {
		if bytes.Equal(e.raw, b) {
			return e.str
		}
	}
	s := string(b)
	si.buckets[d] = append(si.buckets[d], internedName{raw: b, str: s})
	return s
}
