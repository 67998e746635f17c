// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package slffile implements the read-only half of the Simple Linking
// Format: an allocation-free parser and validator over a byte buffer,
// and typed accessors for its four optional tables (exports, imports,
// relocations, strings).
package slffile

import (
	"encoding/binary"
	"fmt"
)

// OpenOptions controls how strictly Open validates a buffer.
type OpenOptions struct {
	// ValidateSymbols additionally requires that every symbol and
	// relocation data_offset stays inside the data section
	// (data_offset + symbol_size <= section_size). Disable this for
	// callers that only need the tables' shape, not their target
	// addresses, validated -- e.g. an objdump-style tool that will
	// report out-of-range offsets itself rather than rejecting the file.
	ValidateSymbols bool
}

// View is an immutable, allocation-free view over an SLF buffer. It
// borrows buf; its lifetime is bounded by that slice. A View may be
// shared by read-only users with no further synchronization.
type View struct {
	buf []byte
	h   header

	hasExports bool
	exports    SymbolTable
	hasImports bool
	imports    SymbolTable
	hasRelocs  bool
	relocs     RelocationTable
	hasStrings bool
	strings    StringTable
}

// Open validates the header and every referenced table in buf and
// returns a navigable View, or an error of kind ErrInvalidHeader or
// ErrInvalidData.
func Open(buf []byte, opts OpenOptions) (*View, error) {
	h, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}

	if int64(h.sectionStart)+int64(h.sectionSize) > int64(len(buf)) {
		return nil, fmt.Errorf("%w: section [%d, %d) exceeds buffer length %d", ErrInvalidData, h.sectionStart, uint64(h.sectionStart)+uint64(h.sectionSize), len(buf))
	}

	v := &View{buf: buf, h: h}

	if h.stringTableOff != 0 {
		st, err := newStringTable(buf, h.stringTableOff)
		if err != nil {
			return nil, err
		}
		v.strings = st
		v.hasStrings = true
	}

	if h.exportTableOff != 0 {
		t, err := newSymbolTable(buf, h.exportTableOff, v, h.sectionSize, h.symbolSize, opts.ValidateSymbols)
		if err != nil {
			return nil, fmt.Errorf("export table: %w", err)
		}
		v.exports = t
		v.hasExports = true
	}

	if h.importTableOff != 0 {
		t, err := newSymbolTable(buf, h.importTableOff, v, h.sectionSize, h.symbolSize, opts.ValidateSymbols)
		if err != nil {
			return nil, fmt.Errorf("import table: %w", err)
		}
		v.imports = t
		v.hasImports = true
	}

	if h.relocsTableOff != 0 {
		t, err := newRelocationTable(buf, h.relocsTableOff, h.sectionSize, h.symbolSize, opts.ValidateSymbols)
		if err != nil {
			return nil, fmt.Errorf("relocation table: %w", err)
		}
		v.relocs = t
		v.hasRelocs = true
	}

	return v, nil
}

// Validate re-runs Open's checks against an already-open View's
// backing buffer. Useful for callers that mutate a buffer in place
// between opens (e.g. a byte-patching tool) and want to confirm it's
// still well-formed. It re-parses the buffer with Open and discards the
// resulting View; v itself is not updated.
func (v *View) Validate(opts OpenOptions) error {
	_, err := Open(v.buf, opts)
	return err
}

// Exports returns the export symbol table, or ok=false if the file has
// none (header offset 0).
func (v *View) Exports() (SymbolTable, bool) {
	return v.exports, v.hasExports
}

// Imports returns the import symbol table, or ok=false if the file has
// none.
func (v *View) Imports() (SymbolTable, bool) {
	return v.imports, v.hasImports
}

// Relocations returns the relocation table, or ok=false if the file has
// none.
func (v *View) Relocations() (RelocationTable, bool) {
	return v.relocs, v.hasRelocs
}

// Strings returns the string table, or ok=false if the file has none.
func (v *View) Strings() (StringTable, bool) {
	return v.strings, v.hasStrings
}

// Data returns the section slice, of length section_size.
func (v *View) Data() []byte {
	return v.buf[v.h.sectionStart : v.h.sectionStart+v.h.sectionSize]
}

// SymbolSize returns the pointer width this file's symbols and
// relocations are patched at.
func (v *View) SymbolSize() SymbolSize {
	return v.h.symbolSize
}

// Raw returns the entire underlying buffer, header included, for
// callers that need the whole file rather than just its data section.
func (v *View) Raw() []byte {
	return v.buf
}

func newStringTable(buf []byte, off uint32) (StringTable, error) {
	if int64(off)+4 > int64(len(buf)) {
		return StringTable{}, fmt.Errorf("%w: string table offset %d doesn't leave room for its length header", ErrInvalidData, off)
	}
	total := binary.LittleEndian.Uint32(buf[off : off+4])
	if int64(off)+int64(total) > int64(len(buf)) {
		return StringTable{}, fmt.Errorf("%w: string table total_length %d overflows buffer", ErrInvalidData, total)
	}

	var walked uint32 = 4
	for walked < total {
		entryStart := off + walked
		if int64(entryStart)+4 > int64(off)+int64(total) {
			return StringTable{}, fmt.Errorf("%w: string table entry length header at %d out of bounds", ErrInvalidData, entryStart)
		}
		length := binary.LittleEndian.Uint32(buf[entryStart : entryStart+4])
		if uint64(walked)+uint64(length)+5 > uint64(total) {
			return StringTable{}, fmt.Errorf("%w: string table entry at %d (len %d) overflows declared total_length %d", ErrInvalidData, entryStart, length, total)
		}
		termPos := off + walked + 4 + length
		if buf[termPos] != 0 {
			return StringTable{}, fmt.Errorf("%w: string table entry at %d missing zero terminator", ErrInvalidData, entryStart)
		}
		walked += length + 5
	}
	if walked != total {
		return StringTable{}, fmt.Errorf("%w: string table entries overshoot declared total_length %d", ErrInvalidData, total)
	}

	return StringTable{buf: buf, off: off, total: total}, nil
}

func newSymbolTable(buf []byte, off uint32, v *View, sectionSize uint32, symSize SymbolSize, validateSymbols bool) (SymbolTable, error) {
	if int64(off)+4 > int64(len(buf)) {
		return SymbolTable{}, fmt.Errorf("%w: table offset %d doesn't leave room for its count header", ErrInvalidData, off)
	}
	count := binary.LittleEndian.Uint32(buf[off : off+4])
	entriesEnd := int64(off) + 4 + int64(count)*symbolEntrySize
	if entriesEnd > int64(len(buf)) {
		return SymbolTable{}, fmt.Errorf("%w: %d entries starting at %d overflow buffer", ErrInvalidData, count, off)
	}

	t := SymbolTable{buf: buf, off: off, n: count}
	for i := 0; i < int(count); i++ {
		sym := t.Get(i)

		if !v.hasStrings {
			return SymbolTable{}, fmt.Errorf("%w: symbol with name_offset %d but the file has no string table", ErrInvalidData, sym.NameOffset)
		}
		st := v.strings
		if !st.HasEntryAt(sym.NameOffset) {
			return SymbolTable{}, fmt.Errorf("%w: symbol name_offset %d does not point at a string table entry", ErrInvalidData, sym.NameOffset)
		}

		if validateSymbols {
			if uint64(sym.DataOffset)+uint64(symSize) > uint64(sectionSize) {
				return SymbolTable{}, fmt.Errorf("%w: symbol data_offset %d + symbol_size %d exceeds section_size %d", ErrInvalidData, sym.DataOffset, symSize, sectionSize)
			}
		}
	}

	return t, nil
}

func newRelocationTable(buf []byte, off uint32, sectionSize uint32, symSize SymbolSize, validateSymbols bool) (RelocationTable, error) {
	if int64(off)+4 > int64(len(buf)) {
		return RelocationTable{}, fmt.Errorf("%w: table offset %d doesn't leave room for its count header", ErrInvalidData, off)
	}
	count := binary.LittleEndian.Uint32(buf[off : off+4])
	entriesEnd := int64(off) + 4 + int64(count)*4
	if entriesEnd > int64(len(buf)) {
		return RelocationTable{}, fmt.Errorf("%w: %d relocations starting at %d overflow buffer", ErrInvalidData, count, off)
	}

	t := RelocationTable{buf: buf, off: off, n: count}
	if validateSymbols {
		for i := 0; i < int(count); i++ {
			r := t.Get(i)
			if uint64(r)+uint64(symSize) > uint64(sectionSize) {
				return RelocationTable{}, fmt.Errorf("%w: relocation offset %d + symbol_size %d exceeds section_size %d", ErrInvalidData, r, symSize, sectionSize)
			}
		}
	}

	return t, nil
}
