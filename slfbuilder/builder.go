// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package slfbuilder implements the appending builder half of the
// Simple Linking Format: a stateful writer that emits a well-formed
// SLF buffer, tracking a growing data section, an interned string
// table, and the export/import/relocation indexes.
package slfbuilder

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/bpowers/slf/internal/zero"
	"github.com/bpowers/slf/slffile"
	"github.com/bpowers/slf/slfio"
)

const placeholderOffset = 0xAAAAAAAA

// Option configures a Builder.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets an optional logger the Builder uses for progress and
// diagnostic messages. If not provided, output is discarded -- the
// default logger is a no-op handler, so callers who don't need
// diagnostics pay nothing for them.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// nameTable tracks a symbol table's entries in first-insertion order,
// with last-write-wins update semantics for repeated names.
type nameTable struct {
	order   []string
	index   map[string]int
	offsets []uint32
}

func newNameTable() nameTable {
	return nameTable{index: make(map[string]int)}
}

func (nt *nameTable) set(name string, offset uint32) {
	if i, ok := nt.index[name]; ok {
		nt.offsets[i] = offset
		return
	}
	nt.index[name] = len(nt.order)
	nt.order = append(nt.order, name)
	nt.offsets = append(nt.offsets, offset)
}

func (nt *nameTable) len() int {
	return len(nt.order)
}

// Builder is a stateful writer that constructs a new SLF buffer. It
// owns its string-interning arena and in-progress index structures; it
// does not own the output stream, which must outlive Finalize.
type Builder struct {
	stream     slfio.WriteSeeker
	symbolSize slffile.SymbolSize
	logger     *slog.Logger

	finalized bool
	off       uint32 // section-relative write cursor

	internOrder []string
	internSeen  map[string]struct{}

	exports nameTable
	imports nameTable
	relocs  []uint32
}

// New writes a stub 32-byte header (real magic, 0xAA placeholders for
// the four table offsets and section_size, section_start = 0x20, the
// chosen symbol_size, zeroed padding) and leaves the Builder ready for
// Append/AddExport/AddImport/AddRelocation calls.
func New(symbolSize slffile.SymbolSize, stream slfio.WriteSeeker, opts ...Option) (*Builder, error) {
	if !symbolSize.Valid() {
		return nil, fmt.Errorf("slfbuilder: symbol_size %d not one of {1,2,4,8}", symbolSize)
	}

	var o options
	o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&o)
	}

	b := &Builder{
		stream:     stream,
		symbolSize: symbolSize,
		logger:     o.logger,
		internSeen: make(map[string]struct{}),
		exports:    newNameTable(),
		imports:    newNameTable(),
	}

	var hdr [slffile.HeaderSize]byte
	hdr[0], hdr[1], hdr[2], hdr[3] = 0xFB, 0xAD, 0xB6, 0x02
	binary.LittleEndian.PutUint32(hdr[4:8], placeholderOffset)
	binary.LittleEndian.PutUint32(hdr[8:12], placeholderOffset)
	binary.LittleEndian.PutUint32(hdr[12:16], placeholderOffset)
	binary.LittleEndian.PutUint32(hdr[16:20], placeholderOffset)
	binary.LittleEndian.PutUint32(hdr[20:24], slffile.DefaultSectionStart)
	binary.LittleEndian.PutUint32(hdr[24:28], placeholderOffset)
	hdr[28] = byte(symbolSize)
	hdr[29], hdr[30], hdr[31] = 0, 0, 0

	if _, err := stream.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("slfbuilder: writing stub header: %w", err)
	}

	b.logger.Debug("builder started", "symbol_size", symbolSize)
	return b, nil
}

// Offset returns the current section-relative write cursor.
func (b *Builder) Offset() uint32 {
	return b.off
}

// Append writes bytes to the data section, advancing the cursor.
func (b *Builder) Append(data []byte) error {
	if b.finalized {
		return fmt.Errorf("slfbuilder: Append called after Finalize")
	}
	if _, err := b.stream.Write(data); err != nil {
		return fmt.Errorf("slfbuilder: Append: %w", err)
	}
	b.off += uint32(len(data))
	return nil
}

func (b *Builder) intern(name string) {
	if _, ok := b.internSeen[name]; ok {
		return
	}
	b.internSeen[name] = struct{}{}
	b.internOrder = append(b.internOrder, name)
}

// AddExport inserts an export entry for name. If offset is given, it is
// used verbatim (section-relative); otherwise the current write cursor
// is used. Inserting the same name twice overwrites the earlier value
// (last-write semantics).
func (b *Builder) AddExport(name string, offset ...uint32) {
	b.addTo(&b.exports, name, offset)
}

// AddImport inserts an import entry for name, with the same semantics
// as AddExport.
func (b *Builder) AddImport(name string, offset ...uint32) {
	b.addTo(&b.imports, name, offset)
}

func (b *Builder) addTo(nt *nameTable, name string, offset []uint32) {
	b.intern(name)
	off := b.off
	if len(offset) > 0 {
		off = offset[0]
	}
	nt.set(name, off)
}

// AddRelocation appends a relocation at offset (or the current cursor
// if absent). Duplicates are preserved -- the linker treats each as an
// independent patch.
func (b *Builder) AddRelocation(offset ...uint32) {
	off := b.off
	if len(offset) > 0 {
		off = offset[0]
	}
	b.relocs = append(b.relocs, off)
}

func alignUp4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// Finalize commits the builder's state: it writes the string, export,
// import, and relocation tables (each 4-byte aligned, each omitted
// entirely -- leaving its header offset 0 -- if it has no entries),
// then seeks back to patch the header's table offsets and section_size.
// The Builder must not be used again afterward.
func (b *Builder) Finalize() error {
	if b.finalized {
		return fmt.Errorf("slfbuilder: Finalize called twice")
	}
	b.finalized = true

	dataEnd := slffile.DefaultSectionStart + b.off
	pos := dataEnd

	var stringTableOff uint32
	nameOffsets := make(map[string]uint32, len(b.internOrder))
	if len(b.internOrder) > 0 {
		var err error
		pos, err = b.padTo(pos)
		if err != nil {
			return err
		}
		stringTableOff = pos

		total := uint32(4)
		for _, s := range b.internOrder {
			total += 5 + uint32(len(s))
		}
		var totalBuf [4]byte
		binary.LittleEndian.PutUint32(totalBuf[:], total)
		if _, err := b.stream.Write(totalBuf[:]); err != nil {
			return fmt.Errorf("slfbuilder: writing string table total_length: %w", err)
		}

		local := uint32(4)
		for _, s := range b.internOrder {
			nameOffsets[s] = stringTableOff + local

			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
			if _, err := b.stream.Write(lenBuf[:]); err != nil {
				return fmt.Errorf("slfbuilder: writing string entry length: %w", err)
			}
			if _, err := io.WriteString(b.stream, s); err != nil {
				return fmt.Errorf("slfbuilder: writing string entry bytes: %w", err)
			}
			if _, err := b.stream.Write([]byte{0}); err != nil {
				return fmt.Errorf("slfbuilder: writing string entry terminator: %w", err)
			}
			local += 5 + uint32(len(s))
		}
		pos = stringTableOff + total
	}

	exportTableOff, pos2, err := b.writeSymbolTable(pos, &b.exports, nameOffsets)
	if err != nil {
		return err
	}
	pos = pos2

	importTableOff, pos3, err := b.writeSymbolTable(pos, &b.imports, nameOffsets)
	if err != nil {
		return err
	}
	pos = pos3

	var relocsTableOff uint32
	if len(b.relocs) > 0 {
		pos, err = b.padTo(pos)
		if err != nil {
			return err
		}
		relocsTableOff = pos

		var countBuf [4]byte
		binary.LittleEndian.PutUint32(countBuf[:], uint32(len(b.relocs)))
		if _, err := b.stream.Write(countBuf[:]); err != nil {
			return fmt.Errorf("slfbuilder: writing relocation count: %w", err)
		}
		for _, r := range b.relocs {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], r)
			if _, err := b.stream.Write(buf[:]); err != nil {
				return fmt.Errorf("slfbuilder: writing relocation entry: %w", err)
			}
		}
		pos += 4 + uint32(len(b.relocs))*4
	}

	end := pos

	var hdrPatch [28]byte // bytes [4, 32) of the header
	binary.LittleEndian.PutUint32(hdrPatch[0:4], exportTableOff)
	binary.LittleEndian.PutUint32(hdrPatch[4:8], importTableOff)
	binary.LittleEndian.PutUint32(hdrPatch[8:12], relocsTableOff)
	binary.LittleEndian.PutUint32(hdrPatch[12:16], stringTableOff)
	binary.LittleEndian.PutUint32(hdrPatch[16:20], slffile.DefaultSectionStart)
	binary.LittleEndian.PutUint32(hdrPatch[20:24], b.off)
	hdrPatch[24] = byte(b.symbolSize)
	hdrPatch[25], hdrPatch[26], hdrPatch[27] = 0, 0, 0

	if _, err := b.stream.WriteAt(hdrPatch[:], 4); err != nil {
		return fmt.Errorf("slfbuilder: patching header: %w", err)
	}

	if _, err := b.stream.Seek(int64(end), io.SeekStart); err != nil {
		return fmt.Errorf("slfbuilder: seeking to end: %w", err)
	}

	b.logger.Debug("builder finalized",
		"section_size", b.off,
		"exports", b.exports.len(),
		"imports", b.imports.len(),
		"relocations", len(b.relocs),
		"strings", len(b.internOrder))

	// b.relocs has been fully written out above; scrub it now that the
	// Builder is finalized and no longer owns meaningful state.
	zero.Uint32(b.relocs)

	return nil
}

// padTo writes zero bytes to advance pos up to the next 4-byte boundary
// and returns the aligned position.
func (b *Builder) padTo(pos uint32) (uint32, error) {
	aligned := alignUp4(pos)
	if aligned == pos {
		return pos, nil
	}
	if _, err := b.stream.Write(make([]byte, aligned-pos)); err != nil {
		return 0, fmt.Errorf("slfbuilder: writing table alignment padding: %w", err)
	}
	return aligned, nil
}

// writeSymbolTable writes nt's table (if non-empty) 4-byte aligned at
// pos, returning its absolute offset (0 if empty) and the new position.
func (b *Builder) writeSymbolTable(pos uint32, nt *nameTable, nameOffsets map[string]uint32) (tableOff uint32, newPos uint32, err error) {
	if nt.len() == 0 {
		return 0, pos, nil
	}

	pos, err = b.padTo(pos)
	if err != nil {
		return 0, 0, err
	}
	tableOff = pos

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(nt.len()))
	if _, err := b.stream.Write(countBuf[:]); err != nil {
		return 0, 0, fmt.Errorf("slfbuilder: writing symbol table count: %w", err)
	}

	for i, name := range nt.order {
		var entry [8]byte
		binary.LittleEndian.PutUint32(entry[0:4], nameOffsets[name])
		binary.LittleEndian.PutUint32(entry[4:8], nt.offsets[i])
		if _, err := b.stream.Write(entry[:]); err != nil {
			return 0, 0, fmt.Errorf("slfbuilder: writing symbol table entry: %w", err)
		}
	}

	newPos = tableOff + 4 + uint32(nt.len())*8
	return tableOff, newPos, nil
}
