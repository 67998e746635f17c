// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slffile

import (
	"context"
	"encoding/binary"
)

const symbolEntrySize = 8 // u32 name_offset + u32 data_offset

// Symbol is one entry of a SymbolTable: a name (by offset into the
// string table) bound to a section-relative data offset.
type Symbol struct {
	NameOffset uint32
	DataOffset uint32
}

// SymbolTable is a thin, allocation-free view over a `u32 count`-prefixed
// region of entries already validated by View.Open. It backs both the
// export_table and the import_table.
type SymbolTable struct {
	buf []byte
	off uint32
	n   uint32
}

// Count returns the number of symbols in the table.
func (t SymbolTable) Count() int {
	return int(t.n)
}

// Get returns the i'th symbol. Callers must not call it with i outside
// [0, Count()); View.Open has already validated every in-range entry.
func (t SymbolTable) Get(i int) Symbol {
	base := t.off + 4 + uint32(i)*symbolEntrySize
	entry := t.buf[base : base+symbolEntrySize]
	// bounds check elimination
	_ = entry[symbolEntrySize-1]
	return Symbol{
		NameOffset: binary.LittleEndian.Uint32(entry[0:4]),
		DataOffset: binary.LittleEndian.Uint32(entry[4:8]),
	}
}

// Iterator returns a forward, allocation-free iterator over the table.
func (t SymbolTable) Iterator() *SymbolIterator {
	return &SymbolIterator{t: t}
}

// SymbolIterator walks a SymbolTable front to back.
type SymbolIterator struct {
	t SymbolTable
	i int
}

// Next returns the next symbol, or ok=false once the table is exhausted.
func (it *SymbolIterator) Next() (sym Symbol, ok bool) {
	if it.i >= it.t.Count() {
		return Symbol{}, false
	}
	sym = it.t.Get(it.i)
	it.i++
	return sym, true
}

// Chan streams the table's symbols over a channel, for callers that
// prefer range-over-channel to the stateful Iterator. The goroutine
// exits either when the table is exhausted or ctx is cancelled.
func (t SymbolTable) Chan(ctx context.Context) <-chan Symbol {
	ch := make(chan Symbol)
	go func() {
		defer close(ch)
		it := t.Iterator()
		for {
			sym, ok := it.Next()
			if !ok {
				return
			}
			select {
			case ch <- sym:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
