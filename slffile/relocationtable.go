// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slffile

import (
	"context"
	"encoding/binary"
)

// RelocationTable is a thin, allocation-free view over a `u32
// count`-prefixed sequence of u32 data-section offsets, each
// identifying a symbol_size-wide word to be adjusted at link time.
type RelocationTable struct {
	buf []byte
	off uint32
	n   uint32
}

// Count returns the number of relocation entries.
func (t RelocationTable) Count() int {
	return int(t.n)
}

// Get returns the i'th relocation's data-section offset.
func (t RelocationTable) Get(i int) uint32 {
	base := t.off + 4 + uint32(i)*4
	return binary.LittleEndian.Uint32(t.buf[base : base+4])
}

// Iterator returns a forward, allocation-free iterator over the table.
func (t RelocationTable) Iterator() *RelocationIterator {
	return &RelocationIterator{t: t}
}

// RelocationIterator walks a RelocationTable front to back.
type RelocationIterator struct {
	t RelocationTable
	i int
}

// Next returns the next relocation offset, or ok=false when exhausted.
func (it *RelocationIterator) Next() (off uint32, ok bool) {
	if it.i >= it.t.Count() {
		return 0, false
	}
	off = it.t.Get(it.i)
	it.i++
	return off, true
}

// Chan streams the table's offsets over a channel.
func (t RelocationTable) Chan(ctx context.Context) <-chan uint32 {
	ch := make(chan uint32)
	go func() {
		defer close(ch)
		it := t.Iterator()
		for {
			off, ok := it.Next()
			if !ok {
				return
			}
			select {
			case ch <- off:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
