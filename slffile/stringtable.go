// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slffile

import (
	"context"
	"encoding/binary"
)

// StringEntry is one interned string: the absolute file offset of its
// 4-byte length header, and the (already zero-terminator-validated)
// text itself.
type StringEntry struct {
	Offset uint32
	Text   []byte
}

// StringTable is a thin view over a `u32 total_length`-prefixed region
// of `u32 length | bytes | 0x00` entries, validated by View.Open.
type StringTable struct {
	buf   []byte
	off   uint32 // absolute offset of the table (points at total_length)
	total uint32
}

// HasEntryAt reports whether offset is the absolute offset of some
// entry's length header, as opposed to merely lying somewhere inside
// the table's byte range. It walks the table each call rather than
// caching entry boundaries, keeping StringTable allocation-free; it is
// only called once per symbol during View.Open's validation pass, not
// on any hot path.
func (t StringTable) HasEntryAt(offset uint32) bool {
	it := t.Iterator()
	for {
		entry, ok := it.Next()
		if !ok {
			return false
		}
		if entry.Offset == offset {
			return true
		}
		if entry.Offset > offset {
			return false
		}
	}
}

// Get decodes the string entry whose 4-byte length header starts at the
// given absolute file offset. Inputs are expected to have already been
// validated (by View.Open, or by having come from Iterator); Get does
// no further bounds checking of its own.
func (t StringTable) Get(offset uint32) StringEntry {
	length := binary.LittleEndian.Uint32(t.buf[offset : offset+4])
	text := t.buf[offset+4 : offset+4+length]
	return StringEntry{Offset: offset, Text: text}
}

// Iterator returns a forward iterator over the table's entries, in
// on-disk order.
func (t StringTable) Iterator() *StringIterator {
	return &StringIterator{t: t, local: 4}
}

// StringIterator walks a StringTable front to back, starting just past
// the total_length header.
type StringIterator struct {
	t     StringTable
	local uint32 // offset relative to t.off
}

// Next returns the next string entry, or ok=false once the table's
// stored total length is reached.
func (it *StringIterator) Next() (entry StringEntry, ok bool) {
	if it.local >= it.t.total {
		return StringEntry{}, false
	}
	entry = it.t.Get(it.t.off + it.local)
	it.local += 4 + uint32(len(entry.Text)) + 1
	return entry, true
}

// Chan streams the table's entries over a channel.
func (t StringTable) Chan(ctx context.Context) <-chan StringEntry {
	ch := make(chan StringEntry)
	go func() {
		defer close(ch)
		it := t.Iterator()
		for {
			entry, ok := it.Next()
			if !ok {
				return
			}
			select {
			case ch <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
