// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slffile

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validHeaderBytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[20:24], DefaultSectionStart)
	buf[28] = byte(Size16)
	return buf
}

func TestOpen_EmptyValidFile(t *testing.T) {
	buf := validHeaderBytes()
	binary.LittleEndian.PutUint32(buf[24:28], 0)

	v, err := Open(buf, OpenOptions{ValidateSymbols: true})
	require.NoError(t, err)

	_, ok := v.Exports()
	assert.False(t, ok)
	_, ok = v.Imports()
	assert.False(t, ok)
	_, ok = v.Relocations()
	assert.False(t, ok)
	_, ok = v.Strings()
	assert.False(t, ok)
	assert.Empty(t, v.Data())
	assert.Equal(t, Size16, v.SymbolSize())
}

func TestOpen_MalformedInput(t *testing.T) {
	t.Run("empty buffer", func(t *testing.T) {
		_, err := Open(nil, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("wrong magic", func(t *testing.T) {
		buf := validHeaderBytes()
		buf[0] = 0x00
		_, err := Open(buf, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("magic only", func(t *testing.T) {
		buf := magic[:]
		_, err := Open(buf, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("header one byte short", func(t *testing.T) {
		buf := validHeaderBytes()[:28]
		_, err := Open(buf, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("invalid symbol_size", func(t *testing.T) {
		for _, sz := range []byte{0, 3, 5, 7, 9} {
			buf := validHeaderBytes()
			buf[28] = sz
			_, err := Open(buf, OpenOptions{})
			assert.ErrorIsf(t, err, ErrInvalidData, "symbol_size=%d", sz)
		}
	})

	t.Run("table offset out of bounds", func(t *testing.T) {
		buf := validHeaderBytes()
		binary.LittleEndian.PutUint32(buf[16:20], uint32(len(buf)-3)) // string_table
		_, err := Open(buf, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("nonzero string terminator", func(t *testing.T) {
		buf := validHeaderBytes()
		strTabOff := uint32(len(buf))
		binary.LittleEndian.PutUint32(buf[16:20], strTabOff)
		buf = append(buf, make([]byte, 10)...)
		binary.LittleEndian.PutUint32(buf[strTabOff:strTabOff+4], 10) // total_length
		binary.LittleEndian.PutUint32(buf[strTabOff+4:strTabOff+8], 1)
		buf[strTabOff+8] = 'x'
		buf[strTabOff+9] = 0xFF // should be zero
		_, err := Open(buf, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("string table overflows total_length", func(t *testing.T) {
		buf := validHeaderBytes()
		strTabOff := uint32(len(buf))
		binary.LittleEndian.PutUint32(buf[16:20], strTabOff)
		buf = append(buf, make([]byte, 14)...)
		binary.LittleEndian.PutUint32(buf[strTabOff:strTabOff+4], 10) // total_length too small
		binary.LittleEndian.PutUint32(buf[strTabOff+4:strTabOff+8], 5)
		copy(buf[strTabOff+8:strTabOff+13], "hello")
		buf[strTabOff+13] = 0
		_, err := Open(buf, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})

	t.Run("symbol name_offset mid-entry is rejected", func(t *testing.T) {
		buf := validHeaderBytes()
		strTabOff := uint32(len(buf)) // 32

		// string table: one entry "ab" -> total_length = 4 + (4+2+1) = 11
		buf = append(buf, make([]byte, 11)...)
		binary.LittleEndian.PutUint32(buf[strTabOff:strTabOff+4], 11)
		binary.LittleEndian.PutUint32(buf[strTabOff+4:strTabOff+8], 2)
		copy(buf[strTabOff+8:strTabOff+10], "ab")
		buf[strTabOff+10] = 0
		strTabEnd := strTabOff + 11 // 43

		exportTabOff := (strTabEnd + 3) &^ 3 // 4-byte align, 44
		buf = append(buf, make([]byte, exportTabOff-strTabEnd)...)
		buf = append(buf, make([]byte, 12)...) // count + one entry
		binary.LittleEndian.PutUint32(buf[exportTabOff:exportTabOff+4], 1)
		// name_offset points one byte into the length header, not at
		// the entry's start (strTabOff+4 = 36).
		binary.LittleEndian.PutUint32(buf[exportTabOff+4:exportTabOff+8], strTabOff+4+1)
		binary.LittleEndian.PutUint32(buf[exportTabOff+8:exportTabOff+12], 0)

		binary.LittleEndian.PutUint32(buf[16:20], strTabOff)
		binary.LittleEndian.PutUint32(buf[4:8], exportTabOff)

		_, err := Open(buf, OpenOptions{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})
}

// writeStringEntry appends a "u32 len | bytes | 0x00" entry to buf and
// returns the extended slice.
func writeStringEntry(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	buf = append(buf, 0)
	return buf
}

func TestOpen_StringTableDecode(t *testing.T) {
	strs := []string{"Hello", "World", "Zig is great!"}

	var table []byte
	table = writeStringEntry(table, strs[0])
	table = writeStringEntry(table, strs[1])
	table = writeStringEntry(table, strs[2])
	total := uint32(4 + len(table))

	buf := validHeaderBytes()
	strTabOff := uint32(len(buf))
	binary.LittleEndian.PutUint32(buf[16:20], strTabOff)

	var totalBuf [4]byte
	binary.LittleEndian.PutUint32(totalBuf[:], total)
	buf = append(buf, totalBuf[:]...)
	buf = append(buf, table...)

	v, err := Open(buf, OpenOptions{})
	require.NoError(t, err)

	st, ok := v.Strings()
	require.True(t, ok)

	it := st.Iterator()
	var got []string
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(e.Text))
	}
	assert.Equal(t, strs, got)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestSymbolSize_MaxValue(t *testing.T) {
	assert.Equal(t, uint64(0xFF), Size8.MaxValue())
	assert.Equal(t, uint64(0xFFFF), Size16.MaxValue())
	assert.Equal(t, uint64(0xFFFFFFFF), Size32.MaxValue())
	assert.Equal(t, ^uint64(0), Size64.MaxValue())
}

func TestSymbolSize_String(t *testing.T) {
	assert.Equal(t, "16-bit", Size16.String())
	assert.Contains(t, SymbolSize(3).String(), "invalid")
}

func TestErrors_AreSentinels(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidData, ErrInvalidData))
}
