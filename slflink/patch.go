// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slflink

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bpowers/slf/slffile"
	"github.com/bpowers/slf/slfio"
)

// ErrValueDoesNotFit is returned by patch in replace mode when value
// does not fit in the requested symbol_size.
var ErrValueDoesNotFit = errors.New("slflink: value does not fit in symbol_size")

// patchMode selects how patch combines the existing word with value.
type patchMode int

const (
	// patchReplace overwrites the word with value outright. Used for
	// import sites, which hold no meaningful prior value.
	patchReplace patchMode = iota
	// patchAdd adds value to the existing word, wrapping mod 2^(8*size).
	// Used for internal relocations, which already hold a
	// section-relative pointer that must become absolute.
	patchAdd
)

// patch reads an unsigned little-endian integer of size bytes at the
// given absolute offset in stream, combines it with value according to
// mode, and writes it back at the same offset. The stream's cursor
// position is left as it was found (WriteAt doesn't move it, matching
// the "read-modify-write reseeks" requirement).
func patch(stream slfio.WriteSeeker, offset int64, size slffile.SymbolSize, value uint64, mode patchMode) error {
	var buf [8]byte
	n := int(size)

	if _, err := stream.ReadAt(buf[:n], offset); err != nil {
		return fmt.Errorf("slflink: patch read at %d: %w", offset, err)
	}
	old := decodeLE(buf[:n])

	var result uint64
	switch mode {
	case patchReplace:
		if size != slffile.Size64 && value > size.MaxValue() {
			return fmt.Errorf("%w: %d doesn't fit in %s", ErrValueDoesNotFit, value, size)
		}
		result = value
	case patchAdd:
		sum := old + value
		if size != slffile.Size64 {
			sum &= size.MaxValue()
		}
		result = sum
	default:
		return fmt.Errorf("slflink: unknown patch mode %d", mode)
	}

	encodeLE(buf[:n], result)
	if _, err := stream.WriteAt(buf[:n], offset); err != nil {
		return fmt.Errorf("slflink: patch write at %d: %w", offset, err)
	}
	return nil
}

func decodeLE(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		panic(fmt.Sprintf("slflink: unsupported patch width %d", len(b)))
	}
}

func encodeLE(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		panic(fmt.Sprintf("slflink: unsupported patch width %d", len(b)))
	}
}
