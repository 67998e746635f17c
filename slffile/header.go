// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slffile

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size in bytes of the fixed SLF header.
	HeaderSize = 32

	// DefaultSectionStart is the conventional section_start offset
	// written by Builder.New.
	DefaultSectionStart = 0x20
)

var magic = [4]byte{0xFB, 0xAD, 0xB6, 0x02}

type header struct {
	exportTableOff uint32
	importTableOff uint32
	relocsTableOff uint32
	stringTableOff uint32
	sectionStart   uint32
	sectionSize    uint32
	symbolSize     SymbolSize
}

// parseHeader validates the magic and decodes the fixed 32-byte header.
// It does not validate table contents or bounds against buf's length;
// callers do that separately so that InvalidHeader and InvalidData stay
// distinguishable.
func parseHeader(buf []byte) (header, error) {
	if len(buf) < 4 {
		return header{}, fmt.Errorf("%w: buffer shorter than magic (%d bytes)", ErrInvalidHeader, len(buf))
	}
	if buf[0] != magic[0] || buf[1] != magic[1] || buf[2] != magic[2] || buf[3] != magic[3] {
		return header{}, fmt.Errorf("%w: bad magic %x", ErrInvalidHeader, buf[:4])
	}
	if len(buf) < HeaderSize {
		return header{}, fmt.Errorf("%w: buffer too short for header (%d < %d)", ErrInvalidData, len(buf), HeaderSize)
	}

	h := header{
		exportTableOff: binary.LittleEndian.Uint32(buf[4:8]),
		importTableOff: binary.LittleEndian.Uint32(buf[8:12]),
		relocsTableOff: binary.LittleEndian.Uint32(buf[12:16]),
		stringTableOff: binary.LittleEndian.Uint32(buf[16:20]),
		sectionStart:   binary.LittleEndian.Uint32(buf[20:24]),
		sectionSize:    binary.LittleEndian.Uint32(buf[24:28]),
		symbolSize:     SymbolSize(buf[28]),
	}
	if !h.symbolSize.Valid() {
		return header{}, fmt.Errorf("%w: symbol_size byte %d not one of {1,2,4,8}", ErrInvalidData, buf[28])
	}

	return h, nil
}

// putHeader writes the fixed header fields, including the three zeroed
// padding bytes, into buf[:32].
func putHeader(buf []byte, h header) {
	_ = buf[HeaderSize-1] // bounds check elimination
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.exportTableOff)
	binary.LittleEndian.PutUint32(buf[8:12], h.importTableOff)
	binary.LittleEndian.PutUint32(buf[12:16], h.relocsTableOff)
	binary.LittleEndian.PutUint32(buf[16:20], h.stringTableOff)
	binary.LittleEndian.PutUint32(buf[20:24], h.sectionStart)
	binary.LittleEndian.PutUint32(buf[24:28], h.sectionSize)
	buf[28] = byte(h.symbolSize)
	buf[29], buf[30], buf[31] = 0, 0, 0
}
