// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package slfio defines the narrow stream interface the builder and
// linker consume, plus an in-memory implementation for tests. It is
// deliberately narrow -- just the random-access read/write/seek
// methods the core needs -- so callers can substitute a fake without
// dragging in *os.File.
package slfio

import "io"

// WriteSeeker is the random-access output surface Builder.Finalize and
// Linker.Link require: sequential appends via Write, arbitrary patch-ups
// via WriteAt, and the ability to seek back after patching. A purely
// sequential (append-only) stream cannot host either -- both need to
// revisit bytes already written.
type WriteSeeker interface {
	io.Writer
	io.WriterAt
	io.ReaderAt
	io.Seeker
}

// Position returns ws's current write cursor, equivalent to the
// stream-contract's `position` field in spec terms.
func Position(ws io.Seeker) (int64, error) {
	return ws.Seek(0, io.SeekCurrent)
}

// MemWriteSeeker is an in-memory WriteSeeker, for tests that don't want
// to touch the filesystem.
type MemWriteSeeker struct {
	buf []byte
	pos int64
}

// NewMemWriteSeeker returns an empty in-memory WriteSeeker.
func NewMemWriteSeeker() *MemWriteSeeker {
	return &MemWriteSeeker{}
}

// Bytes returns the full backing buffer. The caller must not mutate it.
func (m *MemWriteSeeker) Bytes() []byte {
	return m.buf
}

func (m *MemWriteSeeker) growTo(n int64) {
	if int64(len(m.buf)) >= n {
		return
	}
	grown := make([]byte, n)
	copy(grown, m.buf)
	m.buf = grown
}

// Write writes p at the current cursor, advancing it, extending the
// buffer as needed.
func (m *MemWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	m.growTo(end)
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

// WriteAt writes p at the given absolute offset without moving the
// cursor, extending the buffer as needed.
func (m *MemWriteSeeker) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	m.growTo(end)
	copy(m.buf[off:end], p)
	return len(p), nil
}

// ReadAt implements io.ReaderAt over the current buffer contents.
func (m *MemWriteSeeker) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek repositions the cursor per io.Seeker semantics.
func (m *MemWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	default:
		return 0, io.ErrUnexpectedEOF
	}
	if newPos < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	m.pos = newPos
	return m.pos, nil
}
