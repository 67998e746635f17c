// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmapfile opens a file read-only and maps it into memory, for
// zero-copy construction of an slffile.View from disk. After mapping
// it calls unix.Madvise(MADV_RANDOM), since a View's table accessors
// are pointer-chasing lookups rather than a sequential scan.
package mmapfile

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// File is a read-only memory-mapped file.
type File struct {
	f    *os.File
	data []byte
}

// Open mmaps path read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat(%s): %w", path, err)
	}
	size := fi.Size()
	if size == 0 {
		_ = f.Close()
		return &File{f: f, data: nil}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap(%s): %w", path, err)
	}

	if err := unix.Madvise(data, syscall.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("madvise(%s): %w", path, err)
	}

	return &File{f: f, data: data}, nil
}

// Data returns the mapped bytes.
func (m *File) Data() []byte {
	return m.data
}

// Close unmaps and closes the underlying file.
func (m *File) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
	}
	if closeErr := m.f.Close(); err == nil {
		err = closeErr
	}
	return err
}
