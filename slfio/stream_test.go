// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slfio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemWriteSeeker_WriteThenReadAt(t *testing.T) {
	m := NewMemWriteSeeker()

	n, err := m.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	pos, err := Position(m)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)

	buf := make([]byte, 5)
	n, err = m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestMemWriteSeeker_WriteAtDoesNotMoveCursor(t *testing.T) {
	m := NewMemWriteSeeker()
	_, err := m.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := Position(m)
	require.NoError(t, err)

	_, err = m.WriteAt([]byte("XX"), 2)
	require.NoError(t, err)

	newPos, err := Position(m)
	require.NoError(t, err)
	assert.Equal(t, pos, newPos)
	assert.Equal(t, "01XX456789", string(m.Bytes()))
}

func TestMemWriteSeeker_WriteAtGrowsBuffer(t *testing.T) {
	m := NewMemWriteSeeker()
	_, err := m.WriteAt([]byte("end"), 10)
	require.NoError(t, err)
	assert.Equal(t, 13, len(m.Bytes()))
}

func TestMemWriteSeeker_SeekModes(t *testing.T) {
	m := NewMemWriteSeeker()
	_, err := m.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := m.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	pos, err = m.Seek(3, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)

	pos, err = m.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	_, err = m.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestMemWriteSeeker_ReadAtPastEnd(t *testing.T) {
	m := NewMemWriteSeeker()
	_, err := m.Write([]byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = m.ReadAt(buf, 10)
	assert.ErrorIs(t, err, io.EOF)
}
