// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package stringdigest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_SameBytesSameDigest(t *testing.T) {
	a := Of([]byte("hello"))
	b := Of([]byte("hello"))
	assert.Equal(t, a, b)
}

func TestOf_DifferentBytesDifferentDigest(t *testing.T) {
	a := Of([]byte("hello"))
	b := Of([]byte("world"))
	assert.NotEqual(t, a, b)
}
