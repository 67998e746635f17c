// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slffile

import "errors"

// Errors returned by Open (and View.Validate). All wrap one of these
// sentinels so callers can use errors.Is.
var (
	// ErrInvalidHeader is returned when the magic bytes don't match, or
	// the buffer is too short to even hold the magic.
	ErrInvalidHeader = errors.New("slffile: invalid header")

	// ErrInvalidData is returned for any later validation failure: a
	// truncated buffer, a table offset out of bounds, malformed
	// string-table tiling, a missing zero terminator, a symbol_size not
	// in {1,2,4,8}, or (when enabled) a symbol/relocation offset
	// outside the data section.
	ErrInvalidData = errors.New("slffile: invalid data")
)
