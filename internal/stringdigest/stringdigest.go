// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package stringdigest wraps farm.Hash64 for fast string-content
// comparison: slflink's symbol-name interner hashes each name's bytes
// and only byte-compares names whose digests are equal.
package stringdigest

import "github.com/dgryski/go-farm"

// Digest is a 64-bit content hash of a string's bytes. It is never
// persisted to disk -- the on-disk format has no room for it -- it only
// ever lives in in-memory maps built by slflink.
type Digest uint64

// Of returns the digest of b.
func Of(b []byte) Digest {
	return Digest(farm.Hash64(b))
}
