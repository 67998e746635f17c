// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command slf-gen-testdata generates a pair of small SLF modules with
// random exports, imports, and relocations, suitable as fixtures for
// exercising slflink.
package main

import (
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"

	"github.com/bpowers/slf/slfbuilder"
	"github.com/bpowers/slf/slffile"
	"github.com/bpowers/slf/slfio"
)

const (
	nameLen    = 8
	payloadLen = 64
)

func newRand() *mrand.Rand {
	var seedBytes [8]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		panic(err)
	}
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return mrand.New(mrand.NewSource(seed))
}

func randName(rng *mrand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz_"
	b := make([]byte, nameLen)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "slf-gen-testdata: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("slf-gen-testdata", flag.ExitOnError)
	count := fs.Int("exports", 4, "number of symbols the first module exports and the second imports")
	outA := fs.String("a", "a.slf", "path for the first (exporting) module")
	outB := fs.String("b", "b.slf", "path for the second (importing) module")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count <= 0 {
		return fmt.Errorf("-exports must be positive")
	}

	rng := newRand()

	names := make([]string, *count)
	for i := range names {
		names[i] = randName(rng)
	}

	if err := genModule(*outA, rng, names, true); err != nil {
		return fmt.Errorf("generating %s: %w", *outA, err)
	}
	if err := genModule(*outB, rng, names, false); err != nil {
		return fmt.Errorf("generating %s: %w", *outB, err)
	}

	return nil
}

// genModule writes a module that either exports every name in names
// (asExporter) at a random payload offset, or imports each of them at a
// random payload offset and adds a handful of self-relocations.
func genModule(path string, rng *mrand.Rand, names []string, asExporter bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := slfbuilder.New(slffile.Size32, f)
	if err != nil {
		return err
	}

	payload := make([]byte, payloadLen)
	if _, err := rand.Read(payload); err != nil {
		return err
	}
	if err := b.Append(payload); err != nil {
		return err
	}

	for _, name := range names {
		offset := randOffset(rng)
		if asExporter {
			b.AddExport(name, offset)
		} else {
			b.AddImport(name, offset)
		}
	}

	if !asExporter {
		for i := 0; i < 2; i++ {
			b.AddRelocation(randOffset(rng))
		}
	}

	return b.Finalize()
}

func randOffset(rng *mrand.Rand) uint32 {
	return uint32(rng.Intn(payloadLen - 4))
}

var _ slfio.WriteSeeker = (*os.File)(nil)
