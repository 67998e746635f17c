// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command slfdump prints an SLF file's header, tables, and an annotated
// hex dump of its data section.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/bpowers/slf/internal/bitset"
	"github.com/bpowers/slf/internal/bytesutil"
	"github.com/bpowers/slf/internal/mmapfile"
	"github.com/bpowers/slf/slffile"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "slfdump: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("slfdump", flag.ExitOnError)
	rangeFlag := fs.String("range", "", "limit the hex dump to START:END section-relative offsets (hex or decimal)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: slfdump [flags] module.slf")
	}
	path := fs.Arg(0)

	mf, err := mmapfile.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer mf.Close()

	v, err := slffile.Open(mf.Data(), slffile.OpenOptions{ValidateSymbols: false})
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	data := v.Data()
	start, end := 0, len(data)
	if *rangeFlag != "" {
		start, end, err = parseRange(*rangeFlag, len(data))
		if err != nil {
			return fmt.Errorf("-range: %w", err)
		}
	}

	fmt.Printf("symbol_size: %s\n", v.SymbolSize())
	fmt.Printf("section_size: %d bytes\n", len(data))

	coverage := coverageOf(v)

	if exports, ok := v.Exports(); ok {
		fmt.Printf("exports: %d\n", exports.Count())
		it := exports.Iterator()
		for {
			sym, ok := it.Next()
			if !ok {
				break
			}
			fmt.Printf("  %s @ %#x\n", symbolName(v, sym.NameOffset), sym.DataOffset)
		}
	}
	if imports, ok := v.Imports(); ok {
		fmt.Printf("imports: %d\n", imports.Count())
		it := imports.Iterator()
		for {
			sym, ok := it.Next()
			if !ok {
				break
			}
			fmt.Printf("  %s @ %#x\n", symbolName(v, sym.NameOffset), sym.DataOffset)
		}
	}
	if relocs, ok := v.Relocations(); ok {
		fmt.Printf("relocations: %d\n", relocs.Count())
		it := relocs.Iterator()
		for {
			off, ok := it.Next()
			if !ok {
				break
			}
			fmt.Printf("  @ %#x\n", off)
		}
	}

	fmt.Printf("\ndata [%#x, %#x):\n", start, end)
	dumpHex(data[start:end], start, coverage)

	return nil
}

// parseRange splits a "START:END" flag value with bytesutil.Cut, a copy
// of the standard library's bytes.Cut.
func parseRange(s string, dataLen int) (start, end int, err error) {
	l, r, ok := bytesutil.Cut([]byte(s), ':')
	if !ok {
		return 0, 0, fmt.Errorf("expected START:END, got %q", s)
	}
	startU, err := strconv.ParseUint(string(l), 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid START %q: %w", l, err)
	}
	endU, err := strconv.ParseUint(string(r), 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid END %q: %w", r, err)
	}
	start, end = int(startU), int(endU)
	if start < 0 || end > dataLen || start > end {
		return 0, 0, fmt.Errorf("range [%d, %d) out of bounds for %d-byte section", start, end, dataLen)
	}
	return start, end, nil
}

// coverageOf builds a bitmap over the data section marking every byte
// touched by a known export, import, or relocation site, so dumpHex can
// flag the bytes the tables account for.
func coverageOf(v *slffile.View) *bitset.Bitset {
	data := v.Data()
	b := bitset.New(int64(len(data)))
	symSize := int64(v.SymbolSize())

	mark := func(off uint32) {
		for i := int64(0); i < symSize; i++ {
			b.Set(int64(off) + i)
		}
	}

	if exports, ok := v.Exports(); ok {
		it := exports.Iterator()
		for {
			sym, ok := it.Next()
			if !ok {
				break
			}
			mark(sym.DataOffset)
		}
	}
	if imports, ok := v.Imports(); ok {
		it := imports.Iterator()
		for {
			sym, ok := it.Next()
			if !ok {
				break
			}
			mark(sym.DataOffset)
		}
	}
	if relocs, ok := v.Relocations(); ok {
		it := relocs.Iterator()
		for {
			off, ok := it.Next()
			if !ok {
				break
			}
			mark(off)
		}
	}
	return b
}

func symbolName(v *slffile.View, nameOffset uint32) string {
	strs, ok := v.Strings()
	if !ok {
		return "<no string table>"
	}
	return string(strs.Get(nameOffset).Text)
}

// dumpHex prints data 16 bytes per line, each line prefixed with its
// absolute section offset and annotated with a '*' after any byte the
// coverage bitmap marks as a known export/import/relocation site.
func dumpHex(data []byte, base int, coverage *bitset.Bitset) {
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]

		fmt.Printf("%08x  ", base+i)
		for j, c := range row {
			fmt.Printf("%02x", c)
			if coverage.IsSet(int64(base + i + j)) {
				fmt.Print("*")
			} else {
				fmt.Print(" ")
			}
			if j%2 == 1 {
				fmt.Print(" ")
			}
		}
		fmt.Println()
	}
}
