// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command slflink links a sequence of SLF module files into a single
// flat output image.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/bpowers/slf/internal/mmapfile"
	"github.com/bpowers/slf/slffile"
	"github.com/bpowers/slf/slflink"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "slflink: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("slflink", flag.ExitOnError)
	out := fs.String("o", "a.slf", "output file")
	baseAddress := fs.Uint64("base-address", 0, "logical load address of the linked image")
	moduleAlignment := fs.Uint64("module-alignment", 16, "alignment each module's advance is rounded up to")
	verbose := fs.Bool("v", false, "log link progress to stderr")
	failUnresolved := fs.Bool("fail-unresolved", true, "exit non-zero if any import is left unresolved")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: slflink [flags] module.slf...")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if !*verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	var modules []*slffile.View
	for _, path := range fs.Args() {
		mf, err := mmapfile.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer mf.Close()

		v, err := slffile.Open(mf.Data(), slffile.OpenOptions{ValidateSymbols: true})
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		modules = append(modules, v)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	defer f.Close()

	result, err := slflink.Link(modules, f,
		slflink.WithModuleAlignment(*moduleAlignment),
		slflink.WithBaseAddress(*baseAddress),
		slflink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("linking: %w", err)
	}

	for _, name := range result.Unresolved() {
		fmt.Fprintf(os.Stderr, "slflink: warning: unresolved external symbol %q\n", name)
	}
	if *failUnresolved && len(result.Unresolved()) > 0 {
		return fmt.Errorf("%d unresolved symbol(s)", len(result.Unresolved()))
	}

	return nil
}
