// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slflink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/slf/slfbuilder"
	"github.com/bpowers/slf/slffile"
	"github.com/bpowers/slf/slfio"
)

func buildModule(t *testing.T, symSize slffile.SymbolSize, configure func(b *slfbuilder.Builder)) *slffile.View {
	t.Helper()
	stream := slfio.NewMemWriteSeeker()
	b, err := slfbuilder.New(symSize, stream)
	require.NoError(t, err)
	configure(b)
	require.NoError(t, b.Finalize())

	v, err := slffile.Open(stream.Bytes(), slffile.OpenOptions{ValidateSymbols: true})
	require.NoError(t, err)
	return v
}

func TestLink_ForwardReference(t *testing.T) {
	moduleA := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0x00, 0x00}))
		b.AddImport("f", 0)
	})
	moduleB := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0, 0, 0, 0, 0, 0}))
		b.AddExport("f", 4)
	})

	out := slfio.NewMemWriteSeeker()
	result, err := Link([]*slffile.View{moduleA, moduleB}, out,
		WithModuleAlignment(16),
		WithBaseAddress(0x1000))
	require.NoError(t, err)
	assert.Empty(t, result.Unresolved())
	assert.Equal(t, uint64(0x1014), result.Symbols()["f"])

	patched := out.Bytes()[0x1000:0x1002]
	assert.Equal(t, []byte{0x14, 0x10}, patched)
}

func TestLink_InternalRelocation(t *testing.T) {
	module := buildModule(t, slffile.Size32, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0x00, 0x00, 0x00, 0x00}))
		b.AddRelocation(0)
	})

	out := slfio.NewMemWriteSeeker()
	_, err := Link([]*slffile.View{module}, out, WithBaseAddress(0x4000))
	require.NoError(t, err)

	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0x00}, out.Bytes()[0x4000:0x4004])
}

func TestLink_UnresolvedExternal(t *testing.T) {
	module := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0x00, 0x00}))
		b.AddImport("missing", 0)
	})

	out := slfio.NewMemWriteSeeker()
	result, err := Link([]*slffile.View{module}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing"}, result.Unresolved())
}

func TestLink_NothingToLink(t *testing.T) {
	out := slfio.NewMemWriteSeeker()
	_, err := Link(nil, out)
	assert.ErrorIs(t, err, ErrNothingToLink)
}

func TestLink_MismatchingSymbolSize(t *testing.T) {
	a := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {})
	c := buildModule(t, slffile.Size32, func(b *slfbuilder.Builder) {})

	out := slfio.NewMemWriteSeeker()
	_, err := Link([]*slffile.View{a, c}, out)
	assert.ErrorIs(t, err, ErrMismatchingSymbolSize)
}

func TestLink_LaterModuleExportShadowsEarlier(t *testing.T) {
	moduleA := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0, 0}))
		b.AddExport("g", 0)
	})
	moduleB := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0, 0}))
		b.AddExport("g", 0)
	})

	out := slfio.NewMemWriteSeeker()
	result, err := Link([]*slffile.View{moduleA, moduleB}, out,
		WithModuleAlignment(16), WithBaseAddress(0x100))
	require.NoError(t, err)

	assert.Equal(t, uint64(0x110), result.Symbols()["g"])
}

func TestLink_SameModuleSelfImportResolvedAfterOwnExportPublishes(t *testing.T) {
	module := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0, 0, 0, 0}))
		b.AddImport("self", 0)
		b.AddExport("self", 2)
	})

	out := slfio.NewMemWriteSeeker()
	result, err := Link([]*slffile.View{module}, out, WithBaseAddress(0x10))
	require.NoError(t, err)
	assert.Empty(t, result.Unresolved())
	assert.Equal(t, uint64(0x12), result.Symbols()["self"])
	assert.Equal(t, []byte{0x12, 0x00}, out.Bytes()[0x10:0x12])
}

func TestAlignUp64(t *testing.T) {
	assert.Equal(t, uint64(16), alignUp64(1, 16))
	assert.Equal(t, uint64(16), alignUp64(16, 16))
	assert.Equal(t, uint64(32), alignUp64(17, 16))
}

func TestIsPowerOfTwo(t *testing.T) {
	assert.False(t, isPowerOfTwo(0))
	assert.True(t, isPowerOfTwo(1))
	assert.True(t, isPowerOfTwo(16))
	assert.False(t, isPowerOfTwo(3))
	assert.False(t, isPowerOfTwo(17))
}

func TestLink_RejectsNonPowerOfTwoAlignment(t *testing.T) {
	module := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {})

	out := slfio.NewMemWriteSeeker()
	_, err := Link([]*slffile.View{module}, out, WithModuleAlignment(3))
	assert.ErrorIs(t, err, ErrInvalidModuleAlignment)
}

func TestResult_SymbolsReturnsACopy(t *testing.T) {
	module := buildModule(t, slffile.Size16, func(b *slfbuilder.Builder) {
		require.NoError(t, b.Append([]byte{0, 0}))
		b.AddExport("g", 0)
	})

	out := slfio.NewMemWriteSeeker()
	result, err := Link([]*slffile.View{module}, out)
	require.NoError(t, err)

	got := result.Symbols()
	got["g"] = 0xDEADBEEF
	got["injected"] = 1

	again := result.Symbols()
	assert.NotEqual(t, uint64(0xDEADBEEF), again["g"])
	_, present := again["injected"]
	assert.False(t, present)
}

func TestStringInterner_DedupsIdenticalBytes(t *testing.T) {
	si := newStringInterner()
	a := si.intern([]byte("same"))
	b := si.intern([]byte("same"))
	assert.Equal(t, a, b)
}
