// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	for _, alg := range []CompressAlg{CompressZLIB, CompressPGLZ} {
		src := sanePage()[:]
		compressed, err := Compress(alg, nil, src)
		require.NoError(t, err, alg.String())

		decompressed, err := Decompress(alg, nil, compressed)
		require.NoError(t, err, alg.String())
		require.Equal(t, src, decompressed, alg.String())
	}
}

func TestDecompressNotDefinedAlwaysFails(t *testing.T) {
	_, err := Decompress(CompressNotDefined, nil, []byte("whatever"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid compression algorithm")
}

func TestCompressNoneAlwaysFails(t *testing.T) {
	_, err := Compress(CompressNone, nil, sanePage()[:])
	require.Error(t, err)
}

func TestDecompressNoneAlwaysFails(t *testing.T) {
	_, err := Decompress(CompressNone, nil, []byte("whatever"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid compression algorithm")
}

func TestCompressUnknownAlgFails(t *testing.T) {
	_, err := Compress(CompressAlg(99), nil, []byte("x"))
	require.Error(t, err)
}

func TestPageMayBeCompressed(t *testing.T) {
	require.True(t, PageMayBeCompressed(CompressZLIB))
	require.True(t, PageMayBeCompressed(CompressPGLZ))
	require.False(t, PageMayBeCompressed(CompressNone))
	require.False(t, PageMayBeCompressed(CompressNotDefined))
}
