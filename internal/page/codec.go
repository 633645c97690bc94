// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package page

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
)

// CompressAlg identifies a page compression algorithm, matching the
// backup's on-disk compress_alg byte (§3, §9 Design Notes).
type CompressAlg byte

const (
	// CompressNotDefined means the backup predates the compress_alg field;
	// pages are stored uncompressed and any attempt to decompress fails.
	CompressNotDefined CompressAlg = iota
	// CompressNone stores pages verbatim.
	CompressNone
	// CompressZLIB compresses pages with zlib.
	CompressZLIB
	// CompressPGLZ compresses pages with a PGLZ-compatible codec.
	CompressPGLZ
)

func (a CompressAlg) String() string {
	switch a {
	case CompressNotDefined:
		return "not_defined"
	case CompressNone:
		return "none"
	case CompressZLIB:
		return "zlib"
	case CompressPGLZ:
		return "pglz"
	default:
		return "unknown"
	}
}

// codec compresses and decompresses page bodies for one CompressAlg.
type codec interface {
	compress(dst, src []byte) ([]byte, error)
	decompress(dst, src []byte) ([]byte, error)
}

var codecs = map[CompressAlg]codec{
	CompressNone: noneCodec{},
	CompressZLIB: zlibCodec{},
	CompressPGLZ: pglzCodec{},
}

// Compress compresses src under alg, appending the result to dst.
func Compress(alg CompressAlg, dst, src []byte) ([]byte, error) {
	c, ok := codecs[alg]
	if !ok {
		return nil, fmt.Errorf("invalid compression algorithm %d", alg)
	}
	return c.compress(dst, src)
}

// Decompress decompresses src under alg, appending the result to dst.
// An unrecognized or not-defined algorithm is always an error: there is
// no sane way to interpret compressed bytes without knowing their codec.
func Decompress(alg CompressAlg, dst, src []byte) ([]byte, error) {
	c, ok := codecs[alg]
	if !ok {
		return nil, fmt.Errorf("Invalid compression algorithm")
	}
	return c.decompress(dst, src)
}

// noneCodec backs CompressNone. data.c's do_compress returns -1 for
// NONE_COMPRESS: a page is never actually run through this codec, so both
// directions are errors rather than a verbatim copy.
type noneCodec struct{}

func (noneCodec) compress(dst, src []byte) ([]byte, error) {
	return nil, fmt.Errorf("invalid compression algorithm %d", CompressNone)
}

func (noneCodec) decompress(dst, src []byte) ([]byte, error) {
	return nil, fmt.Errorf("Invalid compression algorithm")
}

type zlibCodec struct{}

func (zlibCodec) compress(dst, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	return append(dst, buf.Bytes()...), nil
}

func (zlibCodec) decompress(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	defer r.Close()
	buf := bytes.NewBuffer(dst)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return buf.Bytes(), nil
}

// pglzCodec stands in for PostgreSQL's PGLZ on pages whose compress_alg
// byte says PGLZ. It is not wire-compatible with real PGLZ output (no PGLZ
// port exists in this module's dependency corpus); it is internally
// consistent, so a page this module compresses under PGLZ is also one it
// can decompress.
type pglzCodec struct{}

func (pglzCodec) compress(dst, src []byte) ([]byte, error) {
	return s2.Encode(dst, src), nil
}

func (pglzCodec) decompress(dst, src []byte) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, fmt.Errorf("pglz decompress: %w", err)
	}
	out := dst
	if cap(out)-len(out) < n {
		grown := make([]byte, len(out), len(out)+n)
		copy(grown, out)
		out = grown
	}
	decoded, err := s2.Decode(out[len(out):len(out):cap(out)], src)
	if err != nil {
		return nil, fmt.Errorf("pglz decompress: %w", err)
	}
	return append(out, decoded...), nil
}

// PageMayBeCompressed reports whether alg names a real codec (ZLIB or
// PGLZ), so that a payload stored under it may be compressed. It looks at
// the algorithm only; the restore driver's version- and header-based
// compatibility check is separate.
func PageMayBeCompressed(alg CompressAlg) bool {
	return alg == CompressZLIB || alg == CompressPGLZ
}
