// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package backupio implements the per-page read-retry loop and the framed
// backup-file writer that together turn a live relation segment into a
// backup file, and back (§4.3, §4.5, §6).
package backupio

import (
	"encoding/binary"

	"github.com/pgprobackup-go/pagebackup/internal/page"
)

// FrameHeaderSize is the size in bytes of a BackupPageHeader (§6).
const FrameHeaderSize = 8

// PageIsTruncated is the compressed_size sentinel marking a truncate frame.
const PageIsTruncated = -1

// FrameHeader is the per-page record prefix within a backup file.
type FrameHeader struct {
	Block          uint32
	CompressedSize int32
}

// EncodeFrameHeader writes h in the on-disk little-endian layout.
func EncodeFrameHeader(h FrameHeader) [FrameHeaderSize]byte {
	var buf [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Block)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.CompressedSize))
	return buf
}

// DecodeFrameHeader reads a BackupPageHeader from its on-disk bytes.
func DecodeFrameHeader(buf [FrameHeaderSize]byte) FrameHeader {
	return FrameHeader{
		Block:          binary.LittleEndian.Uint32(buf[0:4]),
		CompressedSize: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
}

// IsEmptyFrame reports whether h is the skippable, malformed empty frame
// (block=0, compressed_size=0) referenced in §4.7 step 2.
func (h FrameHeader) IsEmptyFrame() bool {
	return h.Block == 0 && h.CompressedSize == 0
}

// IsTruncateMarker reports whether h marks the end of the restored file.
func (h FrameHeader) IsTruncateMarker() bool {
	return h.CompressedSize == PageIsTruncated
}

// IsStoredRaw reports whether the frame's payload is the raw, uncompressed
// page rather than a compressed one.
func (h FrameHeader) IsStoredRaw() bool {
	return h.CompressedSize == page.Size
}
