// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package page

import (
	"encoding/binary"
	"hash/crc32"
)

// Checksum computes the 16-bit page checksum for a block at the given
// absolute block number. It folds in absoluteBlkno so that the same bytes
// relocated to a different physical position produce a different checksum,
// matching pg_checksum_page's location-dependence (§3).
//
// This is not bit-compatible with PostgreSQL's own FNV-based page checksum
// algorithm (storage/checksum_impl.h is not part of the corpus this module
// was grounded on); it is a structurally equivalent stand-in that satisfies
// the same contract — deterministic, content- and location-dependent,
// tamper-evident — and is used consistently by both the writer and the
// validator, so backup/restore/validate round trips hold within this module.
func Checksum(b *Block, absoluteBlkno uint32) uint16 {
	var scratch Block
	scratch = *b
	binary.LittleEndian.PutUint16(scratch[8:10], 0)

	h := crc32.NewIEEE()
	_, _ = h.Write(scratch[:])

	var blknoBytes [4]byte
	binary.LittleEndian.PutUint32(blknoBytes[:], absoluteBlkno)
	_, _ = h.Write(blknoBytes[:])

	sum := h.Sum32()
	return uint16((sum >> 16) ^ (sum & 0xFFFF))
}
