// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package pagemap implements a compact bitmap of changed block numbers and
// an ascending cursor over it, used by the backup driver to decide which
// blocks of a relation segment need reading (§4.4).
package pagemap

// Map is a compact bitmap over block numbers within a single relation
// segment. The zero value is an empty map.
type Map struct {
	bits   []byte
	absent bool
}

// New returns an empty, present Map.
func New() *Map {
	return &Map{}
}

// Absent returns a Map explicitly marked as having no change information,
// distinct from an empty Map: the driver must bypass the iterator and fall
// back to a full sequential scan whenever IsAbsent() is true (§4.4).
func Absent() *Map {
	return &Map{absent: true}
}

// Set marks blkno as changed, growing the underlying bitmap as needed.
func (m *Map) Set(blkno uint32) {
	byteIdx := blkno / 8
	if int(byteIdx) >= len(m.bits) {
		grown := make([]byte, byteIdx+1)
		copy(grown, m.bits)
		m.bits = grown
	}
	m.bits[byteIdx] |= 1 << (blkno % 8)
}

// IsAbsent reports whether this Map carries no change information at all.
func (m *Map) IsAbsent() bool {
	return m.absent
}

// Empty reports whether no block is marked changed. An absent map is also
// empty.
func (m *Map) Empty() bool {
	if m.absent {
		return true
	}
	for _, b := range m.bits {
		if b != 0 {
			return false
		}
	}
	return true
}

// Cursor iterates the set bits of a Map in ascending block-number order.
// A Cursor must not outlive the Map it was created from.
type Cursor struct {
	m       *Map
	byteIdx int
	bitIdx  uint
}

// Iterate returns a Cursor positioned before the first set bit of m.
func Iterate(m *Map) *Cursor {
	return &Cursor{m: m}
}

// Next advances the cursor and returns the next changed block number in
// ascending order, or ok == false once the bitmap is exhausted.
func (c *Cursor) Next() (blkno uint32, ok bool) {
	for c.byteIdx < len(c.m.bits) {
		b := c.m.bits[c.byteIdx]
		for c.bitIdx < 8 {
			bit := c.bitIdx
			c.bitIdx++
			if b&(1<<bit) != 0 {
				return uint32(c.byteIdx)*8 + uint32(bit), true
			}
		}
		c.bitIdx = 0
		c.byteIdx++
	}
	return 0, false
}
