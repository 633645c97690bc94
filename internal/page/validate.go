// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package page

import "fmt"

// Status is the classification a single page validation yields.
type Status int

const (
	// StatusNotFound is returned when there is no page to validate.
	StatusNotFound Status = iota
	// StatusZeroed means every byte of the block is zero.
	StatusZeroed
	// StatusValid means the header predicate holds and, if checksums are
	// enabled, the checksum matches.
	StatusValid
	// StatusHeaderInvalid means the header predicate failed and the block
	// is not all-zero.
	StatusHeaderInvalid
	// StatusChecksumMismatch means the header was sane but the checksum
	// did not match.
	StatusChecksumMismatch
	// StatusLSNFromFuture means the page's LSN is newer than the
	// validation's stop LSN.
	StatusLSNFromFuture
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "not_found"
	case StatusZeroed:
		return "zeroed"
	case StatusValid:
		return "valid"
	case StatusHeaderInvalid:
		return "header_invalid"
	case StatusChecksumMismatch:
		return "checksum_mismatch"
	case StatusLSNFromFuture:
		return "lsn_from_future"
	default:
		return "unknown"
	}
}

// ValidateOnePage classifies a page, per §4.2. It is side-effect-free and
// safe to call in a tight retry loop: it never logs and never mutates b.
//
//   - b == nil                                         -> StatusNotFound
//   - header predicate fails, block is all-zero         -> StatusZeroed
//   - header predicate fails, block is not all-zero      -> StatusHeaderInvalid
//   - checksums enabled and mismatch                    -> StatusChecksumMismatch
//   - stopLSN > 0 and page LSN > stopLSN                -> StatusLSNFromFuture
//   - otherwise                                          -> StatusValid
//
// The decoded LSN is always returned, even when the status is not StatusValid,
// since callers (e.g. DELTA mode) may need it regardless of classification.
func ValidateOnePage(b *Block, absoluteBlkno uint32, stopLSN uint64, checksumEnabled bool) (Status, uint64) {
	if b == nil {
		return StatusNotFound, 0
	}

	h := DecodeHeader(b)
	lsn := h.LSN()

	if !headerValid(h) {
		if IsZeroed(b) {
			return StatusZeroed, lsn
		}
		return StatusHeaderInvalid, lsn
	}

	if checksumEnabled {
		if Checksum(b, absoluteBlkno) != h.Checksum {
			return StatusChecksumMismatch, lsn
		}
	}

	if stopLSN > 0 && lsn > stopLSN {
		return StatusLSNFromFuture, lsn
	}

	return StatusValid, lsn
}

// ChecksumError reports calculated-vs-expected, matching
// get_checksum_errormsg.
func ChecksumError(b *Block, absoluteBlkno uint32) string {
	h := DecodeHeader(b)
	calculated := Checksum(b, absoluteBlkno)
	return fmt.Sprintf("page verification failed, calculated checksum %d but expected %d", calculated, h.Checksum)
}
