// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backupio

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pgprobackup-go/pagebackup/internal/page"
)

// PageReadAttempts bounds the torn-page retry loop (§4.3, §6).
const PageReadAttempts = 100

// ReadCode is the page reader's return-code sum type (§3).
type ReadCode int

const (
	PageIsOk ReadCode = iota
	ReadPageIsTruncated
	SkipCurrentPage
	PageIsCorrupted
)

// Mode selects the incremental-backup strategy (§4.3).
type Mode int

const (
	ModeFull Mode = iota
	ModePage
	ModeDelta
	ModePtrack
)

// BlockSource reads one BLCKSZ block at a given offset, modeling a
// positional read on the source file (§4.3 step 2).
type BlockSource interface {
	ReadBlockAt(b *page.Block, blknum uint32) (n int, err error)
}

// SharedBufferSource supplies a block from the live database's shared
// buffers for PTRACK versions < 2.0 (§4.3 step 4); this is the
// `get_block(db, tablespace, rel, blkno)` collaborator the core spec
// references but does not define.
type SharedBufferSource interface {
	GetBlock(ctx context.Context, blknum uint32) (b *page.Block, err error)
}

// PreparePage implements prepare_page: a retry-until-stable read of one
// block, with validator integration and the PTRACK shared-buffer fallback.
func PreparePage(
	ctx context.Context,
	src BlockSource,
	shared SharedBufferSource,
	blknum uint32,
	absoluteBlkno uint32,
	mode Mode,
	prevBackupStartLSN uint64,
	existsInPrev bool,
	ptrackVersion int,
	checksumEnabled bool,
	strict bool,
) (ReadCode, uint64, *page.Block, error) {
	if err := ctx.Err(); err != nil {
		return PageIsCorrupted, 0, nil, errors.Wrapf(err, "cancelled before reading block %d", blknum)
	}

	useRetryRead := mode != ModePtrack || ptrackVersion >= 20

	var b page.Block
	var lastStatus page.Status
	var lastLSN uint64
	found := false

	if useRetryRead {
		for attempt := 0; attempt < PageReadAttempts; attempt++ {
			n, err := src.ReadBlockAt(&b, blknum)
			if n == 0 && (err == nil || err == io.EOF) {
				return ReadPageIsTruncated, 0, nil, nil
			}
			if err != nil && err != io.EOF {
				return PageIsCorrupted, 0, nil, errors.Wrapf(err, "read block %d", blknum)
			}
			if n < page.Size {
				logrus.WithFields(logrus.Fields{"block": blknum, "read": n}).Debug("partial page read, retrying")
				continue
			}

			status, lsn := page.ValidateOnePage(&b, absoluteBlkno, 0, checksumEnabled)
			lastStatus, lastLSN = status, lsn

			switch status {
			case page.StatusZeroed, page.StatusValid:
				found = true
			case page.StatusHeaderInvalid, page.StatusChecksumMismatch:
				continue
			}
			if found {
				break
			}
		}

		if !found {
			h := page.DecodeHeader(&b)
			var msg string
			if lastStatus == page.StatusChecksumMismatch {
				msg = page.ChecksumError(&b, absoluteBlkno)
			} else {
				msg = page.HeaderError(h)
			}
			fields := logrus.Fields{"block": blknum}
			if strict {
				logrus.WithFields(fields).Error(msg)
				return PageIsCorrupted, lastLSN, nil, fmt.Errorf("%s", msg)
			}
			logrus.WithFields(fields).Warn(msg)
			return PageIsCorrupted, lastLSN, nil, nil
		}

		if !strict {
			return PageIsOk, lastLSN, &b, nil
		}
	}

	if mode == ModePtrack && ptrackVersion >= 15 && ptrackVersion < 20 {
		sb, err := shared.GetBlock(ctx, blknum)
		if err != nil {
			return PageIsCorrupted, 0, nil, errors.Wrapf(err, "get shared block %d", blknum)
		}
		if sb == nil {
			return ReadPageIsTruncated, 0, nil, nil
		}
		b = *sb

		status, lsn := page.ValidateOnePage(&b, absoluteBlkno, 0, checksumEnabled)
		lastLSN = lsn
		switch status {
		case page.StatusZeroed:
		case page.StatusHeaderInvalid:
			return PageIsCorrupted, lsn, nil, fmt.Errorf("%s", page.HeaderError(page.DecodeHeader(&b)))
		case page.StatusChecksumMismatch:
			if checksumEnabled {
				page.SetChecksum(&b, page.Checksum(&b, absoluteBlkno))
			}
		}
		found = true
	}

	if mode == ModeDelta && existsInPrev && lastLSN != 0 && lastLSN < prevBackupStartLSN {
		return SkipCurrentPage, lastLSN, nil, nil
	}

	return PageIsOk, lastLSN, &b, nil
}
