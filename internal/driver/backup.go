// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package driver orchestrates the page reader, pagemap iterator, and
// framed writer into the three top-level operations this engine exposes:
// backing up one file (C6), restoring one file from a chain (C7), and
// validating a live or backed-up file (C8).
package driver

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pgprobackup-go/pagebackup/internal/backupio"
	"github.com/pgprobackup-go/pagebackup/internal/manifest"
	"github.com/pgprobackup-go/pagebackup/internal/page"
	"github.com/pgprobackup-go/pagebackup/internal/pagemap"
	"github.com/pgprobackup-go/pagebackup/internal/pbmetrics"
	"github.com/pgprobackup-go/pagebackup/internal/remoteagent"
)

// BackupOptions configures one file's backup pass (§4.6).
type BackupOptions struct {
	SourcePath string
	DestPath   string

	PrevBackupStartLSN uint64
	Mode               backupio.Mode
	ExistsInPrev       bool
	Pagemap            *pagemap.Map

	CompressAlg   page.CompressAlg
	CompressLevel int
	CRCAlgorithm  backupio.CRCAlgorithm

	ChecksumEnabled bool
	PtrackVersion   int
	MissingOK       bool

	// Remote, when non-nil, delegates the whole file to the remote-agent
	// send_pages contract (D1) instead of reading it locally.
	Remote remoteagent.RemotePageSource
	// Shared supplies shared-buffer fallback reads for PTRACK < 2.0.
	Shared backupio.SharedBufferSource
}

// BackupFile backs up one relation segment, implementing backup_data_file
// (§4.6). It returns the manifest record for the file.
func BackupFile(ctx context.Context, opt BackupOptions) (manifest.FileEntry, error) {
	entry := manifest.FileEntry{
		RelPath:      opt.DestPath,
		ExistsInPrev: opt.ExistsInPrev,
		CompressAlg:  int(opt.CompressAlg),
	}

	info, err := os.Stat(opt.SourcePath)
	if err != nil {
		if os.IsNotExist(err) && opt.MissingOK {
			entry.WriteSize = manifest.FileNotFound
			return entry, nil
		}
		return entry, errors.Wrapf(err, "stat source file %s", opt.SourcePath)
	}

	if info.Size()%page.Size != 0 {
		logrus.WithField("file", opt.SourcePath).Warn("source file size is not a multiple of block size")
	}
	nblocks := info.Size() / page.Size
	entry.NBlocks = nblocks

	usePagemap := opt.Pagemap != nil && !opt.Pagemap.IsAbsent() && opt.ExistsInPrev && !opt.Pagemap.Empty()

	if (opt.Mode == backupio.ModePage || opt.Mode == backupio.ModePtrack) &&
		opt.Pagemap != nil && opt.Pagemap.Empty() && !opt.Pagemap.IsAbsent() && opt.ExistsInPrev {
		entry.WriteSize = manifest.BytesInvalid
		return entry, nil
	}

	if opt.Remote != nil {
		return backupRemote(ctx, opt, entry, nblocks)
	}
	return backupLocal(ctx, opt, entry, nblocks, usePagemap)
}

func backupRemote(ctx context.Context, opt BackupOptions, entry manifest.FileEntry, nblocks int64) (manifest.FileEntry, error) {
	req := remoteagent.SendPagesRequest{
		SourcePath:      opt.SourcePath,
		DestPath:        opt.DestPath,
		LSNCutoff:       opt.PrevBackupStartLSN,
		CompressAlg:     int(opt.CompressAlg),
		CompressLevel:   opt.CompressLevel,
		ChecksumVersion: opt.PtrackVersion,
	}
	resp, err := opt.Remote.SendPages(req)
	if err != nil {
		return entry, errors.Wrap(err, "send_pages")
	}
	switch resp.Result {
	case remoteagent.ResultRemoteError:
		return entry, errors.Errorf("remote error at block %d: %s", resp.ErrBlockNum, resp.ErrMessage)
	case remoteagent.ResultPageCorruption:
		return entry, errors.Errorf("page corruption at block %d: %s", resp.ErrBlockNum, resp.ErrMessage)
	case remoteagent.ResultWriteFailed:
		return entry, errors.Errorf("write failed at block %d: %s", resp.ErrBlockNum, resp.ErrMessage)
	}

	entry.ReadSize = resp.BlocksRead * page.Size
	entry.NBlocks = nblocks
	return entry, nil
}

func backupLocal(ctx context.Context, opt BackupOptions, entry manifest.FileEntry, nblocks int64, usePagemap bool) (manifest.FileEntry, error) {
	src, err := os.Open(opt.SourcePath)
	if err != nil {
		if os.IsNotExist(err) && opt.MissingOK {
			entry.WriteSize = manifest.FileNotFound
			return entry, nil
		}
		return entry, errors.Wrapf(err, "open source file %s", opt.SourcePath)
	}
	defer src.Close()

	dst, err := os.OpenFile(opt.DestPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return entry, errors.Wrapf(err, "open destination file %s", opt.DestPath)
	}
	defer dst.Close()

	source := backupio.NewFileBlockSource(src)
	crc := backupio.NewFileCRC(opt.CRCAlgorithm)
	writer := backupio.NewFrameWriter(dst, crc, opt.CompressAlg, opt.CompressLevel)

	blocks := blockSequence(opt.Pagemap, usePagemap, nblocks)

	var wrote bool
	var skipped int

loop:
	for _, blknum := range blocks {
		if err := ctx.Err(); err != nil {
			return entry, errors.Wrapf(err, "cancelled backing up %s at block %d", opt.SourcePath, blknum)
		}

		code, _, b, err := backupio.PreparePage(ctx, source, opt.Shared, uint32(blknum), uint32(blknum), opt.Mode,
			opt.PrevBackupStartLSN, opt.ExistsInPrev, opt.PtrackVersion, opt.ChecksumEnabled, true)
		if err != nil {
			return entry, errors.Wrapf(err, "prepare page %d of %s", blknum, opt.SourcePath)
		}

		switch code {
		case backupio.ReadPageIsTruncated:
			break loop
		case backupio.SkipCurrentPage:
			skipped++
			entry.ReadSize += page.Size
			continue
		case backupio.PageIsOk:
			if err := writer.WriteFrame(uint32(blknum), b); err != nil {
				return entry, errors.Wrapf(err, "write frame for block %d", blknum)
			}
			wrote = true
			entry.ReadSize += page.Size
		default:
			return entry, errors.Errorf("unexpected prepare_page code %d at block %d", code, blknum)
		}
	}

	pbmetrics.PagesSkipped(modeLabel(opt.Mode), skipped)

	if opt.Mode == backupio.ModeFull || opt.Mode == backupio.ModeDelta {
		entry.NBlocks = entry.ReadSize / page.Size
	}
	entry.CRC = crc.Sum()
	entry.WriteSize = writer.WriteSize
	entry.UncompressedSize = writer.UncompressedSize

	isIncremental := opt.Mode == backupio.ModePage || opt.Mode == backupio.ModePtrack || opt.Mode == backupio.ModeDelta
	if isIncremental && opt.ExistsInPrev && !wrote && entry.NBlocks > 0 {
		entry.WriteSize = manifest.BytesInvalid
	}

	if entry.WriteSize <= 0 {
		dst.Close()
		_ = os.Remove(opt.DestPath)
	}

	return entry, nil
}

func blockSequence(m *pagemap.Map, usePagemap bool, nblocks int64) []int64 {
	if !usePagemap {
		blocks := make([]int64, nblocks)
		for i := range blocks {
			blocks[i] = int64(i)
		}
		return blocks
	}

	var blocks []int64
	c := pagemap.Iterate(m)
	for {
		blkno, ok := c.Next()
		if !ok {
			break
		}
		if int64(blkno) >= nblocks {
			continue
		}
		blocks = append(blocks, int64(blkno))
	}
	return blocks
}

func modeLabel(mode backupio.Mode) string {
	switch mode {
	case backupio.ModeFull:
		return "FULL"
	case backupio.ModePage:
		return "PAGE"
	case backupio.ModeDelta:
		return "DELTA"
	case backupio.ModePtrack:
		return "PTRACK"
	default:
		return "UNKNOWN"
	}
}

// BackupJob is one file's worth of work for BackupFiles' worker pool.
type BackupJob struct {
	Opt BackupOptions
}

// BackupFiles fans out N independent BackupFile calls over a bounded
// worker pool (D3, §4.6). The group's context is canceled on the first
// hard failure; results are returned in input order.
func BackupFiles(ctx context.Context, concurrency int, jobs []BackupJob) ([]manifest.FileEntry, error) {
	results := make([]manifest.FileEntry, len(jobs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for i, job := range jobs {
		i, job := i, job
		eg.Go(func() error {
			entry, err := BackupFile(egCtx, job.Opt)
			if err != nil {
				return errors.Wrapf(err, "backup %s", job.Opt.SourcePath)
			}
			results[i] = entry
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
