// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgprobackup-go/pagebackup/internal/backupio"
	"github.com/pgprobackup-go/pagebackup/internal/page"
	"github.com/pgprobackup-go/pagebackup/internal/pagemap"
	"github.com/pgprobackup-go/pagebackup/internal/remoteagent"
)

func sanePage(t *testing.T) *page.Block {
	t.Helper()
	var b page.Block
	h := page.Header{
		Lower:    page.HeaderSize,
		Upper:    page.Size,
		Special:  page.Size,
		PageSize: page.Size,
	}
	h.SetLSN(0x1_0000_0000)
	page.EncodeHeader(&b, h)
	page.SetChecksum(&b, page.Checksum(&b, 0))
	return &b
}

func writeBlocks(t *testing.T, path string, blocks ...*page.Block) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	// The page checksum depends on the block number, so each block is
	// stamped for the position it is written at.
	for i, b := range blocks {
		page.SetChecksum(b, page.Checksum(b, uint32(i)))
		_, err := f.Write(b[:])
		require.NoError(t, err)
	}
}

func TestBackupFileFullMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	writeBlocks(t, src, sanePage(t), sanePage(t))

	entry, err := BackupFile(context.Background(), BackupOptions{
		SourcePath:      src,
		DestPath:        dst,
		Mode:            backupio.ModeFull,
		CompressAlg:     page.CompressNone,
		CRCAlgorithm:    backupio.CRC32C,
		ChecksumEnabled: true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, entry.NBlocks)
	require.Greater(t, entry.WriteSize, int64(0))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestBackupFileMissingOK(t *testing.T) {
	dir := t.TempDir()
	entry, err := BackupFile(context.Background(), BackupOptions{
		SourcePath: filepath.Join(dir, "nope"),
		DestPath:   filepath.Join(dir, "dst"),
		MissingOK:  true,
	})
	require.NoError(t, err)
	require.True(t, entry.Missing())
}

func TestBackupFileSkipsUnchangedUnderEmptyPagemap(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeBlocks(t, src, sanePage(t))

	entry, err := BackupFile(context.Background(), BackupOptions{
		SourcePath:   src,
		DestPath:     filepath.Join(dir, "dst"),
		Mode:         backupio.ModePage,
		ExistsInPrev: true,
		Pagemap:      pagemap.New(),
	})
	require.NoError(t, err)
	require.True(t, entry.Unchanged())
}

func TestBackupFilePagemapSelectsBlocks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeBlocks(t, src, sanePage(t), sanePage(t), sanePage(t))

	m := pagemap.New()
	m.Set(2)

	entry, err := BackupFile(context.Background(), BackupOptions{
		SourcePath:      src,
		DestPath:        dst,
		Mode:            backupio.ModePage,
		ExistsInPrev:    true,
		Pagemap:         m,
		CompressAlg:     page.CompressNone,
		CRCAlgorithm:    backupio.CRC32C,
		ChecksumEnabled: true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, entry.ReadSize/page.Size)
	require.EqualValues(t, 3, entry.NBlocks, "PAGE mode must keep the file's true block count, not the written-block count")
}

type fakeRemote struct {
	resp remoteagent.SendPagesResponse
	err  error
}

func (f *fakeRemote) SendPages(req remoteagent.SendPagesRequest) (remoteagent.SendPagesResponse, error) {
	return f.resp, f.err
}

func TestBackupFileRemoteDelegation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeBlocks(t, src, sanePage(t))

	remote := &fakeRemote{resp: remoteagent.SendPagesResponse{Result: remoteagent.ResultOK, BlocksRead: 1}}

	entry, err := BackupFile(context.Background(), BackupOptions{
		SourcePath: src,
		DestPath:   filepath.Join(dir, "dst"),
		Mode:       backupio.ModeFull,
		Remote:     remote,
	})
	require.NoError(t, err)
	require.EqualValues(t, page.Size, entry.ReadSize)
}

func TestBackupFileRemoteErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeBlocks(t, src, sanePage(t))

	remote := &fakeRemote{resp: remoteagent.SendPagesResponse{
		Result:      remoteagent.ResultPageCorruption,
		ErrBlockNum: 0,
		ErrMessage:  "checksum mismatch",
	}}

	_, err := BackupFile(context.Background(), BackupOptions{
		SourcePath: src,
		DestPath:   filepath.Join(dir, "dst"),
		Mode:       backupio.ModeFull,
		Remote:     remote,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
}

func TestBackupFilesParallel(t *testing.T) {
	dir := t.TempDir()
	var jobs []BackupJob
	for i := 0; i < 4; i++ {
		src := filepath.Join(dir, "src", string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
		writeBlocks(t, src, sanePage(t))
		jobs = append(jobs, BackupJob{Opt: BackupOptions{
			SourcePath:      src,
			DestPath:        filepath.Join(dir, "dst", string(rune('a'+i))),
			Mode:            backupio.ModeFull,
			CompressAlg:     page.CompressNone,
			CRCAlgorithm:    backupio.CRC32C,
			ChecksumEnabled: true,
		}})
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dst"), 0o755))

	results, err := BackupFiles(context.Background(), 2, jobs)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		require.EqualValues(t, 1, r.NBlocks)
	}
}
