// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgprobackup-go/pagebackup/internal/backupio"
	"github.com/pgprobackup-go/pagebackup/internal/manifest"
	"github.com/pgprobackup-go/pagebackup/internal/page"
)

func TestCheckDataFileCleanFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rel")
	writeBlocks(t, src, sanePage(t), sanePage(t))

	clean, err := CheckDataFile(context.Background(), src)
	require.NoError(t, err)
	require.True(t, clean)
}

func TestCheckDataFileFlagsCorruption(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rel")

	bad := sanePage(t)
	bad[12] = 0xFF
	bad[13] = 0xFF // corrupt pd_lower beyond pd_upper

	writeBlocks(t, src, bad)

	clean, err := CheckDataFile(context.Background(), src)
	require.NoError(t, err)
	require.False(t, clean)
}

func TestCheckFilePagesValidatesAndMatchesCRC(t *testing.T) {
	crc := backupio.NewFileCRC(backupio.CRC32C)
	var buf bytes.Buffer
	w := backupio.NewFrameWriter(&buf, crc, page.CompressNone, 0)

	require.NoError(t, w.WriteFrame(0, sanePage(t)))
	p1 := sanePage(t)
	page.SetChecksum(p1, page.Checksum(p1, 1))
	require.NoError(t, w.WriteFrame(1, p1))

	file := manifest.FileEntry{RelPath: "rel", CRC: crc.Sum()}

	ok, err := CheckFilePages(context.Background(), bytes.NewReader(buf.Bytes()), file, 0, "2.6.0")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckFilePagesDetectsCRCMismatch(t *testing.T) {
	crc := backupio.NewFileCRC(backupio.CRC32C)
	var buf bytes.Buffer
	w := backupio.NewFrameWriter(&buf, crc, page.CompressNone, 0)
	require.NoError(t, w.WriteFrame(0, sanePage(t)))

	file := manifest.FileEntry{RelPath: "rel", CRC: crc.Sum() + 1}

	ok, err := CheckFilePages(context.Background(), bytes.NewReader(buf.Bytes()), file, 0, "2.6.0")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckFilePagesUsesEntryCompressAlg(t *testing.T) {
	crc := backupio.NewFileCRC(backupio.CRC32C)
	var buf bytes.Buffer
	w := backupio.NewFrameWriter(&buf, crc, page.CompressPGLZ, 0)

	require.NoError(t, w.WriteFrame(0, sanePage(t)))

	file := manifest.FileEntry{RelPath: "rel", CRC: crc.Sum(), CompressAlg: int(page.CompressPGLZ)}

	ok, err := CheckFilePages(context.Background(), bytes.NewReader(buf.Bytes()), file, 0, "2.6.0")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckDataFileMissingFile(t *testing.T) {
	_, err := CheckDataFile(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
