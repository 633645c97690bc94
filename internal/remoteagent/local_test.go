// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package remoteagent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgprobackup-go/pagebackup/internal/page"
)

func TestLocalSourceSendPagesCopiesWholeFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	var blocks [2 * page.Size]byte
	for i := range blocks {
		blocks[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(src, blocks[:], 0o644))

	var s LocalSource
	resp, err := s.SendPages(SendPagesRequest{SourcePath: src, DestPath: dst})
	require.NoError(t, err)
	require.Equal(t, ResultOK, resp.Result)
	require.Equal(t, int64(2), resp.BlocksRead)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, blocks[:], got)
}

func TestLocalSourceSendPagesMissingSource(t *testing.T) {
	dir := t.TempDir()
	var s LocalSource
	resp, err := s.SendPages(SendPagesRequest{SourcePath: filepath.Join(dir, "nope"), DestPath: filepath.Join(dir, "dst")})
	require.NoError(t, err)
	require.Equal(t, ResultRemoteError, resp.Result)
}
