// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package remoteagent

import (
	"os"

	"github.com/pgprobackup-go/pagebackup/internal/page"
)

// LocalSource implements RemotePageSource by reading directly from the
// local filesystem, letting the backup driver use the same send_pages
// contract regardless of whether the source database is local or remote.
type LocalSource struct{}

func (LocalSource) SendPages(req SendPagesRequest) (SendPagesResponse, error) {
	f, err := os.Open(req.SourcePath)
	if err != nil {
		return SendPagesResponse{Result: ResultRemoteError, ErrMessage: err.Error()}, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return SendPagesResponse{Result: ResultRemoteError, ErrMessage: err.Error()}, nil
	}
	nblocks := info.Size() / page.Size

	dst, err := os.OpenFile(req.DestPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return SendPagesResponse{Result: ResultWriteFailed, ErrMessage: err.Error()}, nil
	}
	defer dst.Close()

	var b page.Block
	var blocksRead int64
	for blknum := int64(0); blknum < nblocks; blknum++ {
		if _, err := f.ReadAt(b[:], blknum*page.Size); err != nil {
			return SendPagesResponse{Result: ResultPageCorruption, ErrBlockNum: uint32(blknum), ErrMessage: err.Error()}, nil
		}
		if _, err := dst.Write(b[:]); err != nil {
			return SendPagesResponse{Result: ResultWriteFailed, ErrBlockNum: uint32(blknum), ErrMessage: err.Error()}, nil
		}
		blocksRead++
	}

	return SendPagesResponse{Result: ResultOK, BlocksRead: blocksRead}, nil
}
