// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backupio

import (
	"io"
	"os"

	"github.com/pgprobackup-go/pagebackup/internal/page"
)

// FileBlockSource reads blocks positionally from an *os.File, the local
// disk implementation of BlockSource (§4.3 step 2).
type FileBlockSource struct {
	f *os.File
}

// NewFileBlockSource wraps f as a BlockSource.
func NewFileBlockSource(f *os.File) *FileBlockSource {
	return &FileBlockSource{f: f}
}

// ReadBlockAt reads one page at the block's file offset.
func (s *FileBlockSource) ReadBlockAt(b *page.Block, blknum uint32) (int, error) {
	off := int64(blknum) * page.Size
	n, err := s.f.ReadAt(b[:], off)
	if err == io.EOF && n > 0 {
		return n, nil
	}
	return n, err
}
