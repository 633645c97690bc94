// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backupio

import (
	"io"

	"github.com/pkg/errors"

	"github.com/pgprobackup-go/pagebackup/internal/page"
)

// FrameWriter emits (header, MAXALIGN(payload)) frames to an output stream
// and maintains the running whole-file CRC (§4.5).
type FrameWriter struct {
	out   io.Writer
	crc   *FileCRC
	alg   page.CompressAlg
	level int

	WriteSize        int64
	UncompressedSize int64
}

// NewFrameWriter returns a FrameWriter that compresses page bodies with alg
// and folds every byte it writes into crc.
func NewFrameWriter(out io.Writer, crc *FileCRC, alg page.CompressAlg, level int) *FrameWriter {
	return &FrameWriter{out: out, crc: crc, alg: alg, level: level}
}

// WriteFrame writes one page frame for blknum, choosing compressed or raw
// storage per §4.5 step 2.
func (w *FrameWriter) WriteFrame(blknum uint32, b *page.Block) error {
	compressed, err := page.Compress(w.alg, make([]byte, 0, 2*page.Size), b[:])
	if err != nil || len(compressed) >= page.Size {
		return w.writeRaw(blknum, b)
	}
	return w.writeCompressed(blknum, compressed)
}

// WriteTruncateMarker writes the sentinel frame that tells the restore
// driver to truncate the output file to blknum*BLCKSZ and stop (§6).
func (w *FrameWriter) WriteTruncateMarker(blknum uint32) error {
	header := EncodeFrameHeader(FrameHeader{Block: blknum, CompressedSize: PageIsTruncated})
	return w.emit(header[:], nil)
}

func (w *FrameWriter) writeRaw(blknum uint32, b *page.Block) error {
	header := EncodeFrameHeader(FrameHeader{Block: blknum, CompressedSize: int32(page.Size)})
	if err := w.emit(header[:], b[:]); err != nil {
		return err
	}
	w.UncompressedSize += page.Size
	return nil
}

func (w *FrameWriter) writeCompressed(blknum uint32, payload []byte) error {
	header := EncodeFrameHeader(FrameHeader{Block: blknum, CompressedSize: int32(len(payload))})
	if err := w.emit(header[:], payload); err != nil {
		return err
	}
	w.UncompressedSize += page.Size
	return nil
}

// emit writes header followed by payload padded to MAXALIGN, folding
// exactly the bytes written into the running CRC (§4.5 step 3).
func (w *FrameWriter) emit(header, payload []byte) error {
	padded := page.MaxAlign(len(payload))
	buf := make([]byte, 0, len(header)+padded)
	buf = append(buf, header...)
	buf = append(buf, payload...)
	for len(buf) < len(header)+padded {
		buf = append(buf, 0)
	}

	if _, err := w.out.Write(buf); err != nil {
		return errors.Wrap(err, "write frame")
	}
	w.crc.Write(buf)
	w.WriteSize += int64(len(buf))
	return nil
}
