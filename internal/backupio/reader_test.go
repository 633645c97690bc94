// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backupio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgprobackup-go/pagebackup/internal/page"
)

// sequenceSource replays a fixed sequence of pages for one block number,
// one per call to ReadBlockAt, then repeats the last entry.
type sequenceSource struct {
	pages []page.Block
	calls int
}

func (s *sequenceSource) ReadBlockAt(b *page.Block, blknum uint32) (int, error) {
	idx := s.calls
	if idx >= len(s.pages) {
		idx = len(s.pages) - 1
	}
	s.calls++
	*b = s.pages[idx]
	return page.Size, nil
}

type truncatingSource struct{}

func (truncatingSource) ReadBlockAt(b *page.Block, blknum uint32) (int, error) {
	return 0, nil
}

func validSanePage() page.Block {
	var b page.Block
	h := page.Header{Lower: page.HeaderSize, Upper: page.Size, Special: page.Size, PageSize: page.Size}
	page.EncodeHeader(&b, h)
	page.SetChecksum(&b, page.Checksum(&b, 0))
	return b
}

func tornPage() page.Block {
	var b page.Block
	h := page.Header{Lower: 100, Upper: 50, Special: page.Size, PageSize: page.Size}
	page.EncodeHeader(&b, h)
	return b
}

func TestPreparePageTruncatedReturnsImmediately(t *testing.T) {
	status, _, b, err := PreparePage(context.Background(), truncatingSource{}, nil, 0, 0, ModeFull, 0, false, 0, true, true)
	require.NoError(t, err)
	require.Equal(t, ReadPageIsTruncated, status)
	require.Nil(t, b)
}

func TestPreparePageSucceedsAfter99TornReads(t *testing.T) {
	pages := make([]page.Block, 0, 100)
	torn := tornPage()
	for i := 0; i < 99; i++ {
		pages = append(pages, torn)
	}
	pages = append(pages, validSanePage())
	src := &sequenceSource{pages: pages}

	status, _, b, err := PreparePage(context.Background(), src, nil, 0, 0, ModeFull, 0, false, 0, true, true)
	require.NoError(t, err)
	require.Equal(t, PageIsOk, status)
	require.NotNil(t, b)
}

func TestPreparePage100TornReadsIsCorrupted(t *testing.T) {
	pages := make([]page.Block, 0, 100)
	torn := tornPage()
	for i := 0; i < 100; i++ {
		pages = append(pages, torn)
	}
	src := &sequenceSource{pages: pages}

	status, _, b, err := PreparePage(context.Background(), src, nil, 0, 0, ModeFull, 0, false, 0, true, true)
	require.Error(t, err)
	require.Equal(t, PageIsCorrupted, status)
	require.Nil(t, b)
}

func TestPreparePageNonStrictCorruptionWarnsAndContinues(t *testing.T) {
	pages := make([]page.Block, 0, 100)
	torn := tornPage()
	for i := 0; i < 100; i++ {
		pages = append(pages, torn)
	}
	src := &sequenceSource{pages: pages}

	status, _, b, err := PreparePage(context.Background(), src, nil, 0, 0, ModeFull, 0, false, 0, true, false)
	require.NoError(t, err)
	require.Equal(t, PageIsCorrupted, status)
	require.Nil(t, b)
}

func TestPreparePageZeroedPageIsOk(t *testing.T) {
	var zero page.Block
	src := &sequenceSource{pages: []page.Block{zero}}

	status, _, b, err := PreparePage(context.Background(), src, nil, 0, 0, ModeFull, 0, false, 0, true, true)
	require.NoError(t, err)
	require.Equal(t, PageIsOk, status)
	require.NotNil(t, b)
}

func TestPreparePageDeltaSkipsUnchangedPage(t *testing.T) {
	p := validSanePage()
	h := page.DecodeHeader(&p)
	h.SetLSN(50)
	page.EncodeHeader(&p, h)
	page.SetChecksum(&p, page.Checksum(&p, 0))
	src := &sequenceSource{pages: []page.Block{p}}

	status, lsn, b, err := PreparePage(context.Background(), src, nil, 0, 0, ModeDelta, 75, true, 0, true, true)
	require.NoError(t, err)
	require.Equal(t, SkipCurrentPage, status)
	require.Nil(t, b)
	require.Equal(t, uint64(50), lsn)
}

func TestPreparePageDeltaKeepsChangedPage(t *testing.T) {
	p := validSanePage()
	h := page.DecodeHeader(&p)
	h.SetLSN(100)
	page.EncodeHeader(&p, h)
	page.SetChecksum(&p, page.Checksum(&p, 0))
	src := &sequenceSource{pages: []page.Block{p}}

	status, lsn, b, err := PreparePage(context.Background(), src, nil, 0, 0, ModeDelta, 75, true, 0, true, true)
	require.NoError(t, err)
	require.Equal(t, PageIsOk, status)
	require.NotNil(t, b)
	require.Equal(t, uint64(100), lsn)
}

func TestPreparePageNonStrictIgnoresDeltaFilter(t *testing.T) {
	p := validSanePage()
	h := page.DecodeHeader(&p)
	h.SetLSN(50)
	page.EncodeHeader(&p, h)
	page.SetChecksum(&p, page.Checksum(&p, 0))
	src := &sequenceSource{pages: []page.Block{p}}

	status, lsn, b, err := PreparePage(context.Background(), src, nil, 0, 0, ModeDelta, 75, true, 0, true, false)
	require.NoError(t, err)
	require.Equal(t, PageIsOk, status)
	require.NotNil(t, b)
	require.Equal(t, uint64(50), lsn)
}

func TestPreparePageCancelledContextIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, _, _, err := PreparePage(ctx, &sequenceSource{}, nil, 0, 0, ModeFull, 0, false, 0, true, true)
	require.Error(t, err)
	require.Equal(t, PageIsCorrupted, status)
}
