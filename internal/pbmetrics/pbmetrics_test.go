// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package pbmetrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	r1 := Register()
	r2 := Register()
	require.Same(t, r1, r2)
}

func TestCountersDoNotPanic(t *testing.T) {
	Register()
	PagesRead("FULL", 10)
	PagesSkipped("PAGE", 3)
	PagesWritten("FULL", 7)
	BytesCompressed("zlib", 4096)
	ObserveBackupDuration("FULL", time.Now())
}
