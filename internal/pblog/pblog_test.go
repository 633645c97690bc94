// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package pblog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetupParsesLevel(t *testing.T) {
	require.NoError(t, Setup("debug"))
	require.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestSetupRejectsInvalidLevel(t *testing.T) {
	require.Error(t, Setup("not-a-level"))
}

func TestForBlockExtendsForFile(t *testing.T) {
	fields := ForBlock("base/1/16384", "FULL", "backup-1", 7)
	require.Equal(t, "base/1/16384", fields["file"])
	require.Equal(t, "FULL", fields["backup_mode"])
	require.Equal(t, "backup-1", fields["backup_id"])
	require.Equal(t, uint32(7), fields["block"])
}
