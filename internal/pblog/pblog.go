// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package pblog configures the process-wide structured logger (§7).
package pblog

import (
	"github.com/sirupsen/logrus"
)

// Setup configures logrus's level and formatter once at startup, matching
// the teacher's cmd/nydusify.go convention.
func Setup(level string) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(parsed)
	return nil
}

// ForFile returns the structured field set for a warning or error about
// one backed-up file (§7).
func ForFile(file, backupMode, backupID string) logrus.Fields {
	return logrus.Fields{
		"file":        file,
		"backup_mode": backupMode,
		"backup_id":   backupID,
	}
}

// ForBlock extends ForFile with the offending block number.
func ForBlock(file, backupMode, backupID string, block uint32) logrus.Fields {
	fields := ForFile(file, backupMode, backupID)
	fields["block"] = block
	return fields
}
