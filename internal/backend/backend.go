// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package backend implements pluggable archive storage for finished backup
// files and manifests: local filesystem, Aliyun OSS, or AWS S3 (§6, D2).
package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// Type identifies which concrete Backend implementation is in use.
type Type int

const (
	LocalBackend Type = iota
	OSSBackend
	S3Backend
)

// Backend is the archive storage contract a backup/restore driver uploads
// finished files to and fetches them back from (§6).
type Backend interface {
	// Upload stores the file at path under fileID and returns its content
	// digest.
	Upload(ctx context.Context, fileID, path string, size int64) (digest.Digest, error)
	// Fetch opens the stored file named fileID for reading, verifying it
	// against the expected digest. An empty expected digest skips
	// verification.
	Fetch(ctx context.Context, fileID string, expected digest.Digest) (io.ReadCloser, error)
	// Exists reports whether fileID has already been archived.
	Exists(ctx context.Context, fileID string) (bool, error)
	// Type reports which concrete implementation this is.
	Type() Type
}

// New dispatches on backendType to construct a Backend from its JSON
// config, mirroring the teacher's NewBackend(bt string, config []byte, ...)
// selector.
func New(backendType string, config []byte) (Backend, error) {
	switch backendType {
	case "local":
		return newLocalBackend(config)
	case "oss":
		return newOSSBackend(config)
	case "s3":
		return newS3Backend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type %s", backendType)
	}
}
