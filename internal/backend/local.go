// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// LocalConfig configures a local-filesystem archive backend.
type LocalConfig struct {
	Dir string `json:"dir"`
}

type localBackendImpl struct {
	dir string
}

func newLocalBackend(rawConfig []byte) (*localBackendImpl, error) {
	var cfg LocalConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse local storage backend configuration")
	}
	if cfg.Dir == "" {
		return nil, errors.New("invalid local configuration: missing 'dir'")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create local archive directory")
	}
	return &localBackendImpl{dir: cfg.Dir}, nil
}

func (b *localBackendImpl) path(fileID string) string {
	return filepath.Join(b.dir, fileID)
}

func (b *localBackendImpl) Upload(_ context.Context, fileID, path string, size int64) (digest.Digest, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open source file")
	}
	defer src.Close()

	dst, err := os.Create(b.path(fileID))
	if err != nil {
		return "", errors.Wrap(err, "create archive file")
	}
	defer dst.Close()

	digester := digest.Canonical.Digester()
	if _, err := io.Copy(io.MultiWriter(dst, digester.Hash()), src); err != nil {
		return "", errors.Wrap(err, "copy to archive")
	}

	return digester.Digest(), nil
}

func (b *localBackendImpl) Fetch(_ context.Context, fileID string, expected digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(b.path(fileID))
	if err != nil {
		return nil, errors.Wrap(err, "open archived file")
	}
	if expected == "" {
		return f, nil
	}

	verifier := expected.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "digest archived file")
	}
	if !verifier.Verified() {
		f.Close()
		return nil, errors.Errorf("digest mismatch for %s: expected %s", fileID, expected)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "rewind archived file")
	}
	return f, nil
}

func (b *localBackendImpl) Exists(_ context.Context, fileID string) (bool, error) {
	_, err := os.Stat(b.path(fileID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *localBackendImpl) Type() Type {
	return LocalBackend
}
