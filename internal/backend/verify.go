// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// verifyAndBuffer drains body, checks it against expected, and returns a
// fresh reader over the buffered bytes. Remote object stores don't offer a
// seekable body, so digest verification has to happen against a full copy
// rather than in place (§8 scenario 7).
func verifyAndBuffer(body io.ReadCloser, expected digest.Digest, fileID string) (io.ReadCloser, error) {
	defer body.Close()

	digester := expected.Algorithm().Digester()
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, digester.Hash()), body); err != nil {
		return nil, errors.Wrap(err, "read object body")
	}
	if digester.Digest() != expected {
		return nil, errors.Errorf("digest mismatch for %s: expected %s, got %s", fileID, expected, digester.Digest())
	}
	return io.NopCloser(&buf), nil
}
