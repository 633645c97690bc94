// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOSSBackendMissingFields(t *testing.T) {
	configJSON := `
	{
		"bucket_name": "test",
		"access_key_id": "testAK",
		"access_key_secret": "testSK",
		"object_prefix": "blob"
	}`
	require.True(t, json.Valid([]byte(configJSON)))
	b, err := newOSSBackend([]byte(configJSON))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid OSS configuration: missing 'endpoint' or 'bucket'")
	require.Nil(t, b)
}

func TestNewOSSBackendObjectPrefix(t *testing.T) {
	configJSON := `
	{
		"bucket_name": "test",
		"endpoint": "region.oss.com",
		"access_key_id": "testAK",
		"access_key_secret": "testSK",
		"object_prefix": "blob/"
	}`
	b, err := newOSSBackend([]byte(configJSON))
	require.NoError(t, err)
	require.Equal(t, "blob/", b.objectPrefix)
	require.Equal(t, "blob/backup-0001", b.objectKey("backup-0001"))
}

func TestNewOSSBackendInvalidJSON(t *testing.T) {
	_, err := newOSSBackend([]byte(`{"bucket_name":`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse OSS storage backend configuration")
}
