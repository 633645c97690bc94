// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// multipartChunkSize bounds the size of each OSS multipart upload chunk.
const multipartChunkSize = 64 * 1024 * 1024

type ossBackendImpl struct {
	objectPrefix string
	bucket       *oss.Bucket
}

func newOSSBackend(rawConfig []byte) (*ossBackendImpl, error) {
	var configMap map[string]string
	if err := json.Unmarshal(rawConfig, &configMap); err != nil {
		return nil, errors.Wrap(err, "parse OSS storage backend configuration")
	}

	endpoint, ok1 := configMap["endpoint"]
	bucketName, ok2 := configMap["bucket_name"]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("invalid OSS configuration: missing 'endpoint' or 'bucket'")
	}

	accessKeyID := configMap["access_key_id"]
	accessKeySecret := configMap["access_key_secret"]
	objectPrefix := configMap["object_prefix"]

	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "create OSS client")
	}

	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "create OSS bucket")
	}

	return &ossBackendImpl{objectPrefix: objectPrefix, bucket: bucket}, nil
}

func (b *ossBackendImpl) objectKey(fileID string) string {
	return b.objectPrefix + fileID
}

func (b *ossBackendImpl) Upload(_ context.Context, fileID, path string, size int64) (digest.Digest, error) {
	objectKey := b.objectKey(fileID)

	d, err := digestFile(path)
	if err != nil {
		return "", errors.Wrap(err, "digest backup file")
	}

	if size < multipartChunkSize {
		if err := b.bucket.PutObjectFromFile(objectKey, path); err != nil {
			return "", errors.Wrap(err, "upload backup file")
		}
		return d, nil
	}

	chunks, err := oss.SplitFileByPartSize(path, multipartChunkSize)
	if err != nil {
		return "", errors.Wrap(err, "split file by part size")
	}

	imur, err := b.bucket.InitiateMultipartUpload(objectKey)
	if err != nil {
		return "", errors.Wrap(err, "initiate multipart upload")
	}

	parts := make([]oss.UploadPart, len(chunks))
	eg := new(errgroup.Group)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		eg.Go(func() error {
			p, err := b.bucket.UploadPartFromFile(imur, path, chunk.Offset, chunk.Size, chunk.Number)
			if err != nil {
				return errors.Wrap(err, "upload part from file")
			}
			parts[i] = p
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		if abortErr := b.bucket.AbortMultipartUpload(imur); abortErr != nil {
			logrus.WithError(abortErr).Warn("abort multipart upload")
		}
		return "", errors.Wrap(err, "upload parts")
	}

	if _, err := b.bucket.CompleteMultipartUpload(imur, parts); err != nil {
		return "", errors.Wrap(err, "complete multipart upload")
	}

	return d, nil
}

func (b *ossBackendImpl) Fetch(_ context.Context, fileID string, expected digest.Digest) (io.ReadCloser, error) {
	body, err := b.bucket.GetObject(b.objectKey(fileID))
	if err != nil {
		return nil, errors.Wrap(err, "get object")
	}
	if expected == "" {
		return body, nil
	}
	return verifyAndBuffer(body, expected, fileID)
}

func (b *ossBackendImpl) Exists(_ context.Context, fileID string) (bool, error) {
	return b.bucket.IsObjectExist(b.objectKey(fileID))
}

func (b *ossBackendImpl) Type() Type {
	return OSSBackend
}

func digestFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	digester := digest.Canonical.Digester()
	if _, err := io.Copy(digester.Hash(), f); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}
