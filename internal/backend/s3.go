// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

type s3BackendImpl struct {
	objectPrefix string
	bucketName   string
	client       *s3.Client
}

// S3Config configures an AWS S3 (or S3-compatible) archive backend.
type S3Config struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	AccessKeySecret string `json:"access_key_secret,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Scheme          string `json:"scheme,omitempty"`
	BucketName      string `json:"bucket_name,omitempty"`
	Region          string `json:"region,omitempty"`
	ObjectPrefix    string `json:"object_prefix,omitempty"`
}

func newS3Backend(rawConfig []byte) (*s3BackendImpl, error) {
	cfg := &S3Config{}
	if err := json.Unmarshal(rawConfig, cfg); err != nil {
		return nil, errors.Wrap(err, "parse S3 storage backend configuration")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "s3.amazonaws.com"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.BucketName == "" || cfg.Region == "" {
		return nil, fmt.Errorf("invalid S3 configuration: missing 'bucket_name' or 'region'")
	}
	endpointWithScheme := fmt.Sprintf("%s://%s", cfg.Scheme, cfg.Endpoint)

	awsConfig, err := awscfg.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, errors.Wrap(err, "load default AWS config")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = &endpointWithScheme
		o.Region = cfg.Region
		o.UsePathStyle = true
		if cfg.AccessKeyID != "" && cfg.AccessKeySecret != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")
		}
	})

	return &s3BackendImpl{objectPrefix: cfg.ObjectPrefix, bucketName: cfg.BucketName, client: client}, nil
}

func (b *s3BackendImpl) objectKey(fileID string) string {
	return b.objectPrefix + fileID
}

func (b *s3BackendImpl) Upload(ctx context.Context, fileID, path string, _ int64) (digest.Digest, error) {
	d, err := digestFile(path)
	if err != nil {
		return "", errors.Wrap(err, "digest backup file")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open backup file")
	}
	defer f.Close()

	uploader := manager.NewUploader(b.client, func(u *manager.Uploader) {
		u.PartSize = multipartChunkSize
	})
	objectKey := b.objectKey(fileID)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(objectKey),
		Body:   f,
	}); err != nil {
		return "", errors.Wrap(err, "upload backup file to s3")
	}

	return d, nil
}

func (b *s3BackendImpl) Fetch(ctx context.Context, fileID string, expected digest.Digest) (io.ReadCloser, error) {
	objectKey := b.objectKey(fileID)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get s3 object")
	}
	if expected == "" {
		return out.Body, nil
	}
	return verifyAndBuffer(out.Body, expected, fileID)
}

func (b *s3BackendImpl) Exists(ctx context.Context, fileID string) (bool, error) {
	objectKey := b.objectKey(fileID)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) && respErr.ResponseError.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *s3BackendImpl) Type() Type {
	return S3Backend
}
