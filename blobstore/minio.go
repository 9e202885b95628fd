package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// Minio is the BlobStore backend for deployments already running an
// S3-compatible object store for their chunked-blob Directory backend,
// reusing the same client and bucket-naming conventions.
type Minio struct {
	cli    *minio.Client
	bucket string
	prefix string
}

func NewMinio(cli *minio.Client, bucket, prefix string) *Minio {
	return &Minio{cli: cli, bucket: bucket, prefix: prefix}
}

func (m *Minio) objectKey(key string) string {
	return m.prefix + "/" + key
}

func (m *Minio) Put(ctx context.Context, key string, data []byte) error {
	_, err := m.cli.PutObject(ctx, m.bucket, m.objectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("put blob %q: %w", key, err)
	}
	return nil
}

func (m *Minio) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.cli.GetObject(ctx, m.bucket, m.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get blob %q: %w", key, err)
	}
	defer obj.Close() //nolint:errcheck

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", key, err)
	}
	return data, nil
}

func (m *Minio) Delete(ctx context.Context, key string) error {
	if err := m.cli.RemoveObject(ctx, m.bucket, m.objectKey(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}
