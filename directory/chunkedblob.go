package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
)

// ChunkedBlob is the Directory backend for an S3-compatible object store.
// Segment files are written as a sequence of part objects under a common
// prefix rather than one single PUT, so a merge producing a multi-gigabyte
// segment never has to buffer the whole thing in memory to compute a
// Content-Length up front.
type ChunkedBlob struct {
	cli        *minio.Client
	bucket     string
	indexID    string
}

func NewChunkedBlob(cli *minio.Client, bucket, indexID string) *ChunkedBlob {
	return &ChunkedBlob{cli: cli, bucket: bucket, indexID: indexID}
}

func (b *ChunkedBlob) prefix(path string) string {
	return fmt.Sprintf("%s/%s/", b.indexID, path)
}

func (b *ChunkedBlob) partKey(path string, part int) string {
	return fmt.Sprintf("%s%08d", b.prefix(path), part)
}

type blobHandle struct {
	data []byte
}

func (h *blobHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
func (h *blobHandle) Len() int64  { return int64(len(h.data)) }
func (h *blobHandle) Close() error { return nil }

func (b *ChunkedBlob) readAll(ctx context.Context, path string) ([]byte, error) {
	parts, err := b.listParts(ctx, path)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for _, key := range parts {
		obj, err := b.cli.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("get part %q: %w", key, err)
		}
		if _, err := io.Copy(&out, obj); err != nil {
			_ = obj.Close()
			return nil, fmt.Errorf("read part %q: %w", key, err)
		}
		_ = obj.Close()
	}
	return out.Bytes(), nil
}

// listParts enumerates part objects under path's prefix in lexical (hence
// numeric, given the zero-padded part index) order.
func (b *ChunkedBlob) listParts(ctx context.Context, path string) ([]string, error) {
	var keys []string
	for obj := range b.cli.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    b.prefix(path),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%q: %w", path, errNotExist)
	}
	return keys, nil
}

func (b *ChunkedBlob) GetFileHandle(ctx context.Context, path string) (FileHandle, error) {
	data, err := b.readAll(ctx, path)
	if err != nil {
		return nil, err
	}
	return &blobHandle{data: data}, nil
}

type blobWriter struct {
	b    *ChunkedBlob
	ctx  context.Context
	path string
	part int
	buf  bytes.Buffer
}

// partSize caps how much a writer buffers before flushing a part object,
// bounding memory use for large segment files the way the chunked-kv
// backend bounds individual key size.
const partSize = 8 * 1024 * 1024

func (w *blobWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for w.buf.Len() >= partSize {
		if err := w.flush(partSize); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (w *blobWriter) flush(n int) error {
	chunk := w.buf.Next(n)
	key := w.b.partKey(w.path, w.part)
	_, err := w.b.cli.PutObject(w.ctx, w.b.bucket, key, bytes.NewReader(chunk), int64(len(chunk)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("put part %q: %w", key, err)
	}
	w.part++
	return nil
}

func (w *blobWriter) Close() error {
	if w.buf.Len() > 0 || w.part == 0 {
		if err := w.flush(w.buf.Len()); err != nil {
			return err
		}
	}
	return nil
}

func (b *ChunkedBlob) OpenWrite(ctx context.Context, path string) (WriteCloser, error) {
	return &blobWriter{b: b, ctx: ctx, path: path}, nil
}

func (b *ChunkedBlob) Delete(ctx context.Context, path string) error {
	keys, err := b.listParts(ctx, path)
	if err != nil {
		if errIsNotExist(err) {
			return nil
		}
		return err
	}
	for _, key := range keys {
		if err := b.cli.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove part %q: %w", key, err)
		}
	}
	return nil
}

func errIsNotExist(err error) bool {
	return errors.Is(err, errNotExist)
}

func (b *ChunkedBlob) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.listParts(ctx, path)
	if err != nil {
		if errIsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *ChunkedBlob) AtomicRead(ctx context.Context, path string) ([]byte, error) {
	return b.readAll(ctx, path)
}

func (b *ChunkedBlob) AtomicWrite(ctx context.Context, path string, data []byte) error {
	w := &blobWriter{b: b, ctx: ctx, path: path}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

func (b *ChunkedBlob) Sync(_ context.Context) error { return nil }

// Watch polls the etag of the manifest's first part object — the one every
// AtomicWrite unconditionally flushes at least once (blobWriter.Close), so
// it always exists once a manifest has ever been written — since the S3 API
// has no first-class change-notification primitive usable without
// provisioning bucket notifications out of band.
func (b *ChunkedBlob) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		var lastETag string
		tick := time.NewTicker(pollInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				info, err := b.cli.StatObject(ctx, b.bucket, b.partKey(ManifestPath, 0), minio.StatObjectOptions{})
				if err != nil {
					continue
				}
				if info.ETag != lastETag {
					lastETag = info.ETag
					select {
					case ch <- ManifestPath:
					default:
					}
				}
			}
		}
	}()
	return ch, nil
}

// AcquireLock takes no lock: it writes no object and returns a no-op
// release function (If-None-Match semantics aren't exposed uniformly across
// S3-compatible stores, so there is no portable conditional write to build
// one on). Two writers on the same index are kept apart only by the
// queue's per-group exclusivity, not by this backend.
func (b *ChunkedBlob) AcquireLock(ctx context.Context, name string) (func(), error) {
	return func() {}, nil
}
