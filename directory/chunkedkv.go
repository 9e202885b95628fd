package directory

import (
	"context"
	"fmt"

	"golang.org/x/crypto/blake2b"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// chunkSize bounds the size of a single etcd value; segment files larger
// than this are split across sibling keys and reassembled on read.
const chunkSize = 512 * 1024

// ChunkedKV stores an index's files as etcd keys, content-addressed with
// blake2b so two writers staging identical segment bytes collapse onto the
// content keys instead of duplicating storage. (The chunked-blob backend
// keys its part objects by path and does no content hashing.)
type ChunkedKV struct {
	cli     *clientv3.Client
	indexID string
}

func NewChunkedKV(cli *clientv3.Client, indexID string) *ChunkedKV {
	return &ChunkedKV{cli: cli, indexID: indexID}
}

func (c *ChunkedKV) headerKey(path string) string {
	return fmt.Sprintf("store|%s|file_header|%s", c.indexID, path)
}

func (c *ChunkedKV) contentKey(hash [32]byte, part int) string {
	return fmt.Sprintf("store|%s|file_content|%x|%d", c.indexID, hash, part)
}

// fileHeader records the content hash and chunk count for path, so a read
// knows which content keys to fetch without scanning.
type fileHeader struct {
	Hash  [32]byte
	Parts int
	Size  int64
}

func encodeHeader(h fileHeader) []byte {
	buf := make([]byte, 32+4+8)
	copy(buf, h.Hash[:])
	putUint32(buf[32:], uint32(h.Parts))
	putUint64(buf[36:], uint64(h.Size))
	return buf
}

func decodeHeader(b []byte) (fileHeader, error) {
	if len(b) != 44 {
		return fileHeader{}, fmt.Errorf("malformed file header: %d bytes", len(b))
	}
	var h fileHeader
	copy(h.Hash[:], b[:32])
	h.Parts = int(getUint32(b[32:]))
	h.Size = int64(getUint64(b[36:]))
	return h, nil
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

type kvHandle struct {
	data []byte
}

func (h *kvHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(h.data)) {
		return 0, fmt.Errorf("read at %d: out of range (len=%d)", off, len(h.data))
	}
	n := copy(p, h.data[off:])
	return n, nil
}
func (h *kvHandle) Len() int64  { return int64(len(h.data)) }
func (h *kvHandle) Close() error { return nil }

func (c *ChunkedKV) GetFileHandle(ctx context.Context, path string) (FileHandle, error) {
	data, err := c.readAll(ctx, path)
	if err != nil {
		return nil, err
	}
	return &kvHandle{data: data}, nil
}

func (c *ChunkedKV) readAll(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.cli.Get(ctx, c.headerKey(path))
	if err != nil {
		return nil, fmt.Errorf("get header for %q: %w", path, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%q: %w", path, errNotExist)
	}
	hdr, err := decodeHeader(resp.Kvs[0].Value)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, hdr.Size)
	for part := 0; part < hdr.Parts; part++ {
		r, err := c.cli.Get(ctx, c.contentKey(hdr.Hash, part))
		if err != nil {
			return nil, fmt.Errorf("get content part %d for %q: %w", part, path, err)
		}
		if len(r.Kvs) == 0 {
			return nil, fmt.Errorf("missing content part %d for %q", part, path)
		}
		out = append(out, r.Kvs[0].Value...)
	}
	return out, nil
}

type kvWriter struct {
	c    *ChunkedKV
	ctx  context.Context
	path string
	buf  []byte
}

func (w *kvWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *kvWriter) Close() error {
	hash := blake2b.Sum256(w.buf)

	var parts int
	for off := 0; off < len(w.buf) || parts == 0; off += chunkSize {
		end := off + chunkSize
		if end > len(w.buf) {
			end = len(w.buf)
		}
		if _, err := w.c.cli.Put(w.ctx, w.c.contentKey(hash, parts), string(w.buf[off:end])); err != nil {
			return fmt.Errorf("put content part %d for %q: %w", parts, w.path, err)
		}
		parts++
		if end == len(w.buf) {
			break
		}
	}

	hdr := fileHeader{Hash: hash, Parts: parts, Size: int64(len(w.buf))}
	if _, err := w.c.cli.Put(w.ctx, w.c.headerKey(w.path), string(encodeHeader(hdr))); err != nil {
		return fmt.Errorf("put header for %q: %w", w.path, err)
	}
	return nil
}

func (c *ChunkedKV) OpenWrite(ctx context.Context, path string) (WriteCloser, error) {
	return &kvWriter{c: c, ctx: ctx, path: path}, nil
}

func (c *ChunkedKV) Delete(ctx context.Context, path string) error {
	_, err := c.cli.Delete(ctx, c.headerKey(path))
	return err
}

func (c *ChunkedKV) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := c.cli.Get(ctx, c.headerKey(path), clientv3.WithCountOnly())
	if err != nil {
		return false, err
	}
	return resp.Count > 0, nil
}

func (c *ChunkedKV) AtomicRead(ctx context.Context, path string) ([]byte, error) {
	return c.readAll(ctx, path)
}

func (c *ChunkedKV) AtomicWrite(ctx context.Context, path string, data []byte) error {
	w := &kvWriter{c: c, ctx: ctx, path: path, buf: data}
	return w.Close()
}

func (c *ChunkedKV) Sync(_ context.Context) error { return nil }

// Watch uses etcd's native key-change notifications instead of polling, the
// way the local backend must.
func (c *ChunkedKV) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 1)
	wc := c.cli.Watch(ctx, c.headerKey(ManifestPath))
	go func() {
		defer close(ch)
		for resp := range wc {
			if resp.Err() != nil {
				return
			}
			select {
			case ch <- ManifestPath:
			default:
			}
		}
	}()
	return ch, nil
}

// AcquireLock uses an etcd v3 concurrency session-backed mutex, giving
// cross-process mutual exclusion that the local backend's in-process mutex
// can't provide.
func (c *ChunkedKV) AcquireLock(ctx context.Context, name string) (func(), error) {
	sess, err := newSession(ctx, c.cli)
	if err != nil {
		return nil, fmt.Errorf("create lock session: %w", err)
	}
	mu := newMutex(sess, fmt.Sprintf("lock|%s|%s", c.indexID, name))
	if err := mu.Lock(ctx); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("lock %q: %w", name, err)
	}
	return func() {
		_ = mu.Unlock(context.Background())
		_ = sess.Close()
	}, nil
}
