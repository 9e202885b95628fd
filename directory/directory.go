// Package directory implements the storage abstraction the search engine
// reads and writes segment files through. A Directory is scoped to one
// index_id; callers never see the backend (local disk, blob store, or a
// KV store) behind the interface.
package directory

import (
	"context"
	"io"
)

// WriteCloser is returned by OpenWrite: callers stream bytes to it and must
// call Close to make the write durable.
type WriteCloser interface {
	io.WriteCloser
}

// FileHandle supports random-access reads over a file already fully
// written, mirroring the teacher's pattern of handing back an *os.File-like
// handle rather than forcing callers through a stream.
type FileHandle interface {
	io.ReaderAt
	io.Closer
	// Len returns the total size of the underlying file in bytes.
	Len() int64
}

// Directory is the storage abstraction every segment reader/writer in this
// module is built against. Implementations: local (mmap-go over a plain
// filesystem), chunked-blob (minio-go, for segments bigger than an object
// store's single-PUT comfort zone), chunked-kv (etcd client v3, content
// addressed with blake2b).
type Directory interface {
	// GetFileHandle opens path for random-access reads.
	GetFileHandle(ctx context.Context, path string) (FileHandle, error)
	// OpenWrite opens path for sequential writes; Close makes the write
	// durable. Only the chunked-kv backend hides the file from
	// GetFileHandle/Exists until Close returns: the local backend creates
	// it under its final name when it is opened, and the chunked-blob
	// backend uploads each full part while writing, so a partly written
	// file can be observed there.
	OpenWrite(ctx context.Context, path string) (WriteCloser, error)
	// Delete removes path. Deleting a path that doesn't exist is not an
	// error.
	Delete(ctx context.Context, path string) error
	// Exists reports whether path has been fully written.
	Exists(ctx context.Context, path string) (bool, error)
	// AtomicRead reads path's entire contents in one shot, for small
	// metadata files like the manifest.
	AtomicRead(ctx context.Context, path string) ([]byte, error)
	// AtomicWrite replaces path's entire contents in one shot, making data
	// visible to readers only once the write is durable.
	AtomicWrite(ctx context.Context, path string, data []byte) error
	// Sync durably persists any buffered state (for backends that buffer).
	Sync(ctx context.Context) error
	// Watch returns a channel that receives a notification (the manifest
	// path) whenever the manifest changes, driven by the backend's native
	// change mechanism. Callers cancel via ctx.
	Watch(ctx context.Context) (<-chan string, error)
	// AcquireLock takes an exclusive lock on name, returning a release
	// function. Used to serialize segment-introduction commits against
	// concurrent writers on the same index.
	AcquireLock(ctx context.Context, name string) (release func(), err error)
}
