// Package blobstore stages write-job payloads between a WriterClient and
// the WriterWorker that consumes them off the queue: the queue message
// itself only ever carries a reference, never the (potentially large)
// document batch.
package blobstore

import "context"

// BlobStore persists opaque byte payloads under caller-chosen keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
