// Package docstore holds the canonical JSON document bodies a search hit
// is hydrated from. The search engine itself only ever stores postings and
// whatever fields carry the STORED flag; the full document always lives
// here, addressed by (index_id, doc_id).
package docstore

import "context"

// Document is one stored document body, already validated against its
// schema by the caller.
type Document struct {
	IndexID string
	ID      string
	Body    []byte // canonical JSON, goccy/go-json encoded
}

// DocumentStore persists and retrieves document bodies. Writes are
// read-after-write consistent: a GetDocuments call issued after a
// SaveDocuments call that covered the same ids observes the new bodies.
type DocumentStore interface {
	// SaveDocuments writes docs, returning the ids that were NOT written.
	// A non-empty returned slice (with a nil error) signals a partial
	// batch failure the caller should surface as a RateLimit error rather
	// than retry the whole batch, per the write pipeline's batching
	// behavior.
	SaveDocuments(ctx context.Context, docs []Document) (failed []string, err error)
	// GetDocuments fetches the bodies for the given ids, in no particular
	// order. Missing ids are simply absent from the result, not an error.
	GetDocuments(ctx context.Context, indexID string, ids []string) ([]Document, error)
	// DeleteDocuments removes the given ids, if present.
	DeleteDocuments(ctx context.Context, indexID string, ids []string) error
}
