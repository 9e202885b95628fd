// Package writejob defines the wire format staged to a BlobStore and
// referenced through the write queue: the unit of work a WriterWorker
// consumes.
package writejob

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// OpKind distinguishes the two operations a WriteJob can carry.
type OpKind string

const (
	OpIndexDoc  OpKind = "index_doc"
	OpDeleteDoc OpKind = "delete_doc"
)

// Op is one operation inside a WriteJob. DocID is always the document's
// __id: for OpIndexDoc it is a DocumentRef handle pointing at a body
// already persisted in the DocumentStore (the queued payload stays tiny
// regardless of document size), for OpDeleteDoc it names the doc to
// tombstone.
type Op struct {
	Kind  OpKind `json:"kind"`
	DocID string `json:"doc_id"`
}

// WriteJob is the payload a WriterClient stages to the blob store and a
// WriterWorker fetches after receiving the corresponding queue message.
type WriteJob struct {
	IndexID string `json:"index_id"`
	Ops     []Op   `json:"ops"`
}

// Encode serializes a WriteJob to its canonical wire representation.
func Encode(job WriteJob) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode write job: %w", err)
	}
	return data, nil
}

// Decode parses a WriteJob from its wire representation.
func Decode(data []byte) (WriteJob, error) {
	var job WriteJob
	if err := json.Unmarshal(data, &job); err != nil {
		return WriteJob{}, fmt.Errorf("decode write job: %w", err)
	}
	return job, nil
}

// BlobRef is the small message body actually published to the queue: a
// pointer to the staged WriteJob rather than the job itself, so the queue
// never carries a payload larger than a key string.
type BlobRef struct {
	IndexID string `json:"index_id"`
	Key     string `json:"key"`
}

func EncodeRef(ref BlobRef) ([]byte, error) {
	data, err := json.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("encode blob ref: %w", err)
	}
	return data, nil
}

func DecodeRef(data []byte) (BlobRef, error) {
	var ref BlobRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return BlobRef{}, fmt.Errorf("decode blob ref: %w", err)
	}
	return ref, nil
}
