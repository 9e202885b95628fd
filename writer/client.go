// Package writer implements the two halves of the write pipeline:
// Client stages a WriteJob and enqueues a reference to it; Worker
// consumes that reference and applies the job to the embedded index.
package writer

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/epokhe/pathery"
	"github.com/epokhe/pathery/blobstore"
	"github.com/epokhe/pathery/docstore"
	"github.com/epokhe/pathery/queue"
	"github.com/epokhe/pathery/schema"
	"github.com/epokhe/pathery/writejob"
)

// Client stages write batches and enqueues references, the producer side
// of the write pipeline a post-index/delete-doc HTTP adapter calls into
// directly. It also owns the §4.4 step of persisting a document's body to
// the document store before the WriteJob referencing it is ever staged.
type Client struct {
	blobs blobstore.BlobStore
	docs  docstore.DocumentStore
	queue queue.Queue
}

func NewClient(blobs blobstore.BlobStore, docs docstore.DocumentStore, q queue.Queue) *Client {
	return &Client{blobs: blobs, docs: docs, queue: q}
}

// IndexDocuments validates each body against s (assigning a random __id to
// any that omit one), persists the filtered bodies to the document store,
// and submits a single WriteJob of IndexDoc ops referencing them. Returns
// a freshly generated job id for the caller's response; it is not stored in
// the WriteJob or in its staging key.
func (c *Client) IndexDocuments(ctx context.Context, indexID string, s *schema.Schema, bodies [][]byte) (string, error) {
	docs := make([]docstore.Document, 0, len(bodies))
	for _, body := range bodies {
		id, filtered, err := prepareDocument(s, body)
		if err != nil {
			return "", err
		}
		docs = append(docs, docstore.Document{IndexID: indexID, ID: id, Body: filtered})
	}

	failed, err := c.docs.SaveDocuments(ctx, docs)
	if err != nil {
		return "", pathery.Internal(fmt.Errorf("save documents: %w", err))
	}
	if len(failed) > 0 {
		return "", pathery.RateLimited("document store left %d of %d documents unprocessed", len(failed), len(docs))
	}

	ops := make([]writejob.Op, 0, len(docs))
	for _, d := range docs {
		ops = append(ops, writejob.Op{Kind: writejob.OpIndexDoc, DocID: d.ID})
	}

	jobID := pathery.NewID()
	if err := c.Submit(ctx, writejob.WriteJob{IndexID: indexID, Ops: ops}); err != nil {
		return "", err
	}
	return jobID, nil
}

// DeleteDocument submits a single-op WriteJob tombstoning docID.
func (c *Client) DeleteDocument(ctx context.Context, indexID, docID string) (string, error) {
	jobID := pathery.NewID()
	job := writejob.WriteJob{IndexID: indexID, Ops: []writejob.Op{{Kind: writejob.OpDeleteDoc, DocID: docID}}}
	if err := c.Submit(ctx, job); err != nil {
		return "", err
	}
	return jobID, nil
}

// prepareDocument parses body as a JSON object, resolves its __id (reusing
// a string one, rejecting a non-string one, generating one if absent),
// filters fields down to the ones s defines, and rejects a doc left with no
// fields besides __id — the validation steps spec.md's Document/DocumentRef
// definitions require before a body is ever persisted.
func prepareDocument(s *schema.Schema, body []byte) (id string, filtered []byte, err error) {
	var m map[string]any
	if uerr := json.Unmarshal(body, &m); uerr != nil || m == nil {
		return "", nil, pathery.ErrNotAnObject
	}

	if idVal, hasID := m[schema.IDFieldName]; hasID {
		idStr, ok := idVal.(string)
		if !ok {
			return "", nil, pathery.ErrInvalidIDType
		}
		id = idStr
	} else {
		id = pathery.NewID()
	}

	out := make(map[string]any, len(m)+1)
	hasOther := false
	for name, val := range m {
		if name == schema.IDFieldName {
			continue
		}
		if _, ok := s.Field(name); ok {
			out[name] = val
			hasOther = true
		}
	}
	if !hasOther {
		return "", nil, pathery.ErrEmptyDocument
	}
	out[schema.IDFieldName] = id

	filtered, merr := json.Marshal(out)
	if merr != nil {
		return "", nil, pathery.Internal(fmt.Errorf("marshal filtered document: %w", merr))
	}
	return id, filtered, nil
}

// Submit stages job to the blob store and enqueues a BlobRef under the
// index's group id, so every write job for a given index is delivered to
// its WriterWorker in submission order.
func (c *Client) Submit(ctx context.Context, job writejob.WriteJob) error {
	data, err := writejob.Encode(job)
	if err != nil {
		return pathery.Invalid("encode write job: %v", err)
	}

	key := job.IndexID + "/" + pathery.NewID()
	if err := c.blobs.Put(ctx, key, data); err != nil {
		return pathery.Internal(fmt.Errorf("stage write job: %w", err))
	}

	ref := writejob.BlobRef{IndexID: job.IndexID, Key: key}
	refData, err := writejob.EncodeRef(ref)
	if err != nil {
		return pathery.Internal(fmt.Errorf("encode blob ref: %w", err))
	}

	if err := c.queue.Publish(ctx, job.IndexID, refData); err != nil {
		return pathery.Internal(fmt.Errorf("enqueue write job: %w", err))
	}
	return nil
}
