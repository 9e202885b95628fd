package writer

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery/blobstore"
	"github.com/epokhe/pathery/docstore"
	"github.com/epokhe/pathery/index"
	"github.com/epokhe/pathery/queue"
	"github.com/epokhe/pathery/schema"
	"github.com/epokhe/pathery/writejob"
)

// OpenIndexFunc opens (or returns a cached) embedded index.Writer for an
// index id, the way a real worker process pools one index.Writer per
// index rather than reopening it per job.
type OpenIndexFunc func(ctx context.Context, indexID string) (*index.Writer, *schema.Schema, error)

// Worker is the consumer side of the write pipeline: it drains BlobRefs
// from the queue, fetches the staged WriteJob and its referenced
// documents, and applies them to the embedded index.
type Worker struct {
	queue  queue.Queue
	blobs  blobstore.BlobStore
	docs   docstore.DocumentStore
	openIx OpenIndexFunc
}

func NewWorker(q queue.Queue, blobs blobstore.BlobStore, docs docstore.DocumentStore, openIx OpenIndexFunc) *Worker {
	return &Worker{queue: q, blobs: blobs, docs: docs, openIx: openIx}
}

// Run drains the queue until ctx is canceled, applying one job at a time.
// A failed job is never acked: the worker Nacks it and leaves the message
// for redelivery, per the write pipeline's at-least-once contract. The
// index's writer, as returned by openIx, is not discarded on failure.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive write job: %w", err)
		}

		if err := w.handle(ctx, msg.Body); err != nil {
			log.Error().Err(err).Str("group_id", msg.GroupID).Msg("write job failed, leaving for redelivery")
			if nackErr := msg.Nack(); nackErr != nil {
				log.Error().Err(nackErr).Msg("nack failed")
			}
			continue
		}
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}
	}
}

func (w *Worker) handle(ctx context.Context, body []byte) error {
	ref, err := writejob.DecodeRef(body)
	if err != nil {
		return fmt.Errorf("decode blob ref: %w", err)
	}

	raw, err := w.blobs.Get(ctx, ref.Key)
	if err != nil {
		return fmt.Errorf("fetch staged write job %q: %w", ref.Key, err)
	}
	job, err := writejob.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode write job: %w", err)
	}

	iw, s, err := w.openIx(ctx, job.IndexID)
	if err != nil {
		return fmt.Errorf("open index %q: %w", job.IndexID, err)
	}

	var indexIDs, deleteIDs []string
	for _, op := range job.Ops {
		switch op.Kind {
		case writejob.OpIndexDoc:
			indexIDs = append(indexIDs, op.DocID)
		case writejob.OpDeleteDoc:
			deleteIDs = append(deleteIDs, op.DocID)
		}
	}

	// Delete-before-add: tombstone deletes first so a doc that is both
	// deleted and re-indexed in the same batch ends up live, not gone.
	if len(deleteIDs) > 0 {
		if err := iw.DeleteDocuments(ctx, deleteIDs); err != nil {
			return fmt.Errorf("delete documents: %w", err)
		}
		// Keep the stored body of any doc this job also re-indexes, or the
		// index op below would find nothing to index.
		reindexed := make(map[string]bool, len(indexIDs))
		for _, id := range indexIDs {
			reindexed[id] = true
		}
		storeDeletes := make([]string, 0, len(deleteIDs))
		for _, id := range deleteIDs {
			if !reindexed[id] {
				storeDeletes = append(storeDeletes, id)
			}
		}
		if err := w.docs.DeleteDocuments(ctx, job.IndexID, storeDeletes); err != nil {
			return fmt.Errorf("delete stored documents: %w", err)
		}
		for _, id := range deleteIDs {
			log.Info().Str("index_id", job.IndexID).Str("doc_id", id).Msg("doc_deleted")
		}
	}

	if len(indexIDs) > 0 {
		stored, err := w.docs.GetDocuments(ctx, job.IndexID, indexIDs)
		if err != nil {
			return fmt.Errorf("fetch documents: %w", err)
		}
		byID := make(map[string]docstore.Document, len(stored))
		for _, d := range stored {
			byID[d.ID] = d
		}

		fieldDocs := make([]index.FieldDoc, 0, len(indexIDs))
		for _, op := range job.Ops {
			if op.Kind != writejob.OpIndexDoc {
				continue
			}
			doc, ok := byID[op.DocID]
			if !ok {
				log.Warn().Str("index_id", job.IndexID).Str("doc_id", op.DocID).Msg("indexed doc missing from document store, skipping")
				continue
			}
			fields, err := parseFields(s, doc.Body)
			if err != nil {
				// Never fail the whole batch for one malformed doc: log and
				// move on to the next op.
				log.Error().Err(err).Str("index_id", job.IndexID).Str("doc_id", op.DocID).Msg("doc_failed")
				continue
			}
			log.Info().Str("index_id", job.IndexID).Str("doc_id", op.DocID).Msg("doc_indexed")
			fieldDocs = append(fieldDocs, index.FieldDoc{ExternalID: op.DocID, Fields: fields})
		}

		if err := iw.AddDocuments(ctx, fieldDocs); err != nil {
			return fmt.Errorf("add documents: %w", err)
		}
	}

	iw.WaitMergingThreads()

	if err := w.blobs.Delete(ctx, ref.Key); err != nil {
		log.Warn().Err(err).Str("key", ref.Key).Msg("failed to delete staged write job blob")
	}
	return nil
}

func parseFields(s *schema.Schema, body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m))
	for name, val := range m {
		if _, ok := s.Field(name); ok {
			out[name] = val
		}
	}
	return out, nil
}
