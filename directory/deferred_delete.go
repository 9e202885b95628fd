package directory

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery/queue"
)

// deleteJob is the wire payload enqueued for the async-delete-worker: an
// index id (so the worker can reopen the right Directory backend) and the
// paths superseded by one commit.
type deleteJob struct {
	IndexID string   `json:"index_id"`
	Paths   []string `json:"paths"`
}

// AsyncDeleteGroup is the async-delete queue's message group id used for
// every job regardless of index, since unlike write jobs deletion order
// across (or even within) an index carries no correctness requirement.
const AsyncDeleteGroup = "async-delete"

// DeferredDelete publishes deferred-deletion jobs to the shared async-delete
// queue rather than unlinking synchronously. This is the Go realization of
// the spec's "delete does not synchronously unlink; a background deletion
// worker eventually unlinks" contract (§4.1) — superseded segment files may
// still be mapped by a long-lived reader, so deferring unlinking avoids
// tearing readers down mid-read.
type DeferredDelete struct {
	indexID string
	queue   queue.Queue
}

func NewDeferredDelete(indexID string, q queue.Queue) *DeferredDelete {
	return &DeferredDelete{indexID: indexID, queue: q}
}

// ScheduleNow publishes paths to the async-delete queue on a background
// goroutine so the caller's manifest commit is never blocked on a queue
// round trip. Publish failures are logged, not propagated — the files
// simply linger until a future commit's deletion job (or an operator
// sweep) catches them.
func (d *DeferredDelete) ScheduleNow(paths []string) {
	if len(paths) == 0 {
		return
	}
	go func() {
		body, err := json.Marshal(deleteJob{IndexID: d.indexID, Paths: paths})
		if err != nil {
			log.Error().Err(err).Msg("marshal deferred delete job")
			return
		}
		if err := d.queue.Publish(context.Background(), AsyncDeleteGroup, body); err != nil {
			log.Error().Err(err).Strs("paths", paths).Msg("enqueue deferred delete failed")
		}
	}()
}

// DeleteWorker drains the async-delete queue and unlinks paths through
// whatever Directory backend openDir resolves for a job's index id — the
// cmd/async-delete-worker binary's core loop.
type DeleteWorker struct {
	queue   queue.Queue
	openDir func(ctx context.Context, indexID string) (Directory, error)
}

func NewDeleteWorker(q queue.Queue, openDir func(ctx context.Context, indexID string) (Directory, error)) *DeleteWorker {
	return &DeleteWorker{queue: q, openDir: openDir}
}

// Run drains the queue until ctx is canceled, deleting every path in each
// job. A path that's already gone is not an error (Directory.Delete
// tolerates it); any other failure leaves the message un-acked for
// redelivery.
func (w *DeleteWorker) Run(ctx context.Context) error {
	for {
		msg, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive delete job: %w", err)
		}

		if err := w.handle(ctx, msg.Body); err != nil {
			log.Error().Err(err).Msg("delete job failed, leaving for redelivery")
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

func (w *DeleteWorker) handle(ctx context.Context, body []byte) error {
	var job deleteJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode delete job: %w", err)
	}

	dir, err := w.openDir(ctx, job.IndexID)
	if err != nil {
		return fmt.Errorf("open directory for %q: %w", job.IndexID, err)
	}

	for _, p := range job.Paths {
		if err := dir.Delete(ctx, p); err != nil {
			return fmt.Errorf("delete %q: %w", p, err)
		}
	}
	return nil
}
