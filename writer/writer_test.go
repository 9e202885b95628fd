package writer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/epokhe/pathery/blobstore"
	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/docstore"
	"github.com/epokhe/pathery/index"
	"github.com/epokhe/pathery/index/query"
	"github.com/epokhe/pathery/queue"
	"github.com/epokhe/pathery/schema"
)

const testSchemaConfig = `{
	"schemas": [{
		"prefix": "blog-",
		"fields": [
			{"name": "title", "kind": "text", "flags": ["TEXT", "STORED"]}
		]
	}]
}`

// writerPool caches one *index.Writer per index id for the lifetime of a
// test, the same shape cmd/index-writer-worker's pool uses in production.
type writerPool struct {
	mu   sync.Mutex
	dirs map[string]directory.Directory
	w    map[string]*index.Writer
	s    *schema.Schema
	q    queue.Queue
	root string
}

func newWriterPool(t *testing.T, s *schema.Schema, q queue.Queue) *writerPool {
	return &writerPool{
		dirs: make(map[string]directory.Directory),
		w:    make(map[string]*index.Writer),
		s:    s,
		q:    q,
		root: t.TempDir(),
	}
}

func (p *writerPool) open(ctx context.Context, indexID string) (*index.Writer, *schema.Schema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.w[indexID]; ok {
		return w, p.s, nil
	}
	dir, err := directory.NewLocal(p.root, indexID)
	if err != nil {
		return nil, nil, err
	}
	w, err := index.Open(ctx, indexID, dir, p.s, p.q, index.NoMergePolicy())
	if err != nil {
		return nil, nil, err
	}
	p.dirs[indexID] = dir
	p.w[indexID] = w
	return w, p.s, nil
}

func (p *writerPool) directoryFor(indexID string) directory.Directory {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirs[indexID]
}

func newTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	r, err := schema.LoadRegistry([]byte(testSchemaConfig))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	s, err := r.Load("blog-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

// TestClientWorkerEndToEnd drives the full write pipeline: Client stages
// and enqueues a document, Worker drains the queue and applies it, and the
// committed index is then queryable.
func TestClientWorkerEndToEnd(t *testing.T) {
	s := newTestSchema(t)
	q := queue.NewMemory()
	blobs := blobstore.NewMemory()
	docs := docstore.NewMemoryStore()
	pool := newWriterPool(t, s, q)

	client := NewClient(blobs, docs, q)
	worker := NewWorker(q, blobs, docs, pool.open)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(ctx)
	}()

	if _, err := client.IndexDocuments(ctx, "blog-1", s, [][]byte{
		[]byte(`{"__id":"a","title":"hello world"}`),
	}); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		w, _, err := pool.open(ctx, "blog-1")
		if err == nil && w != nil {
			m, _ := w.Root()
			if len(m.Segments) > 0 {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the write job to be applied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	w, _, err := pool.open(ctx, "blog-1")
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	r, err := index.OpenReader(ctx, pool.directoryFor("blog-1"), s)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	node, _ := query.Parse("hello")
	hits, err := r.Search(node, 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ExternalID != "a" {
		t.Fatalf("Search() = %+v, want exactly doc a", hits)
	}
	_ = w
}

// spyBlobStore wraps blobstore.Memory to record which keys get deleted.
type spyBlobStore struct {
	*blobstore.Memory
	mu      sync.Mutex
	deleted []string
}

func (s *spyBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	s.mu.Unlock()
	return s.Memory.Delete(ctx, key)
}

func (s *spyBlobStore) deletedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// After the worker successfully processes a batch, the staged blob is
// cleaned up, so a leak there would fail this. Property 3 (write-read
// consistency) is checked by TestClientWorkerEndToEnd.
func TestWorkerDeletesStagedBlobAfterCommit(t *testing.T) {
	s := newTestSchema(t)
	q := queue.NewMemory()
	blobs := &spyBlobStore{Memory: blobstore.NewMemory()}
	docs := docstore.NewMemoryStore()
	pool := newWriterPool(t, s, q)

	client := NewClient(blobs, docs, q)
	worker := NewWorker(q, blobs, docs, pool.open)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = worker.Run(ctx) }()

	if _, err := client.IndexDocuments(ctx, "blog-1", s, [][]byte{
		[]byte(`{"__id":"a","title":"hello"}`),
	}); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		w, _, err := pool.open(ctx, "blog-1")
		if err == nil {
			m, _ := w.Root()
			// The blob is deleted only after the commit is visible, so wait
			// for both.
			if len(m.Segments) > 0 && len(blobs.deletedKeys()) > 0 {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for commit and staged blob cleanup")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if len(blobs.deletedKeys()) != 1 {
		t.Fatalf("expected exactly one staged blob to be deleted after commit, got %v", blobs.deletedKeys())
	}
}

func TestPrepareDocumentValidation(t *testing.T) {
	s := newTestSchema(t)

	if _, _, err := prepareDocument(s, []byte(`not json`)); err == nil {
		t.Fatal("expected ErrNotAnObject for non-JSON body")
	}
	if _, _, err := prepareDocument(s, []byte(`42`)); err == nil {
		t.Fatal("expected ErrNotAnObject for a JSON scalar")
	}
	if _, _, err := prepareDocument(s, []byte(`{"__id": 5, "title": "x"}`)); err == nil {
		t.Fatal("expected ErrInvalidIDType for a non-string __id")
	}
	if _, _, err := prepareDocument(s, []byte(`{"unrelated_field": "x"}`)); err == nil {
		t.Fatal("expected ErrEmptyDocument when no fields match the schema")
	}

	id, filtered, err := prepareDocument(s, []byte(`{"title": "hello", "unrelated": "dropped"}`))
	if err != nil {
		t.Fatalf("prepareDocument: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated __id when the body omits one")
	}
	if string(filtered) == "" {
		t.Fatal("expected non-empty filtered body")
	}
}
