package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
)

// ManifestPath is the well-known path every Directory backend stores its
// segment manifest under.
const ManifestPath = "meta.json"

// SegmentMeta describes one committed segment: enough for a
// PartitionExecutor to decide whether it owns the segment, and enough for
// a coordinator to build a partition count from total doc counts.
type SegmentMeta struct {
	ID          string         `json:"id"`
	NumDocs     uint64         `json:"num_docs"`
	NumDeleted  uint64         `json:"num_deleted"`
	Files       []string       `json:"files"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Manifest is the full durable state of an index's segment set, serialized
// to ManifestPath with every commit.
type Manifest struct {
	Segments []SegmentMeta `json:"segments"`
	// Generation increments on every commit, so a reader can detect a
	// manifest changed underneath it without comparing the full segment
	// list.
	Generation uint64 `json:"generation"`
}

// TotalDocs sums live (non-deleted) documents across all segments.
func (m Manifest) TotalDocs() uint64 {
	var n uint64
	for _, s := range m.Segments {
		n += s.NumDocs - s.NumDeleted
	}
	return n
}

// ReadManifest loads and parses the manifest from dir, returning a zero
// Manifest (no error) if it doesn't exist yet — the state of a brand new
// index before its first commit.
func ReadManifest(ctx context.Context, dir Directory) (Manifest, error) {
	ok, err := dir.Exists(ctx, ManifestPath)
	if err != nil {
		return Manifest{}, fmt.Errorf("check manifest existence: %w", err)
	}
	if !ok {
		return Manifest{}, nil
	}

	data, err := dir.AtomicRead(ctx, ManifestPath)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// WriteManifest serializes and atomically replaces the manifest.
func WriteManifest(ctx context.Context, dir Directory, m Manifest) error {
	sort.Slice(m.Segments, func(i, j int) bool { return m.Segments[i].ID < m.Segments[j].ID })
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return dir.AtomicWrite(ctx, ManifestPath, data)
}

// ManifestCommitter serializes read-modify-write manifest updates behind a
// per-process lock plus the backend's AcquireLock, the way the teacher
// serializes segment introductions behind its db-level mutex.
type ManifestCommitter struct {
	dir Directory
	mu  sync.Mutex
}

func NewManifestCommitter(dir Directory) *ManifestCommitter {
	return &ManifestCommitter{dir: dir}
}

// Commit applies mutate to the current manifest and writes the result back,
// holding both the in-process mutex and the backend's AcquireLock lock.
// How far that lock reaches depends on the backend: the chunked-kv lock is
// an etcd mutex shared across processes, the local lock is process-local,
// and the chunked-blob lock is a no-op.
func (c *ManifestCommitter) Commit(ctx context.Context, mutate func(Manifest) (Manifest, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	release, err := c.dir.AcquireLock(ctx, "manifest")
	if err != nil {
		return fmt.Errorf("acquire manifest lock: %w", err)
	}
	defer release()

	cur, err := ReadManifest(ctx, c.dir)
	if err != nil {
		return err
	}

	next, err := mutate(cur)
	if err != nil {
		return err
	}
	next.Generation = cur.Generation + 1

	return WriteManifest(ctx, c.dir, next)
}
