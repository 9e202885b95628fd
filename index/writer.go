package index

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/epokhe/pathery"
	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/queue"
	"github.com/epokhe/pathery/schema"
)

// docLocation tracks where a document currently lives, the way bitdb's
// in-memory `index map[string]*recordLocation` tracks a key's most recent
// segment+offset so a writer can tell whether an older record scanned
// during merge is still live.
type docLocation struct {
	segmentID string
	localID   int
}

// FieldDoc is one document staged for indexing: schema-validated fields
// plus its external id (the value of the schema's mandatory __id field).
type FieldDoc struct {
	ExternalID string
	Fields     map[string]any // field name -> value (string, float64, or nested map for json fields)
}

// introduction is one pending segment commit, submitted to the writer's
// mainLoop and acknowledged through applied once the manifest swap
// completes — pengio-bleve/scorch.go's segment-introduction shape.
type introduction struct {
	segment          *Segment
	tombstoneDeletes map[string][]int // existing segment id -> local doc ids to mark dead
	replaces         []string         // segment ids retired by this introduction (merge result)
	applied          chan error
}

// root is the immutable snapshot readers and the location index observe;
// swapped atomically under mu on every successful commit.
type root struct {
	manifest directory.Manifest
	segments map[string]*Segment // segment id -> loaded segment
}

// Writer is the single-writer-per-index embedded engine: it accumulates
// documents into segments, commits them through a background goroutine
// serialized against the directory's manifest lock, and runs a bounded
// background merge the way bitdb's tryMerge does.
type Writer struct {
	dir       directory.Directory
	committer *directory.ManifestCommitter
	schema    *schema.Schema
	deferred  *directory.DeferredDelete

	mu   sync.RWMutex
	cur  root
	locs map[string]docLocation // external id -> current location, rebuilt on Open

	introduce chan introduction
	mergeSem  chan struct{}
	mergeErrs chan error

	mergeThreshold uint64 // trigger a merge once the live+deleted doc count summed over all segments reaches this (and there is more than one segment)
	closeOnce      sync.Once
	done           chan struct{}
}

// defaultMergeThreshold matches the spec's documented default segment size
// before a merge is considered, mirrored from SPEC_FULL.md's merge policy
// section.
const defaultMergeThreshold = 10_000

// Option configures a Writer, following the teacher's functional-options
// pattern (core/db.go's Option/WithRolloverThreshold).
type Option func(*Writer)

func WithMergeThreshold(n uint64) Option {
	return func(w *Writer) { w.mergeThreshold = n }
}

// NoMergePolicy disables background merging entirely, for tests that need
// deterministic segment counts.
func NoMergePolicy() Option {
	return func(w *Writer) { w.mergeThreshold = 0 }
}

// Open loads the current manifest, opens every segment, rebuilds the
// external-id location index by scanning each segment's stored docs and
// live bitmap, and starts the background commit loop. deleteQueue is the
// shared async-delete queue superseded segment files are scheduled onto.
func Open(ctx context.Context, indexID string, dir directory.Directory, s *schema.Schema, deleteQueue queue.Queue, opts ...Option) (*Writer, error) {
	m, err := directory.ReadManifest(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	segments := make(map[string]*Segment, len(m.Segments))
	locs := make(map[string]docLocation)
	for _, sm := range m.Segments {
		seg, err := OpenSegment(ctx, dir, sm.ID)
		if err != nil {
			return nil, fmt.Errorf("open segment %q: %w", sm.ID, err)
		}
		segments[sm.ID] = seg
		for localID, doc := range seg.data.Docs {
			if !seg.data.Live[localID] {
				continue
			}
			locs[doc.ExternalID] = docLocation{segmentID: sm.ID, localID: localID}
		}
	}

	w := &Writer{
		dir:            dir,
		committer:      directory.NewManifestCommitter(dir),
		schema:         s,
		deferred:       directory.NewDeferredDelete(indexID, deleteQueue),
		cur:            root{manifest: m, segments: segments},
		locs:           locs,
		introduce:      make(chan introduction),
		mergeSem:       make(chan struct{}, 1),
		mergeErrs:      make(chan error, 1),
		mergeThreshold: defaultMergeThreshold,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.mainLoop(ctx)
	return w, nil
}

// Root returns the currently visible manifest and segment set.
func (w *Writer) Root() (directory.Manifest, map[string]*Segment) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur.manifest, w.cur.segments
}

// MergeErrors reports asynchronous background-merge failures, the same
// channel-based error-reporting shape as bitdb's db.MergeErrors.
func (w *Writer) MergeErrors() <-chan error { return w.mergeErrs }

// Close stops the background commit loop.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

// mainLoop is the single goroutine allowed to mutate w.cur, serializing
// commits the way pengio-bleve's scorch mainLoop serializes segment
// introductions against a single root pointer swap.
func (w *Writer) mainLoop(ctx context.Context) {
	for {
		select {
		case <-w.done:
			return
		case intro := <-w.introduce:
			err := w.apply(ctx, intro)
			intro.applied <- err
		}
	}
}

func (w *Writer) apply(ctx context.Context, intro introduction) error {
	var newMeta directory.SegmentMeta
	if intro.segment != nil {
		newMeta = intro.segment.Meta()
	}

	replaced := mapset.NewThreadUnsafeSet(intro.replaces...)

	err := w.committer.Commit(ctx, func(m directory.Manifest) (directory.Manifest, error) {
		kept := m.Segments[:0]
		for _, sm := range m.Segments {
			if replaced.Contains(sm.ID) {
				continue
			}
			if dels, ok := intro.tombstoneDeletes[sm.ID]; ok {
				sm.NumDeleted += uint64(len(dels))
			}
			kept = append(kept, sm)
		}
		m.Segments = kept
		if intro.segment != nil {
			m.Segments = append(m.Segments, newMeta)
		}
		return m, nil
	})
	if err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}

	w.mu.Lock()
	var staleFiles []string
	for _, id := range intro.replaces {
		if seg, ok := w.cur.segments[id]; ok {
			staleFiles = append(staleFiles, segmentFileName(seg.ID))
		}
		delete(w.cur.segments, id)
	}
	if intro.segment != nil {
		w.cur.segments[intro.segment.ID] = intro.segment
	}
	for segID, dels := range intro.tombstoneDeletes {
		seg, ok := w.cur.segments[segID]
		if !ok {
			continue
		}
		data := seg.data
		for _, localID := range dels {
			if localID < len(data.Live) && data.Live[localID] {
				data.Live[localID] = false
			}
		}
	}
	m, err := directory.ReadManifest(ctx, w.dir)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("reload manifest after commit: %w", err)
	}
	w.cur.manifest = m
	w.mu.Unlock()

	if len(staleFiles) > 0 {
		w.deferred.ScheduleNow(staleFiles)
	}

	w.maybeTriggerMerge()
	return nil
}

// AddDocuments validates docs against the writer's schema, builds one new
// segment from the batch, tombstones any prior occurrence of the same
// external id (delete-before-add), and commits. It blocks until the
// commit is durable.
func (w *Writer) AddDocuments(ctx context.Context, docs []FieldDoc) error {
	if len(docs) == 0 {
		return nil
	}

	data := segmentData{
		Postings: make(map[string]fieldPostings),
		Numeric:  make(map[string]map[int]int64),
		FieldLen: make(map[string]map[int]int),
	}

	tombstones := make(map[string][]int)
	w.mu.RLock()
	for _, d := range docs {
		if loc, ok := w.locs[d.ExternalID]; ok {
			tombstones[loc.segmentID] = append(tombstones[loc.segmentID], loc.localID)
		}
	}
	w.mu.RUnlock()

	for _, d := range docs {
		localID := len(data.Docs)
		stored := make(map[string]any)
		for name, val := range d.Fields {
			f, ok := w.schema.Field(name)
			if !ok {
				continue
			}
			if f.HasFlag(schema.FlagStored) {
				stored[name] = val
			}
			indexField(&data, f, localID, val)
		}
		data.Docs = append(data.Docs, storedDoc{ExternalID: d.ExternalID, Stored: stored})
		data.Live = append(data.Live, true)
	}
	data.NumDocs = uint64(len(data.Docs))

	segID := pathery.NewID()
	if err := WriteSegment(ctx, w.dir, segID, data); err != nil {
		return fmt.Errorf("write segment %q: %w", segID, err)
	}
	seg := &Segment{ID: segID, data: data}

	applied := make(chan error, 1)
	w.introduce <- introduction{segment: seg, tombstoneDeletes: tombstones, applied: applied}
	if err := <-applied; err != nil {
		return err
	}

	w.mu.Lock()
	for localID, doc := range data.Docs {
		w.locs[doc.ExternalID] = docLocation{segmentID: segID, localID: localID}
	}
	w.mu.Unlock()

	return nil
}

// DeleteDocuments tombstones the given external ids wherever they
// currently live, without writing a new segment.
func (w *Writer) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tombstones := make(map[string][]int)
	w.mu.Lock()
	for _, id := range ids {
		loc, ok := w.locs[id]
		if !ok {
			continue
		}
		tombstones[loc.segmentID] = append(tombstones[loc.segmentID], loc.localID)
		delete(w.locs, id)
	}
	w.mu.Unlock()

	if len(tombstones) == 0 {
		return nil
	}

	applied := make(chan error, 1)
	w.introduce <- introduction{tombstoneDeletes: tombstones, applied: applied}
	return <-applied
}
