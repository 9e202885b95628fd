package index

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/epokhe/pathery"
)

// maybeTriggerMerge runs a merge pass in the background if there is more
// than one segment and the total document count across all segments
// reaches the configured threshold,
// using a non-blocking semaphore send exactly like bitdb's tryMerge — at
// most one merge runs at a time, and a merge already in flight is silently
// skipped rather than queued.
func (w *Writer) maybeTriggerMerge() {
	if w.mergeThreshold == 0 {
		return
	}

	w.mu.RLock()
	var total uint64
	for _, sm := range w.cur.manifest.Segments {
		total += sm.NumDocs
	}
	shouldMerge := len(w.cur.manifest.Segments) > 1 && total >= w.mergeThreshold
	w.mu.RUnlock()

	if !shouldMerge {
		return
	}

	select {
	case w.mergeSem <- struct{}{}:
		go func() {
			defer func() { <-w.mergeSem }()
			if err := w.runMerge(context.Background()); err != nil {
				select {
				case w.mergeErrs <- err:
				default:
				}
			}
		}()
	default:
		// merge already running
	}
}

// WaitMergingThreads blocks until no merge is currently running, the way
// bitdb's tests synchronize on completion before asserting segment state.
func (w *Writer) WaitMergingThreads() {
	w.mergeSem <- struct{}{}
	<-w.mergeSem
}

// runMerge rewrites every currently live document across all segments into
// one freshly built segment, the way bitdb's merge folds every inactive
// segment into a rollover chain of merge segments. Unlike bitdb, this
// engine keeps the result to a single segment per merge pass since
// segment sizes here are bounded by document count rather than byte size.
func (w *Writer) runMerge(ctx context.Context) error {
	w.mu.RLock()
	oldSegments := make(map[string]*Segment, len(w.cur.segments))
	for id, seg := range w.cur.segments {
		oldSegments[id] = seg
	}
	locsSnapshot := make(map[string]docLocation, len(w.locs))
	for id, loc := range w.locs {
		locsSnapshot[id] = loc
	}
	w.mu.RUnlock()

	if len(oldSegments) <= 1 {
		return nil
	}

	merged := segmentData{
		Postings: make(map[string]fieldPostings),
		Numeric:  make(map[string]map[int]int64),
		FieldLen: make(map[string]map[int]int),
	}

	// remap[segmentID][oldLocalID] = newLocalID, built while copying live
	// docs across in segment iteration order.
	remap := make(map[string]map[int]int, len(oldSegments))

	for segID, seg := range oldSegments {
		segRemap := make(map[int]int)
		for oldLocal, doc := range seg.data.Docs {
			if !seg.data.Live[oldLocal] {
				continue
			}
			// A doc only survives the merge if w.locs still points at
			// this exact (segment, local id) as of the snapshot above —
			// otherwise a write that landed after the snapshot already
			// superseded it, and that newer copy carries it forward
			// instead of this one.
			cur, ok := locsSnapshot[doc.ExternalID]
			if !ok || cur.segmentID != segID || cur.localID != oldLocal {
				continue
			}

			newLocal := len(merged.Docs)
			merged.Docs = append(merged.Docs, doc)
			merged.Live = append(merged.Live, true)
			segRemap[oldLocal] = newLocal
		}
		remap[segID] = segRemap
	}

	for segID, seg := range oldSegments {
		segRemap := remap[segID]
		for field, fp := range seg.data.Postings {
			for term, postings := range fp {
				for _, p := range postings {
					newLocal, ok := segRemap[int(p.Doc)]
					if !ok {
						continue
					}
					for _, pos := range p.Pos {
						addPosting(&merged, field, term, newLocal, pos)
					}
				}
			}
		}
		for field, byDoc := range seg.data.Numeric {
			for oldLocal, v := range byDoc {
				if newLocal, ok := segRemap[oldLocal]; ok {
					storeNumeric(&merged, field, newLocal, v)
				}
			}
		}
		for field, byDoc := range seg.data.FieldLen {
			for oldLocal, n := range byDoc {
				if newLocal, ok := segRemap[oldLocal]; ok {
					addFieldLen(&merged, field, newLocal, n)
				}
			}
		}
	}
	merged.NumDocs = uint64(len(merged.Docs))

	newID := pathery.NewID()
	if err := WriteSegment(ctx, w.dir, newID, merged); err != nil {
		return fmt.Errorf("write merged segment %q: %w", newID, err)
	}
	newSeg := &Segment{ID: newID, data: merged}

	oldIDs := make([]string, 0, len(oldSegments))
	for id := range oldSegments {
		oldIDs = append(oldIDs, id)
	}

	applied := make(chan error, 1)
	w.introduce <- introduction{segment: newSeg, replaces: oldIDs, applied: applied}
	if err := <-applied; err != nil {
		return fmt.Errorf("apply merge: %w", err)
	}

	mergedSet := mapset.NewThreadUnsafeSet(oldIDs...)
	w.mu.Lock()
	for newLocal, doc := range merged.Docs {
		// only repoint docs that were still pointing at one of the
		// merged-away segments; a write landing concurrently with the
		// merge already moved its location forward and must not be
		// clobbered back onto the merged segment.
		if cur, ok := w.locs[doc.ExternalID]; ok {
			if mergedSet.Contains(cur.segmentID) {
				w.locs[doc.ExternalID] = docLocation{segmentID: newID, localID: newLocal}
			}
		}
	}
	w.mu.Unlock()

	return nil
}
