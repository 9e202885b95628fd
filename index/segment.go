// Package index is the embedded full-text search engine: segment
// construction, merging, and querying over a directory.Directory. Its
// commit protocol — a channel of segment introductions consumed by a
// single background goroutine that swaps an immutable root snapshot under
// a sync.RWMutex — is the Go-native analogue of a Lucene-style segment
// writer's "reader manager."
package index

import (
	"context"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"github.com/epokhe/pathery/directory"
)

// posting is one occurrence of a term in a document's field, recording
// term-frequency-contributing position for phrase queries.
type posting struct {
	Doc uint32   `json:"doc"` // local doc id within the segment
	Pos []uint32 `json:"pos"`
}

// fieldPostings maps a term to its postings list. A freshly built segment's
// lists are sorted by Doc; a merged segment's are not guaranteed to be.
type fieldPostings map[string][]posting

// storedDoc is the subset of a document's fields persisted in the segment
// for hit hydration/highlighting, keyed by schema field name.
type storedDoc struct {
	ExternalID string         `json:"external_id"`
	Stored     map[string]any `json:"stored"`
}

// segmentData is the full durable state of one segment, serialized to its
// directory.Directory file as checksummed JSON — the teacher's
// checksum-then-payload record shape, applied to a single whole-segment
// blob instead of a log of small records, since a segment is written once
// and never appended to after construction.
type segmentData struct {
	Docs       []storedDoc              `json:"docs"`
	Live       []bool                   `json:"live"`
	Postings   map[string]fieldPostings `json:"postings"`  // field -> term -> postings
	Numeric    map[string]map[int]int64 `json:"numeric"`   // field -> local doc id -> numeric value
	FieldLen   map[string]map[int]int   `json:"field_len"` // field -> local doc id -> token count, for BM25 length norm
	NumDocs    uint64                   `json:"num_docs"`
	NumDeleted uint64                   `json:"num_deleted"`
}

// Segment is a read-only, fully loaded segment ready for querying.
type Segment struct {
	ID   string
	data segmentData
}

// segmentFileName returns the path a segment's data is stored at within
// its Directory.
func segmentFileName(id string) string { return "segments/" + id + ".seg" }

const checksumLen = 8

// encodeSegment serializes data with a leading xxh3 checksum over the
// payload, mirroring core/io.go's writeRecord framing.
func encodeSegment(data segmentData) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal segment: %w", err)
	}
	sum := xxh3.Hash(payload)
	buf := make([]byte, checksumLen+len(payload))
	putChecksum(buf, sum)
	copy(buf[checksumLen:], payload)
	return buf, nil
}

func putChecksum(buf []byte, sum uint64) {
	for i := 0; i < checksumLen; i++ {
		buf[i] = byte(sum >> (8 * i))
	}
}

func getChecksum(buf []byte) uint64 {
	var sum uint64
	for i := 0; i < checksumLen; i++ {
		sum |= uint64(buf[i]) << (8 * i)
	}
	return sum
}

func decodeSegment(buf []byte) (segmentData, error) {
	if len(buf) < checksumLen {
		return segmentData{}, fmt.Errorf("segment data too short: %d bytes", len(buf))
	}
	want := getChecksum(buf)
	payload := buf[checksumLen:]
	got := xxh3.Hash(payload)
	if got != want {
		return segmentData{}, fmt.Errorf("segment checksum mismatch: want %x got %x", want, got)
	}

	var data segmentData
	if err := json.Unmarshal(payload, &data); err != nil {
		return segmentData{}, fmt.Errorf("unmarshal segment: %w", err)
	}
	return data, nil
}

// OpenSegment reads and verifies segment id from dir.
func OpenSegment(ctx context.Context, dir directory.Directory, id string) (*Segment, error) {
	h, err := dir.GetFileHandle(ctx, segmentFileName(id))
	if err != nil {
		return nil, fmt.Errorf("open segment %q: %w", id, err)
	}
	defer h.Close() //nolint:errcheck

	buf := make([]byte, h.Len())
	if _, err := h.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read segment %q: %w", id, err)
	}

	data, err := decodeSegment(buf)
	if err != nil {
		return nil, fmt.Errorf("decode segment %q: %w", id, err)
	}
	return &Segment{ID: id, data: data}, nil
}

// WriteSegment durably writes a newly built segment to dir.
func WriteSegment(ctx context.Context, dir directory.Directory, id string, data segmentData) error {
	buf, err := encodeSegment(data)
	if err != nil {
		return err
	}
	w, err := dir.OpenWrite(ctx, segmentFileName(id))
	if err != nil {
		return fmt.Errorf("open segment %q for write: %w", id, err)
	}
	if _, err := w.Write(buf); err != nil {
		_ = w.Close()
		return fmt.Errorf("write segment %q: %w", id, err)
	}
	return w.Close()
}

// Meta returns the directory.SegmentMeta summary for manifest bookkeeping.
func (s *Segment) Meta() directory.SegmentMeta {
	return directory.SegmentMeta{
		ID:         s.ID,
		NumDocs:    s.data.NumDocs,
		NumDeleted: s.data.NumDeleted,
		Files:      []string{segmentFileName(s.ID)},
	}
}

// terms returns every term indexed for field, sorted.
func (s *Segment) terms(field string) []string {
	fp, ok := s.data.Postings[field]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(fp))
	for t := range fp {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
