package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/index/query"
	"github.com/epokhe/pathery/schema"
)

// Hit is one matched document from a Reader.Search call.
type Hit struct {
	ExternalID string
	Score      float64
	Stored     map[string]any
}

// Reader executes parsed queries against a fixed set of segments — opened
// either over a full directory.Directory or over a directory.View, which
// is how a PartitionExecutor restricts a Reader to its assigned segments
// without the reader ever needing to know partitioning exists.
type Reader struct {
	schema   *schema.Schema
	segments []*Segment
}

// OpenReader loads every segment the directory's (possibly partition-
// filtered) manifest lists.
func OpenReader(ctx context.Context, dir directory.Directory, s *schema.Schema) (*Reader, error) {
	m, err := directory.ReadManifest(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	segs := make([]*Segment, 0, len(m.Segments))
	for _, sm := range m.Segments {
		seg, err := OpenSegment(ctx, dir, sm.ID)
		if err != nil {
			return nil, fmt.Errorf("open segment %q: %w", sm.ID, err)
		}
		segs = append(segs, seg)
	}
	return &Reader{schema: s, segments: segs}, nil
}

// NewReaderFromSegments builds a Reader directly from already-loaded
// segments, without opening a Directory.
func NewReaderFromSegments(s *schema.Schema, segs []*Segment) *Reader {
	return &Reader{schema: s, segments: segs}
}

// docMatch is one segment-local candidate before scoring.
type docMatch struct {
	seg     *Segment
	localID int
}

// Search evaluates q across every open segment, scores matches with BM25,
// sorts by score descending (stable), and returns at most limit hits after
// skipping the first offset — TopDocs::with_limit(limit).and_offset(offset)
// in spec terms.
func (r *Reader) Search(q query.Node, limit, offset int) ([]Hit, error) {
	type scored struct {
		docMatch
		score float64
	}

	var all []scored
	for _, seg := range r.segments {
		matches := evalNode(r.schema, seg, q)
		for localID := range matches {
			if !seg.data.Live[localID] {
				continue
			}
			score := scoreDoc(r.schema, r.segments, seg, localID, q)
			all = append(all, scored{docMatch{seg: seg, localID: localID}, score})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}

	hits := make([]Hit, 0, len(all))
	for _, m := range all {
		doc := m.seg.data.Docs[m.localID]
		hits = append(hits, Hit{ExternalID: doc.ExternalID, Score: m.score, Stored: doc.Stored})
	}
	return hits, nil
}

// evalNode returns the set of segment-local doc ids matching n.
func evalNode(s *schema.Schema, seg *Segment, n query.Node) map[int]bool {
	switch v := n.(type) {
	case query.Term:
		return matchTerm(s, seg, v.Field, v.Value)
	case query.Phrase:
		return matchPhrase(s, seg, v)
	case query.Range:
		return matchRange(seg, v)
	case query.And:
		var out map[int]bool
		for i, c := range v.Clauses {
			m := evalNode(s, seg, c)
			if i == 0 {
				out = m
				continue
			}
			out = intersect(out, m)
		}
		return out
	case query.Or:
		out := make(map[int]bool)
		for _, c := range v.Clauses {
			for id := range evalNode(s, seg, c) {
				out[id] = true
			}
		}
		return out
	case query.Not:
		universe := allDocs(seg)
		excl := evalNode(s, seg, v.Clause)
		for id := range excl {
			delete(universe, id)
		}
		return universe
	default:
		return nil
	}
}

func allDocs(seg *Segment) map[int]bool {
	out := make(map[int]bool, len(seg.data.Docs))
	for i, live := range seg.data.Live {
		if live {
			out[i] = true
		}
	}
	return out
}

func intersect(a, b map[int]bool) map[int]bool {
	out := make(map[int]bool)
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

// fieldsFor resolves an empty Field (a bare term) to every indexed text
// field, per the query language's "matched against every indexed text
// field" rule.
func fieldsFor(s *schema.Schema, field string) []string {
	if field != "" {
		return []string{field}
	}
	var out []string
	for _, f := range s.TextFields() {
		out = append(out, f.Name)
	}
	return out
}

func matchTerm(s *schema.Schema, seg *Segment, field, value string) map[int]bool {
	out := make(map[int]bool)
	for _, f := range fieldsFor(s, field) {
		fp, ok := seg.data.Postings[f]
		if !ok {
			continue
		}
		for _, p := range fp[normalizeTermValue(s, f, value)] {
			out[int(p.Doc)] = true
		}
	}
	return out
}

// normalizeTermValue lowercases a term the same way the analyzer does at
// index time, so a query like "title:Hello" still matches a stored
// lowercase token. Only the value is normalized, not the field name, and a
// value that tokenizes to other than exactly one token is returned as is.
func normalizeTermValue(_ *schema.Schema, _ string, value string) string {
	toks := tokenize(value)
	if len(toks) == 1 {
		return toks[0]
	}
	return value
}

func matchPhrase(s *schema.Schema, seg *Segment, ph query.Phrase) map[int]bool {
	if len(ph.Values) == 0 {
		return map[int]bool{}
	}
	out := make(map[int]bool)
	for _, f := range fieldsFor(s, ph.Field) {
		fp, ok := seg.data.Postings[f]
		if !ok {
			continue
		}
		first := fp[normalizeTermValue(s, f, ph.Values[0])]
		for _, p0 := range first {
			if phraseMatchesAt(fp, ph.Values, p0.Doc, p0.Pos) {
				out[int(p0.Doc)] = true
			}
		}
	}
	return out
}

// docPositions collects every position recorded for doc across all
// postings entries naming it, tolerating more than one entry per doc
// (which a freshly built segment never produces, but a merged segment's
// postings list isn't guaranteed to stay doc-sorted across source
// segments).
func docPositions(list []posting, doc uint32) []uint32 {
	var out []uint32
	for _, p := range list {
		if p.Doc == doc {
			out = append(out, p.Pos...)
		}
	}
	return out
}

func phraseMatchesAt(fp fieldPostings, values []string, doc uint32, firstPositions []uint32) bool {
	for _, startPos := range firstPositions {
		ok := true
		for i := 1; i < len(values); i++ {
			positions := docPositions(fp[values[i]], doc)
			found := false
			for _, pos := range positions {
				if pos == startPos+uint32(i) {
					found = true
					break
				}
			}
			if !found {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func matchRange(seg *Segment, r query.Range) map[int]bool {
	out := make(map[int]bool)
	byDoc, ok := seg.data.Numeric[r.Field]
	if !ok {
		return out
	}
	for docID, v := range byDoc {
		if r.Low != nil {
			if r.LowInclusive && v < *r.Low {
				continue
			}
			if !r.LowInclusive && v <= *r.Low {
				continue
			}
		}
		if r.High != nil {
			if r.HighInclusive && v > *r.High {
				continue
			}
			if !r.HighInclusive && v >= *r.High {
				continue
			}
		}
		out[docID] = true
	}
	return out
}

// scoreDoc sums BM25 weights over every term/phrase leaf in q that the doc
// actually matched, the same "sum of matched subquery scores" BM25
// combination tantivy's BooleanQuery uses.
func scoreDoc(s *schema.Schema, allSegments []*Segment, seg *Segment, localID int, q query.Node) float64 {
	var total uint64
	for _, sg := range allSegments {
		total += sg.data.NumDocs - sg.data.NumDeleted
	}

	var score float64
	for _, t := range query.Terms(q) {
		for _, f := range fieldsFor(s, t.Field) {
			term := normalizeTermValue(s, f, t.Value)
			fp, ok := seg.data.Postings[f]
			if !ok {
				continue
			}
			var tf uint32
			for _, p := range fp[term] {
				if p.Doc == uint32(localID) {
					tf = uint32(len(p.Pos))
					break
				}
			}
			if tf == 0 {
				continue
			}

			docFreq := uint64(len(fp[term]))
			docLen := float64(seg.data.FieldLen[f][localID])
			avgLen := avgFieldLen(seg, f)
			score += bm25Weight(total, docFreq, tf, docLen, avgLen)
		}
	}
	return score
}

func avgFieldLen(seg *Segment, field string) float64 {
	byDoc, ok := seg.data.FieldLen[field]
	if !ok || len(byDoc) == 0 {
		return 1
	}
	var sum int
	for _, n := range byDoc {
		sum += n
	}
	return float64(sum) / float64(len(byDoc))
}
