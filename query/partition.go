// Package query implements the query-side fan-out pipeline:
// Coordinator computes partitions and merges results, Executor runs one
// partition's sub-query against a segment-filtered directory view. This
// is distinct from index/query, which only parses the text grammar.
package query

import (
	"context"
	"fmt"

	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/index"
	"github.com/epokhe/pathery/index/query"
	"github.com/epokhe/pathery/schema"
)

// PartitionHit is one scored match from a single partition sub-query,
// before document hydration.
type PartitionHit struct {
	ExternalID string
	Score      float64
	PartitionN int
}

// Executor runs a single partition's sub-query against a directory view
// narrowed to that partition's assigned segments.
type Executor struct {
	dir    directory.Directory
	schema *schema.Schema
}

func NewExecutor(dir directory.Directory, s *schema.Schema) *Executor {
	return &Executor{dir: dir, schema: s}
}

// Run opens a partition-filtered view, parses q, executes the search with
// the given limit/offset, and returns scored hits tagged with partitionN.
// An empty result is returned as an empty slice, never an error.
func (e *Executor) Run(ctx context.Context, q string, segments []directory.SegmentMeta, partitionN, limit, offset int) ([]PartitionHit, error) {
	view := directory.NewView(e.dir, segments)

	node, err := query.Parse(q)
	if err != nil {
		return nil, err
	}

	r, err := index.OpenReader(ctx, view, e.schema)
	if err != nil {
		return nil, fmt.Errorf("open partition %d reader: %w", partitionN, err)
	}

	hits, err := r.Search(node, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search partition %d: %w", partitionN, err)
	}

	out := make([]PartitionHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, PartitionHit{ExternalID: h.ExternalID, Score: h.Score, PartitionN: partitionN})
	}
	return out, nil
}
