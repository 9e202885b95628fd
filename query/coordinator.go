package query

import (
	"context"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/epokhe/pathery"
	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/docstore"
	"github.com/epokhe/pathery/index"
	iquery "github.com/epokhe/pathery/index/query"
	"github.com/epokhe/pathery/pagination"
	"github.com/epokhe/pathery/schema"
)

// defaultPartitionBudget is the spec's default live-doc budget per
// partition (§4.6 step 2).
const defaultPartitionBudget = 60_000

// defaultK is the default page size (§4.6 step 6).
const defaultK = 10

// Match is one hydrated, scored, snippeted result returned to the client.
type Match struct {
	ExternalID string
	Score      float64
	Doc        map[string]any
	Snippets   map[string]string
}

// Result is a QueryCoordinator page.
type Result struct {
	Matches        []Match
	PaginationToken string // empty iff Matches is empty
}

// Coordinator runs the fan-out query pipeline for one index_id.
type Coordinator struct {
	indexID string
	dir     directory.Directory
	schema  *schema.Schema
	docs    docstore.DocumentStore
	k       int
}

func NewCoordinator(indexID string, dir directory.Directory, s *schema.Schema, docs docstore.DocumentStore) *Coordinator {
	return &Coordinator{indexID: indexID, dir: dir, schema: s, docs: docs, k: defaultK}
}

// Search runs the full coordinator algorithm: compute partitions (or reuse
// a prior token's pinned snapshot), fan out to PartitionExecutors, merge,
// hydrate, and snippet.
func (c *Coordinator) Search(ctx context.Context, queryText string, tokenText string) (Result, error) {
	node, err := iquery.Parse(queryText)
	if err != nil {
		return Result{}, err
	}

	tok, err := c.resolveToken(ctx, queryText, tokenText)
	if err != nil {
		return Result{}, err
	}
	totalPartitions := len(tok.Offsets)
	if totalPartitions == 0 {
		return Result{}, nil
	}

	partitions := assignPartitions(tok.Segments, totalPartitions)

	hits, err := c.fanOut(ctx, queryText, partitions, tok)
	if err != nil {
		return Result{}, pathery.Internal(err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > c.k {
		hits = hits[:c.k]
	}
	for _, h := range hits {
		tok.Offsets[h.PartitionN]++
	}

	if len(hits) == 0 {
		return Result{}, nil
	}

	matches, err := c.hydrate(ctx, node, hits)
	if err != nil {
		return Result{}, err
	}

	newTokenText, err := pagination.Encode(tok)
	if err != nil {
		return Result{}, fmt.Errorf("encode pagination token: %w", err)
	}

	return Result{Matches: matches, PaginationToken: newTokenText}, nil
}

// resolveToken builds a fresh token pinned to the current manifest
// snapshot, or parses and reuses a supplied token's pinned snapshot —
// critical so later commits never shift the ranked result set under a
// paging client (§4.6 step 3).
func (c *Coordinator) resolveToken(ctx context.Context, queryText, tokenText string) (pagination.Token, error) {
	if tokenText != "" {
		tok, err := pagination.Decode(tokenText)
		if err != nil {
			return pagination.Token{}, pathery.Invalid("parse pagination token: %v", err)
		}
		return tok, nil
	}

	m, err := directory.ReadManifest(ctx, c.dir)
	if err != nil {
		return pagination.Token{}, fmt.Errorf("read manifest: %w", err)
	}
	total := int((m.TotalDocs() + defaultPartitionBudget - 1) / defaultPartitionBudget)
	if total < 1 {
		total = 1
	}
	return pagination.Token{
		Query:    queryText,
		Segments: m.Segments,
		Offsets:  make([]uint, total),
	}, nil
}

// assignPartitions implements the round-robin segment-to-partition rule:
// segment at index i belongs to partition i mod total (§4.6 step 4,
// property 6).
func assignPartitions(segments []directory.SegmentMeta, total int) [][]directory.SegmentMeta {
	out := make([][]directory.SegmentMeta, total)
	for i, sm := range segments {
		n := i % total
		out[n] = append(out[n], sm)
	}
	return out
}

func (c *Coordinator) fanOut(ctx context.Context, queryText string, partitions [][]directory.SegmentMeta, tok pagination.Token) ([]PartitionHit, error) {
	results := make([][]PartitionHit, len(partitions))

	g, ctx := errgroup.WithContext(ctx)
	for n, segs := range partitions {
		n, segs := n, segs
		g.Go(func() error {
			exec := NewExecutor(c.dir, c.schema)
			offset := 0
			if n < len(tok.Offsets) {
				offset = int(tok.Offsets[n])
			}
			hits, err := exec.Run(ctx, queryText, segs, n, c.k, offset)
			if err != nil {
				return err
			}
			results[n] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []PartitionHit
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (c *Coordinator) hydrate(ctx context.Context, node iquery.Node, hits []PartitionHit) ([]Match, error) {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ExternalID
	}

	docs, err := c.docs.GetDocuments(ctx, c.indexID, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate documents: %w", err)
	}
	byID := make(map[string]docstore.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		d, ok := byID[h.ExternalID]
		if !ok {
			continue
		}
		fields, err := parseDoc(d.Body)
		if err != nil {
			continue
		}
		matches = append(matches, Match{
			ExternalID: h.ExternalID,
			Score:      h.Score,
			Doc:        fields,
			Snippets:   snippetFor(c.schema, node, fields),
		})
	}
	return matches, nil
}

func parseDoc(body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parse stored document: %w", err)
	}
	return m, nil
}

// snippetFor runs snippet generation for one hit, containing a panic to
// this single hit rather than failing the whole query (§7).
func snippetFor(s *schema.Schema, node iquery.Node, fields map[string]any) (snippets map[string]string) {
	defer func() {
		if recover() != nil {
			snippets = nil
		}
	}()
	return index.Snippet(s, node, fields, index.DefaultMaxSnippetChars)
}
