package query

import (
	"context"
	"testing"

	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/docstore"
	"github.com/epokhe/pathery/index"
	"github.com/epokhe/pathery/pagination"
	"github.com/epokhe/pathery/queue"
	"github.com/epokhe/pathery/schema"
)

const blogSchemaConfig = `{
	"schemas": [{
		"prefix": "blog-",
		"fields": [
			{"name": "title", "kind": "text", "flags": ["TEXT", "STORED"]}
		]
	}]
}`

func newTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	r, err := schema.LoadRegistry([]byte(blogSchemaConfig))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	s, err := r.Load("blog-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

// setup builds a writer over a fresh local directory, seeds docstore with
// bodies matching each indexed doc (the coordinator hydrates from docstore,
// not from the segment's stored fields), and returns a Coordinator over it.
func setup(t *testing.T) (*Coordinator, directory.Directory, *index.Writer, docstore.DocumentStore) {
	t.Helper()
	s := newTestSchema(t)
	dir, err := directory.NewLocal(t.TempDir(), "blog-1")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	w, err := index.Open(context.Background(), "blog-1", dir, s, queue.NewMemory(), index.NoMergePolicy())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(w.Close)
	docs := docstore.NewMemoryStore()
	c := NewCoordinator("blog-1", dir, s, docs)
	return c, dir, w, docs
}

func addDoc(t *testing.T, w *index.Writer, docs docstore.DocumentStore, id, title string) {
	t.Helper()
	ctx := context.Background()
	if err := w.AddDocuments(ctx, []index.FieldDoc{
		{ExternalID: id, Fields: map[string]any{"title": title}},
	}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	body := []byte(`{"__id":"` + id + `","title":"` + title + `"}`)
	if _, err := docs.SaveDocuments(ctx, []docstore.Document{{IndexID: "blog-1", ID: id, Body: body}}); err != nil {
		t.Fatalf("SaveDocuments: %v", err)
	}
}

func TestSearchOnEmptyIndexReturnsEmptyResultNoToken(t *testing.T) {
	c, _, _, _ := setup(t)
	res, err := c.Search(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 0 || res.PaginationToken != "" {
		t.Fatalf("Search() on empty index = %+v, want empty matches and no token", res)
	}
}

func TestSearchHydratesAndSnippets(t *testing.T) {
	c, _, w, docs := setup(t)
	addDoc(t, w, docs, "a", "hello world")

	res, err := c.Search(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("Search() = %d matches, want 1", len(res.Matches))
	}
	m := res.Matches[0]
	if m.ExternalID != "a" {
		t.Fatalf("ExternalID = %q, want a", m.ExternalID)
	}
	if m.Doc["title"] != "hello world" {
		t.Fatalf("Doc = %+v, want hydrated title", m.Doc)
	}
	if m.Snippets["title"] != "<b>hello</b> world" {
		t.Fatalf("Snippets = %+v", m.Snippets)
	}
	if res.PaginationToken == "" {
		t.Fatal("expected a non-empty pagination token for a non-empty result")
	}
}

// Properties 4/5: paging through results with the returned token advances
// monotonically, never repeats a hit, and eventually covers every match.
func TestSearchPaginationMonotonicNoDuplicatesFullCoverage(t *testing.T) {
	c, _, w, docs := setup(t)
	c.k = 2 // force multiple pages over a handful of docs

	want := map[string]bool{}
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		addDoc(t, w, docs, id, "hello")
		want[id] = true
	}

	seen := map[string]bool{}
	token := ""
	for page := 0; page < 10; page++ {
		res, err := c.Search(context.Background(), "hello", token)
		if err != nil {
			t.Fatalf("Search page %d: %v", page, err)
		}
		if len(res.Matches) == 0 {
			break
		}
		for _, m := range res.Matches {
			if seen[m.ExternalID] {
				t.Fatalf("doc %q returned twice across pages", m.ExternalID)
			}
			seen[m.ExternalID] = true
		}
		token = res.PaginationToken
	}

	if len(seen) != len(want) {
		t.Fatalf("paged through %d distinct docs, want %d (seen=%v)", len(seen), len(want), seen)
	}
	for id := range want {
		if !seen[id] {
			t.Fatalf("doc %q never surfaced across any page", id)
		}
	}
}

func TestSearchReusesSuppliedTokenSnapshotNotLiveManifest(t *testing.T) {
	c, dir, w, docs := setup(t)
	addDoc(t, w, docs, "a", "hello")

	res, err := c.Search(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}

	// A later commit must not change what a pinned token's partitions see.
	addDoc(t, w, docs, "b", "hello")

	tok, err := pagination.Decode(res.PaginationToken)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m, err := directory.ReadManifest(context.Background(), dir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(tok.Segments) == len(m.Segments) {
		t.Fatal("token snapshot should predate the second commit's segment")
	}

	next, err := c.Search(context.Background(), "hello", res.PaginationToken)
	if err != nil {
		t.Fatalf("Search with token: %v", err)
	}
	for _, hit := range next.Matches {
		if hit.ExternalID == "b" {
			t.Fatal("search with a pinned token surfaced doc b, committed after the token was issued")
		}
	}
}

// Property 6: round-robin segment-to-partition assignment — segment i
// belongs to partition i mod total, and every segment is assigned exactly
// once.
func TestAssignPartitionsRoundRobin(t *testing.T) {
	segs := make([]directory.SegmentMeta, 7)
	for i := range segs {
		segs[i] = directory.SegmentMeta{ID: string(rune('a' + i))}
	}
	const total = 3
	out := assignPartitions(segs, total)
	if len(out) != total {
		t.Fatalf("assignPartitions returned %d partitions, want %d", len(out), total)
	}

	seen := map[string]int{}
	for n, part := range out {
		for _, sm := range part {
			seen[sm.ID] = n
		}
	}
	for i, sm := range segs {
		want := i % total
		if seen[sm.ID] != want {
			t.Fatalf("segment %q assigned to partition %d, want %d", sm.ID, seen[sm.ID], want)
		}
	}
	if len(seen) != len(segs) {
		t.Fatalf("assignPartitions covered %d of %d segments", len(seen), len(segs))
	}
}

// Fan-out across more than one partition: hand-build a token pinning several
// single-doc segments to 3 partitions and confirm every doc is found.
func TestFanOutAcrossMultiplePartitions(t *testing.T) {
	c, dir, w, docs := setup(t)
	for i := 0; i < 6; i++ {
		addDoc(t, w, docs, string(rune('a'+i)), "hello")
	}

	m, err := directory.ReadManifest(context.Background(), dir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(m.Segments) != 6 {
		t.Fatalf("manifest has %d segments, want 6 (one per AddDocuments call)", len(m.Segments))
	}

	tok := pagination.Token{Query: "hello", Segments: m.Segments, Offsets: make([]uint, 3)}
	tokenText, err := pagination.Encode(tok)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	c.k = 100
	res, err := c.Search(context.Background(), "hello", tokenText)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Matches) != 6 {
		t.Fatalf("Search() across 3 partitions = %d matches, want 6", len(res.Matches))
	}
}
