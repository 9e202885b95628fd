package docstore

import (
	"context"
	"testing"
)

func TestMemoryStoreSaveGetReadAfterWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	docs := []Document{
		{IndexID: "blog-1", ID: "a", Body: []byte(`{"__id":"a","title":"hello"}`)},
		{IndexID: "blog-1", ID: "b", Body: []byte(`{"__id":"b","title":"world"}`)},
	}
	failed, err := s.SaveDocuments(ctx, docs)
	if err != nil {
		t.Fatalf("SaveDocuments: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("SaveDocuments() failed = %v, want none", failed)
	}

	got, err := s.GetDocuments(ctx, "blog-1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetDocuments() returned %d docs, want 2", len(got))
	}
}

func TestMemoryStoreMissingIDsAreOmittedNotErrored(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.GetDocuments(ctx, "blog-1", []string{"nonexistent"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetDocuments() = %v, want empty", got)
	}
}

func TestMemoryStoreDeleteDocuments(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	docs := []Document{{IndexID: "blog-1", ID: "a", Body: []byte(`{"__id":"a"}`)}}
	if _, err := s.SaveDocuments(ctx, docs); err != nil {
		t.Fatalf("SaveDocuments: %v", err)
	}
	if err := s.DeleteDocuments(ctx, "blog-1", []string{"a"}); err != nil {
		t.Fatalf("DeleteDocuments: %v", err)
	}
	got, err := s.GetDocuments(ctx, "blog-1", []string{"a"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetDocuments() after delete = %v, want empty", got)
	}
}

func TestMemoryStoreIndexIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.SaveDocuments(ctx, []Document{{IndexID: "blog-1", ID: "a", Body: []byte(`{}`)}}); err != nil {
		t.Fatalf("SaveDocuments: %v", err)
	}
	got, err := s.GetDocuments(ctx, "blog-2", []string{"a"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("a document saved under blog-1 leaked into blog-2's namespace")
	}
}
