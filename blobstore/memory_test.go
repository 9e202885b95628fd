package blobstore

import (
	"context"
	"testing"
)

func TestMemoryPutGetDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Put(ctx, "k1", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("Get() = %q, want payload", got)
	}

	if err := m.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "k1"); err == nil {
		t.Fatal("Get() after Delete should error")
	}
}

func TestMemoryGetMissingKeyErrors(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "missing"); err == nil {
		t.Fatal("Get() of a never-written key should error")
	}
}
