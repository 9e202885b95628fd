package writejob

import "testing"

func TestWriteJobEncodeDecodeRoundTrip(t *testing.T) {
	job := WriteJob{
		IndexID: "blog-1",
		Ops: []Op{
			{Kind: OpIndexDoc, DocID: "doc-a"},
			{Kind: OpDeleteDoc, DocID: "doc-b"},
		},
	}
	data, err := Encode(job)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.IndexID != job.IndexID || len(got.Ops) != len(job.Ops) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, job)
	}
	for i, op := range job.Ops {
		if got.Ops[i] != op {
			t.Fatalf("op %d mismatch: got %+v, want %+v", i, got.Ops[i], op)
		}
	}
}

func TestBlobRefEncodeDecodeRoundTrip(t *testing.T) {
	ref := BlobRef{IndexID: "blog-1", Key: "writer_batches/abc123"}
	data, err := EncodeRef(ref)
	if err != nil {
		t.Fatalf("EncodeRef: %v", err)
	}
	got, err := DecodeRef(data)
	if err != nil {
		t.Fatalf("DecodeRef: %v", err)
	}
	if got != ref {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ref)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected an error decoding malformed JSON")
	}
	if _, err := DecodeRef([]byte("not json")); err == nil {
		t.Fatal("expected an error decoding malformed JSON")
	}
}
