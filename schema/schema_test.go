package schema

import (
	"testing"
)

const sampleConfig = `{
	"schemas": [
		{
			"prefix": "blog-",
			"fields": [
				{"name": "title", "kind": "text", "flags": ["TEXT", "STORED"]},
				{"name": "author", "kind": "text", "flags": ["TEXT", "STORED"]},
				{"name": "published_at", "kind": "date", "flags": ["INDEXED", "STORED"]}
			]
		},
		{
			"prefix": "blog-drafts-",
			"fields": [
				{"name": "title", "kind": "text", "flags": ["TEXT", "STORED"]},
				{"name": "reviewer", "kind": "string", "flags": ["STRING", "STORED"]}
			]
		}
	]
}`

func TestRegistryLongestPrefixMatch(t *testing.T) {
	r, err := LoadRegistry([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	s, err := r.Load("blog-drafts-42")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.Field("reviewer"); !ok {
		t.Fatal("expected longest-prefix match to resolve the blog-drafts- schema")
	}

	s, err = r.Load("blog-123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.Field("reviewer"); ok {
		t.Fatal("blog- schema should not carry the drafts-only reviewer field")
	}
	if _, ok := s.Field("published_at"); !ok {
		t.Fatal("expected blog- schema to carry published_at")
	}
}

func TestRegistryNotFound(t *testing.T) {
	r, err := LoadRegistry([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if _, err := r.Load("unrelated-index"); err == nil {
		t.Fatal("expected NotFound error for an unconfigured index id")
	}
}

func TestSchemaAlwaysHasIDField(t *testing.T) {
	r, err := LoadRegistry([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	s, err := r.Load("blog-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f, ok := s.Field(IDFieldName)
	if !ok {
		t.Fatal("schema missing mandatory __id field")
	}
	if f.Kind != KindString || !f.HasFlag(FlagString) || !f.HasFlag(FlagStored) {
		t.Fatalf("__id field has unexpected shape: %+v", f)
	}
}

func TestSchemaRejectsReservedIDFieldName(t *testing.T) {
	cfg := `{"schemas":[{"prefix":"x-","fields":[{"name":"__id","kind":"string","flags":["STRING"]}]}]}`
	if _, err := LoadRegistry([]byte(cfg)); err == nil {
		t.Fatal("expected an error when a configured field shadows __id")
	}
}

func TestSchemaRejectsInvalidFlagForKind(t *testing.T) {
	cfg := `{"schemas":[{"prefix":"x-","fields":[{"name":"count","kind":"i64","flags":["TEXT"]}]}]}`
	if _, err := LoadRegistry([]byte(cfg)); err == nil {
		t.Fatal("expected an error for TEXT flag on an i64 field")
	}
}

func TestSchemaRejectsDuplicateFieldNames(t *testing.T) {
	cfg := `{"schemas":[{"prefix":"x-","fields":[
		{"name":"title","kind":"text","flags":["TEXT"]},
		{"name":"title","kind":"string","flags":["STRING"]}
	]}]}`
	if _, err := LoadRegistry([]byte(cfg)); err == nil {
		t.Fatal("expected an error for duplicate field names")
	}
}

func TestTextFieldsIncludesJSONWithTextFlag(t *testing.T) {
	cfg := `{"schemas":[{"prefix":"x-","fields":[
		{"name":"title","kind":"text","flags":["TEXT","STORED"]},
		{"name":"meta","kind":"json","flags":["TEXT","STORED"]},
		{"name":"count","kind":"i64","flags":["INDEXED"]}
	]}]}`
	r, err := LoadRegistry([]byte(cfg))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	s, err := r.Load("x-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range s.TextFields() {
		names[f.Name] = true
	}
	if !names["title"] || !names["meta"] {
		t.Fatalf("TextFields() = %v, want title and meta", names)
	}
	if names["count"] {
		t.Fatal("TextFields() should not include an i64 field")
	}
}
