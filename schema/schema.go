// Package schema resolves an index_id to its typed field schema and
// validates documents against it.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/epokhe/pathery"
)

// Kind is a field's storage/analysis type.
type Kind string

const (
	KindText   Kind = "text"
	KindString Kind = "string"
	KindI64    Kind = "i64"
	KindDate   Kind = "date"
	KindJSON   Kind = "json"
)

// Flag is a per-field behavior bit. Field.Flags is a set of these.
type Flag string

const (
	FlagIndexed Flag = "INDEXED"
	FlagStored  Flag = "STORED"
	FlagFast    Flag = "FAST"
	FlagText    Flag = "TEXT"
	FlagString  Flag = "STRING"
)

// allowedFlags restricts each Kind to the flag subset the spec allows.
var allowedFlags = map[Kind]map[Flag]bool{
	KindText:   {FlagText: true, FlagStored: true, FlagString: true, FlagFast: true},
	KindString: {FlagIndexed: true, FlagStored: true, FlagFast: true, FlagString: true},
	KindI64:    {FlagIndexed: true, FlagStored: true, FlagFast: true},
	KindDate:   {FlagIndexed: true, FlagStored: true, FlagFast: true},
	KindJSON:   {FlagText: true, FlagStored: true, FlagIndexed: true},
}

// Field is one entry in a Schema.
type Field struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Flags []Flag `json:"flags"`
}

func (f Field) HasFlag(flag Flag) bool {
	for _, g := range f.Flags {
		if g == flag {
			return true
		}
	}
	return false
}

// IDFieldName is the mandatory system field every schema carries.
const IDFieldName = "__id"

// Schema is an ordered set of field definitions, always including the
// mandatory __id field appended by the registry.
type Schema struct {
	Fields []Field
	byName map[string]Field
}

// newSchema builds a Schema from configured fields, appending the mandatory
// __id field and rejecting duplicate names.
func newSchema(fields []Field) (*Schema, error) {
	byName := make(map[string]Field, len(fields)+1)
	for _, f := range fields {
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field name %q", f.Name)
		}
		if f.Name == IDFieldName {
			return nil, fmt.Errorf("field name %q is reserved", IDFieldName)
		}
		if err := validateFlags(f); err != nil {
			return nil, err
		}
		byName[f.Name] = f
	}

	idField := Field{Name: IDFieldName, Kind: KindString, Flags: []Flag{FlagString, FlagStored}}
	byName[IDFieldName] = idField

	all := append(append([]Field{}, fields...), idField)
	return &Schema{Fields: all, byName: byName}, nil
}

func validateFlags(f Field) error {
	allowed, ok := allowedFlags[f.Kind]
	if !ok {
		return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
	}
	for _, flag := range f.Flags {
		if !allowed[flag] {
			return fmt.Errorf("field %q: flag %q not valid for kind %q", f.Name, flag, f.Kind)
		}
	}
	return nil
}

// Field looks up a field by name, returning ok=false if absent.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// TextFields returns the indexed fields of kind text or json-with-TEXT, in
// schema order — the set the query parser matches bare terms against
// (§4.7 step 2).
func (s *Schema) TextFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Name == IDFieldName {
			continue
		}
		switch {
		case f.Kind == KindText && f.HasFlag(FlagText):
			out = append(out, f)
		case f.Kind == KindJSON && f.HasFlag(FlagText):
			out = append(out, f)
		}
	}
	return out
}

// config is the on-disk JSON shape for a SchemaRegistry.
type config struct {
	Schemas []struct {
		Prefix string  `json:"prefix"`
		Fields []Field `json:"fields"`
	} `json:"schemas"`
}

// Registry resolves index_id -> *Schema by longest-prefix match.
type Registry struct {
	mu      sync.RWMutex
	entries []prefixEntry
}

type prefixEntry struct {
	prefix string
	schema *Schema
}

// LoadRegistry parses a JSON configuration document in the shape documented
// in SPEC_FULL.md §4.3.
func LoadRegistry(data []byte) (*Registry, error) {
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse schema config: %w", err)
	}

	r := &Registry{}
	for _, sc := range cfg.Schemas {
		s, err := newSchema(sc.Fields)
		if err != nil {
			return nil, fmt.Errorf("schema for prefix %q: %w", sc.Prefix, err)
		}
		r.entries = append(r.entries, prefixEntry{prefix: sc.Prefix, schema: s})
	}

	// Longest prefix first so the scan in Load stops at the most specific
	// match; config lists are small (tens of entries), so a linear scan
	// beats building a trie for what amounts to a handful of comparisons.
	sort.Slice(r.entries, func(i, j int) bool {
		return len(r.entries[i].prefix) > len(r.entries[j].prefix)
	})

	return r, nil
}

// Load resolves index_id to its Schema by longest-prefix match, or returns
// a NotFound pathery.Error if no configured prefix matches.
func (r *Registry) Load(indexID string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if strings.HasPrefix(indexID, e.prefix) {
			return e.schema, nil
		}
	}
	return nil, pathery.NotFound("no schema configured for index %q", indexID)
}
