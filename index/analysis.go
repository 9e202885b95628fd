package index

import (
	"strings"
	"time"
	"unicode"

	"github.com/epokhe/pathery/schema"
)

// tokenize lowercases and splits on runs of non-alphanumeric characters.
// This is deliberately the simplest analyzer that satisfies the query
// language's term/phrase matching — the spec has no stemming or stopword
// requirement, and introducing one unasked would be scope creep a reader
// of this engine's output wouldn't expect.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// addPosting appends a posting for term in field at localID/position,
// creating the field's and term's postings list lazily.
func addPosting(data *segmentData, field, term string, localID int, position uint32) {
	fp, ok := data.Postings[field]
	if !ok {
		fp = make(fieldPostings)
		data.Postings[field] = fp
	}
	list := fp[term]
	if n := len(list); n > 0 && list[n-1].Doc == uint32(localID) {
		list[n-1].Pos = append(list[n-1].Pos, position)
	} else {
		list = append(list, posting{Doc: uint32(localID), Pos: []uint32{position}})
	}
	fp[term] = list
}

// indexField analyzes val according to f's kind and records it into data
// for localID. Unrecognized value shapes are skipped rather than erroring:
// by the time a document reaches the index it has already been validated
// against the schema by the write pipeline.
func indexField(data *segmentData, f schema.Field, localID int, val any) {
	switch f.Kind {
	case schema.KindText:
		if !f.HasFlag(schema.FlagText) {
			return
		}
		s, _ := val.(string)
		toks := tokenize(s)
		for pos, tok := range toks {
			addPosting(data, f.Name, tok, localID, uint32(pos))
		}
		addFieldLen(data, f.Name, localID, len(toks))
	case schema.KindString:
		s, _ := val.(string)
		addPosting(data, f.Name, strings.ToLower(s), localID, 0)
	case schema.KindI64:
		n := toInt64(val)
		storeNumeric(data, f.Name, localID, n)
	case schema.KindDate:
		n := dateToUnix(val)
		storeNumeric(data, f.Name, localID, n)
	case schema.KindJSON:
		indexJSON(data, f, localID, "", val)
	}
}

// indexJSON walks a JSON value, indexing leaf strings/numbers under
// "field.child.grandchild" paths — the sub-path addressing spec.md's query
// language exposes as field.child:value.
func indexJSON(data *segmentData, f schema.Field, localID int, path string, val any) {
	switch v := val.(type) {
	case map[string]any:
		for k, sub := range v {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			indexJSON(data, f, localID, childPath, sub)
		}
	case string:
		full := f.Name
		if path != "" {
			full = f.Name + "." + path
		}
		if f.HasFlag(schema.FlagText) {
			toks := tokenize(v)
			for pos, tok := range toks {
				addPosting(data, full, tok, localID, uint32(pos))
			}
			addFieldLen(data, full, localID, len(toks))
		}
	case float64:
		full := f.Name
		if path != "" {
			full = f.Name + "." + path
		}
		storeNumeric(data, full, localID, int64(v))
	}
}

func addFieldLen(data *segmentData, field string, localID, n int) {
	if n == 0 {
		return
	}
	m, ok := data.FieldLen[field]
	if !ok {
		m = make(map[int]int)
		data.FieldLen[field] = m
	}
	m[localID] += n
}

func storeNumeric(data *segmentData, field string, localID int, v int64) {
	m, ok := data.Numeric[field]
	if !ok {
		m = make(map[int]int64)
		data.Numeric[field] = m
	}
	m[localID] = v
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func dateToUnix(val any) int64 {
	switch v := val.(type) {
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0
		}
		return t.Unix()
	case float64:
		return int64(v)
	default:
		return 0
	}
}
