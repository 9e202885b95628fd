package index

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/epokhe/pathery/index/query"
	"github.com/epokhe/pathery/schema"
)

// DefaultMaxSnippetChars is the spec's default max_num_chars per snippet.
const DefaultMaxSnippetChars = 100

// Snippet highlights, in each of the hit's stored text fields, the tokens
// that equal one of q's terms (query.Terms) for that field. No index is
// built and q is not evaluated against the hit as a whole, so phrase
// adjacency and range clauses play no part in what gets highlighted. Each
// call touches only its own hit — callers are expected to recover
// around this call and simply omit snippets for a hit that fails, per the
// error-handling design's "a hit without snippets, not a failed query"
// rule.
func Snippet(s *schema.Schema, q query.Node, stored map[string]any, maxChars int) map[string]string {
	if maxChars <= 0 {
		maxChars = DefaultMaxSnippetChars
	}

	terms := query.Terms(q)
	if len(terms) == 0 {
		return nil
	}

	out := make(map[string]string)
	for _, f := range s.TextFields() {
		val, ok := stored[f.Name]
		if !ok {
			continue
		}
		text, ok := val.(string)
		if !ok {
			continue
		}

		matchSet := termSetFor(terms, f.Name)
		if matchSet.Cardinality() == 0 {
			continue
		}

		html := highlight(text, matchSet, maxChars)
		if html != "" {
			out[f.Name] = html
		}
	}
	return out
}

func termSetFor(terms []query.Term, field string) mapset.Set[string] {
	out := mapset.NewThreadUnsafeSet[string]()
	for _, t := range terms {
		if t.Field == "" || t.Field == field {
			for _, tok := range tokenize(t.Value) {
				out.Add(tok)
			}
		}
	}
	return out
}

// highlight wraps every matched token in <b></b>, truncating the result to
// at most maxChars characters of output (the spec's max_num_chars budget
// applies to the rendered HTML, not the source text).
func highlight(text string, matchSet mapset.Set[string], maxChars int) string {
	toks := tokenizeWithOffsets(text)

	var b strings.Builder
	lastEnd := 0
	matched := false
	for _, t := range toks {
		if !matchSet.Contains(strings.ToLower(t.text)) {
			continue
		}
		matched = true
		b.WriteString(text[lastEnd:t.start])
		b.WriteString("<b>")
		b.WriteString(text[t.start:t.end])
		b.WriteString("</b>")
		lastEnd = t.end
		if b.Len() >= maxChars {
			break
		}
	}
	if !matched {
		return ""
	}
	b.WriteString(text[lastEnd:])

	out := b.String()
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}

type offsetToken struct {
	text       string
	start, end int
}

func tokenizeWithOffsets(text string) []offsetToken {
	var toks []offsetToken
	start := -1
	for i, r := range text {
		isWord := ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
		switch {
		case isWord && start == -1:
			start = i
		case !isWord && start != -1:
			toks = append(toks, offsetToken{text: text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start != -1 {
		toks = append(toks, offsetToken{text: text[start:], start: start, end: len(text)})
	}
	return toks
}
