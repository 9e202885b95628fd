package query

import "testing"

func TestParseBareTerm(t *testing.T) {
	n, err := Parse("hello")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	term, ok := n.(Term)
	if !ok {
		t.Fatalf("Parse() = %T, want Term", n)
	}
	if term.Field != "" || term.Value != "hello" {
		t.Fatalf("Parse() = %+v, want {Field:\"\" Value:hello}", term)
	}
}

func TestParseFieldScopedTerm(t *testing.T) {
	n, err := Parse("title:hello")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	term, ok := n.(Term)
	if !ok {
		t.Fatalf("Parse() = %T, want Term", n)
	}
	if term.Field != "title" || term.Value != "hello" {
		t.Fatalf("Parse() = %+v", term)
	}
}

func TestParseJSONSubPathTerm(t *testing.T) {
	n, err := Parse("meta.author:jane")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	term, ok := n.(Term)
	if !ok {
		t.Fatalf("Parse() = %T, want Term", n)
	}
	if term.Field != "meta.author" || term.Value != "jane" {
		t.Fatalf("Parse() = %+v", term)
	}
}

func TestParsePhrase(t *testing.T) {
	n, err := Parse(`title:"hello world"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ph, ok := n.(Phrase)
	if !ok {
		t.Fatalf("Parse() = %T, want Phrase", n)
	}
	if ph.Field != "title" || len(ph.Values) != 2 || ph.Values[0] != "hello" || ph.Values[1] != "world" {
		t.Fatalf("Parse() = %+v", ph)
	}
}

func TestParseImplicitAnd(t *testing.T) {
	n, err := Parse("hello world")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	and, ok := n.(And)
	if !ok {
		t.Fatalf("Parse() = %T, want And", n)
	}
	if len(and.Clauses) != 2 {
		t.Fatalf("And has %d clauses, want 2", len(and.Clauses))
	}
}

func TestParseExplicitAndOr(t *testing.T) {
	n, err := Parse("hello AND world OR foo")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	or, ok := n.(Or)
	if !ok {
		t.Fatalf("Parse() = %T, want Or (OR binds loosest)", n)
	}
	if len(or.Clauses) != 2 {
		t.Fatalf("Or has %d clauses, want 2", len(or.Clauses))
	}
	if _, ok := or.Clauses[0].(And); !ok {
		t.Fatalf("first Or clause = %T, want And", or.Clauses[0])
	}
}

func TestParseNotAndMinus(t *testing.T) {
	n, err := Parse("NOT hello")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := n.(Not); !ok {
		t.Fatalf("Parse(NOT) = %T, want Not", n)
	}

	n, err = Parse("-hello")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := n.(Not); !ok {
		t.Fatalf("Parse(-hello) = %T, want Not", n)
	}
}

func TestParseParenGrouping(t *testing.T) {
	n, err := Parse("(hello OR world) AND title:foo")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	and, ok := n.(And)
	if !ok {
		t.Fatalf("Parse() = %T, want And", n)
	}
	if _, ok := and.Clauses[0].(Or); !ok {
		t.Fatalf("first And clause = %T, want Or", and.Clauses[0])
	}
}

func TestParseRangeInclusiveExclusive(t *testing.T) {
	n, err := Parse("count:[1 TO 10}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, ok := n.(Range)
	if !ok {
		t.Fatalf("Parse() = %T, want Range", n)
	}
	if r.Field != "count" || !r.LowInclusive || r.HighInclusive {
		t.Fatalf("Parse() = %+v, want low-inclusive/high-exclusive", r)
	}
	if r.Low == nil || *r.Low != 1 || r.High == nil || *r.High != 10 {
		t.Fatalf("Parse() bounds = %+v", r)
	}
}

func TestParseRangeUnboundedStar(t *testing.T) {
	n, err := Parse("count:[* TO 10]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, ok := n.(Range)
	if !ok {
		t.Fatalf("Parse() = %T, want Range", n)
	}
	if r.Low != nil {
		t.Fatalf("Low = %v, want nil (unbounded)", r.Low)
	}
	if r.High == nil || *r.High != 10 {
		t.Fatalf("High = %v, want 10", r.High)
	}
}

func TestParseSyntaxErrorsAreInvalidRequest(t *testing.T) {
	cases := []string{
		`title:"unterminated`,
		`count:[1 TO 10`,
		`(hello`,
		`count:[1 AND 10]`,
	}
	for _, q := range cases {
		if _, err := Parse(q); err == nil {
			t.Errorf("Parse(%q) succeeded, want a syntax error", q)
		}
	}
}

func TestTermsCollectsLeavesAndSkipsNotAndRange(t *testing.T) {
	n, err := Parse(`title:hello NOT author:bob count:[1 TO 10]`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	terms := Terms(n)
	if len(terms) != 1 || terms[0].Field != "title" || terms[0].Value != "hello" {
		t.Fatalf("Terms() = %+v, want only the title:hello leaf", terms)
	}
}
