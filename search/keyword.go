// Package search implements the search operators of spec section 4.G:
// keyword substring search, semantic (cosine top-K) search, and concept
// preview search. All three share the same shape — rank a candidate row
// set by a per-row score derived from a query against a column — so the
// query engine treats them uniformly via Span/scoring helpers exposed
// here instead of re-deriving substring or vector math inline.
package search

import "strings"

// Span is a character range match, the same shape as a materialized
// string_span signal output (spec section 3.1), but computed ad hoc at
// query time rather than persisted.
type Span struct {
	Start int
	End   int
}

// Keyword compiles query into a case-insensitive, non-overlapping
// substring matcher over text and returns every match span (spec
// section 4.G: "compile query to a safe substring matcher; emit one
// span per non-overlapping match"). Grounded on the same
// separator-driven scan signal.KeywordSpan performs for the
// materialized keyword-search signal, reduced here to the span list a
// live query needs without writing an enrichment column.
func Keyword(text, query string) []Span {
	if query == "" || text == "" {
		return nil
	}
	lowerText := strings.ToLower(text)
	lowerQ := strings.ToLower(query)

	var spans []Span
	cursor := 0
	for {
		idx := strings.Index(lowerText[cursor:], lowerQ)
		if idx < 0 {
			break
		}
		start := cursor + idx
		end := start + len(query)
		spans = append(spans, Span{Start: start, End: end})
		cursor = end
	}
	return spans
}
