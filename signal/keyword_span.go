package signal

import (
	"context"
	"strings"

	curatepath "github.com/aqua777/curator/path"
)

// KeywordSpan emits one repeated span per non-overlapping occurrence of
// a fixed substring query. Unlike the catalog signals registered by
// BuiltinRegistry, a KeywordSpan is parameterized per query text, so
// callers construct one per pipeline invocation rather than looking it
// up by a fixed registry name; its Name() reflects the query so two
// distinct queries against the same field never collide in the
// manifest's signal_descriptor bookkeeping.
type KeywordSpan struct {
	query  string
	lowerQ string
}

// NewKeywordSpan compiles query into a safe substring matcher. Matching
// is case-insensitive.
func NewKeywordSpan(query string) *KeywordSpan {
	return &KeywordSpan{
		query:  query,
		lowerQ: strings.ToLower(query),
	}
}

func (s *KeywordSpan) Name() string         { return "keyword:" + s.query }
func (s *KeywordSpan) InputType() InputType { return InputText }
func (s *KeywordSpan) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *KeywordSpan) OutputSchema() *curatepath.Field {
	return &curatepath.Field{
		RepeatedField: &curatepath.Field{Fields: map[string]*curatepath.Field{
			"start": {Name: "start", DType: curatepath.DTypeInt64},
			"end":   {Name: "end", DType: curatepath.DTypeInt64},
		}},
	}
}

func (s *KeywordSpan) Compute(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		out[i] = s.findAll(text)
	}
	return out, nil
}

func (s *KeywordSpan) findAll(text string) []any {
	if s.query == "" {
		return nil
	}
	var spans []any
	lower := strings.ToLower(text)
	cursor := 0
	for {
		idx := strings.Index(lower[cursor:], s.lowerQ)
		if idx < 0 {
			break
		}
		start := cursor + idx
		end := start + len(s.query)
		spans = append(spans, map[string]any{
			"start": int64(start),
			"end":   int64(end),
		})
		cursor = end
	}
	return spans
}
