package signal

import (
	"context"

	"github.com/dlclark/regexp2"

	curatepath "github.com/aqua777/curator/path"
)

// piiPattern pairs a PII kind with its regexp2 matcher. Secret tokens
// use a lookaround assertion stdlib regexp cannot express, the reason
// regexp2 is wired in here instead of the standard library (DESIGN.md).
type piiPattern struct {
	kind    string
	matcher *regexp2.Regexp
}

func piiPatterns() []piiPattern {
	return []piiPattern{
		{"email", regexp2.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`, regexp2.None)},
		{"phone", regexp2.MustCompile(`(?<!\d)(\+?\d{1,2}[ .\-]?)?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}(?!\d)`, regexp2.None)},
		{"ip", regexp2.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`, regexp2.None)},
		{"secret", regexp2.MustCompile(`(?<![A-Za-z0-9])(sk|pk|ghp|xox[baprs])-[A-Za-z0-9_\-]{16,}`, regexp2.None)},
	}
}

// PII is the repeated-span PII detection signal (spec section 4.E).
type PII struct {
	patterns []piiPattern
}

func NewPII() *PII { return &PII{patterns: piiPatterns()} }

func (s *PII) Name() string         { return "pii" }
func (s *PII) InputType() InputType { return InputText }
func (s *PII) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *PII) OutputSchema() *curatepath.Field {
	return &curatepath.Field{
		RepeatedField: &curatepath.Field{Fields: map[string]*curatepath.Field{
			"kind":  {Name: "kind", DType: curatepath.DTypeString},
			"start": {Name: "start", DType: curatepath.DTypeInt64},
			"end":   {Name: "end", DType: curatepath.DTypeInt64},
		}},
	}
}

func (s *PII) Compute(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		out[i] = s.findAll(text)
	}
	return out, nil
}

func (s *PII) findAll(text string) []any {
	var spans []any
	for _, p := range s.patterns {
		m, err := p.matcher.FindStringMatch(text)
		for err == nil && m != nil {
			spans = append(spans, map[string]any{
				"kind":  p.kind,
				"start": int64(m.Index),
				"end":   int64(m.Index + m.Length),
			})
			m, err = p.matcher.FindNextMatch(m)
		}
	}
	return spans
}
