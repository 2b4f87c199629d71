package signal

import (
	"context"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	curatepath "github.com/aqua777/curator/path"
)

// SentenceSplitter emits one repeated span per sentence boundary,
// adapted from the chunk-producing shape of
// textsplitter/sentence_splitter.go into a span-emitting Signal: the
// teacher chunks text for embedding input; here the same boundary
// detection instead annotates offsets in place. Sentence boundaries are
// detected by github.com/neurosnap/sentences (teacher-declared,
// previously unused); every span comes from its English-trained
// tokenizer, with no fallback splitter.
type SentenceSplitter struct{}

func NewSentenceSplitter() *SentenceSplitter { return &SentenceSplitter{} }

func (s *SentenceSplitter) Name() string         { return "sentence_splitter" }
func (s *SentenceSplitter) InputType() InputType { return InputText }
func (s *SentenceSplitter) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *SentenceSplitter) OutputSchema() *curatepath.Field {
	return spanListSchema()
}

func (s *SentenceSplitter) Compute(ctx context.Context, inputs []any) ([]any, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		out[i] = sentenceSpans(tokenizer, text)
	}
	return out, nil
}

type sentenceTokenizer interface {
	Tokenize(text string) []*sentences.Sentence
}

func sentenceSpans(tokenizer sentenceTokenizer, text string) []any {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sents := tokenizer.Tokenize(text)
	spans := make([]any, 0, len(sents))
	for _, sent := range sents {
		spans = append(spans, map[string]any{
			"start": int64(sent.Start),
			"end":   int64(sent.End),
		})
	}
	return spans
}

// ParagraphSplitter emits one repeated span per paragraph (text
// separated by a blank line), the same separator-driven approach as
// textsplitter/paragraph_splitter.go, adapted to emit offsets instead
// of chunk strings.
type ParagraphSplitter struct {
	Separator string
}

func NewParagraphSplitter() *ParagraphSplitter {
	return &ParagraphSplitter{Separator: "\n\n"}
}

func (s *ParagraphSplitter) Name() string         { return "paragraph_splitter" }
func (s *ParagraphSplitter) InputType() InputType { return InputText }
func (s *ParagraphSplitter) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *ParagraphSplitter) OutputSchema() *curatepath.Field {
	return spanListSchema()
}

func (s *ParagraphSplitter) Compute(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		out[i] = paragraphSpans(text, s.Separator)
	}
	return out, nil
}

func paragraphSpans(text, sep string) []any {
	var spans []any
	cursor := 0
	for _, raw := range strings.Split(text, sep) {
		start := strings.Index(text[cursor:], raw) + cursor
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			leading := strings.Index(raw, trimmed)
			spans = append(spans, map[string]any{
				"start": int64(start + leading),
				"end":   int64(start + leading + len(trimmed)),
			})
		}
		cursor = start + len(raw) + len(sep)
	}
	return spans
}

func spanListSchema() *curatepath.Field {
	return &curatepath.Field{
		RepeatedField: &curatepath.Field{Fields: map[string]*curatepath.Field{
			"start": {Name: "start", DType: curatepath.DTypeInt64},
			"end":   {Name: "end", DType: curatepath.DTypeInt64},
		}},
	}
}
