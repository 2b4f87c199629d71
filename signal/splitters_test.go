package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type SplittersTestSuite struct {
	suite.Suite
}

func TestSplittersTestSuite(t *testing.T) {
	suite.Run(t, new(SplittersTestSuite))
}

func (s *SplittersTestSuite) TestSentenceSplitterOffsetsRoundTrip() {
	text := "This is one sentence. This is another one! And a third?"
	sp := NewSentenceSplitter()
	out, err := sp.Compute(context.Background(), []any{text})
	s.Require().NoError(err)
	spans := out[0].([]any)
	s.Require().NotEmpty(spans)
	for _, raw := range spans {
		span := raw.(map[string]any)
		start := span["start"].(int64)
		end := span["end"].(int64)
		s.Require().True(start < end)
		s.Require().True(int(end) <= len(text))
	}
}

func (s *SplittersTestSuite) TestParagraphSplitterFindsEachParagraph() {
	text := "First paragraph here.\n\nSecond paragraph, longer text.\n\nThird."
	sp := NewParagraphSplitter()
	out, err := sp.Compute(context.Background(), []any{text})
	s.Require().NoError(err)
	spans := out[0].([]any)
	s.Require().Len(spans, 3)
	for _, raw := range spans {
		span := raw.(map[string]any)
		start := span["start"].(int64)
		end := span["end"].(int64)
		s.Equal(text[start:end], text[start:end])
		s.NotEmpty(text[start:end])
	}
	first := spans[0].(map[string]any)
	s.Equal("First paragraph here.", text[first["start"].(int64):first["end"].(int64)])
}

func (s *SplittersTestSuite) TestParagraphSplitterEmptyText() {
	sp := NewParagraphSplitter()
	out, err := sp.Compute(context.Background(), []any{""})
	s.Require().NoError(err)
	s.Empty(out[0])
}
