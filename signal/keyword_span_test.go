package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type KeywordSpanTestSuite struct {
	suite.Suite
}

func TestKeywordSpanTestSuite(t *testing.T) {
	suite.Run(t, new(KeywordSpanTestSuite))
}

func (s *KeywordSpanTestSuite) TestFindsNonOverlappingMatches() {
	k := NewKeywordSpan("cat")
	text := "the cat sat on the catwalk"
	out, err := k.Compute(context.Background(), []any{text})
	s.Require().NoError(err)
	spans := out[0].([]any)
	s.Require().Len(spans, 2)

	first := spans[0].(map[string]any)
	s.Equal("cat", text[first["start"].(int64):first["end"].(int64)])
}

func (s *KeywordSpanTestSuite) TestCaseInsensitive() {
	k := NewKeywordSpan("Cat")
	out, err := k.Compute(context.Background(), []any{"CAT and cat"})
	s.Require().NoError(err)
	s.Len(out[0].([]any), 2)
}

func (s *KeywordSpanTestSuite) TestNameIncludesQuery() {
	k := NewKeywordSpan("dog")
	s.Equal("keyword:dog", k.Name())
}

func (s *KeywordSpanTestSuite) TestNoMatch() {
	k := NewKeywordSpan("zzz")
	out, err := k.Compute(context.Background(), []any{"nothing here"})
	s.Require().NoError(err)
	s.Empty(out[0])
}
