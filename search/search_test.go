package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type SearchTestSuite struct {
	suite.Suite
}

func TestSearchTestSuite(t *testing.T) {
	suite.Run(t, new(SearchTestSuite))
}

func (s *SearchTestSuite) TestKeywordFindsNonOverlappingSpans() {
	spans := Keyword("the fox jumps, a fox runs", "fox")
	s.Require().Len(spans, 2)
	s.Equal(Span{Start: 4, End: 7}, spans[0])
	s.Equal(Span{Start: 18, End: 21}, spans[1])
}

func (s *SearchTestSuite) TestKeywordCaseInsensitive() {
	spans := Keyword("The Fox", "fox")
	s.Require().Len(spans, 1)
}

func (s *SearchTestSuite) TestKeywordNoMatch() {
	s.Empty(Keyword("no match here", "zzz"))
}

func (s *SearchTestSuite) TestCosineIdentical() {
	s.InDelta(1.0, Cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
}

func (s *SearchTestSuite) TestCosineOrthogonal() {
	s.InDelta(0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func (s *SearchTestSuite) TestSemanticIndexTopK() {
	idx, err := NewSemanticIndex()
	s.Require().NoError(err)

	ctx := context.Background()
	s.Require().NoError(idx.AddChunks(ctx, "r1", [][]float32{{1, 0}}))
	s.Require().NoError(idx.AddChunks(ctx, "r2", [][]float32{{0, 1}}))
	s.Require().NoError(idx.AddChunks(ctx, "r3", [][]float32{{0.9, 0.1}, {0, 1}}))

	top, err := idx.TopK(ctx, []float32{1, 0}, 3)
	s.Require().NoError(err)
	s.Require().Len(top, 3)
	s.Equal("r1", top[0].RowID)
}

func (s *SearchTestSuite) TestBestScore() {
	s.InDelta(0.8, BestScore([]float64{0.1, 0.8, 0.3}), 1e-9)
	s.InDelta(0.0, BestScore(nil), 1e-9)
}
