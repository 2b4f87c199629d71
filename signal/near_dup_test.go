package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type NearDupTestSuite struct {
	suite.Suite
}

func TestNearDupTestSuite(t *testing.T) {
	suite.Run(t, new(NearDupTestSuite))
}

func (s *NearDupTestSuite) TestIdenticalTextsShareBucket() {
	nd := NewNearDup(16, 4)
	text := "the quick brown fox jumps over the lazy dog repeatedly"

	out, err := nd.Compute(context.Background(), []any{text, text, "entirely unrelated content about rocket engines"})
	s.Require().NoError(err)

	first := out[0].(map[string]any)
	second := out[1].(map[string]any)
	third := out[2].(map[string]any)

	s.Equal(int64(0), first["row_index"])
	s.Empty(first["candidates"])

	candidates := second["candidates"].([]any)
	s.Require().NotEmpty(candidates)
	s.Contains(candidates, int64(0))

	thirdCandidates := third["candidates"].([]any)
	s.NotContains(thirdCandidates, int64(0))
	s.NotContains(thirdCandidates, int64(1))
}

func (s *NearDupTestSuite) TestRowIndexIncrementsAcrossCalls() {
	nd := NewNearDup(8, 2)
	out1, err := nd.Compute(context.Background(), []any{"first document text"})
	s.Require().NoError(err)
	out2, err := nd.Compute(context.Background(), []any{"second document text"})
	s.Require().NoError(err)

	s.Equal(int64(0), out1[0].(map[string]any)["row_index"])
	s.Equal(int64(1), out2[0].(map[string]any)["row_index"])
}
