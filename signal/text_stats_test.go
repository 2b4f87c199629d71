package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type TextStatsTestSuite struct {
	suite.Suite
}

func TestTextStatsTestSuite(t *testing.T) {
	suite.Run(t, new(TextStatsTestSuite))
}

func (s *TextStatsTestSuite) TestBasicCounts() {
	ts := NewTextStats()
	out, err := ts.Compute(context.Background(), []any{"Hi there! 42 times."})
	s.Require().NoError(err)
	stats := out[0].(map[string]any)
	s.Equal(int64(19), stats["length"])
	s.Greater(stats["num_letters"].(int64), int64(0))
	s.Equal(int64(2), stats["num_digits"])
	s.Greater(stats["token_count"].(int64), int64(0))
}

func (s *TextStatsTestSuite) TestTypeTokenRatioOfRepeatedWord() {
	ts := NewTextStats()
	out, err := ts.Compute(context.Background(), []any{"dog dog dog"})
	s.Require().NoError(err)
	stats := out[0].(map[string]any)
	ttr := stats["type_token_ratio"].(float64)
	s.InDelta(1.0/3.0, ttr, 1e-9)
}

func (s *TextStatsTestSuite) TestEmptyText() {
	ts := NewTextStats()
	out, err := ts.Compute(context.Background(), []any{""})
	s.Require().NoError(err)
	stats := out[0].(map[string]any)
	s.Equal(int64(0), stats["length"])
	s.Equal(0.0, stats["type_token_ratio"])
}
