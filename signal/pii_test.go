package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PIITestSuite struct {
	suite.Suite
}

func TestPIITestSuite(t *testing.T) {
	suite.Run(t, new(PIITestSuite))
}

func (s *PIITestSuite) TestFindsEmail() {
	p := NewPII()
	out, err := p.Compute(context.Background(), []any{"contact me at jane.doe@example.com please"})
	s.Require().NoError(err)
	spans := out[0].([]any)
	s.Require().Len(spans, 1)
	span := spans[0].(map[string]any)
	s.Equal("email", span["kind"])
	text := "contact me at jane.doe@example.com please"
	start := span["start"].(int64)
	end := span["end"].(int64)
	s.Equal("jane.doe@example.com", text[start:end])
}

func (s *PIITestSuite) TestFindsIP() {
	p := NewPII()
	out, err := p.Compute(context.Background(), []any{"server at 10.0.0.1 is down"})
	s.Require().NoError(err)
	spans := out[0].([]any)
	s.Require().Len(spans, 1)
	s.Equal("ip", spans[0].(map[string]any)["kind"])
}

func (s *PIITestSuite) TestNoMatchesIsEmpty() {
	p := NewPII()
	out, err := p.Compute(context.Background(), []any{"nothing sensitive here"})
	s.Require().NoError(err)
	s.Empty(out[0])
}
