package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PoolTestSuite struct {
	suite.Suite
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (s *PoolTestSuite) TestRunThreadsPreservesBatchOrder() {
	fn := func(ctx context.Context, batch []any) ([]any, error) {
		out := make([]any, len(batch))
		for i, v := range batch {
			n, _ := v.(int)
			out[i] = n * 2
		}
		return out, nil
	}
	batches := []workBatch{
		{rowIDs: []string{"a"}, ordinals: []uint32{0}, values: []any{1}},
		{rowIDs: []string{"b"}, ordinals: []uint32{1}, values: []any{2}},
		{rowIDs: []string{"c"}, ordinals: []uint32{2}, values: []any{3}},
	}
	results := runThreads(context.Background(), 2, fn, batches)
	s.Require().Len(results, 3)
	for i, r := range results {
		s.Require().NoError(r.err)
		s.Equal(batches[i].values[0].(int)*2, r.outputs[0])
	}
}

func (s *PoolTestSuite) TestRunThreadsPropagatesFunctionError() {
	fn := func(ctx context.Context, batch []any) ([]any, error) {
		return nil, context.DeadlineExceeded
	}
	batches := []workBatch{{rowIDs: []string{"a"}, ordinals: []uint32{0}, values: []any{1}}}
	results := runThreads(context.Background(), 1, fn, batches)
	s.Require().Len(results, 1)
	s.Error(results[0].err)
}

func (s *PoolTestSuite) TestRunThreadsRespectsCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fn := func(ctx context.Context, batch []any) ([]any, error) {
		return batch, nil
	}
	batches := []workBatch{{rowIDs: []string{"a"}, ordinals: []uint32{0}, values: []any{1}}}
	results := runThreads(ctx, 1, fn, batches)
	s.Require().Len(results, 1)
	s.Error(results[0].err)
}

func (s *PoolTestSuite) TestRunProcessesRequiresCommand() {
	batches := []workBatch{{rowIDs: []string{"a"}, ordinals: []uint32{0}, values: []any{1}}}
	results := runProcesses(context.Background(), 1, nil, batches)
	s.Require().Len(results, 1)
	s.Error(results[0].err)
}
