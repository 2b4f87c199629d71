package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	curatepath "github.com/aqua777/curator/path"
	"github.com/aqua777/curator/query"
	"github.com/aqua777/curator/storage"
)

type PipelineTestSuite struct {
	suite.Suite
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (s *PipelineTestSuite) newDataset(rows []storage.ShardRow) *storage.Dataset {
	dir := s.T().TempDir()
	schema := &curatepath.Field{Name: "root", Fields: map[string]*curatepath.Field{
		"text": {Name: "text", DType: curatepath.DTypeString},
	}}
	cols := []storage.ShardColumn{{Name: "text", DType: curatepath.DTypeString}}
	ds, err := storage.Create(dir, "ns", "ds", schema, cols, rows)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = ds.Close() })
	return ds
}

func (s *PipelineTestSuite) threeRowDataset() *storage.Dataset {
	return s.newDataset([]storage.ShardRow{
		{RowID: "r1", Values: map[string]any{"text": "hello"}},
		{RowID: "r2", Values: map[string]any{"text": "world"}},
		{RowID: "r3", Values: map[string]any{"text": "again"}},
	})
}

func upperFn(ctx context.Context, batch []any) ([]any, error) {
	out := make([]any, len(batch))
	for i, v := range batch {
		s, _ := v.(string)
		out[i] = fmt.Sprintf("%s!", s)
	}
	return out, nil
}

func (s *PipelineTestSuite) TestMapWritesEveryRow() {
	ds := s.threeRowDataset()
	res, err := Map(context.Background(), ds, upperFn, MapOptions{
		InputPath:    "text",
		OutputColumn: "shout",
	})
	s.Require().NoError(err)
	s.Equal(3, res.NumWritten)

	entry, bitmap, err := ds.Manifest().Enrichment("shout")
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.True(bitmap.IsComplete(3))
}

func (s *PipelineTestSuite) TestMapIsNoOpOnIdenticalDescriptorRerun() {
	ds := s.threeRowDataset()
	opts := MapOptions{InputPath: "text", OutputColumn: "shout"}
	_, err := Map(context.Background(), ds, upperFn, opts)
	s.Require().NoError(err)

	res, err := Map(context.Background(), ds, upperFn, opts)
	s.Require().NoError(err)
	s.Equal(0, res.NumWritten)
}

func (s *PipelineTestSuite) TestMapOverwriteRecomputesAll() {
	ds := s.threeRowDataset()
	opts := MapOptions{InputPath: "text", OutputColumn: "shout"}
	_, err := Map(context.Background(), ds, upperFn, opts)
	s.Require().NoError(err)

	opts.Overwrite = true
	res, err := Map(context.Background(), ds, upperFn, opts)
	s.Require().NoError(err)
	s.Equal(3, res.NumWritten)
}

func (s *PipelineTestSuite) TestMapResumesOnlyMissingRows() {
	ds := s.threeRowDataset()
	calls := 0
	countingFn := func(ctx context.Context, batch []any) ([]any, error) {
		calls += len(batch)
		return upperFn(ctx, batch)
	}

	// Seed a partial bitmap: run once filtered to only r1's row.
	_, err := Map(context.Background(), ds, countingFn, MapOptions{
		InputPath: "text", OutputColumn: "shout",
		Filters: []query.Filter{
			query.BinaryFilter{Path: curatepath.FromStrings("text"), Op: query.Equals, Value: "hello"},
		},
	})
	s.Require().NoError(err)
	s.Equal(1, calls)

	calls = 0
	res, err := Map(context.Background(), ds, countingFn, MapOptions{
		InputPath: "text", OutputColumn: "shout",
	})
	s.Require().NoError(err)
	s.Equal(2, calls)
	s.Equal(2, res.NumWritten)
}

func (s *PipelineTestSuite) TestMapErrorThresholdAborts() {
	ds := s.threeRowDataset()
	failingFn := func(ctx context.Context, batch []any) ([]any, error) {
		return nil, fmt.Errorf("boom")
	}
	_, err := Map(context.Background(), ds, failingFn, MapOptions{
		InputPath: "text", OutputColumn: "shout",
		BatchSize: 1, MaxErrors: 1,
	})
	s.Require().Error(err)
	var pErr *Error
	s.Require().ErrorAs(err, &pErr)
	s.Equal(RowErrorThresholdExceeded, pErr.Kind)
}

func (s *PipelineTestSuite) TestComputeConceptWritesScores() {
	dir := s.T().TempDir()
	schema := &curatepath.Field{Name: "root", Fields: map[string]*curatepath.Field{
		"vec": {Name: "vec", DType: curatepath.DTypeEmbedding, Dim: 2},
	}}
	cols := []storage.ShardColumn{{Name: "vec", DType: curatepath.DTypeEmbedding, Dim: 2}}
	rows := []storage.ShardRow{
		{RowID: "r1", Values: map[string]any{"vec": []float32{1, 0}}},
		{RowID: "r2", Values: map[string]any{"vec": []float32{0, 1}}},
	}
	ds, err := storage.Create(dir, "ns", "ds", schema, cols, rows)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = ds.Close() })

	scorer := stubScorer{}
	res, err := ComputeConcept(context.Background(), ds, scorer, "ns1", "topicA", "emb1", "vec", MapOptions{})
	s.Require().NoError(err)
	s.Equal(2, res.NumWritten)
}

type stubScorer struct{}

func (stubScorer) Score(namespace, name, embedding string, vectors [][]float32) ([]float64, error) {
	out := make([]float64, len(vectors))
	for i := range vectors {
		out[i] = 0.5
	}
	return out, nil
}
