package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	curatepath "github.com/aqua777/curator/path"
)

type ShardTestSuite struct {
	suite.Suite
}

func TestShardTestSuite(t *testing.T) {
	suite.Run(t, new(ShardTestSuite))
}

func (s *ShardTestSuite) columns() []ShardColumn {
	return []ShardColumn{
		{Name: "text", DType: curatepath.DTypeString},
		{Name: "score", DType: curatepath.DTypeFloat64},
		{Name: "embedding", DType: curatepath.DTypeEmbedding, Dim: 3},
		{Name: "tags", DType: curatepath.DTypeString}, // native scalar, stored directly
	}
}

func (s *ShardTestSuite) TestWriteAndReadShard() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "shard.arrow")
	cols := s.columns()

	rows := []ShardRow{
		{RowID: "r1", Values: map[string]any{
			"text": "hello world", "score": 0.5, "embedding": []float32{1, 2, 3}, "tags": "a",
		}},
		{RowID: "r2", Values: map[string]any{
			"text": "second row", "score": 1.5, "embedding": []float32{4, 5, 6}, "tags": nil,
		}},
	}

	s.Require().NoError(WriteShard(path, cols, rows))

	out, err := ReadShard(path, cols, nil)
	s.Require().NoError(err)
	s.Require().Len(out, 2)

	s.Equal("r1", out[0].RowID)
	s.Equal("hello world", out[0].Values["text"])
	s.Equal(0.5, out[0].Values["score"])
	s.Equal([]float32{1, 2, 3}, out[0].Values["embedding"])
	s.Equal("a", out[0].Values["tags"])

	s.Nil(out[1].Values["tags"])
}

func (s *ShardTestSuite) TestReadShardFiltersByRowID() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "shard.arrow")
	cols := s.columns()

	rows := []ShardRow{
		{RowID: "r1", Values: map[string]any{"text": "one", "score": 1.0, "embedding": []float32{0, 0, 0}, "tags": "x"}},
		{RowID: "r2", Values: map[string]any{"text": "two", "score": 2.0, "embedding": []float32{0, 0, 0}, "tags": "y"}},
		{RowID: "r3", Values: map[string]any{"text": "three", "score": 3.0, "embedding": []float32{0, 0, 0}, "tags": "z"}},
	}
	s.Require().NoError(WriteShard(path, cols, rows))

	out, err := ReadShard(path, cols, map[string]bool{"r2": true})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("r2", out[0].RowID)
}

func (s *ShardTestSuite) TestJSONFallbackColumn() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "shard.arrow")
	cols := []ShardColumn{{Name: "span", DType: curatepath.DTypeStringSpan}}

	rows := []ShardRow{
		{RowID: "r1", Values: map[string]any{"span": map[string]any{"start": float64(0), "end": float64(5)}}},
	}
	s.Require().NoError(WriteShard(path, cols, rows))

	out, err := ReadShard(path, cols, nil)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	span := out[0].Values["span"].(map[string]any)
	s.Equal(float64(0), span["start"])
	s.Equal(float64(5), span["end"])
}
