package storage

import (
	"testing"

	"github.com/stretchr/testify/suite"

	curatepath "github.com/aqua777/curator/path"
)

type DatasetTestSuite struct {
	suite.Suite
}

func TestDatasetTestSuite(t *testing.T) {
	suite.Run(t, new(DatasetTestSuite))
}

func (s *DatasetTestSuite) sourceSchema() *curatepath.Field {
	return &curatepath.Field{Name: "root", Fields: map[string]*curatepath.Field{
		"text": {Name: "text", DType: curatepath.DTypeString},
	}}
}

func (s *DatasetTestSuite) TestCreateOpenAndAppendShard() {
	dir := s.T().TempDir()
	cols := []ShardColumn{{Name: "text", DType: curatepath.DTypeString}}
	rows := []ShardRow{{RowID: "r1", Values: map[string]any{"text": "hello"}}}

	ds, err := Create(dir, "ns", "articles", s.sourceSchema(), cols, rows)
	s.Require().NoError(err)

	loaded, err := ds.Manifest().SourceSchema()
	s.Require().NoError(err)
	s.Equal("root", loaded.Name)

	bitmap := NewCompletedBitmap()
	bitmap.Mark(0)
	outCols := []ShardColumn{{Name: "lang", DType: curatepath.DTypeString}}
	outRows := []ShardRow{{RowID: "r1", Values: map[string]any{"lang": "en"}}}
	descriptor := curatepath.SignalDescriptor{Name: "lang_detect"}
	outSchema := &curatepath.Field{Name: "lang", DType: curatepath.DTypeString}

	s.Require().NoError(ds.AppendShard("text.lang", "text", descriptor, outSchema, outCols, outRows, bitmap))

	entry, loadedBitmap, err := ds.Manifest().Enrichment("text.lang")
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.Equal(1, entry.NumItems)
	s.True(loadedBitmap.Has(0))

	shardRows, err := ds.IterShard(ds.dir+"/"+entry.ShardRef, outCols, nil)
	s.Require().NoError(err)
	s.Require().Len(shardRows, 1)
	s.Equal("en", shardRows[0].Values["lang"])

	s.Require().NoError(ds.Close())

	reopened, err := Open(dir, "ns", "articles")
	s.Require().NoError(err)
	again, _, err := reopened.Manifest().Enrichment("text.lang")
	s.Require().NoError(err)
	s.Equal("text.lang", again.OutputPath)
	s.Require().NoError(reopened.Close())
}

func (s *DatasetTestSuite) TestDeleteEnrichmentRemovesShardFile() {
	dir := s.T().TempDir()
	cols := []ShardColumn{{Name: "text", DType: curatepath.DTypeString}}
	rows := []ShardRow{{RowID: "r1", Values: map[string]any{"text": "hello"}}}
	ds, err := Create(dir, "ns", "articles", s.sourceSchema(), cols, rows)
	s.Require().NoError(err)
	defer ds.Close()

	bitmap := NewCompletedBitmap()
	bitmap.Mark(0)
	outCols := []ShardColumn{{Name: "lang", DType: curatepath.DTypeString}}
	outRows := []ShardRow{{RowID: "r1", Values: map[string]any{"lang": "en"}}}
	s.Require().NoError(ds.AppendShard("text.lang", "text", curatepath.SignalDescriptor{Name: "lang_detect"},
		&curatepath.Field{Name: "lang", DType: curatepath.DTypeString}, outCols, outRows, bitmap))

	s.Require().NoError(ds.DeleteEnrichment("text.lang"))

	entry, _, err := ds.Manifest().Enrichment("text.lang")
	s.Require().NoError(err)
	s.Nil(entry)
}

func (s *DatasetTestSuite) TestStatsCachesAndInvalidates() {
	dir := s.T().TempDir()
	cols := []ShardColumn{{Name: "text", DType: curatepath.DTypeString}}
	rows := []ShardRow{{RowID: "r1", Values: map[string]any{"text": "hello"}}}
	ds, err := Create(dir, "ns", "articles", s.sourceSchema(), cols, rows)
	s.Require().NoError(err)
	defer ds.Close()

	st := ds.Stats("text", []any{"a", "bb", "ccc"})
	s.Equal(3, st.ApproxDistinct)
	s.Require().NotNil(st.AvgLen)
	s.InDelta(2.0, *st.AvgLen, 0.001)

	cached := ds.Stats("text", []any{"different"})
	s.Same(st, cached)

	ds.invalidateStats("text")
	fresh := ds.Stats("text", []any{"different"})
	s.NotSame(st, fresh)
}
