package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	curatepath "github.com/aqua777/curator/path"
)

type ManifestTestSuite struct {
	suite.Suite
}

func TestManifestTestSuite(t *testing.T) {
	suite.Run(t, new(ManifestTestSuite))
}

func (s *ManifestTestSuite) openManifest() *Manifest {
	dir := s.T().TempDir()
	m, err := OpenManifest(filepath.Join(dir, "manifest.db"), "ns", "ds")
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = m.Close() })
	return m
}

func (s *ManifestTestSuite) TestSourceSchemaRoundTrip() {
	m := s.openManifest()
	schema := &curatepath.Field{Name: "root", Fields: map[string]*curatepath.Field{
		"text": {Name: "text", DType: curatepath.DTypeString},
	}}
	s.Require().NoError(m.PutSourceSchema(schema))

	loaded, err := m.SourceSchema()
	s.Require().NoError(err)
	s.Equal("root", loaded.Name)
	s.Contains(loaded.Fields, "text")
}

func (s *ManifestTestSuite) TestCommitAndLookupEnrichment() {
	m := s.openManifest()
	bitmap := NewCompletedBitmap()
	bitmap.MarkRange(0, 3)

	entry := EnrichmentEntry{
		OutputPath: "text.lang",
		SourcePath: "text",
		Signal:     curatepath.SignalDescriptor{Name: "lang_detect", Params: map[string]string{"model": "v1"}},
		ShardRef:   "enrich_text_lang.arrow",
		NumItems:   3,
		OutputSchema: &curatepath.Field{Name: "lang", DType: curatepath.DTypeString},
	}
	s.Require().NoError(m.CommitBitmapAndEnrichment(entry, bitmap))

	loaded, loadedBitmap, err := m.Enrichment("text.lang")
	s.Require().NoError(err)
	s.Require().NotNil(loaded)
	s.Equal("lang_detect", loaded.Signal.Name)
	s.Equal(3, loaded.NumItems)
	s.True(loadedBitmap.IsComplete(3))
}

func (s *ManifestTestSuite) TestEnrichmentMissingReturnsNil() {
	m := s.openManifest()
	entry, bitmap, err := m.Enrichment("nope")
	s.Require().NoError(err)
	s.Nil(entry)
	s.Nil(bitmap)
}

func (s *ManifestTestSuite) TestListAndDeleteEnrichments() {
	m := s.openManifest()
	bitmap := NewCompletedBitmap()

	for _, p := range []string{"text.pii", "text.lang"} {
		s.Require().NoError(m.CommitBitmapAndEnrichment(EnrichmentEntry{
			OutputPath:   p,
			SourcePath:   "text",
			Signal:       curatepath.SignalDescriptor{Name: p},
			ShardRef:     p + ".arrow",
			OutputSchema: &curatepath.Field{Name: p, DType: curatepath.DTypeString},
		}, bitmap))
	}

	all, err := m.ListEnrichments()
	s.Require().NoError(err)
	s.Len(all, 2)

	s.Require().NoError(m.DeleteEnrichment("text.pii"))
	all, err = m.ListEnrichments()
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Equal("text.lang", all[0].OutputPath)
}
