package concept

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConceptTestSuite struct {
	suite.Suite
}

func TestConceptTestSuite(t *testing.T) {
	suite.Run(t, new(ConceptTestSuite))
}

func (s *ConceptTestSuite) openStore() *Store {
	dir := s.T().TempDir()
	st, err := OpenStore(filepath.Join(dir, "concepts.db"))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = st.Close() })
	return st
}

// axisEmbed embeds "pos" as [1, 0] and everything else as [0, 1], giving
// Train a trivially separable example set to fit against.
func axisEmbed(text string) ([]float32, error) {
	if text == "pos" {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (s *ConceptTestSuite) TestCreateGetRemove() {
	st := s.openStore()
	c, err := st.Create("ns1", "topicA", "supervised")
	s.Require().NoError(err)
	s.Equal(1, c.Version)

	got, err := st.Get("ns1", "topicA")
	s.Require().NoError(err)
	s.Equal(c, got)

	s.Require().NoError(st.Remove("ns1", "topicA"))
	_, err = st.Get("ns1", "topicA")
	s.Require().Error(err)
	var cerr *Error
	s.ErrorAs(err, &cerr)
	s.Equal(NotFound, cerr.Kind)
}

func (s *ConceptTestSuite) TestEditInsertsAndBumpsVersion() {
	st := s.openStore()
	_, err := st.Create("ns1", "topicA", "supervised")
	s.Require().NoError(err)

	s.Require().NoError(st.Edit("ns1", "topicA", EditOptions{
		Insert: []Example{
			{ID: "e1", Label: true, Text: "pos"},
			{ID: "e2", Label: false, Text: "neg"},
		},
	}))

	examples, err := st.Examples("ns1", "topicA")
	s.Require().NoError(err)
	s.Len(examples, 2)

	c, err := st.Get("ns1", "topicA")
	s.Require().NoError(err)
	s.Equal(2, c.Version)

	s.Require().NoError(st.Edit("ns1", "topicA", EditOptions{Remove: []string{"e2"}}))
	examples, err = st.Examples("ns1", "topicA")
	s.Require().NoError(err)
	s.Len(examples, 1)

	c, err = st.Get("ns1", "topicA")
	s.Require().NoError(err)
	s.Equal(3, c.Version)
}

func (s *ConceptTestSuite) TestScoreWithoutTrainingIsNotFound() {
	st := s.openStore()
	_, err := st.Create("ns1", "topicA", "supervised")
	s.Require().NoError(err)

	svc := NewService(st)
	_, err = svc.Score("ns1", "topicA", "emb1", [][]float32{{1, 0}})
	s.Require().Error(err)
	var cerr *Error
	s.ErrorAs(err, &cerr)
	s.Equal(NotFound, cerr.Kind)
}

// TestTrainThenScoreRoundTrip guards the fix for a bug where Score looked
// up the cached model under the wrong (empty) embedding name regardless
// of which embedding Train actually cached it under.
func (s *ConceptTestSuite) TestTrainThenScoreRoundTrip() {
	st := s.openStore()
	_, err := st.Create("ns1", "topicA", "supervised")
	s.Require().NoError(err)
	s.Require().NoError(st.Edit("ns1", "topicA", EditOptions{
		Insert: []Example{
			{ID: "e1", Label: true, Text: "pos"},
			{ID: "e2", Label: false, Text: "neg"},
		},
	}))

	svc := NewService(st)
	_, metrics, err := svc.Train("ns1", "topicA", "emb1", axisEmbed)
	s.Require().NoError(err)
	s.Equal(1, metrics.Positives)
	s.Equal(1, metrics.Negatives)

	scores, err := svc.Score("ns1", "topicA", "emb1", [][]float32{{1, 0}, {0, 1}})
	s.Require().NoError(err)
	s.Require().Len(scores, 2)
	s.Greater(scores[0], 0.5)
	s.Less(scores[1], 0.5)

	// Scoring against a different embedding name than the one trained
	// must fail, not silently fall back to whatever happens to be cached
	// under a blank embedding key.
	_, err = svc.Score("ns1", "topicA", "emb2", [][]float32{{1, 0}})
	s.Require().Error(err)
	var cerr *Error
	s.ErrorAs(err, &cerr)
	s.Equal(NotFound, cerr.Kind)
}

func (s *ConceptTestSuite) TestTrainCachesUntilEdit() {
	st := s.openStore()
	_, err := st.Create("ns1", "topicA", "supervised")
	s.Require().NoError(err)
	s.Require().NoError(st.Edit("ns1", "topicA", EditOptions{
		Insert: []Example{
			{ID: "e1", Label: true, Text: "pos"},
			{ID: "e2", Label: false, Text: "neg"},
		},
	}))

	svc := NewService(st)
	model1, _, err := svc.Train("ns1", "topicA", "emb1", axisEmbed)
	s.Require().NoError(err)

	model2, _, err := svc.Train("ns1", "topicA", "emb1", axisEmbed)
	s.Require().NoError(err)
	s.Equal(model1, model2)

	s.Require().NoError(st.Edit("ns1", "topicA", EditOptions{
		Insert: []Example{{ID: "e3", Label: false, Text: "neg"}},
	}))

	scores, err := svc.Score("ns1", "topicA", "emb1", [][]float32{{1, 0}})
	s.Require().Error(err)
	var cerr *Error
	s.ErrorAs(err, &cerr)
	s.Equal(VersionStale, cerr.Kind)
	s.Nil(scores)

	_, _, err = svc.Train("ns1", "topicA", "emb1", axisEmbed)
	s.Require().NoError(err)
	_, err = svc.Score("ns1", "topicA", "emb1", [][]float32{{1, 0}})
	s.Require().NoError(err)
}

func (s *ConceptTestSuite) TestTrainNeedsNegatives() {
	st := s.openStore()
	_, err := st.Create("ns1", "topicA", "supervised")
	s.Require().NoError(err)
	s.Require().NoError(st.Edit("ns1", "topicA", EditOptions{
		Insert: []Example{{ID: "e1", Label: true, Text: "pos"}},
	}))

	svc := NewService(st)
	_, _, err = svc.Train("ns1", "topicA", "emb1", axisEmbed)
	s.Require().Error(err)
	var cerr *Error
	s.ErrorAs(err, &cerr)
	s.Equal(NeedsNegatives, cerr.Kind)
}

func (s *ConceptTestSuite) TestTrainSeparatePerEmbedding() {
	st := s.openStore()
	_, err := st.Create("ns1", "topicA", "supervised")
	s.Require().NoError(err)
	s.Require().NoError(st.Edit("ns1", "topicA", EditOptions{
		Insert: []Example{
			{ID: "e1", Label: true, Text: "pos"},
			{ID: "e2", Label: false, Text: "neg"},
		},
	}))

	svc := NewService(st)
	flipEmbed := func(text string) ([]float32, error) {
		if text == "pos" {
			return []float32{0, 1}, nil
		}
		return []float32{1, 0}, nil
	}

	_, _, err = svc.Train("ns1", "topicA", "emb1", axisEmbed)
	s.Require().NoError(err)
	_, _, err = svc.Train("ns1", "topicA", "emb2", flipEmbed)
	s.Require().NoError(err)

	scores1, err := svc.Score("ns1", "topicA", "emb1", [][]float32{{1, 0}})
	s.Require().NoError(err)
	scores2, err := svc.Score("ns1", "topicA", "emb2", [][]float32{{1, 0}})
	s.Require().NoError(err)

	s.Greater(scores1[0], 0.5)
	s.Less(scores2[0], 0.5)
}
