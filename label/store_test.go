package label

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) openStore() *Store {
	dir := s.T().TempDir()
	st, err := OpenStore(filepath.Join(dir, "labels.db"))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = st.Close() })
	return st
}

func (s *StoreTestSuite) TestAddAndLookup() {
	st := s.openStore()
	s.Require().NoError(st.Add("spam", []string{"r1", "r2"}))

	s.True(st.Lookup("r1")["spam"])
	s.True(st.Lookup("r2")["spam"])
	s.False(st.Lookup("r3")["spam"])
}

func (s *StoreTestSuite) TestAddIsIdempotent() {
	st := s.openStore()
	s.Require().NoError(st.Add("spam", []string{"r1"}))
	s.Require().NoError(st.Add("spam", []string{"r1"}))

	rows, err := st.RowsWithLabel("spam")
	s.Require().NoError(err)
	s.Len(rows, 1)
}

func (s *StoreTestSuite) TestRemove() {
	st := s.openStore()
	s.Require().NoError(st.Add("spam", []string{"r1", "r2"}))
	s.Require().NoError(st.Remove("spam", []string{"r1"}))

	s.False(st.Lookup("r1")["spam"])
	s.True(st.Lookup("r2")["spam"])
}

func (s *StoreTestSuite) TestRowsWithLabel() {
	st := s.openStore()
	s.Require().NoError(st.Add("reviewed", []string{"r1", "r2", "r3"}))
	s.Require().NoError(st.Add("spam", []string{"r2"}))

	rows, err := st.RowsWithLabel("reviewed")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"r1", "r2", "r3"}, rows)

	rows, err = st.RowsWithLabel("spam")
	s.Require().NoError(err)
	s.Equal([]string{"r2"}, rows)
}

func (s *StoreTestSuite) TestRecordsIncludesTimestamp() {
	st := s.openStore()
	s.Require().NoError(st.Add("reviewed", []string{"r1"}))

	recs, err := st.Records("r1")
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("reviewed", recs[0].Label)
	s.False(recs[0].CreatedAt.IsZero())
}

func (s *StoreTestSuite) TestMultipleLabelsPerRow() {
	st := s.openStore()
	s.Require().NoError(st.Add("reviewed", []string{"r1"}))
	s.Require().NoError(st.Add("spam", []string{"r1"}))

	have := st.Lookup("r1")
	s.True(have["reviewed"])
	s.True(have["spam"])
	s.Len(have, 2)
}
