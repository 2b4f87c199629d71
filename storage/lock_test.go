package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LockTestSuite struct {
	suite.Suite
}

func TestLockTestSuite(t *testing.T) {
	suite.Run(t, new(LockTestSuite))
}

func (s *LockTestSuite) TestSecondAcquireFails() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, ".lock")

	first, err := AcquireWriterLock(path)
	s.Require().NoError(err)

	_, err = AcquireWriterLock(path)
	s.Error(err)
	var storageErr *Error
	s.ErrorAs(err, &storageErr)
	s.Equal(LockUnavailable, storageErr.Kind)

	s.Require().NoError(first.Release())
}

func (s *LockTestSuite) TestReacquireAfterRelease() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, ".lock")

	first, err := AcquireWriterLock(path)
	s.Require().NoError(err)
	s.Require().NoError(first.Release())

	second, err := AcquireWriterLock(path)
	s.Require().NoError(err)
	s.Require().NoError(second.Release())
}
