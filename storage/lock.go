package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// WriterLock is the per-dataset single-writer advisory lock of spec
// section 5: "the dataset manifest is guarded by a per-dataset writer
// lock." It flocks a sentinel file beside the manifest database,
// generalizing the kind of OS-level resource guard
// golang.org/x/sys/unix already gives this module (pulled in
// transitively through Arrow in the teacher; used directly here).
type WriterLock struct {
	f *os.File
}

// AcquireWriterLock takes an exclusive, non-blocking flock on path. It
// returns a StorageError{LockUnavailable} if another writer holds it.
func AcquireWriterLock(path string) (*WriterLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, wrapErr(LockUnavailable, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, wrapErr(LockUnavailable, err)
	}
	return &WriterLock{f: f}, nil
}

// Release drops the lock and closes the sentinel file handle.
func (l *WriterLock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		_ = l.f.Close()
		return wrapErr(LockUnavailable, err)
	}
	return l.f.Close()
}
