//go:build unix

package mmapfile

import (
	"golang.org/x/sys/unix"

	"github.com/arkdb/skipstore/internal/kverrors"
)

// extendMapToLocked grows or (re)establishes the mapping to cover size
// bytes. Growth remaps rather than mprotect-extends because the file may
// have been extended past the originally mapped region, the same pattern
// the dittofs mmap persister uses when its log outgrows the initial mmap
// (pkg/wal/mmap.go: munmap the old region, mmap a fresh one sized to the
// new file length). mf.mu is held by the caller.
func (mf *File) extendMapToLocked(size int64) error {
	if size <= 0 {
		return nil
	}
	if int64(len(mf.mapped)) >= size {
		return nil
	}
	if mf.mapped != nil {
		if err := unix.Munmap(mf.mapped); err != nil {
			return kverrors.WrapIO("mmapfile.extendMapTo", err)
		}
		mf.mapped = nil
	}
	data, err := unix.Mmap(int(mf.f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return kverrors.WrapIO("mmapfile.extendMapTo", err)
	}
	mf.mapped = data
	if size > mf.size {
		mf.size = size
	}
	return nil
}

// unmapLocked releases the current mapping, if any. mf.mu is held by the
// caller.
func (mf *File) unmapLocked() error {
	if mf.mapped == nil {
		return nil
	}
	err := unix.Munmap(mf.mapped)
	mf.mapped = nil
	if err != nil {
		return kverrors.WrapIO("mmapfile.unmap", err)
	}
	return nil
}
