//go:build !unix

package mmapfile

import "github.com/arkdb/skipstore/internal/kverrors"

// extendMapToLocked falls back to a plain buffered read of the whole file
// on platforms without a POSIX mmap (windows, js/wasm). It is not a
// "mapping" in the kernel sense, only the same read-view contract:
// ExtendMapTo makes newly appended bytes visible.
func (mf *File) extendMapToLocked(size int64) error {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	n, err := mf.f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return kverrors.WrapIO("mmapfile.extendMapTo", err)
	}
	mf.mapped = buf[:n]
	if size > mf.size {
		mf.size = size
	}
	return nil
}

func (mf *File) unmapLocked() error {
	mf.mapped = nil
	return nil
}
