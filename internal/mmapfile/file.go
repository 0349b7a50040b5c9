// Package mmapfile implements the file I/O and mapping layer: it opens the
// backing file, maintains a read-only memory mapping that writers extend
// as the file grows, and performs durable writes via positional writes
// plus fsync. The platform-specific mmap/munmap/mremap plumbing lives in
// file_unix.go and file_other.go, split by build tag the way a lock
// implementation splits unix/windows/js variants.
package mmapfile

import (
	"os"
	"sync"

	"github.com/arkdb/skipstore/internal/kverrors"
)

// File positions a backing file and exposes its current contents through
// an in-process mapping, refreshed on demand as the writer appends.
type File struct {
	mu     sync.RWMutex
	f      *os.File
	path   string
	mapped []byte // current read view; nil until first ExtendMapTo
	size   int64
	unsafe bool // fsync disabled; only true when the caller opts into it
}

// Open opens path read-write, creating it if create is true and it does
// not exist.
func Open(path string, create bool) (*File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, kverrors.WrapIO("mmapfile.Open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, kverrors.WrapIO("mmapfile.Open", err)
	}
	mf := &File{f: f, path: path, size: info.Size()}
	if info.Size() > 0 {
		if err := mf.extendMapToLocked(info.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return mf, nil
}

// SetUnsafe disables fsync for every subsequent write — the configured
// "unsafe" durability opt-out from spec §4.1.
func (mf *File) SetUnsafe(v bool) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.unsafe = v
}

// Path returns the backing file's path.
func (mf *File) Path() string { return mf.path }

// Size returns the current file size as observed by this handle.
func (mf *File) Size() int64 {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	return mf.size
}

// Fd exposes the raw *os.File underlying the mapping. The root package's
// advisory lock does not use it; internal/filelock opens its own
// descriptor on the same path.
func (mf *File) Fd() *os.File { return mf.f }

// Mapping returns the current read view. The returned slice is only safe
// to read while the caller holds a shared or exclusive lock on the file,
// per spec §4.1's guarantee — the mapping may be replaced by a concurrent
// ExtendMapTo (growth) or by a compaction rename between lock sections.
func (mf *File) Mapping() []byte {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	return mf.mapped
}

// ExtendMapTo ensures the mapping covers at least size bytes. Callers
// invoke this after appending, with the new file size, so that subsequent
// reads through Mapping see the new bytes.
func (mf *File) ExtendMapTo(size int64) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.extendMapToLocked(size)
}

// PositionalWrite performs a durable positional write: either every byte
// lands and the file length covers it, or the call fails outright — never
// a partial write left visible to a reader.
func (mf *File) PositionalWrite(offset int64, data []byte) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	n, err := mf.f.WriteAt(data, offset)
	if err != nil {
		return kverrors.WrapIO("mmapfile.PositionalWrite", err)
	}
	if n != len(data) {
		return kverrors.WrapIO("mmapfile.PositionalWrite", os.ErrClosed)
	}
	end := offset + int64(len(data))
	if end > mf.size {
		mf.size = end
	}
	return nil
}

// Fsync forces durability, unless unsafe mode is set.
func (mf *File) Fsync() error {
	mf.mu.RLock()
	unsafe := mf.unsafe
	mf.mu.RUnlock()
	if unsafe {
		return nil
	}
	if err := mf.f.Sync(); err != nil {
		return kverrors.WrapIO("mmapfile.Fsync", err)
	}
	return nil
}

// Truncate shrinks the file (used by abort and recovery to drop an
// uncommitted log tail) and drops the mapping; nothing remaps it
// automatically, so callers call ExtendMapTo afterwards.
func (mf *File) Truncate(size int64) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if err := mf.f.Truncate(size); err != nil {
		return kverrors.WrapIO("mmapfile.Truncate", err)
	}
	mf.size = size
	return mf.unmapLocked()
}

// Close releases the mapping and the file descriptor.
func (mf *File) Close() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.unmapLocked()
	return mf.f.Close()
}
