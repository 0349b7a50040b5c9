// Package skipstore is the public API of spec §6: an embedded, single-file,
// crash-safe, ordered key-value store backed by a persistent skip list. It
// wires together internal/skiplist (the engine), internal/walog (the
// transaction log), internal/recovery and internal/checkpoint (crash
// recovery and compaction), internal/filelock (cross-process coordination),
// internal/bloomkey (the DOMAIN STACK negative-lookup accelerator), and
// internal/registry (in-process handle sharing) behind the Handle type.
package skipstore

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/arkdb/skipstore/internal/bloomkey"
	"github.com/arkdb/skipstore/internal/checkpoint"
	"github.com/arkdb/skipstore/internal/filelock"
	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/recovery"
	"github.com/arkdb/skipstore/internal/registry"
	"github.com/arkdb/skipstore/internal/skiplist"
	"github.com/arkdb/skipstore/internal/walog"
)

// registry is process-global by design (spec §3: "within a process, all
// callers asking for the same path share one handle").
var reg = registry.New()

// Handle is one open store, per spec §3's "Ownership" note: it exclusively
// owns its file descriptor, mapping, and current transaction. Multiple
// Open calls against the same path within one process return the same
// *Handle, reference-counted by the registry.
type Handle struct {
	mu    sync.Mutex
	path  string
	store *skiplist.Store
	wal   *walog.WAL
	lock  *filelock.Lock
	bloom *bloomkey.Filter
	opts  *Options
	log   *zap.Logger
	txn   *walog.Txn // the single caller-managed transaction, if any
}

// Open implements spec §6 "open(path, flags)". Every Open for the same
// (absolute) path within this process shares one underlying Handle; Close
// must be called once per Open to release it.
func Open(path string, flags Flag, opts ...Option) (*Handle, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, wrap("Open", kverrors.WrapIO("skipstore.Open", err))
	}

	entry, _, err := reg.Acquire(absPath, func() (any, error) {
		return newHandle(absPath, flags, opts)
	})
	if err != nil {
		return nil, wrap("Open", err)
	}
	return entry.Value().(*Handle), nil
}

func newHandle(path string, flags Flag, opts []Option) (*Handle, error) {
	o := newOptions(flags, opts)

	_, statErr := os.Stat(path)
	fresh := false
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return nil, kverrors.WrapIO("skipstore.Open", statErr)
		}
		if flags&Create == 0 {
			return nil, kverrors.WrapIO("skipstore.Open", statErr)
		}
		fresh = true
	}

	var store *skiplist.Store
	var err error
	if fresh {
		store, err = skiplist.Create(path, o.flags&Legacy != 0, o.resolveComparator())
	} else {
		store, err = skiplist.Open(path, o.resolveComparator())
	}
	if err != nil {
		return nil, err
	}
	store.File.SetUnsafe(o.unsafe)

	lockFile, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		store.File.Close()
		return nil, kverrors.WrapIO("skipstore.Open", err)
	}
	lk := filelock.New(path, lockFile, func() (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR, 0644)
	})

	h := &Handle{
		path:  path,
		store: store,
		wal:   walog.New(store, recovery.Recover),
		lock:  lk,
		opts:  o,
		log:   o.logger,
	}

	if err := h.openTimeRecoveryCheck(); err != nil {
		lk.Close()
		store.File.Close()
		return nil, err
	}

	h.bloom = bloomkey.New(store.Header.NumRecords)
	if err := h.rebuildBloomLocked(); err != nil {
		lk.Close()
		store.File.Close()
		return nil, err
	}

	return h, nil
}

// openTimeRecoveryCheck implements spec §4.6's recovery trigger at open:
// forced if the log tail is not at a commit boundary, or if the stamp file
// says this process booted after the store's last recovery.
func (h *Handle) openTimeRecoveryCheck() error {
	if err := h.lock.Acquire(filelock.Exclusive); err != nil {
		return err
	}
	defer h.lock.Release()

	forced := !walog.IsSafeToAppend(h.store)
	if !forced {
		stale, err := stampForcesRecovery(h.path, h.store.Header.LastRecoveryTS)
		if err != nil {
			return err
		}
		forced = stale
	}
	if !forced {
		return nil
	}

	h.log.Info("skipstore: forcing recovery on open", zap.String("path", h.path))
	if err := recovery.Recover(h.store); err != nil {
		return err
	}
	h.lock.MarkDirty()
	return writeStamp(stampPath(h.path), processBootStamp())
}

// rebuildBloomLocked walks every live key and populates h.bloom. It runs
// at every Open, whether or not recovery ran; runCheckpointLocked does
// its own scan for the store a checkpoint leaves behind.
func (h *Handle) rebuildBloomLocked() error {
	if err := h.lock.Acquire(filelock.Shared); err != nil {
		return err
	}
	defer h.lock.Release()

	cur := h.store.DummyOffset
	for {
		rec, err := h.store.Advance(cur)
		if err != nil {
			return err
		}
		if rec.Self == h.store.DummyOffset {
			return nil
		}
		h.bloom.Add(rec.Key)
		cur = rec.Self
	}
}

// runCheckpointLocked implements the compaction half of spec §4.5 step 4:
// invoked by Commit once the post-commit log region has grown past
// walog.ShouldCheckpoint's threshold. It takes its own exclusive lock
// (the caller, Commit, has already released its own) and swaps in the
// Store, WAL, and bloom filter that checkpoint.Run leaves behind.
func (h *Handle) runCheckpointLocked() error {
	if err := h.lock.Acquire(filelock.Exclusive); err != nil {
		return err
	}
	defer h.lock.Release()

	newStore, err := checkpoint.Run(h.store)
	if err != nil {
		return err
	}
	h.store = newStore
	h.store.File.SetUnsafe(h.opts.unsafe)
	h.wal = walog.New(h.store, recovery.Recover)

	bloom := bloomkey.New(h.store.Header.NumRecords)
	cur := h.store.DummyOffset
	for {
		rec, err := h.store.Advance(cur)
		if err != nil {
			return err
		}
		if rec.Self == h.store.DummyOffset {
			break
		}
		bloom.Add(rec.Key)
		cur = rec.Self
	}
	h.bloom = bloom
	h.lock.MarkDirty()
	return nil
}

// Close releases this caller's reference; the underlying file is closed
// only once every Open for this path has a matching Close (spec §3:
// "physical close happens at refcount 0").
func (h *Handle) Close() error {
	if !reg.Release(h.path) {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	lockErr := h.lock.Close()
	fileErr := h.store.File.Close()
	if lockErr != nil {
		return wrap("Close", lockErr)
	}
	if fileErr != nil {
		return wrap("Close", fileErr)
	}
	return nil
}
