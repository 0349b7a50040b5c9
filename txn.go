package skipstore

import (
	"github.com/arkdb/skipstore/internal/filelock"
	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/walog"
)

// Txn is a caller-visible handle to one outstanding transaction, per spec
// §3's "single outstanding transaction per open handle": Begin fails if
// one is already active, and Commit/Abort reject a Txn that doesn't
// belong to the Handle it's passed to.
type Txn struct {
	inner *walog.Txn
	owner *Handle
}

// Begin opens a new transaction on h. Most callers never call this
// directly — Store/Create/Delete auto-commit an ephemeral transaction
// when none is supplied (spec §6); Fetch takes no transaction.
func Begin(h *Handle) (*Txn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.txn != nil {
		return nil, wrap("Begin", kverrors.Again)
	}
	if err := h.lock.Acquire(filelock.Exclusive); err != nil {
		return nil, wrap("Begin", err)
	}
	inner, err := h.wal.Begin()
	if err != nil {
		h.lock.Release()
		return nil, wrap("Begin", err)
	}
	t := &Txn{inner: inner, owner: h}
	h.txn = inner
	return t, nil
}

// Commit implements spec §4.5's commit sequence and releases the
// exclusive lock taken by Begin. A checkpoint runs afterward if the log
// region has grown past the compaction threshold (spec §4.5 step 4).
func Commit(h *Handle, t *Txn) error {
	if err := checkOwnership(h, t); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := t.inner.Commit(); err != nil {
		h.lock.Release()
		h.txn = nil
		return wrap("Commit", err)
	}
	h.lock.MarkDirty()
	h.txn = nil

	runCheckpoint := walog.ShouldCheckpoint(h.store)
	if err := h.lock.Release(); err != nil {
		return wrap("Commit", err)
	}
	if runCheckpoint {
		if err := h.runCheckpointLocked(); err != nil {
			return wrap("Commit", err)
		}
	}
	return nil
}

// Abort undoes every write t made and releases the exclusive lock.
func Abort(h *Handle, t *Txn) error {
	if err := checkOwnership(h, t); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	err := t.inner.Abort()
	h.lock.MarkDirty()
	h.txn = nil
	if relErr := h.lock.Release(); relErr != nil && err == nil {
		err = relErr
	}
	if err != nil {
		return wrap("Abort", err)
	}
	return nil
}

func checkOwnership(h *Handle, t *Txn) error {
	if t == nil || t.owner != h || h.txn != t.inner {
		return wrap("Txn", kverrors.Locked)
	}
	return nil
}
