package skipstore

import (
	"bytes"

	"github.com/arkdb/skipstore/internal/filelock"
	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/record"
	"github.com/arkdb/skipstore/internal/skiplist"
	"github.com/arkdb/skipstore/internal/walog"
)

// Fetch implements spec §6 "fetch(Handle, key) → Option<bytes>". A bloom
// filter miss answers ErrNotFound without taking the shared lock at all
// (spec SPEC_FULL.md §4.9); a hit still falls through to a real search
// since the filter only ever reports maybe-present.
func Fetch(h *Handle, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, wrap("Fetch", kverrors.BadParam)
	}
	if !h.bloom.MaybeContains(key) {
		return nil, wrap("Fetch", kverrors.NotFound)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.lock.Acquire(filelock.Shared); err != nil {
		return nil, wrap("Fetch", err)
	}
	defer h.lock.Release()

	loc, err := h.store.Find(key)
	if err != nil {
		return nil, wrap("Fetch", err)
	}
	if !loc.Exact {
		return nil, wrap("Fetch", kverrors.NotFound)
	}
	rec, err := h.store.ReadAt(loc.Forward[0])
	if err != nil {
		return nil, wrap("Fetch", err)
	}
	return append([]byte(nil), rec.Value...), nil
}

// FetchNext implements spec §6 "fetch_next(Handle, key) → Option<(key,
// bytes)>": the first key greater than or equal to key. find_location
// already leaves loc.Forward[0] pointing at exactly that record whether or
// not key itself is present.
func FetchNext(h *Handle, key []byte) ([]byte, []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.lock.Acquire(filelock.Shared); err != nil {
		return nil, nil, wrap("FetchNext", err)
	}
	defer h.lock.Release()

	loc, err := h.store.Find(key)
	if err != nil {
		return nil, nil, wrap("FetchNext", err)
	}
	if loc.Forward[0] == record.NilOffset {
		return nil, nil, wrap("FetchNext", kverrors.NotFound)
	}
	rec, err := h.store.ReadAt(loc.Forward[0])
	if err != nil {
		return nil, nil, wrap("FetchNext", err)
	}
	return append([]byte(nil), rec.Key...), append([]byte(nil), rec.Value...), nil
}

// FilterFunc decides whether VisitFunc is dispatched for a scanned key
// (spec §6 foreach's filter_fn). A nil FilterFunc accepts every key.
type FilterFunc func(key []byte) bool

// VisitFunc is foreach's visit_fn. Returning false stops the scan early;
// returning a non-nil error aborts it and propagates the error.
type VisitFunc func(key, value []byte) (bool, error)

// Foreach implements spec §6's scan: ascending order, restricted to keys
// carrying prefix, with the shared lock released and reacquired around
// every visit_fn call so a callback may itself call back into the store on
// the same Handle. Position across the release/reacquire gap is recovered
// by re-finding the last key visited (spec §6: "repositions by looking up
// the last key visited — so the caller's mutations between callbacks are
// tolerated").
func Foreach(h *Handle, prefix []byte, filter FilterFunc, visit VisitFunc) error {
	release := func() {
		h.lock.Release()
		h.mu.Unlock()
	}

	h.mu.Lock()
	if err := h.lock.Acquire(filelock.Shared); err != nil {
		h.mu.Unlock()
		return wrap("Foreach", err)
	}

	loc, err := h.store.Find(prefix)
	if err != nil {
		release()
		return wrap("Foreach", err)
	}
	cur := loc.Forward[0]

	for cur != record.NilOffset {
		rec, err := h.store.ReadAt(cur)
		if err != nil {
			release()
			return wrap("Foreach", err)
		}
		if !bytes.HasPrefix(rec.Key, prefix) {
			break
		}
		key := append([]byte(nil), rec.Key...)
		value := append([]byte(nil), rec.Value...)
		next := rec.Forward[0]

		if filter != nil && !filter(key) {
			cur = next
			continue
		}

		release()
		cont, verr := visit(key, value)

		h.mu.Lock()
		if err := h.lock.Acquire(filelock.Shared); err != nil {
			h.mu.Unlock()
			return wrap("Foreach", err)
		}
		if verr != nil {
			release()
			return wrap("Foreach", verr)
		}
		if !cont {
			release()
			return nil
		}

		repositioned, err := h.store.Find(key)
		if err != nil {
			release()
			return wrap("Foreach", err)
		}
		if !repositioned.Exact {
			// The visited key is gone (the callback deleted it):
			// Forward[0] already names the next surviving key.
			cur = repositioned.Forward[0]
			continue
		}
		// The visited key is still present: Forward[0] names its own
		// offset (see skiplist.Location's exact-match convention), so
		// the scan must step one more record to actually advance.
		self, err := h.store.ReadAt(repositioned.Forward[0])
		if err != nil {
			release()
			return wrap("Foreach", err)
		}
		cur = self.Forward[0]
	}

	release()
	return nil
}

// withWriteTxn runs fn under an active write transaction: the caller's
// own txn if non-nil, otherwise an ephemeral one this function begins and
// commits (or aborts on error) itself — spec §6's "txn?" optional
// parameter on store/create/delete.
func withWriteTxn(h *Handle, txn *Txn, fn func(inner *walog.Txn) error) error {
	if txn != nil {
		if err := checkOwnership(h, txn); err != nil {
			return err
		}
		return fn(txn.inner)
	}

	ephemeral, err := Begin(h)
	if err != nil {
		return err
	}
	if err := fn(ephemeral.inner); err != nil {
		if abortErr := Abort(h, ephemeral); abortErr != nil {
			return abortErr
		}
		return err
	}
	return Commit(h, ephemeral)
}

// encodeValue applies spec §4.3's compression rule: only when the Compress
// flag was set at Open, and only above record.CompressThreshold — tiny
// values are never compressed regardless of the flag.
func (h *Handle) encodeValue(value []byte) ([]byte, byte) {
	if h.opts.flags&Compress == 0 {
		return value, record.TypeAdd
	}
	out, compressed := record.MaybeCompress(value)
	if !compressed {
		return value, record.TypeAdd
	}
	return out, record.TypeAddCompressed
}

// Store implements spec §6 "store(Handle, key, value, txn?) — insert or
// replace".
func Store(h *Handle, key, value []byte, txn *Txn) error {
	if len(key) == 0 {
		return wrap("Store", kverrors.BadParam)
	}
	return wrap("Store", withWriteTxn(h, txn, func(inner *walog.Txn) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		loc, err := h.store.Find(key)
		if err != nil {
			return err
		}
		stored, addType := h.encodeValue(value)

		if loc.Exact {
			superseded := loc.Forward[0]
			replaceLoc, oldRec, err := h.store.ReplaceLocation(loc, superseded)
			if err != nil {
				return err
			}
			replaceType := record.TypeReplace
			if addType == record.TypeAddCompressed {
				replaceType = record.TypeReplaceCompressed
			}
			_, err = inner.Replace(replaceLoc, key, stored, oldRec.Level, superseded, replaceType)
			return err
		}
		level := skiplist.RandomLevel(h.store.MaxLevel())
		if _, err := inner.Insert(loc, key, stored, level, addType); err != nil {
			return err
		}
		h.bloom.Add(key)
		return nil
	}))
}

// Create implements spec §6 "create(Handle, key, value, txn?) — insert
// only; fails if key exists".
func Create(h *Handle, key, value []byte, txn *Txn) error {
	if len(key) == 0 {
		return wrap("Create", kverrors.BadParam)
	}
	return wrap("Create", withWriteTxn(h, txn, func(inner *walog.Txn) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		loc, err := h.store.Find(key)
		if err != nil {
			return err
		}
		if loc.Exact {
			return kverrors.Exists
		}
		stored, addType := h.encodeValue(value)
		level := skiplist.RandomLevel(h.store.MaxLevel())
		if _, err := inner.Insert(loc, key, stored, level, addType); err != nil {
			return err
		}
		h.bloom.Add(key)
		return nil
	}))
}

// Delete implements spec §6 "delete(Handle, key, txn?, force)". Absence of
// an exact match is ErrNotFound unless force is set, in which case it
// silently succeeds (spec §4.4 step 1).
func Delete(h *Handle, key []byte, txn *Txn, force bool) error {
	if len(key) == 0 {
		return wrap("Delete", kverrors.BadParam)
	}
	return wrap("Delete", withWriteTxn(h, txn, func(inner *walog.Txn) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		loc, err := h.store.Find(key)
		if err != nil {
			return err
		}
		if !loc.Exact {
			if force {
				return nil
			}
			return kverrors.NotFound
		}
		if _, err := inner.Delete(loc, loc.Forward[0]); err != nil {
			return err
		}
		return nil
	}))
}
