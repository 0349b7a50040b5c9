// Package walog implements spec §4.5: the write-ahead log and single
// outstanding transaction per open handle, including commit (fsync,
// marker, fsync) and abort (reverse-order undo, truncate).
//
// It builds directly on internal/skiplist's Insert/Delete stitch
// primitives — a WAL append IS a skip-list insert whose appendFn happens
// to be WAL-scoped bookkeeping rather than a bare Store.Append.
package walog

import (
	"go.uber.org/multierr"

	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/record"
	"github.com/arkdb/skipstore/internal/skiplist"
)

// RecoverFunc is called when Begin finds the file tail is not at a valid
// commit boundary. The root package supplies internal/recovery's entry
// point here so that walog never has to import recovery.
type RecoverFunc func(*skiplist.Store) error

// WAL binds one open handle's transaction lifecycle to its store.
type WAL struct {
	store   *skiplist.Store
	recover RecoverFunc
	active  *Txn
}

// New constructs a WAL for an already-opened store.
func New(s *skiplist.Store, recover RecoverFunc) *WAL {
	return &WAL{store: s, recover: recover}
}

// undoKind enumerates the three log record shapes abort must reverse.
type undoKind int

const (
	undoInsert undoKind = iota
	undoDelete
	undoReplace
)

type undoStep struct {
	kind   undoKind
	offset record.RecordOffset // the appended record this step undoes
	loc    *skiplist.Location  // the Location used to stitch it in
	level  int
	victim record.RecordOffset // DELETE: the record to restitch
}

// Txn is a transaction: a log_start/log_end pair plus, for this
// implementation, the undo steps recorded as each write happens — a
// "cleanup on all exit paths" pattern collapsed into one scoped object
// whose Commit or Abort the caller must call explicitly.
type Txn struct {
	wal      *WAL
	LogStart record.RecordOffset
	LogEnd   record.RecordOffset
	undo     []undoStep
}

// IsSafeToAppend implements spec §4.5's "safe to append" predicate: the
// file ends at a valid commit boundary. It walks forward from LogStart
// decoding records until EOF or a decode failure, and requires the final
// record to be a commit marker landing exactly at EOF.
//
// v1's historical implicit commit-at-log_start is not reproduced here —
// see DESIGN.md's Open Question decision: both formats use an explicit
// COMMIT record so this predicate is symmetric across versions.
func IsSafeToAppend(s *skiplist.Store) bool {
	offset := s.Header.LogStart
	size := record.RecordOffset(s.File.Size())
	if offset == size {
		return true // empty log region: trivially safe
	}
	lastWasCommit := false
	for offset < size {
		rec, err := s.ReadAt(offset)
		if err != nil || rec.Size <= 0 {
			return false
		}
		lastWasCommit = rec.IsCommit()
		offset += record.RecordOffset(rec.Size)
	}
	return offset == size && lastWasCommit
}

// Begin starts a new transaction, forcing recovery first if the file tail
// is not at a commit boundary (spec §4.5 "Open checks").
func (w *WAL) Begin() (*Txn, error) {
	if w.active != nil {
		return nil, kverrors.WrapIO("walog.Begin", errAlreadyActive)
	}
	if !IsSafeToAppend(w.store) {
		if err := w.recover(w.store); err != nil {
			return nil, err
		}
	}
	txn := &Txn{wal: w, LogStart: record.RecordOffset(w.store.File.Size())}
	txn.LogEnd = txn.LogStart
	w.active = txn
	return txn, nil
}

// appendTracked appends rec and advances LogEnd, the shared tail of every
// Store/Create/Delete call below.
func (t *Txn) appendTracked(rec *record.Record) (record.RecordOffset, error) {
	off, err := t.wal.store.Append(rec)
	if err != nil {
		return 0, err
	}
	t.LogEnd = record.RecordOffset(t.wal.store.File.Size())
	return off, nil
}

// Insert performs an ADD (or compressed ADD) at loc and records the undo
// step needed to unstitch it on abort.
func (t *Txn) Insert(loc *skiplist.Location, key, value []byte, level int, recType byte) (record.RecordOffset, error) {
	off, err := t.wal.store.Insert(loc, key, value, level, 0, recType, t.appendTracked)
	if err != nil {
		return 0, err
	}
	t.undo = append(t.undo, undoStep{kind: undoInsert, offset: off, loc: loc, level: level})
	return off, nil
}

// Replace performs a REPLACE (or compressed REPLACE): structurally an
// insert at loc whose delete_pointer names the superseded record. Abort
// undoes it with its own undoReplace step, which unstitches the new
// record and restitches the superseded one.
func (t *Txn) Replace(loc *skiplist.Location, key, value []byte, level int, superseded record.RecordOffset, recType byte) (record.RecordOffset, error) {
	off, err := t.wal.store.Insert(loc, key, value, level, superseded, recType, t.appendTracked)
	if err != nil {
		return 0, err
	}
	t.undo = append(t.undo, undoStep{kind: undoReplace, offset: off, loc: loc, level: level, victim: superseded})
	return off, nil
}

// Delete appends a tombstone for victim and unstitches it, recording the
// undo step that restitches victim on abort.
func (t *Txn) Delete(loc *skiplist.Location, victim record.RecordOffset) (record.RecordOffset, error) {
	off, err := t.wal.store.Delete(loc, victim, t.appendTracked)
	if err != nil {
		return 0, err
	}
	t.undo = append(t.undo, undoStep{kind: undoDelete, offset: off, loc: loc, victim: victim})
	return off, nil
}

// CheckpointMinimum is the minimum term of ShouldCheckpoint's threshold:
// roughly twice the previous log_start plus this many bytes (spec §4.5
// step 4).
const CheckpointMinimum = 4096

// ShouldCheckpoint reports whether the post-commit log region has grown
// past the compaction threshold.
func ShouldCheckpoint(s *skiplist.Store) bool {
	logSize := int64(s.File.Size()) - int64(s.Header.LogStart)
	threshold := int64(s.Header.LogStart)*2 + CheckpointMinimum
	return logSize > threshold
}

// Commit implements spec §4.5: fsync, write the commit marker, fsync
// again. The caller (the root package) still owns releasing the
// exclusive lock and deciding whether ShouldCheckpoint warrants a
// compaction pass.
func (t *Txn) Commit() error {
	if err := t.wal.store.File.Fsync(); err != nil {
		return err
	}
	if _, err := t.appendTracked(&record.Record{Type: record.TypeCommit}); err != nil {
		return err
	}
	if err := t.wal.store.File.Fsync(); err != nil {
		return err
	}
	t.wal.active = nil
	return nil
}

// Abort implements spec §4.5: undo every recorded step in reverse order,
// then truncate the file back to LogStart. If any undo step fails, Abort
// runs full recovery itself instead of trusting a partial undo, and
// returns an error only if recovery fails too.
func (t *Txn) Abort() error {
	var combined error
	for i := len(t.undo) - 1; i >= 0; i-- {
		step := t.undo[i]
		if err := t.undoOne(step); err != nil {
			combined = multierr.Append(combined, err)
		}
	}
	if err := t.wal.store.File.Truncate(int64(t.LogStart)); err != nil {
		combined = multierr.Append(combined, err)
	}
	if err := t.wal.store.File.ExtendMapTo(t.wal.store.File.Size()); err != nil {
		combined = multierr.Append(combined, err)
	}
	t.wal.active = nil
	if combined != nil {
		if err := t.wal.recover(t.wal.store); err != nil {
			return multierr.Append(combined, err)
		}
	}
	return nil
}

func (t *Txn) undoOne(step undoStep) error {
	switch step.kind {
	case undoInsert:
		for l := step.level - 1; l >= 0; l-- {
			back := step.loc.Back[l]
			if back == record.NilOffset {
				back = t.wal.store.DummyOffset
			}
			fwd := step.loc.Forward[l]
			if err := t.wal.store.PatchForward(back, l, fwd); err != nil {
				return err
			}
		}
		return nil
	case undoDelete:
		victimRec, err := t.wal.store.ReadAt(step.victim)
		if err != nil {
			return err
		}
		for l := 0; l < victimRec.Level; l++ {
			back := step.loc.Back[l]
			if back == record.NilOffset {
				back = t.wal.store.DummyOffset
			}
			if err := t.wal.store.PatchForward(back, l, step.victim); err != nil {
				return err
			}
		}
		return nil
	case undoReplace:
		// Undoing a replace must restore the superseded record's own
		// visibility, not merely remove the new one: predecessors must
		// point back at step.victim (the old record), whose own forward
		// pointers were never touched by the replace and so are still
		// correct (spec §4.5's "key insight" — the new record inherited
		// exactly those forwards, which is why this is the mirror of
		// undoDelete, not of undoInsert).
		for l := step.level - 1; l >= 0; l-- {
			back := step.loc.Back[l]
			if back == record.NilOffset {
				back = t.wal.store.DummyOffset
			}
			if err := t.wal.store.PatchForward(back, l, step.victim); err != nil {
				return err
			}
		}
		return nil
	default:
		return errUnknownUndo
	}
}

var errAlreadyActive = simpleErr("a transaction is already active on this handle")
var errUnknownUndo = simpleErr("unknown undo step kind")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
