// Package recovery implements the forward-only deterministic recovery
// pass that runs whenever walog.IsSafeToAppend finds the file tail is not
// at a valid commit boundary. It never reads backwards and never consults
// anything the file doesn't already contain — a "replay forward, trust
// nothing you haven't re-derived" posture, generalized from fixed-size
// pages to variable-length skip-list records.
package recovery

import (
	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/record"
	"github.com/arkdb/skipstore/internal/skiplist"
)

// Recover implements the two-phase replay described in spec §4.6. Its
// signature matches walog.RecoverFunc exactly so the root package can wire
// it in as walog.New(store, recovery.Recover) without an import cycle.
func Recover(s *skiplist.Store) error {
	dummy, err := s.ReadAt(s.DummyOffset)
	if err != nil {
		return err
	}
	if err := s.ZeroForwards(s.DummyOffset, dummy.Level); err != nil {
		return err
	}

	tailOffset, liveCount, err := replayInOrderRegion(s, dummy)
	if err != nil {
		return err
	}

	newLogStart, newEnd, logCount, err := replayLogRegion(s, tailOffset)
	if err != nil {
		return err
	}

	if record.RecordOffset(s.File.Size()) != newEnd {
		if err := s.File.Truncate(int64(newEnd)); err != nil {
			return err
		}
		if err := s.File.ExtendMapTo(s.File.Size()); err != nil {
			return err
		}
	}

	s.Header.LogStart = newLogStart
	s.Header.NumRecords = liveCount + logCount
	if err := s.WriteHeader(); err != nil {
		return err
	}
	return s.File.Fsync()
}

// replayInOrderRegion implements spec §4.6 Phase A: the contiguous region
// from just past the dummy up to the header's log_start was written in
// strict key order by the previous checkpoint (or by initialization), so a
// TailCursor restitches it in a single O(n) forward pass with no Find
// calls at all.
//
// Trusting header.LogStart here is safe even across a crash: a checkpoint
// writes and fsyncs its rewritten header only after its destination file
// is fully built, checks the destination before renaming it, and the
// rename that publishes it is the atomic swap point (spec §4.7) — so
// whatever file recovery opens always has a
// log_start consistent with its own in-order region, never a stale one
// left by an interrupted checkpoint attempt.
func replayInOrderRegion(s *skiplist.Store, dummy *record.Record) (record.RecordOffset, uint64, error) {
	cursor := skiplist.NewTailCursor(s.Header.MaxLevel, s.DummyOffset)
	offset := s.DummyOffset + record.RecordOffset(dummy.Size)
	logStart := s.Header.LogStart
	var count uint64

	for offset < logStart {
		rec, err := s.ReadAt(offset)
		if err != nil {
			return 0, 0, err
		}
		if err := s.ZeroForwards(offset, rec.Level); err != nil {
			return 0, 0, err
		}
		if err := cursor.Stitch(s, offset, rec.Level); err != nil {
			return 0, 0, err
		}
		count++
		offset += record.RecordOffset(rec.Size)
	}
	return offset, count, nil
}

// replayLogRegion implements spec §4.6 Phase B: scan forward from
// tailOffset in commit-marker-delimited batches, applying each fully
// committed batch's records via real Find-based restitching (the WAL
// region is not sorted by key, so the cheap TailCursor from phase A cannot
// be reused here). A trailing batch with no closing commit marker is
// uncommitted and is truncated off rather than applied.
func replayLogRegion(s *skiplist.Store, tailOffset record.RecordOffset) (logStart, newEnd record.RecordOffset, count uint64, err error) {
	fileSize := record.RecordOffset(s.File.Size())
	pos := tailOffset

	for pos < fileSize {
		batchStart := pos
		var batch []*record.Record
		cursor := pos
		foundCommit := false

		for cursor < fileSize {
			rec, rerr := s.ReadAt(cursor)
			if rerr != nil {
				break
			}
			cursor += record.RecordOffset(rec.Size)
			if rec.IsCommit() {
				foundCommit = true
				break
			}
			batch = append(batch, rec)
		}

		if !foundCommit {
			return tailOffset, batchStart, count, nil
		}

		for _, rec := range batch {
			if err := applyLogRecord(s, rec); err != nil {
				return 0, 0, 0, err
			}
			if !rec.IsDelete() {
				count++
			} else {
				count--
			}
		}
		pos = cursor
	}
	return tailOffset, pos, count, nil
}

// applyLogRecord restitches a single already-physically-present log record
// into the list, the way internal/walog's Txn.Insert/Replace/Delete do
// during normal operation but via Find + Restitch rather than Find +
// append-and-stitch (the bytes are already on disk; only the pointers are
// missing).
func applyLogRecord(s *skiplist.Store, rec *record.Record) error {
	switch {
	case rec.Type == record.TypeAdd || rec.Type == record.TypeAddCompressed:
		loc, err := s.Find(rec.Key)
		if err != nil {
			return err
		}
		return s.RestitchInsert(loc, rec.Self, rec.Level)

	case rec.Type == record.TypeReplace || rec.Type == record.TypeReplaceCompressed:
		loc, err := s.Find(rec.Key)
		if err != nil {
			return err
		}
		if !loc.Exact || loc.Forward[0] != rec.DeletePointer {
			return kverrors.WrapInternal("recovery: replace delete_pointer mismatch", record.ErrUnknownType)
		}
		replaceLoc, _, err := s.ReplaceLocation(loc, rec.DeletePointer)
		if err != nil {
			return err
		}
		return s.RestitchInsert(replaceLoc, rec.Self, rec.Level)

	case rec.IsDelete():
		victim, err := s.ReadAt(rec.DeletePointer)
		if err != nil {
			return err
		}
		loc, err := s.Find(victim.Key)
		if err != nil {
			return err
		}
		if !loc.Exact || loc.Forward[0] != rec.DeletePointer {
			return kverrors.WrapInternal("recovery: delete pointer mismatch", record.ErrUnknownType)
		}
		return s.RestitchDelete(loc, rec.DeletePointer, victim.Level)

	default:
		return kverrors.WrapInternal("recovery: unexpected record type in log region", record.ErrUnknownType)
	}
}
