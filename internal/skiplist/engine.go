package skiplist

import (
	"math/rand"

	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/record"
)

// RandomLevel draws a record height by repeated coin flips at p=0.5,
// capped at maxLevel (spec §4.4).
func RandomLevel(maxLevel int) int {
	level := 1
	for level < maxLevel && rand.Float64() < 0.5 {
		level++
	}
	return level
}

// Insert implements spec §4.4 "Insert (ADD)": append the record (making it
// physically present), then stitch bottom-up so that a crash between any
// two stitches still leaves a valid skip list at every level.
//
// appendFn lets the caller control exactly how the bytes reach the file —
// a WAL append (internal/walog) during normal operation, or a direct
// Store.Append as the tests use. Recovery and checkpoint do not call
// Insert; they stitch with RestitchInsert and TailCursor.
func (s *Store) Insert(loc *Location, key, value []byte, level int, deletePtr record.RecordOffset, recType byte, appendFn func(*record.Record) (record.RecordOffset, error)) (record.RecordOffset, error) {
	forward := make([]record.RecordOffset, level)
	copy(forward, loc.Forward)

	rec := &record.Record{
		Type:          recType,
		Level:         level,
		KeyLen:        uint64(len(key)),
		ValLen:        uint64(len(value)),
		DeletePointer: deletePtr,
		Forward:       forward,
		Key:           key,
		Value:         value,
		Compressed:    recType&record.FlagHasCompress != 0,
	}

	offset, err := appendFn(rec)
	if err != nil {
		return 0, err
	}

	for l := 0; l < level; l++ {
		back := loc.Back[l]
		if back == record.NilOffset {
			back = s.DummyOffset
		}
		if err := s.PatchForward(back, l, offset); err != nil {
			return 0, err
		}
	}
	return offset, nil
}

// Delete implements spec §4.4 "Delete": append a DELETE tombstone whose
// delete_pointer names the victim, then unstitch top-down so the list
// remains valid when walked bottom-up at every moment of the unstitch.
func (s *Store) Delete(loc *Location, victim record.RecordOffset, appendFn func(*record.Record) (record.RecordOffset, error)) (record.RecordOffset, error) {
	rec := &record.Record{
		Type:          record.TypeDelete,
		DeletePointer: victim,
	}
	tombOffset, err := appendFn(rec)
	if err != nil {
		return 0, err
	}

	victimRec, err := s.ReadAt(victim)
	if err != nil {
		return 0, err
	}

	for l := victimRec.Level - 1; l >= 0; l-- {
		back := loc.Back[l]
		if back == record.NilOffset {
			back = s.DummyOffset
		}
		next := record.NilOffset
		if l < len(victimRec.Forward) {
			next = victimRec.Forward[l]
		}
		if err := s.PatchForward(back, l, next); err != nil {
			return 0, err
		}
	}
	return tombOffset, nil
}

// CheckConsistency implements spec §4.8: for every live record X and every
// level it carries, X.forward[L] must point to a record of level ≥ L+1
// whose key strictly exceeds X's. Tests call it directly, and checkpoint
// runs it on the source before compaction and on the destination before
// the rename.
func (s *Store) CheckConsistency() error {
	cur, err := s.ReadAt(s.DummyOffset)
	if err != nil {
		return err
	}
	for {
		for level, next := range cur.Forward {
			if next == record.NilOffset {
				continue
			}
			nextRec, err := s.ReadAt(next)
			if err != nil {
				return err
			}
			if nextRec.Level < level+1 {
				return kverrors.WrapInternal("skiplist.CheckConsistency", errLevelViolation)
			}
			// The dummy's key is always empty and sorts before every real
			// key, so comparing unconditionally here also covers it.
			if s.Compare(nextRec.Key, cur.Key) <= 0 {
				return kverrors.WrapInternal("skiplist.CheckConsistency", errOrderViolation)
			}
		}
		if len(cur.Forward) == 0 || cur.Forward[0] == record.NilOffset {
			return nil
		}
		cur, err = s.ReadAt(cur.Forward[0])
		if err != nil {
			return err
		}
	}
}

var errLevelViolation = simpleErr("forward pointer targets a record below the required level")
var errOrderViolation = simpleErr("forward pointer violates key ordering")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
