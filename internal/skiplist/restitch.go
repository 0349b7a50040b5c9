package skiplist

import "github.com/arkdb/skipstore/internal/record"

// ZeroForwards overwrites every forward pointer of the record at offset
// with NilOffset. Recovery's forward pass (spec §4.6) uses this to erase
// any pointer state left dangling by a crash before re-deriving it.
func (s *Store) ZeroForwards(offset record.RecordOffset, level int) error {
	for l := 0; l < level; l++ {
		if err := s.PatchForward(offset, l, record.NilOffset); err != nil {
			return err
		}
	}
	return nil
}

// RestitchInsert re-derives the forward pointers of a record that is
// already physically present at offset (recovery's log replay) rather
// than appending a new one: the record's own
// forwards become loc.Forward, and each predecessor's forward[level] is
// patched to point at offset. This is Insert's stitch half without the
// append half.
func (s *Store) RestitchInsert(loc *Location, offset record.RecordOffset, level int) error {
	for l := 0; l < level; l++ {
		if err := s.PatchForward(offset, l, loc.Forward[l]); err != nil {
			return err
		}
		back := loc.Back[l]
		if back == record.NilOffset {
			back = s.DummyOffset
		}
		if err := s.PatchForward(back, l, offset); err != nil {
			return err
		}
	}
	return nil
}

// RestitchDelete re-derives the unstitch of victim during recovery replay:
// each predecessor's forward[level] is patched to skip past victim to
// victim's own (already correct) forward pointer.
func (s *Store) RestitchDelete(loc *Location, victim record.RecordOffset, level int) error {
	victimRec, err := s.ReadAt(victim)
	if err != nil {
		return err
	}
	for l := level - 1; l >= 0; l-- {
		back := loc.Back[l]
		if back == record.NilOffset {
			back = s.DummyOffset
		}
		next := record.NilOffset
		if l < len(victimRec.Forward) {
			next = victimRec.Forward[l]
		}
		if err := s.PatchForward(back, l, next); err != nil {
			return err
		}
	}
	return nil
}

// TailCursor is the incrementally-maintained Location used by both
// recovery's Phase A (spec §4.6) and checkpoint's compaction pass (spec
// §4.7): when records are processed in strictly increasing key order,
// every stitch touches only the current tail at each level, so a full
// Find is unnecessary and the whole pass is O(n).
type TailCursor struct {
	back []record.RecordOffset
}

// NewTailCursor seeds every level's predecessor at dummy, the state
// before any record has been appended.
func NewTailCursor(maxLevel int, dummy record.RecordOffset) *TailCursor {
	back := make([]record.RecordOffset, maxLevel)
	for i := range back {
		back[i] = dummy
	}
	return &TailCursor{back: back}
}

// Stitch links offset in at every level below its height and advances the
// cursor's back-pointers to offset at those levels.
func (c *TailCursor) Stitch(s *Store, offset record.RecordOffset, level int) error {
	for l := 0; l < level; l++ {
		if err := s.PatchForward(c.back[l], l, offset); err != nil {
			return err
		}
		c.back[l] = offset
	}
	return nil
}
