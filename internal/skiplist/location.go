package skiplist

import "github.com/arkdb/skipstore/internal/record"

// Location is the in-memory description of a slot in the list (spec §3
// "Location"): the record under the cursor, whether it's an exact key
// match, and the forward/back pointers an insert or delete would rewrite.
type Location struct {
	Key        []byte
	Exact      bool
	Cur        *record.Record // record currently under the cursor, if any
	Forward    []record.RecordOffset
	Back       []record.RecordOffset
}

// Find implements spec §4.4 "find_location": walk down from the highest
// level, advancing while the next key is strictly less than target,
// recording the back and forward pointer at each level independently —
// two levels sharing the same predecessor (loc.Back[l] == loc.Back[l+1])
// does not imply they share the same successor, since the predecessor's
// own Forward[l] and Forward[l+1] are distinct fields that can point
// anywhere.
func (s *Store) Find(key []byte) (*Location, error) {
	maxLevel := s.Header.MaxLevel
	loc := &Location{
		Key:     key,
		Forward: make([]record.RecordOffset, maxLevel),
		Back:    make([]record.RecordOffset, maxLevel),
	}

	dummy, err := s.ReadAt(s.DummyOffset)
	if err != nil {
		return nil, err
	}

	cur := dummy
	curOffset := s.DummyOffset
	for l := 0; l < maxLevel; l++ {
		loc.Back[l] = curOffset
	}

	for level := maxLevel - 1; level >= 0; level-- {
		for {
			if level >= len(cur.Forward) {
				break
			}
			next := cur.Forward[level]
			if next == record.NilOffset {
				break
			}
			nextRec, err := s.ReadAt(next)
			if err != nil {
				return nil, err
			}
			cmp := s.Compare(nextRec.Key, key)
			if cmp < 0 {
				cur = nextRec
				curOffset = next
				continue
			}
			if cmp == 0 {
				loc.Exact = true
			}
			break
		}
		loc.Back[level] = curOffset
		if level < len(cur.Forward) {
			loc.Forward[level] = cur.Forward[level]
		} else {
			loc.Forward[level] = record.NilOffset
		}
	}

	loc.Cur = cur
	return loc, nil
}

// ReplaceLocation derives the Location a REPLACE record stitches into,
// given the generic search Location for its key and the offset of the
// record it supersedes. The replacement reuses the superseded record's
// height rather than drawing an independent one (DESIGN.md Open Question):
// spec §4.5's "key insight" is that the new record's own forwards become
// the superseded record's former forwards, which only lines up cleanly
// when both records have the same height, so ReplaceLocation copies
// oldRec.Forward directly instead of merging two different-height forward
// arrays.
func (s *Store) ReplaceLocation(loc *Location, oldOffset record.RecordOffset) (*Location, *record.Record, error) {
	oldRec, err := s.ReadAt(oldOffset)
	if err != nil {
		return nil, nil, err
	}
	rl := &Location{
		Key:     loc.Key,
		Exact:   true,
		Back:    append([]record.RecordOffset(nil), loc.Back[:oldRec.Level]...),
		Forward: append([]record.RecordOffset(nil), oldRec.Forward...),
	}
	return rl, oldRec, nil
}

// Advance follows forward[0] from the record at offset, wrapping to the
// dummy (which terminates a scan) when the list ends. It is the single
// step primitive foreach and fetch_next build on.
func (s *Store) Advance(offset record.RecordOffset) (*record.Record, error) {
	rec, err := s.ReadAt(offset)
	if err != nil {
		return nil, err
	}
	if len(rec.Forward) == 0 || rec.Forward[0] == record.NilOffset {
		return s.ReadAt(s.DummyOffset)
	}
	return s.ReadAt(rec.Forward[0])
}
