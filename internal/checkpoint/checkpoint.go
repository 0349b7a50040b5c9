// Package checkpoint implements compaction: rewriting a store's live
// record set into a sibling ".NEW" file, followed by an atomic rename over
// the original. It applies the same idea a pager's own checkpoint pass
// would (reclaim dead bytes, keep the live set) rebuilt around a sorted
// skip-list scan instead of a page free-list walk.
package checkpoint

import (
	"time"

	"github.com/natefinch/atomic"

	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/record"
	"github.com/arkdb/skipstore/internal/skiplist"
)

// Run performs the full compaction algorithm of spec §4.7 against an
// already exclusively-locked store and returns the Store that now backs
// path. Run checks the source's consistency first and the destination's
// before the rename, and closes the old store's file itself; callers adopt
// the returned store, then release the lock.
func Run(s *skiplist.Store) (*skiplist.Store, error) {
	if err := s.CheckConsistency(); err != nil {
		return nil, err
	}
	newPath := s.File.Path() + ".NEW"

	dst, err := skiplist.Create(newPath, s.Legacy(), s.Compare)
	if err != nil {
		return nil, err
	}

	count, err := copyLiveRecords(s, dst)
	if err != nil {
		dst.File.Close()
		return nil, err
	}

	dst.Header.NumRecords = count
	dst.Header.LastRecoveryTS = time.Now().Unix()
	dst.Header.LogStart = record.RecordOffset(dst.File.Size())
	if err := dst.WriteHeader(); err != nil {
		dst.File.Close()
		return nil, err
	}
	if _, err := dst.Append(&record.Record{Type: record.TypeCommit}); err != nil {
		dst.File.Close()
		return nil, err
	}
	if err := dst.File.Fsync(); err != nil {
		dst.File.Close()
		return nil, err
	}

	if err := dst.CheckConsistency(); err != nil {
		dst.File.Close()
		return nil, err
	}

	originalPath := s.File.Path()
	if err := atomic.ReplaceFile(newPath, originalPath); err != nil {
		dst.File.Close()
		return nil, kverrors.WrapIO("checkpoint.Run", err)
	}

	if err := s.File.Close(); err != nil {
		dst.File.Close()
		return nil, err
	}

	if err := dst.File.Close(); err != nil {
		return nil, err
	}
	return skiplist.Open(originalPath, s.Compare)
}

// copyLiveRecords walks the source's level-0 chain — already sorted by key
// — and re-encodes each live record as a fresh ADD (or compressed ADD) at
// the destination, stitched in with a TailCursor (spec §4.7 step 3: "the
// destination sees only monotonically growing back_pointers").
func copyLiveRecords(src, dst *skiplist.Store) (uint64, error) {
	cursor := skiplist.NewTailCursor(dst.Header.MaxLevel, dst.DummyOffset)
	var count uint64

	cur := src.DummyOffset
	for {
		rec, err := src.Advance(cur)
		if err != nil {
			return 0, err
		}
		if rec.Self == src.DummyOffset {
			return count, nil
		}

		recType := record.TypeAdd
		if rec.Compressed {
			recType = record.TypeAddCompressed
		}
		fresh := &record.Record{
			Type:       recType,
			Level:      rec.Level,
			KeyLen:     rec.KeyLen,
			ValLen:     rec.ValLen,
			Forward:    make([]record.RecordOffset, rec.Level),
			Key:        rec.Key,
			Value:      rec.Value,
			Compressed: rec.Compressed,
		}
		offset, err := dst.Append(fresh)
		if err != nil {
			return 0, err
		}
		if err := cursor.Stitch(dst, offset, rec.Level); err != nil {
			return 0, err
		}
		count++
		cur = rec.Self
	}
}
