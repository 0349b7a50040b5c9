package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/arkdb/skipstore/internal/record"
	"github.com/arkdb/skipstore/internal/skiplist"
)

func newPopulatedStore(t *testing.T, keys ...string) (*skiplist.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ckpt.skip")
	s, err := skiplist.Create(path, false, skiplist.ByteCompare)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { s.File.Close() })

	for i, k := range keys {
		loc, err := s.Find([]byte(k))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		level := skiplist.RandomLevel(s.Header.MaxLevel)
		if _, err := s.Insert(loc, []byte(k), []byte{byte(i)}, level, 0, record.TypeAdd, s.Append); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return s, path
}

func collectKeys(t *testing.T, s *skiplist.Store) []string {
	t.Helper()
	var keys []string
	cur := s.DummyOffset
	for {
		rec, err := s.Advance(cur)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if rec.Self == s.DummyOffset {
			return keys
		}
		keys = append(keys, string(rec.Key))
		cur = rec.Self
	}
}

func TestCheckpointPreservesLiveKeysInOrder(t *testing.T) {
	s, path := newPopulatedStore(t, "d", "b", "a", "c")

	dst, err := Run(s)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	t.Cleanup(func() { dst.File.Close() })

	if dst.File.Path() != path {
		t.Fatalf("expected the rename to land on %s, got %s", path, dst.File.Path())
	}

	got := collectKeys(t, dst)
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if err := dst.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
	if dst.Header.NumRecords != uint64(len(want)) {
		t.Fatalf("expected num_records %d, got %d", len(want), dst.Header.NumRecords)
	}
	marker, err := dst.ReadAt(dst.Header.LogStart)
	if err != nil || !marker.IsCommit() || dst.Header.LogStart+record.RecordOffset(marker.Size) != record.RecordOffset(dst.File.Size()) {
		t.Fatalf("expected log_start to point at the commit marker that ends the file")
	}
}

func TestCheckpointOnEmptyStore(t *testing.T) {
	s, _ := newPopulatedStore(t)

	dst, err := Run(s)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	t.Cleanup(func() { dst.File.Close() })

	if got := collectKeys(t, dst); len(got) != 0 {
		t.Fatalf("expected no keys, got %v", got)
	}
	if err := dst.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}
