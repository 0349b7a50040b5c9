// Package skiplist implements spec §4.4: the persistent skip-list engine
// — Location, search, advance, insert-stitch, and delete-unstitch — laid
// out as records in a single mmapfile.File. It is the 25%-of-budget core
// component; everything else (walog, recovery, checkpoint) is built on
// top of the Store and Location types defined here.
package skiplist

import (
	"bytes"

	"github.com/arkdb/skipstore/internal/kverrors"
	"github.com/arkdb/skipstore/internal/mmapfile"
	"github.com/arkdb/skipstore/internal/record"
)

// Comparator orders two keys the way a sort.Interface Less would: negative
// if a < b, zero if equal, positive if a > b. ORDERED_BYTES (spec §6) uses
// bytes.Compare; a host may supply its own.
type Comparator func(a, b []byte) int

// ByteCompare is the default ORDERED_BYTES comparator.
func ByteCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Store binds a mapped file to the record codec version it holds and the
// comparator used to order keys. It is the shared substrate search,
// insert, delete, the WAL, recovery, and checkpoint all operate on.
type Store struct {
	File    *mmapfile.File
	Header  *record.Header
	Compare Comparator

	// DummyOffset is fixed at open time: the header size for this
	// version's format (spec §3: "immediately after the header").
	DummyOffset record.RecordOffset
}

// Legacy reports whether this store is in the v1 on-disk format.
func (s *Store) Legacy() bool { return s.Header.IsLegacy() }

// MaxLevel returns the configured level ceiling for this store's format.
func (s *Store) MaxLevel() int {
	if s.Legacy() {
		return record.MaxLevelV1
	}
	return record.MaxLevelV2
}

// ReadAt decodes the record at offset from the current mapping.
func (s *Store) ReadAt(offset record.RecordOffset) (*record.Record, error) {
	mapping := s.File.Mapping()
	if int64(offset) < 0 || int64(offset) >= int64(len(mapping)) {
		return nil, kverrors.WrapIO("skiplist.ReadAt", record.ErrShortRead)
	}
	var rec *record.Record
	var err error
	if s.Legacy() {
		rec, err = record.DecodeV1(mapping[offset:], s.MaxLevel())
	} else {
		rec, err = record.DecodeV2(mapping[offset:], s.MaxLevel())
	}
	if err != nil {
		return nil, kverrors.WrapIO("skiplist.ReadAt", err)
	}
	rec.Self = offset
	return rec, nil
}

// Append encodes rec and writes it at the current end of file, extending
// the mapping so it becomes visible, and returns its offset. The record
// is physically present but not yet reachable from the list until the
// caller stitches it in (spec §4.4 step 4).
func (s *Store) Append(rec *record.Record) (record.RecordOffset, error) {
	var buf []byte
	var err error
	if s.Legacy() {
		buf, err = record.EncodeV1(rec)
	} else {
		buf, err = record.EncodeV2(rec)
	}
	if err != nil {
		return 0, kverrors.WrapIO("skiplist.Append", err)
	}
	offset := record.RecordOffset(s.File.Size())
	if err := s.File.PositionalWrite(int64(offset), buf); err != nil {
		return 0, err
	}
	if err := s.File.ExtendMapTo(s.File.Size()); err != nil {
		return 0, err
	}
	return offset, nil
}

// PatchForward rewrites forward[level] of the record at offset in place —
// the "stitch"/"unstitch" primitive of spec §4.4. It reads the record
// first to recompute the pointer field's byte position (key/value lengths
// determine it). In v1 the rewrite touches only those 4 bytes; in v2 it
// rewrites the pointer, the pointers after it and the 4-byte crc_head that
// covers them, never the record's key/value bytes.
func (s *Store) PatchForward(offset record.RecordOffset, level int, newForward record.RecordOffset) error {
	rec, err := s.ReadAt(offset)
	if err != nil {
		return err
	}
	if level >= rec.Level {
		return kverrors.WrapInternal("skiplist.PatchForward", record.ErrLevelTooHigh)
	}
	if s.Legacy() {
		fieldOff := record.ForwardFieldOffsetV1(rec, level)
		buf := make([]byte, 4)
		putU32(buf, uint32(newForward))
		if err := s.File.PositionalWrite(int64(offset)+fieldOff, buf); err != nil {
			return err
		}
	} else {
		fieldOff := record.ForwardFieldOffsetV2(rec, level)
		rec.Forward[level] = newForward
		enc, err := record.EncodeV2(rec)
		if err != nil {
			return kverrors.WrapIO("skiplist.PatchForward", err)
		}
		headEnd := record.ForwardFieldOffsetV2(rec, rec.Level)
		if err := s.File.PositionalWrite(int64(offset)+fieldOff, enc[fieldOff:headEnd+4]); err != nil {
			return err
		}
	}
	return s.File.ExtendMapTo(s.File.Size())
}

// WriteHeader rewrites the file header atomically (positional write to
// offset 0, then the caller fsyncs per spec §3's invariant).
func (s *Store) WriteHeader() error {
	var buf []byte
	if s.Legacy() {
		buf = s.Header.EncodeV1()
	} else {
		buf = s.Header.EncodeV2()
	}
	if err := s.File.PositionalWrite(0, buf); err != nil {
		return err
	}
	return s.File.ExtendMapTo(s.File.Size())
}

// Create initializes a brand-new store file: header, then a single DUMMY
// record at DummyOffset with all forwards zeroed (spec §3 "the first live
// record is a single DUMMY... its forward pointers encode the list").
func Create(path string, legacy bool, compare Comparator) (*Store, error) {
	f, err := mmapfile.Open(path, true)
	if err != nil {
		return nil, err
	}
	maxLevel := record.MaxLevelV2
	if legacy {
		maxLevel = record.MaxLevelV1
	}
	hdr := &record.Header{MaxLevel: maxLevel}
	if legacy {
		hdr.VersionMajor = 1
	} else {
		hdr.VersionMajor = 2
	}
	s := &Store{File: f, Header: hdr, Compare: compare, DummyOffset: record.RecordOffset(hdr.HeaderSize())}

	if err := s.WriteHeader(); err != nil {
		f.Close()
		return nil, err
	}
	dummy := &record.Record{
		Type:    record.TypeDummy,
		Level:   maxLevel,
		Forward: make([]record.RecordOffset, maxLevel),
	}
	if _, err := s.Append(dummy); err != nil {
		f.Close()
		return nil, err
	}
	hdr.LogStart = record.RecordOffset(f.Size())
	if err := s.WriteHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Fsync(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Open reads an existing store file's header (trying v2 then v1) and
// returns a Store positioned at the existing DUMMY. It performs no
// recovery — callers (the root package) decide when recovery runs.
func Open(path string, compare Comparator) (*Store, error) {
	f, err := mmapfile.Open(path, false)
	if err != nil {
		return nil, err
	}
	mapping := f.Mapping()
	hdr, err := record.DecodeHeaderV2(mapping)
	if err != nil {
		hdr, err = record.DecodeHeaderV1(mapping)
		if err != nil {
			f.Close()
			return nil, kverrors.WrapIO("skiplist.Open", err)
		}
	}
	return &Store{
		File:        f,
		Header:      hdr,
		Compare:     compare,
		DummyOffset: record.RecordOffset(hdr.HeaderSize()),
	}, nil
}

func putU32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func putU64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}
