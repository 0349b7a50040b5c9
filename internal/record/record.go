// Package record implements the on-disk physical record codec described in
// spec §4.3: the current (v2) 64-bit-offset, CRC-checked format and the
// legacy (v1) 32-bit-offset format it must still read.
//
// The package never touches a file descriptor directly — it encodes to and
// decodes from byte slices, the same way a typed page struct turns a fixed
// buffer into typed fields with encoding/binary. Callers (internal/mmapfile,
// internal/skiplist) own the bytes; this package only owns their shape.
package record

import "fmt"

// RecordOffset is a byte offset into the store's file. It is a distinct
// type from plain int64 so that lengths and offsets cannot be confused at
// a call site — the same motivation spec §9 gives for a typed offset.
type RecordOffset int64

// NilOffset is the "end of list" / "no such record" sentinel. It can never
// be a valid record offset because offset 0 always holds the file header.
const NilOffset RecordOffset = 0

// Type bit flags. The on-disk type byte IS this bitmask, not a separate
// enum — see spec §4.3's taxonomy table.
const (
	FlagHasLevel    byte = 1 << 0
	FlagHasValue    byte = 1 << 1
	FlagHasDelete   byte = 1 << 2
	FlagHasCompress byte = 1 << 3
)

// Named combinations from the taxonomy table.
const (
	TypeCommit           byte = 0
	TypeDummy            byte = FlagHasLevel
	TypeAdd              byte = FlagHasLevel | FlagHasValue
	TypeReplace          byte = FlagHasLevel | FlagHasValue | FlagHasDelete
	TypeDelete           byte = FlagHasDelete
	TypeAddCompressed    byte = TypeAdd | FlagHasCompress
	TypeReplaceCompressed byte = TypeReplace | FlagHasCompress
)

// MaxLevel ceilings per format version (spec §3 File Header invariants).
const (
	MaxLevelV1 = 20
	MaxLevelV2 = 24
)

// keylenEscape/vallenEscape are the v2 inline-field saturation sentinels
// that signal a following 64-bit extension word (spec §4.3).
const (
	keylenEscape uint16 = 0xFFFF
	vallenEscape uint32 = 0xFFFFFFFF
)

// v1Sentinel terminates a legacy forward-pointer list.
const v1Sentinel uint32 = 0xFFFFFFFF

// Record is the in-memory, version-independent view of one physical
// record. Both codecs decode into this shape and encode from it.
type Record struct {
	Type          byte
	Level         int
	KeyLen        uint64
	ValLen        uint64
	DeletePointer RecordOffset
	Forward       []RecordOffset // len == Level
	CRCHead       uint32         // v2 only; zero for v1
	CRCTail       uint32         // v2 only; zero for v1
	Key           []byte
	Value         []byte
	Compressed    bool

	// Self describes the record's own offset, filled in by the reader for
	// convenience; codecs never read it, only set it.
	Self RecordOffset
	// Size is the total encoded length including padding, filled in by the
	// decoder so callers know where the next record begins.
	Size int
}

// IsKeyed reports whether the record carries a comparable key (ADD, REPLACE,
// or DUMMY — DUMMY's key is always empty and sorts first).
func (r *Record) IsKeyed() bool {
	return r.Type&FlagHasLevel != 0
}

// HasValue reports whether the record carries value bytes.
func (r *Record) HasValue() bool {
	return r.Type&FlagHasValue != 0
}

// HasDeletePointer reports whether the record carries a delete_pointer
// field (REPLACE and DELETE).
func (r *Record) HasDeletePointer() bool {
	return r.Type&FlagHasDelete != 0
}

// IsDelete reports whether the record is a pure tombstone (DELETE, not
// REPLACE — REPLACE also has HasDelete set but additionally carries a
// value and a level).
func (r *Record) IsDelete() bool {
	return r.Type == TypeDelete
}

// IsCommit reports the commit marker sentinel.
func (r *Record) IsCommit() bool {
	return r.Type == TypeCommit
}

// Decode error kinds. Every one of these is fatal to the current operation
// per spec §4.3 and escalates to kverrors.IoError at the call site.
var (
	ErrShortRead    = fmt.Errorf("record: short read past end of mapping")
	ErrBadMagic     = fmt.Errorf("record: bad header magic")
	ErrCRCMismatch  = fmt.Errorf("record: crc mismatch")
	ErrUnknownType  = fmt.Errorf("record: unknown record type")
	ErrLevelTooHigh = fmt.Errorf("record: level exceeds configured max_level")
	ErrLengthOverflow = fmt.Errorf("record: key/value length overflows file")
)

// align8 rounds n up to the next multiple of 8 (v2 alignment).
func align8(n int) int { return (n + 7) &^ 7 }

// align4 rounds n up to the next multiple of 4 (v1 alignment).
func align4(n int) int { return (n + 3) &^ 3 }
