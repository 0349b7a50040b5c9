package record

import "encoding/binary"

// v1 type words. Legacy INORDER (records present at last checkpoint) and
// ADD both decode to TypeAdd per spec §4.3's mapping table; DUMMY, DELETE,
// and COMMIT map straight across.
const (
	v1TypeDummy   uint32 = 1
	v1TypeAdd     uint32 = 2
	v1TypeInorder uint32 = 3
	v1TypeDelete  uint32 = 4
	v1TypeCommit  uint32 = 5
)

// EncodeV1 serialises rec in the legacy 4-byte-aligned format. The store
// only writes v1 when asked to create a file in the legacy flavor;
// checkpoint keeps whatever format the source file already uses (spec §6).
func EncodeV1(rec *Record) ([]byte, error) {
	buf := make([]byte, 0, 32)

	switch rec.Type {
	case TypeCommit:
		return binary.LittleEndian.AppendUint32(buf, v1TypeCommit), nil
	case TypeDelete:
		buf = binary.LittleEndian.AppendUint32(buf, v1TypeDelete)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(rec.DeletePointer))
		return buf, nil
	case TypeDummy:
		buf = binary.LittleEndian.AppendUint32(buf, v1TypeDummy)
	case TypeAdd, TypeAddCompressed, TypeReplace, TypeReplaceCompressed:
		buf = binary.LittleEndian.AppendUint32(buf, v1TypeAdd)
	default:
		return nil, ErrUnknownType
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.Key)))
	buf = append(buf, rec.Key...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	if rec.HasValue() {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.Value)))
		buf = append(buf, rec.Value...)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
	}
	for i := 0; i < rec.Level; i++ {
		var fp RecordOffset
		if i < len(rec.Forward) {
			fp = rec.Forward[i]
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(fp))
	}
	buf = binary.LittleEndian.AppendUint32(buf, v1Sentinel)
	return buf, nil
}

// ForwardFieldOffsetV1 returns the byte offset, relative to the record's
// start, of forward[level] in the legacy encoding.
func ForwardFieldOffsetV1(rec *Record, level int) int64 {
	off := int64(4 + 4 + align4(int(rec.KeyLen)))
	if rec.HasValue() {
		off += int64(4 + align4(int(rec.ValLen)))
	}
	off += 4 * int64(level)
	return off
}

// DecodeV1 decodes one legacy record. maxLevel is MaxLevelV1 for a v1 file.
func DecodeV1(data []byte, maxLevel int) (*Record, error) {
	if len(data) < 4 {
		return nil, ErrShortRead
	}
	typeWord := binary.LittleEndian.Uint32(data[0:4])
	rec := &Record{}
	off := 4

	switch typeWord {
	case v1TypeCommit:
		rec.Type = TypeCommit
		rec.Size = 4
		return rec, nil
	case v1TypeDelete:
		if len(data) < off+4 {
			return nil, ErrShortRead
		}
		rec.Type = TypeDelete
		rec.DeletePointer = RecordOffset(binary.LittleEndian.Uint32(data[off : off+4]))
		rec.Size = off + 4
		return rec, nil
	case v1TypeDummy:
		rec.Type = TypeDummy
	case v1TypeAdd, v1TypeInorder:
		rec.Type = TypeAdd
	default:
		return nil, ErrUnknownType
	}

	if len(data) < off+4 {
		return nil, ErrShortRead
	}
	keylen := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	if uint64(keylen) > uint64(len(data)) {
		return nil, ErrLengthOverflow
	}
	if len(data) < off+int(keylen) {
		return nil, ErrShortRead
	}
	rec.Key = append([]byte(nil), data[off:off+int(keylen)]...)
	off += align4(int(keylen))
	rec.KeyLen = uint64(keylen)

	if rec.Type == TypeDummy {
		// DUMMY carries no value; nothing to skip.
	} else {
		if len(data) < off+4 {
			return nil, ErrShortRead
		}
		vallen := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		if uint64(vallen) > uint64(len(data)) {
			return nil, ErrLengthOverflow
		}
		if len(data) < off+int(vallen) {
			return nil, ErrShortRead
		}
		rec.Value = append([]byte(nil), data[off:off+int(vallen)]...)
		off += align4(int(vallen))
		rec.ValLen = uint64(vallen)
		rec.Type = TypeAdd
	}

	forward := make([]RecordOffset, 0, maxLevel)
	for {
		if len(data) < off+4 {
			return nil, ErrShortRead
		}
		word := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		if word == v1Sentinel {
			break
		}
		if len(forward) >= maxLevel {
			return nil, ErrLevelTooHigh
		}
		forward = append(forward, RecordOffset(word))
	}
	rec.Level = len(forward)
	rec.Forward = forward
	if rec.Level > maxLevel {
		return nil, ErrLevelTooHigh
	}
	rec.Size = off
	return rec, nil
}
