package record

import (
	"encoding/binary"
	"hash/crc32"
)

// EncodeV2 serialises rec in the current, 8-byte-aligned, CRC-checked
// format described in spec §4.3. It does not compress the value — callers
// (internal/skiplist) decide compression and set rec.Compressed/rec.Type
// before calling this.
func EncodeV2(rec *Record) ([]byte, error) {
	if rec.Type == TypeCommit {
		return make([]byte, 8), nil
	}
	head := make([]byte, 0, 32)
	head = append(head, rec.Type, byte(rec.Level))

	keylen := rec.KeyLen
	vallen := rec.ValLen

	if keylen >= uint64(keylenEscape) {
		head = binary.LittleEndian.AppendUint16(head, keylenEscape)
	} else {
		head = binary.LittleEndian.AppendUint16(head, uint16(keylen))
	}
	if vallen >= uint64(vallenEscape) {
		head = binary.LittleEndian.AppendUint32(head, vallenEscape)
	} else {
		head = binary.LittleEndian.AppendUint32(head, uint32(vallen))
	}
	if keylen >= uint64(keylenEscape) {
		head = binary.LittleEndian.AppendUint64(head, keylen)
	}
	if vallen >= uint64(vallenEscape) {
		head = binary.LittleEndian.AppendUint64(head, vallen)
	}
	if rec.HasDeletePointer() {
		head = binary.LittleEndian.AppendUint64(head, uint64(rec.DeletePointer))
	}
	for i := 0; i < rec.Level; i++ {
		var fp RecordOffset
		if i < len(rec.Forward) {
			fp = rec.Forward[i]
		}
		head = binary.LittleEndian.AppendUint64(head, uint64(fp))
	}

	crcHead := crc32.ChecksumIEEE(head)

	tail := make([]byte, 0, len(rec.Key)+len(rec.Value)+8)
	tail = append(tail, rec.Key...)
	tail = append(tail, rec.Value...)
	for len(tail)%8 != 0 {
		tail = append(tail, 0)
	}
	crcTail := crc32.ChecksumIEEE(tail)

	out := make([]byte, 0, len(head)+8+len(tail))
	out = append(out, head...)
	out = binary.LittleEndian.AppendUint32(out, crcHead)
	out = binary.LittleEndian.AppendUint32(out, crcTail)
	out = append(out, tail...)

	return out, nil
}

// DecodeV2 decodes one record starting at data[0]. maxLevel bounds the
// accepted level (spec: "level exceeding max_level" is a hard decode
// error). The returned Record.Size is the total encoded length so the
// caller can advance to the next record.
func DecodeV2(data []byte, maxLevel int) (*Record, error) {
	if len(data) < 8 {
		return nil, ErrShortRead
	}
	rec := &Record{}
	rec.Type = data[0]
	rec.Level = int(data[1])

	if rec.Type == TypeCommit {
		rec.Size = 8
		return rec, nil
	}
	if rec.Level > maxLevel {
		return nil, ErrLevelTooHigh
	}
	switch rec.Type {
	case TypeDummy, TypeAdd, TypeReplace, TypeDelete, TypeAddCompressed, TypeReplaceCompressed:
	default:
		return nil, ErrUnknownType
	}
	rec.Compressed = rec.Type&FlagHasCompress != 0

	off := 2
	rawKeylen := binary.LittleEndian.Uint16(data[off : off+2])
	off += 2
	rawVallen := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4

	var keylen uint64 = uint64(rawKeylen)
	var vallen uint64 = uint64(rawVallen)

	if rawKeylen == keylenEscape {
		if len(data) < off+8 {
			return nil, ErrShortRead
		}
		keylen = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}
	if rawVallen == vallenEscape {
		if len(data) < off+8 {
			return nil, ErrShortRead
		}
		vallen = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}
	if keylen > uint64(len(data)) || vallen > uint64(len(data)) {
		return nil, ErrLengthOverflow
	}
	rec.KeyLen = keylen
	rec.ValLen = vallen

	if rec.HasDeletePointer() {
		if len(data) < off+8 {
			return nil, ErrShortRead
		}
		rec.DeletePointer = RecordOffset(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
	}
	if rec.IsKeyed() {
		rec.Forward = make([]RecordOffset, rec.Level)
		for i := 0; i < rec.Level; i++ {
			if len(data) < off+8 {
				return nil, ErrShortRead
			}
			rec.Forward[i] = RecordOffset(binary.LittleEndian.Uint64(data[off : off+8]))
			off += 8
		}
	}
	if len(data) < off+8 {
		return nil, ErrShortRead
	}
	crcHead := binary.LittleEndian.Uint32(data[off : off+4])
	crcTail := binary.LittleEndian.Uint32(data[off+4 : off+8])
	headEnd := off
	off += 8

	if crc32.ChecksumIEEE(data[:headEnd]) != crcHead {
		return nil, ErrCRCMismatch
	}
	rec.CRCHead = crcHead
	rec.CRCTail = crcTail

	tailLen := align8(int(keylen + vallen))
	if len(data) < off+tailLen {
		return nil, ErrShortRead
	}
	tail := data[off : off+tailLen]
	if crc32.ChecksumIEEE(tail) != crcTail {
		return nil, ErrCRCMismatch
	}
	rec.Key = append([]byte(nil), tail[:keylen]...)
	rec.Value = append([]byte(nil), tail[keylen:keylen+vallen]...)
	rec.Size = off + tailLen

	return rec, nil
}

// ForwardFieldOffsetV2 returns the byte offset, relative to the record's
// start, of forward[level] in the current-version encoding. The skip-list
// engine uses this to patch a single pointer in place (stitch/unstitch)
// without re-encoding and rewriting the whole record.
func ForwardFieldOffsetV2(rec *Record, level int) int64 {
	off := int64(2)
	if rec.KeyLen >= uint64(keylenEscape) {
		off += 2 + 8
	} else {
		off += 2
	}
	if rec.ValLen >= uint64(vallenEscape) {
		off += 4 + 8
	} else {
		off += 4
	}
	if rec.HasDeletePointer() {
		off += 8
	}
	off += 8 * int64(level)
	return off
}

// EncodedSizeV2 returns the encoded length EncodeV2 would produce for a
// keyed record, without allocating the value bytes.
func EncodedSizeV2(level int, keylen, vallen uint64, hasDelete bool) int {
	size := 2 + 2 + 4 // type+level, keylen, vallen
	if keylen >= uint64(keylenEscape) {
		size += 8
	}
	if vallen >= uint64(vallenEscape) {
		size += 8
	}
	if hasDelete {
		size += 8
	}
	size += 8 * level
	size += 8 // crcHead+crcTail
	size += align8(int(keylen + vallen))
	return size
}
