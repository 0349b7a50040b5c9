package record

import (
	"encoding/binary"
	"hash/crc32"
)

// Magic is the fixed 20-byte sentinel at the start of every store file,
// both legacy and current.
var Magic = [20]byte{'a', 'r', 'k', 'd', 'b', '-', 's', 'k', 'i', 'p', 'l', 'i', 's', 't', 0, 0, 0, 0, 0, 0}

// Header flag bits.
const (
	FlagUnsafe byte = 1 << 0 // fsync disabled; set only by explicit opt-in
)

// Header sizes. v1 has no CRC field; v2 does.
const (
	HeaderSizeV1 = 64
	HeaderSizeV2 = 96
)

// Header mirrors spec §3 "File Header".
type Header struct {
	VersionMajor   uint16
	VersionMinor   uint16
	MaxLevel       int
	CurLevel       int
	NumRecords     uint64
	LogStart       RecordOffset
	LastRecoveryTS int64
	Flags          byte
	CRC            uint32 // v2 only
}

// IsLegacy reports whether this header describes a v1 file.
func (h *Header) IsLegacy() bool { return h.VersionMajor == 1 }

// EncodeV2 serialises the header to exactly HeaderSizeV2 bytes, with a
// trailing CRC32 over everything preceding it — the header is rewritten
// atomically by the caller via a single positional write + fsync.
func (h *Header) EncodeV2() []byte {
	buf := make([]byte, HeaderSizeV2)
	copy(buf[0:20], Magic[:])
	binary.LittleEndian.PutUint16(buf[20:22], 2)
	binary.LittleEndian.PutUint16(buf[22:24], h.VersionMinor)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(h.MaxLevel))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(h.CurLevel))
	binary.LittleEndian.PutUint64(buf[32:40], h.NumRecords)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.LogStart))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.LastRecoveryTS))
	buf[56] = h.Flags
	crc := crc32.ChecksumIEEE(buf[:HeaderSizeV2-4])
	binary.LittleEndian.PutUint32(buf[HeaderSizeV2-4:HeaderSizeV2], crc)
	return buf
}

// DecodeHeaderV2 parses a v2 header, validating magic and CRC per spec §3.
func DecodeHeaderV2(buf []byte) (*Header, error) {
	if len(buf) < HeaderSizeV2 {
		return nil, ErrShortRead
	}
	if string(buf[0:20]) != string(Magic[:]) {
		return nil, ErrBadMagic
	}
	major := binary.LittleEndian.Uint16(buf[20:22])
	if major != 2 {
		return nil, ErrUnknownType
	}
	wantCRC := binary.LittleEndian.Uint32(buf[HeaderSizeV2-4 : HeaderSizeV2])
	gotCRC := crc32.ChecksumIEEE(buf[:HeaderSizeV2-4])
	if wantCRC != gotCRC {
		return nil, ErrCRCMismatch
	}
	h := &Header{
		VersionMajor:   major,
		VersionMinor:   binary.LittleEndian.Uint16(buf[22:24]),
		MaxLevel:       int(binary.LittleEndian.Uint32(buf[24:28])),
		CurLevel:       int(binary.LittleEndian.Uint32(buf[28:32])),
		NumRecords:     binary.LittleEndian.Uint64(buf[32:40]),
		LogStart:       RecordOffset(binary.LittleEndian.Uint64(buf[40:48])),
		LastRecoveryTS: int64(binary.LittleEndian.Uint64(buf[48:56])),
		Flags:          buf[56],
		CRC:            wantCRC,
	}
	if h.MaxLevel > MaxLevelV2 {
		return nil, ErrLevelTooHigh
	}
	return h, nil
}

// EncodeV1 serialises a legacy header. v1 carries no CRC.
func (h *Header) EncodeV1() []byte {
	buf := make([]byte, HeaderSizeV1)
	copy(buf[0:20], Magic[:])
	binary.LittleEndian.PutUint32(buf[20:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(h.MaxLevel))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(h.CurLevel))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(h.NumRecords))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(h.LogStart))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(h.LastRecoveryTS))
	buf[44] = h.Flags
	return buf
}

// DecodeHeaderV1 parses a legacy header.
func DecodeHeaderV1(buf []byte) (*Header, error) {
	if len(buf) < HeaderSizeV1 {
		return nil, ErrShortRead
	}
	if string(buf[0:20]) != string(Magic[:]) {
		return nil, ErrBadMagic
	}
	major := binary.LittleEndian.Uint32(buf[20:24])
	if major != 1 {
		return nil, ErrUnknownType
	}
	h := &Header{
		VersionMajor:   1,
		MaxLevel:       int(binary.LittleEndian.Uint32(buf[24:28])),
		CurLevel:       int(binary.LittleEndian.Uint32(buf[28:32])),
		NumRecords:     uint64(binary.LittleEndian.Uint32(buf[32:36])),
		LogStart:       RecordOffset(binary.LittleEndian.Uint32(buf[36:40])),
		LastRecoveryTS: int64(binary.LittleEndian.Uint32(buf[40:44])),
		Flags:          buf[44],
	}
	if h.MaxLevel > MaxLevelV1 {
		return nil, ErrLevelTooHigh
	}
	return h, nil
}

// HeaderSize returns the on-disk header size for this header's version.
func (h *Header) HeaderSize() int64 {
	if h.IsLegacy() {
		return HeaderSizeV1
	}
	return HeaderSizeV2
}
