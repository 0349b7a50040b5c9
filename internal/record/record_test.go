package record

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeV2RoundTrip(t *testing.T) {
	rec := &Record{
		Type:    TypeAdd,
		Level:   3,
		KeyLen:  3,
		ValLen:  5,
		Forward: []RecordOffset{96, 200, 0},
		Key:     []byte("abc"),
		Value:   []byte("world"),
	}
	buf, err := EncodeV2(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeV2(buf, MaxLevelV2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != rec.Type || got.Level != rec.Level {
		t.Fatalf("type/level mismatch: %+v", got)
	}
	if !bytes.Equal(got.Key, rec.Key) || !bytes.Equal(got.Value, rec.Value) {
		t.Fatalf("key/value mismatch: %+v", got)
	}
	for i, fp := range rec.Forward {
		if got.Forward[i] != fp {
			t.Fatalf("forward[%d] = %d, want %d", i, got.Forward[i], fp)
		}
	}
	if got.Size != len(buf) {
		t.Fatalf("size = %d, want %d", got.Size, len(buf))
	}
}

func TestDecodeV2CRCMismatch(t *testing.T) {
	rec := &Record{Type: TypeAdd, Level: 1, Key: []byte("k"), Value: []byte("v"), Forward: []RecordOffset{0}}
	rec.KeyLen, rec.ValLen = 1, 1
	buf, _ := EncodeV2(rec)
	buf[len(buf)-1] ^= 0xFF // corrupt a tail byte

	if _, err := DecodeV2(buf, MaxLevelV2); err != ErrCRCMismatch {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
}

func TestDecodeV2LevelTooHigh(t *testing.T) {
	rec := &Record{Type: TypeDummy, Level: 5, Forward: make([]RecordOffset, 5)}
	buf, _ := EncodeV2(rec)

	if _, err := DecodeV2(buf, 2); err != ErrLevelTooHigh {
		t.Fatalf("expected ErrLevelTooHigh, got %v", err)
	}
}

func TestEncodeDecodeV2LongKeyExtension(t *testing.T) {
	key := bytes.Repeat([]byte{'k'}, 70000) // crosses the 65535 escape boundary
	rec := &Record{Type: TypeAdd, Level: 1, Key: key, Value: []byte("v"), Forward: []RecordOffset{0}}
	rec.KeyLen, rec.ValLen = uint64(len(key)), 1

	buf, err := EncodeV2(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeV2(buf, MaxLevelV2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.Key, key) {
		t.Fatalf("long key round-trip mismatch")
	}
}

func TestCommitMarkerV2(t *testing.T) {
	rec := &Record{Type: TypeCommit}
	buf, err := EncodeV2(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeV2(buf, MaxLevelV2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsCommit() {
		t.Fatalf("expected commit marker")
	}
}

func TestEncodeDecodeV1RoundTrip(t *testing.T) {
	rec := &Record{
		Type:    TypeAdd,
		Level:   2,
		Key:     []byte("foo"),
		Value:   []byte("bar"),
		Forward: []RecordOffset{40, 0},
	}
	buf, err := EncodeV1(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeV1(buf, MaxLevelV1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.Key, rec.Key) || !bytes.Equal(got.Value, rec.Value) {
		t.Fatalf("v1 round trip mismatch: %+v", got)
	}
	if got.Level != 2 || got.Forward[0] != 40 {
		t.Fatalf("v1 forward pointer mismatch: %+v", got)
	}
}

func TestEncodeDecodeV1Delete(t *testing.T) {
	rec := &Record{Type: TypeDelete, DeletePointer: 128}
	buf, err := EncodeV1(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeV1(buf, MaxLevelV1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DeletePointer != 128 || !got.IsDelete() {
		t.Fatalf("v1 delete mismatch: %+v", got)
	}
}

func TestMaybeCompressSkipsTinyValues(t *testing.T) {
	_, compressed := MaybeCompress([]byte("short"))
	if compressed {
		t.Fatalf("tiny value should not be compressed")
	}
}
