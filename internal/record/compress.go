//go:build !nocompress

// Package record's compression support is linked by default. Build with
// -tags nocompress to produce a binary that cannot read or write
// compressed records (see compress_stub.go) — spec §9 requires that a
// build without compression support fail loudly on a compressed record,
// not silently return garbage.
package record

import "github.com/klauspost/compress/snappy"

// CompressThreshold is the minimum value size eligible for compression.
// Tiny values must not be compressed (spec §4.3) — snappy's frame overhead
// would make them larger, not smaller.
const CompressThreshold = 128

// CompressionLinked reports whether this build can read/write compressed
// records.
const CompressionLinked = true

// MaybeCompress compresses value if it is large enough to benefit, and
// reports whether it did. Callers use the result to decide the
// HAS_COMPRESS bit on the record they are about to encode.
func MaybeCompress(value []byte) (out []byte, compressed bool) {
	if len(value) < CompressThreshold {
		return value, false
	}
	enc := snappy.Encode(nil, value)
	if len(enc) >= len(value) {
		return value, false
	}
	return enc, true
}

// Decompress reverses MaybeCompress.
func Decompress(value []byte) ([]byte, error) {
	return snappy.Decode(nil, value)
}
