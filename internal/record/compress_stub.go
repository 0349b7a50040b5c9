//go:build nocompress

package record

import (
	"fmt"

	"github.com/arkdb/skipstore/internal/kverrors"
)

// ErrCompressionUnlinked is the distinct "internal" error kind spec §4.3
// requires when a build without compression support encounters a
// compressed record, instead of silently returning garbage.
var ErrCompressionUnlinked = fmt.Errorf("%w: record: compressed record but compression support is not linked into this build", kverrors.Internal)

const CompressThreshold = 128

const CompressionLinked = false

// MaybeCompress never compresses in a nocompress build: writers in this
// build never set HAS_COMPRESS.
func MaybeCompress(value []byte) (out []byte, compressed bool) {
	return value, false
}

// Decompress always fails in a nocompress build.
func Decompress(value []byte) ([]byte, error) {
	return nil, ErrCompressionUnlinked
}
