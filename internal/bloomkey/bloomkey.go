// Package bloomkey implements spec SPEC_FULL.md §4.9: an in-memory,
// per-handle bloom filter over live keys that lets fetch short circuit a
// provably-absent key to NotFound without touching the skip list at all.
// It is never persisted — every handle rebuilds it with a dedicated scan
// of the live keys at open, and again after each checkpoint, the same
// "derived, not stored" posture spec §4.9 requires of it.
//
// The hash derivation follows jpl-au-folio's use of github.com/zeebo/xxh3
// for document IDs, extended here into the Kirsch-Mitzenmacher
// double-hashing scheme: two independent xxh3 seeds combine to synthesize
// k hash positions from two real hash computations instead of k.
package bloomkey

import (
	"math"

	"github.com/zeebo/xxh3"
)

// DefaultBits is the bit-array size used for a fresh store with no advisory
// num_records to size against (spec §4.9: "falls back to a fixed default
// for a fresh file").
const DefaultBits = 1 << 16

// targetFalsePositive is the ~1% design target from spec §4.9.
const targetFalsePositive = 0.01

// Filter is a fixed-size bit array plus a hash-count k, sized once at
// construction from an expected element count.
type Filter struct {
	bits []uint64 // packed, 64 bits per word
	m    uint64   // total bit count
	k    uint64   // number of hash positions per key
}

// New sizes a filter for expectedKeys at the ~1% false-positive target
// (spec §4.9). An expectedKeys of 0 falls back to DefaultBits.
func New(expectedKeys uint64) *Filter {
	m := DefaultBits
	if expectedKeys > 0 {
		m = optimalBits(expectedKeys, targetFalsePositive)
	}
	words := (m + 63) / 64
	k := optimalK(m, expectedKeys)
	return &Filter{bits: make([]uint64, words), m: uint64(m), k: k}
}

// optimalBits computes ceil(-n*ln(p) / ln(2)^2), the standard bloom filter
// sizing formula, rounded to the next power of two so bit-index masking
// stays cheap.
func optimalBits(n uint64, p float64) int {
	raw := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	bits := DefaultBits
	for bits < int(raw) {
		bits <<= 1
	}
	return bits
}

// optimalK computes round((m/n) * ln(2)), clamped to [1, 16] so a
// pathologically small or large sizing never produces a degenerate filter.
func optimalK(m int, n uint64) uint64 {
	if n == 0 {
		return 4
	}
	k := uint64(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return k
}

// positions derives the filter's k bit indices for key via double hashing:
// h1 + i*h2 mod m, the Kirsch-Mitzenmacher construction that needs only two
// real hash computations regardless of k.
func (f *Filter) positions(key []byte) []uint64 {
	h1 := xxh3.Hash(key)
	h2 := xxh3.HashSeed(key, 0x9e3779b97f4a7c15)
	out := make([]uint64, f.k)
	for i := uint64(0); i < f.k; i++ {
		out[i] = (h1 + i*h2) % f.m
	}
	return out
}

// Add marks key as present.
func (f *Filter) Add(key []byte) {
	for _, pos := range f.positions(key) {
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

// MaybeContains reports whether key might be present. false is
// authoritative (spec §4.9: "a miss is authoritative"); true still
// requires the real skip-list search since the filter only prunes
// negatives.
func (f *Filter) MaybeContains(key []byte) bool {
	for _, pos := range f.positions(key) {
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Reset clears every bit, for a full rebuild (recovery/checkpoint
// completion) without reallocating the backing array when size is
// unchanged — callers needing a new size should call New instead.
func (f *Filter) Reset() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}
