package skipstore

import (
	"go.uber.org/zap"

	"github.com/arkdb/skipstore/internal/skiplist"
)

// Flag selects open-time behavior, spec §6 "open(path, flags)".
type Flag uint32

const (
	// Create creates the file if it does not already exist.
	Create Flag = 1 << iota
	// OrderedBytes selects the bytewise comparator. Without it, the
	// comparator given via WithComparator is used, or the bytewise one if
	// none was given.
	OrderedBytes
	// Compress permits compressed records on write (spec §4.3). Reading
	// compressed records is always supported; writing them is opt-in.
	Compress
	// Legacy selects the v1 on-disk format for a freshly created file
	// (spec §6 "the engine may choose either format on creation"). Ignored
	// when opening an existing file, whose format the header already names.
	Legacy
)

// Options configures Open, following an OpenPager / OpenPagerReadOnly
// style split but expressed as functional options so a host only names
// the knobs it cares about.
type Options struct {
	flags      Flag
	comparator skiplist.Comparator
	logger     *zap.Logger
	unsafe     bool
}

// Option mutates an Options during Open.
type Option func(*Options)

func newOptions(flags Flag, opts []Option) *Options {
	o := &Options{flags: flags, comparator: skiplist.ByteCompare, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithComparator overrides the key ordering. Ignored if OrderedBytes is
// also set; OrderedBytes always wins since it is the explicit "use
// bytewise" request from spec §6.
func WithComparator(cmp skiplist.Comparator) Option {
	return func(o *Options) {
		if cmp != nil {
			o.comparator = cmp
		}
	}
}

// WithLogger wires a structured logger (spec SPEC_FULL.md AMBIENT STACK).
// The only event logged is a recovery forced at Open; checkpoints and
// lock re-acquisition are not logged. The default is a no-op logger, so
// the hot path never logs unless a host opts in.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUnsafe turns the store file's fsync into a no-op (the advisory
// lock still syncs its own descriptor on release after writes), for the
// same reason a pager
// might expose an in-memory/unsafe mode: throwaway or benchmark instances
// that accept losing durability for speed.
func WithUnsafe() Option {
	return func(o *Options) { o.unsafe = true }
}

func (o *Options) resolveComparator() skiplist.Comparator {
	if o.flags&OrderedBytes != 0 {
		return skiplist.ByteCompare
	}
	return o.comparator
}
