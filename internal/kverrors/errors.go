// Package kverrors defines the typed error kinds shared by every internal
// layer of the store, so that a decoding failure three packages down still
// surfaces as the same sentinel the public API promises in §7.
package kverrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel kinds. Compare with errors.Is, never by string.
var (
	NotFound = errors.New("key not found")
	Exists   = errors.New("key already exists")
	Again    = errors.New("transient contention, retry")
	Locked   = errors.New("transaction does not belong to this handle")
	BadParam = errors.New("invalid argument")
	IoError  = errors.New("i/o error")
	Internal = errors.New("internal consistency error")
)

// WrapIO escalates a low-level read/write/lock/fsync/mmap failure to IoError,
// the propagation policy every decoding and positional-write failure must
// follow on the hot path.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, IoError, err)
}

// WrapInternal marks a consistency violation. The stack is attached here,
// at the point of detection, so a host logging "%+v" gets a useful trace
// without the hot path ever paying for it on the success path.
func WrapInternal(op string, err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(fmt.Errorf("%s: %w: %w", op, Internal, err))
}
