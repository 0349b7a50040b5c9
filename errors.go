package skipstore

import (
	"fmt"

	"github.com/arkdb/skipstore/internal/kverrors"
)

// Public error kinds, per spec §7. Callers compare with errors.Is against
// these sentinels, never against error strings; internal packages never
// construct these directly, they wrap kverrors' sentinels, which these
// alias 1:1 so errors.Is sees through both layers.
var (
	ErrNotFound = kverrors.NotFound
	ErrExists   = kverrors.Exists
	ErrAgain    = kverrors.Again
	ErrLocked   = kverrors.Locked
	ErrBadParam = kverrors.BadParam
	ErrIoError  = kverrors.IoError
	ErrInternal = kverrors.Internal
)

// wrap prefixes an internal error with the package name, the same way a
// connection-layer Open wraps storage errors with its own prefix.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("skipstore: %s: %w", op, err)
}
