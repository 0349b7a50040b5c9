//go:build !unix && !windows

package filelock

import "os"

// No advisory locking primitive is available on this platform (js/wasip1);
// this is a no-op stub. Single-process use only.
func (l *Lock) isStaleLocked() (bool, error) { return false, nil }

func lockOS(f *os.File, mode Mode) error   { return nil }
func unlockOS(f *os.File) error            { return nil }
