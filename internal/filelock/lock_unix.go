//go:build unix

package filelock

import (
	"os"
	"syscall"
)

// isStaleLocked compares the inode of the open handle against the inode
// of the path on disk, per spec §4.2. A mismatch means a compaction
// rename swapped in a new file under the same path while we were still
// holding the old one open.
func (l *Lock) isStaleLocked() (bool, error) {
	var openSt, pathSt syscall.Stat_t
	if err := syscall.Fstat(int(l.f.Fd()), &openSt); err != nil {
		return false, err
	}
	if err := syscall.Stat(l.path, &pathSt); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return openSt.Ino != pathSt.Ino, nil
}

func lockOS(f *os.File, mode Mode) error {
	op := syscall.LOCK_SH
	if mode == Exclusive {
		op = syscall.LOCK_EX
	}
	return syscall.Flock(int(f.Fd()), op)
}

func unlockOS(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
