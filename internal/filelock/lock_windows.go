//go:build windows

package filelock

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
	procGetFileInformationByHandle = modkernel32.NewProc("GetFileInformationByHandle")
)

const (
	lockfileExclusiveLock = 0x00000002
)

// byHandleFileInformation mirrors the subset of BY_HANDLE_FILE_INFORMATION
// needed to compare file identity (volume serial + file index), Windows'
// analogue of a Unix inode.
type byHandleFileInformation struct {
	FileAttributes     uint32
	CreationTime       syscall.Filetime
	LastAccessTime     syscall.Filetime
	LastWriteTime      syscall.Filetime
	VolumeSerialNumber uint32
	FileSizeHigh       uint32
	FileSizeLow        uint32
	NumberOfLinks      uint32
	FileIndexHigh      uint32
	FileIndexLow       uint32
}

func fileIdentity(f *os.File) (volSerial uint32, idxHigh, idxLow uint32, err error) {
	var info byHandleFileInformation
	r1, _, e1 := procGetFileInformationByHandle.Call(f.Fd(), uintptr(unsafe.Pointer(&info)))
	if r1 == 0 {
		return 0, 0, 0, e1
	}
	return info.VolumeSerialNumber, info.FileIndexHigh, info.FileIndexLow, nil
}

func (l *Lock) isStaleLocked() (bool, error) {
	openVol, openHi, openLo, err := fileIdentity(l.f)
	if err != nil {
		return false, err
	}
	pf, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer pf.Close()
	pathVol, pathHi, pathLo, err := fileIdentity(pf)
	if err != nil {
		return false, err
	}
	return openVol != pathVol || openHi != pathHi || openLo != pathLo, nil
}

func lockOS(f *os.File, mode Mode) error {
	flags := uint32(0)
	if mode == Exclusive {
		flags = lockfileExclusiveLock
	}
	ol := new(syscall.Overlapped)
	r1, _, err := procLockFileEx.Call(f.Fd(), uintptr(flags), 0, ^uintptr(0), ^uintptr(0), uintptr(unsafe.Pointer(ol)))
	if r1 == 0 {
		return err
	}
	return nil
}

func unlockOS(f *os.File) error {
	ol := new(syscall.Overlapped)
	r1, _, err := procUnlockFileEx.Call(f.Fd(), 0, ^uintptr(0), ^uintptr(0), uintptr(unsafe.Pointer(ol)))
	if r1 == 0 {
		return err
	}
	return nil
}
