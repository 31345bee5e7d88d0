//go:build windows
// +build windows

package logging

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32     = syscall.NewLazyDLL("kernel32.dll")
	lockFileExProc  = modkernel32.NewProc("LockFileEx")
	unlockFileExCle = modkernel32.NewProc("UnlockFileEx")
)

const lockfileExclusiveLock = 0x00000002

// FileLock serializes log-file rotation across goroutines and processes
// sharing a log directory, using a Windows LockFileEx lock on a sidecar
// ".lock" file rather than the log file itself, so readers can still tail
// the log while a rotation is pending.
type FileLock struct {
	lockPath string
	handle   *os.File
}

// NewFileLock opens (creating if needed) the sidecar lock file for
// basePath. The lock is not held until Lock is called.
func NewFileLock(basePath string) (*FileLock, error) {
	lockPath := basePath + ".lock"

	handle, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("logging: open rotation lock %s: %w", lockPath, err)
	}

	return &FileLock{lockPath: lockPath, handle: handle}, nil
}

// Lock blocks until the exclusive LockFileEx lock is acquired.
func (fl *FileLock) Lock() error {
	var overlapped syscall.Overlapped

	ok, _, err := lockFileExProc.Call(
		uintptr(fl.handle.Fd()),
		uintptr(lockfileExclusiveLock),
		0,
		1, // lock a single byte
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if ok == 0 {
		return fmt.Errorf("logging: acquire rotation lock: %w", err)
	}
	return nil
}

// Unlock releases the lock and removes the sidecar file. The file handle is
// closed regardless of whether the unlock call itself succeeds.
func (fl *FileLock) Unlock() error {
	var overlapped syscall.Overlapped

	ok, _, err := unlockFileExCle.Call(
		uintptr(fl.handle.Fd()),
		0,
		1,
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)

	fl.handle.Close()
	os.Remove(fl.lockPath)

	if ok == 0 {
		return fmt.Errorf("logging: release rotation lock: %w", err)
	}
	return nil
}
