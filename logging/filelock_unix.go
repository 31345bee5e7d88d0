//go:build !windows
// +build !windows

package logging

import (
	"fmt"
	"os"
	"syscall"
)

// FileLock serializes log-file rotation across goroutines and processes
// sharing a log directory, using a Unix advisory lock (flock) on a sidecar
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

// Lock blocks until the exclusive flock is acquired.
func (fl *FileLock) Lock() error {
	if err := syscall.Flock(int(fl.handle.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("logging: acquire rotation lock: %w", err)
	}
	return nil
}

// Unlock releases the flock and removes the sidecar file. The file descriptor
// is closed regardless of whether the unlock syscall itself succeeds.
func (fl *FileLock) Unlock() error {
	unlockErr := syscall.Flock(int(fl.handle.Fd()), syscall.LOCK_UN)
	fl.handle.Close()
	os.Remove(fl.lockPath)
	if unlockErr != nil {
		return fmt.Errorf("logging: release rotation lock: %w", unlockErr)
	}
	return nil
}
