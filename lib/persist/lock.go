// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the advisory lock file inside the data directory.
const LockFileName = "controller.lock"

// ErrLocked is returned by AcquireLock when another process holds the
// data directory.
var ErrLocked = errors.New("data directory is locked by another controller")

// DirLock is an exclusive hold on a data directory.
type DirLock struct {
	lock *flock.Flock
}

// AcquireLock creates dataDir if needed and takes a non-blocking
// exclusive lock on its lock file. The lock is released by Release or
// when the process exits.
func AcquireLock(dataDir string) (*DirLock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, LockFileName)
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return &DirLock{lock: lock}, nil
}

// Release drops the lock.
func (l *DirLock) Release() error {
	return l.lock.Unlock()
}
