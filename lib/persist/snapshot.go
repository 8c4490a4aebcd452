// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"sync"

	"github.com/zeebo/blake3"
)

// SnapshotFile is a JSON state file that remembers the digest of its
// last successful write. Writing identical content again is a no-op,
// so periodic or redundant flushes cost a hash instead of an fsync.
type SnapshotFile struct {
	path string

	mu         sync.Mutex
	lastDigest [32]byte
	written    bool
}

// NewSnapshotFile returns a SnapshotFile for path. Nothing is read or
// written until the first Write.
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// Path returns the file path.
func (s *SnapshotFile) Path() string { return s.path }

// Write serializes value and writes it atomically unless the bytes
// match the previous successful write. It reports whether the file
// was written.
func (s *SnapshotFile) Write(value any) (bool, error) {
	data, err := MarshalPretty(value)
	if err != nil {
		return false, err
	}
	digest := blake3.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written && digest == s.lastDigest {
		return false, nil
	}
	if err := WriteFileAtomic(s.path, data); err != nil {
		return false, err
	}
	s.lastDigest = digest
	s.written = true
	return true, nil
}

// Seed records data as the content already on disk, typically right
// after loading the file, so an unchanged first flush is skipped.
func (s *SnapshotFile) Seed(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDigest = blake3.Sum256(data)
	s.written = true
}
