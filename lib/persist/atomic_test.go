// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.json")

	if err := WriteFileAtomic(path, []byte("first")); err != nil {
		t.Fatalf("WriteFileAtomic first: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second")); err != nil {
		t.Fatalf("WriteFileAtomic second: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %o, want 0600", info.Mode().Perm())
	}

	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestWriteFileAtomicMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "bots.json")
	if err := WriteFileAtomic(path, []byte("x")); err == nil {
		t.Fatal("WriteFileAtomic into a missing directory succeeded")
	}
}

func TestWriteFileAtomicRenameFailureCleansUp(t *testing.T) {
	directory := t.TempDir()
	// A directory at the destination makes the rename fail after the
	// temporary file has been written.
	path := filepath.Join(directory, "occupied")
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "child"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(path, []byte("x")); err == nil {
		t.Fatal("WriteFileAtomic over a non-empty directory succeeded")
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temporary file left behind after failed rename: %v", err)
	}
}

func TestWriteJSONIsPretty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := WriteJSON(path, map[string][]int{"w1": {1}}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"w1\": [\n    1\n  ]\n}\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}
}

func TestSnapshotFileSkipsUnchangedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	snapshot := NewSnapshotFile(path)

	written, err := snapshot.Write(map[string]string{"a": "1"})
	if err != nil || !written {
		t.Fatalf("first Write = %v, %v; want written", written, err)
	}

	// Remove the file behind the snapshot's back: an unchanged write
	// must not touch the disk, so the file stays gone.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	written, err = snapshot.Write(map[string]string{"a": "1"})
	if err != nil || written {
		t.Fatalf("unchanged Write = %v, %v; want skipped", written, err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Error("unchanged Write recreated the file")
	}

	written, err = snapshot.Write(map[string]string{"a": "2"})
	if err != nil || !written {
		t.Fatalf("changed Write = %v, %v; want written", written, err)
	}
}

func TestSnapshotFileSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.json")
	snapshot := NewSnapshotFile(path)

	data, err := MarshalPretty([]string{})
	if err != nil {
		t.Fatal(err)
	}
	snapshot.Seed(data)

	written, err := snapshot.Write([]string{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written {
		t.Error("Write of seeded content was not skipped")
	}
}
