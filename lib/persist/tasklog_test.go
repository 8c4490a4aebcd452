// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
)

func TestTaskLogAppendAndArchive(t *testing.T) {
	for _, codec := range []Codec{CodecZstd, CodecLZ4, CodecNone} {
		t.Run(string(codec), func(t *testing.T) {
			root := t.TempDir()
			store := NewTaskLogStore(root, codec)
			at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

			if err := store.Append("w1", "task-1", at, "starting"); err != nil {
				t.Fatalf("Append: %v", err)
			}
			if err := store.Append("w1", "task-1", at.Add(time.Second), "done"); err != nil {
				t.Fatalf("Append: %v", err)
			}

			live, err := store.Read("w1", "task-1")
			if err != nil {
				t.Fatalf("Read live: %v", err)
			}
			want := "[2026-04-02T09:30:00Z] starting\n[2026-04-02T09:30:01Z] done\n"
			if string(live) != want {
				t.Fatalf("live log = %q, want %q", live, want)
			}

			if err := store.Archive("w1", "task-1"); err != nil {
				t.Fatalf("Archive: %v", err)
			}
			livePath := filepath.Join(root, "w1", "task-1.log")
			_, statErr := os.Stat(livePath)
			if codec == CodecNone {
				if statErr != nil {
					t.Fatalf("codec none removed the live log: %v", statErr)
				}
			} else {
				if !errors.Is(statErr, fs.ErrNotExist) {
					t.Fatalf("live log still present after archive: %v", statErr)
				}
				if _, err := os.Stat(livePath + codec.extension()); err != nil {
					t.Fatalf("archive missing: %v", err)
				}
			}

			archived, err := store.Read("w1", "task-1")
			if err != nil {
				t.Fatalf("Read archived: %v", err)
			}
			if string(archived) != want {
				t.Errorf("archived log = %q, want %q", archived, want)
			}
		})
	}
}

func TestTaskLogReadAcrossCodecChange(t *testing.T) {
	root := t.TempDir()
	lz4Store := NewTaskLogStore(root, CodecLZ4)
	if err := lz4Store.Append("w1", "t1", time.Now(), strings.Repeat("x", 100)); err != nil {
		t.Fatal(err)
	}
	if err := lz4Store.Archive("w1", "t1"); err != nil {
		t.Fatal(err)
	}

	zstdStore := NewTaskLogStore(root, CodecZstd)
	data, err := zstdStore.Read("w1", "t1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(data), strings.Repeat("x", 100)) {
		t.Errorf("log content lost: %q", data)
	}
}

func TestTaskLogMissing(t *testing.T) {
	store := NewTaskLogStore(t.TempDir(), CodecZstd)
	if _, err := store.Read("w1", "nope"); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("Read missing = %v, want ErrNotFound", err)
	}
	if err := store.Archive("w1", "nope"); err != nil {
		t.Fatalf("Archive of a task that never logged: %v", err)
	}
}

func TestTaskLogRejectsTraversal(t *testing.T) {
	store := NewTaskLogStore(t.TempDir(), CodecZstd)
	if err := store.Append("..", "t1", time.Now(), "x"); err == nil {
		t.Error("Append accepted worker name ..")
	}
	if err := store.Append("w1", "../../etc/passwd", time.Now(), "x"); err == nil {
		t.Error("Append accepted a task id with separators")
	}
}

func TestParseCodec(t *testing.T) {
	for input, want := range map[string]Codec{"": CodecZstd, "zstd": CodecZstd, "lz4": CodecLZ4, "none": CodecNone} {
		got, err := ParseCodec(input)
		if err != nil || got != want {
			t.Errorf("ParseCodec(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := ParseCodec("gzip"); err == nil {
		t.Error("ParseCodec accepted gzip")
	}
}

func TestAcquireLockIsExclusive(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")

	first, err := AcquireLock(dataDir)
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}

	if _, err := AcquireLock(dataDir); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquireLock = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := AcquireLock(dataDir)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	again.Release()
}
