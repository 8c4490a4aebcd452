// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is the compression applied to archived task logs.
type Codec string

const (
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
	CodecNone Codec = "none"
)

// ParseCodec parses a codec name. The empty string selects CodecZstd.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "", CodecZstd:
		return CodecZstd, nil
	case CodecLZ4, CodecNone:
		return Codec(name), nil
	}
	return "", fmt.Errorf("unknown task log codec %q (valid: zstd, lz4, none)", name)
}

// extension returns the archive file suffix for the codec.
func (c Codec) extension() string {
	switch c {
	case CodecZstd:
		return ".zst"
	case CodecLZ4:
		return ".lz4"
	}
	return ""
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("persist: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("persist: zstd decoder initialization failed: " + err.Error())
	}
}

// TaskLogStore manages the per-task log files under a root directory:
// <root>/<worker>/<taskID>.log while the task runs, and
// <root>/<worker>/<taskID>.log.zst (or .lz4) once archived.
type TaskLogStore struct {
	root  string
	codec Codec

	// mu serializes appends and archival. Task log traffic is small
	// and one lock keeps a line from landing in a file being archived.
	mu sync.Mutex
}

// NewTaskLogStore returns a store rooted at root. Directories are
// created lazily on the first append.
func NewTaskLogStore(root string, codec Codec) *TaskLogStore {
	if codec == "" {
		codec = CodecZstd
	}
	return &TaskLogStore{root: root, codec: codec}
}

// validateKey rejects worker names and task IDs that could escape the
// log directory.
func validateKey(worker, taskID string) error {
	if err := fleet.ValidateName(worker); err != nil {
		return err
	}
	if err := fleet.ValidateName(taskID); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	return nil
}

func (s *TaskLogStore) livePath(worker, taskID string) string {
	return filepath.Join(s.root, worker, taskID+".log")
}

// Append writes one timestamped line to the task's log, creating the
// worker directory and the file on first use.
func (s *TaskLogStore) Append(worker, taskID string, at time.Time, message string) error {
	if err := validateKey(worker, taskID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.livePath(worker, taskID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating task log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening task log: %w", err)
	}
	line := fmt.Sprintf("[%s] %s\n", at.UTC().Format(time.RFC3339), message)
	if _, err := file.WriteString(line); err != nil {
		file.Close()
		return fmt.Errorf("appending to task log: %w", err)
	}
	return file.Close()
}

// Archive compresses the task's live log into its archive form and
// removes the live file. A task that never logged anything has no
// file, and Archive returns nil.
func (s *TaskLogStore) Archive(worker, taskID string) error {
	if err := validateKey(worker, taskID); err != nil {
		return err
	}
	if s.codec == CodecNone {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	livePath := s.livePath(worker, taskID)
	data, err := os.ReadFile(livePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading task log for archive: %w", err)
	}

	compressed, err := compress(s.codec, data)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(livePath+s.codec.extension(), compressed); err != nil {
		return err
	}
	if err := os.Remove(livePath); err != nil {
		return fmt.Errorf("removing archived task log: %w", err)
	}
	return nil
}

// Read returns the task's log, decompressing an archived form. Both
// codecs are checked regardless of the configured one, so changing
// the codec does not strand older archives. Returns an error wrapping
// fleet.ErrNotFound when no log exists.
func (s *TaskLogStore) Read(worker, taskID string) ([]byte, error) {
	if err := validateKey(worker, taskID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	livePath := s.livePath(worker, taskID)
	data, err := os.ReadFile(livePath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading task log: %w", err)
	}
	for _, codec := range []Codec{CodecZstd, CodecLZ4} {
		compressed, err := os.ReadFile(livePath + codec.extension())
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading archived task log: %w", err)
		}
		return decompress(codec, compressed)
	}
	return nil, fmt.Errorf("log for task %s on %s: %w", taskID, worker, fleet.ErrNotFound)
}

func compress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CodecLZ4:
		var buffer bytes.Buffer
		writer := lz4.NewWriter(&buffer)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buffer.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported task log codec %q", codec)
}

func decompress(codec Codec, compressed []byte) ([]byte, error) {
	switch codec {
	case CodecZstd:
		data, err := zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return data, nil
	case CodecLZ4:
		data, err := io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("unsupported task log codec %q", codec)
}
