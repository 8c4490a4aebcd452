// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bureau-foundation/gtool/lib/binhash"
	"github.com/bureau-foundation/gtool/lib/clock"
)

// RescanDebounce is how long Watch waits after the last change to the
// worker binary before rescanning. Builds and installs write the file
// in several steps.
const RescanDebounce = 500 * time.Millisecond

// rescanIfChanged skips the scan when the binary's content matches the
// one the current catalog came from.
func (r *ScriptRegistry) rescanIfChanged(ctx context.Context, binary string) {
	digest, err := binhash.HashFile(binary)
	if err != nil {
		// Mid-install; the write that completes it fires another event.
		r.logger.Debug("worker binary not readable yet", "binary", binary, "error", err)
		return
	}
	if digest == r.scannedDigest() {
		r.logger.Debug("worker binary content unchanged", "binary", binary)
		return
	}
	r.logger.Info("worker binary changed, rescanning scripts", "binary", binary, "digest", digest.String())
	_ = r.Rescan(ctx)
}

// Watch rescans the registry whenever the worker binary changes on
// disk, until ctx is done. It watches the binary's directory rather
// than the file so that replace-by-rename installs are seen.
func (r *ScriptRegistry) Watch(ctx context.Context, binary string, clk clock.Clock) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	binary = filepath.Clean(binary)
	if err := watcher.Add(filepath.Dir(binary)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(binary), err)
	}

	var pending *clock.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != binary {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Chmod) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = clk.AfterFunc(RescanDebounce, func() { r.rescanIfChanged(ctx, binary) })
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("worker binary watch error", "binary", binary, "error", err)
		}
	}
}
