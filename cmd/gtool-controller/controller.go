// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/bureau-foundation/gtool/lib/broadcast"
	"github.com/bureau-foundation/gtool/lib/clock"
	"github.com/bureau-foundation/gtool/lib/config"
	"github.com/bureau-foundation/gtool/lib/dispatch"
	"github.com/bureau-foundation/gtool/lib/fleetfile"
	"github.com/bureau-foundation/gtool/lib/history"
	"github.com/bureau-foundation/gtool/lib/persist"
	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/service"
	"github.com/bureau-foundation/gtool/lib/state"
	"github.com/bureau-foundation/gtool/lib/supervisor"
)

// Options configures Open. Only Config is required; the other fields
// exist so tests can substitute a fake clock, spawner, or registry
// scan.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock

	// Spawner defaults to an ExecSpawner for the resolved worker
	// binary.
	Spawner supervisor.Spawner

	// Scanner defaults to running "<worker binary> scripts".
	Scanner dispatch.Scanner
}

// Controller owns every long-lived component of a running control
// plane.
type Controller struct {
	config    *config.Config
	logger    *slog.Logger
	clock     clock.Clock
	startedAt time.Time

	// workerBinary is empty when the binary could not be resolved.
	// The registry is then not watched and spawns fail with the
	// executor's error.
	workerBinary string

	lock         *persist.DirLock
	files        *fleetfile.Files
	fleetFlusher *persist.Flusher
	queueFlusher *persist.Flusher
	history      *history.Store

	store      *state.Store
	registry   *dispatch.ScriptRegistry
	dispatcher *dispatch.Dispatcher
	supervisor *supervisor.Supervisor

	socket *service.SocketServer
	http   *service.HTTPServer

	closeOnce sync.Once
}

// Open locks the data directory, loads persisted state, and builds the
// component graph. Nothing listens until Run. A failure releases
// whatever was acquired.
func Open(ctx context.Context, options Options) (_ *Controller, err error) {
	cfg := options.Config
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	logger := options.Logger

	lock, err := persist.AcquireLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		config:    cfg,
		logger:    logger,
		clock:     options.Clock,
		startedAt: options.Clock.Now(),
		lock:      lock,
	}
	defer func() {
		if err != nil {
			c.release()
		}
	}()

	files, specs, queues, err := fleetfile.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	c.files = files

	codec, err := persist.ParseCodec(cfg.Persistence.TaskLogCodec)
	if err != nil {
		return nil, err
	}

	c.history, err = history.Open(ctx, filepath.Join(cfg.DataDir, history.FileName), logger)
	if err != nil {
		return nil, err
	}

	c.fleetFlusher = persist.NewFlusher(persist.FlusherConfig{
		Name:    "fleet",
		Flush:   func() error { return c.files.SaveFleet(c.store.Specs()) },
		Delay:   cfg.Persistence.FlushDelay,
		Clock:   c.clock,
		Logger:  logger,
		OnError: func(err error) { c.persistFailed(fleetfile.FleetFileName, err) },
	})
	c.queueFlusher = persist.NewFlusher(persist.FlusherConfig{
		Name:    "queues",
		Flush:   func() error { return c.files.SaveQueues(c.store.Queues()) },
		Delay:   cfg.Persistence.FlushDelay,
		Clock:   c.clock,
		Logger:  logger,
		OnError: func(err error) { c.persistFailed(fleetfile.QueuesFileName, err) },
	})

	c.store = state.New(state.Config{
		Hub:           broadcast.NewHub(),
		Logger:        logger,
		ConfigChanged: c.fleetFlusher.MarkDirty,
		QueueChanged:  c.queueFlusher.MarkDirty,
	})
	c.store.Load(specs, queues)

	binary, resolveErr := cfg.WorkerBinaryPath()
	if resolveErr != nil {
		logger.Warn("worker binary not found; workers cannot start until it is installed", "error", resolveErr)
		binary = cfg.WorkerBinary
	} else {
		c.workerBinary = binary
	}

	scanner := options.Scanner
	if scanner == nil {
		scanner = dispatch.BinaryScanner(binary)
	}
	c.registry = dispatch.NewScriptRegistry(scanner, logger)
	if err := c.registry.Rescan(ctx); err != nil {
		logger.Warn("initial script scan failed; enqueue is rejected until a scan succeeds", "error", err)
	}

	c.dispatcher = dispatch.New(dispatch.Config{
		Store:    c.store,
		Registry: c.registry,
		Logs:     persist.NewTaskLogStore(filepath.Join(cfg.DataDir, "tasks"), codec),
		History:  c.history,
		Clock:    c.clock,
		Logger:   logger,
	})

	spawner := options.Spawner
	if spawner == nil {
		spawner = supervisor.NewExecSpawner(binary, cfg.DataDir, logger)
	}
	c.supervisor = supervisor.New(supervisor.Config{
		Store:   c.store,
		Spawner: spawner,
		Tasks:   c.dispatcher,
		Clock:   c.clock,
		Logger:  logger,
	})

	c.socket = service.NewSocketServer(cfg.SocketPath, logger)
	c.registerActions(c.socket)
	if cfg.HTTP.Address != "" {
		c.http = service.NewHTTPServer(service.HTTPServerConfig{
			Address:         cfg.HTTP.Address,
			Handler:         c.httpHandler(),
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
		})
	}

	logger.Info("fleet loaded", "workers", len(specs), "queued_workers", len(queues))
	return c, nil
}

// Run serves the observer surfaces until ctx is cancelled or a
// listener fails, then stops every worker. Workers that ignore the
// stop command for longer than the shutdown timeout are killed.
func (c *Controller) Run(ctx context.Context) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		servers sync.WaitGroup
		errs    = make(chan error, 2)
	)
	serve := func(name string, run func(context.Context) error) {
		servers.Add(1)
		go func() {
			defer servers.Done()
			if err := run(serveCtx); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	serve("socket server", c.socket.Serve)
	if c.http != nil {
		serve("http server", c.http.Serve)
	}

	if c.workerBinary != "" {
		go func() {
			if err := c.registry.Watch(serveCtx, c.workerBinary, c.clock); err != nil {
				c.logger.Warn("not watching the worker binary for script changes", "error", err)
			}
		}()
	}

	if c.config.AutoStart {
		c.startAll()
	}

	<-serveCtx.Done()
	c.logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.config.ShutdownTimeout)
	defer shutdownCancel()
	c.supervisor.Shutdown(shutdownCtx)

	servers.Wait()
	close(errs)
	var runErr error
	for err := range errs {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// Close writes any pending state and releases the data directory. Run
// must have returned.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.release() })
	return err
}

func (c *Controller) release() error {
	var errs []error
	if c.fleetFlusher != nil {
		errs = append(errs, c.fleetFlusher.Close())
	}
	if c.queueFlusher != nil {
		errs = append(errs, c.queueFlusher.Close())
	}
	if c.history != nil {
		errs = append(errs, c.history.Close())
	}
	errs = append(errs, c.lock.Release())
	return errors.Join(errs...)
}

func (c *Controller) startAll() {
	for _, name := range c.store.Names() {
		if err := c.supervisor.Start(name); err != nil {
			c.logger.Warn("auto-start failed", "worker", name, "error", err)
		}
	}
}

// persistFailed surfaces a flush error to observers. The flusher has
// already logged it.
func (c *Controller) persistFailed(file string, err error) {
	c.store.Log(fleet.ControllerPrefix, fleet.LevelError, fmt.Sprintf("failed to save %s: %v", file, err))
}
