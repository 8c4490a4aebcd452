// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize is used when Config.PoolSize is zero. The controller
// writes one row per task outcome and reads only on operator request,
// so a small pool is plenty.
const DefaultPoolSize = 2

// Config holds the parameters for opening a SQLite connection pool.
type Config struct {
	// Path is the database file. The parent directory must exist; the
	// file is created if missing. ":memory:" is accepted only with a
	// PoolSize of 1, since each in-memory connection is a separate
	// database.
	Path string

	// PoolSize is the number of connections. Zero means
	// DefaultPoolSize.
	PoolSize int

	// Schema is an SQL script run once at Open, after the pragmas.
	// It must be idempotent (CREATE TABLE IF NOT EXISTS and friends)
	// because it runs on every controller start.
	Schema string

	// Logger receives pool open and close records. Nil discards them.
	Logger *slog.Logger
}

// Pool is a fixed-size pool of SQLite connections sharing one set of
// pragmas. Pool is safe for concurrent use; connections are not, so
// each goroutine takes its own and puts it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// pragmas are applied to every connection when it is first used.
var pragmas = []string{
	// Concurrent readers with a single writer.
	"PRAGMA journal_mode=WAL",
	// Survives a controller crash; an OS crash may lose the last few
	// outcomes, which the queue file does not depend on.
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Open creates the pool and applies Config.Schema. The caller must call
// Close.
func Open(ctx context.Context, config Config) (*Pool, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	inner, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", config.Path, err)
	}
	pool := &Pool{inner: inner, logger: logger, path: config.Path}

	if config.Schema != "" {
		err := pool.WithConn(ctx, func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, config.Schema, nil)
		})
		if err != nil {
			inner.Close()
			return nil, fmt.Errorf("sqlitepool: applying schema to %s: %w", config.Path, err)
		}
	}

	logger.Info("sqlite pool opened", "path", config.Path, "pool_size", poolSize)
	return pool, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. Every Take must be paired with a Put.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Nil is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// WithConn runs fn with a borrowed connection and returns it to the
// pool afterwards.
func (p *Pool) WithConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)
	return fn(conn)
}

// Close closes every connection, blocking until borrowed ones are
// returned.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	return nil
}
