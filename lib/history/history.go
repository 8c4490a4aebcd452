// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history records task outcomes in a local SQLite database so
// an operator can see what each worker did, including tasks lost when
// a worker crashed after dispatch.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/gtool/lib/schema/fleet"
	"github.com/bureau-foundation/gtool/lib/sqlitepool"
)

// FileName is the database file under the controller data directory.
const FileName = "history.db"

// DefaultListLimit caps List when the caller passes a non-positive
// limit.
const DefaultListLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS task_history (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT    NOT NULL,
	worker      TEXT    NOT NULL,
	script_name TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	error       TEXT    NOT NULL DEFAULT '',
	at_unix_ns  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS task_history_worker ON task_history (worker, seq);
`

// Record is one row of task history: a status transition of a task
// after it left its queue.
type Record struct {
	TaskID     string           `json:"taskId"`
	Worker     string           `json:"worker"`
	ScriptName string           `json:"scriptName"`
	Status     fleet.TaskStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// Store appends and queries task history rows.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:   path,
		Schema: schema,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening task history: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Record appends one row.
func (s *Store) Record(ctx context.Context, record Record) error {
	if record.TaskID == "" || record.Worker == "" {
		return fmt.Errorf("%w: task history needs task id and worker", fleet.ErrMissingField)
	}
	if record.At.IsZero() {
		return fmt.Errorf("%w: task history needs a timestamp", fleet.ErrMissingField)
	}
	return s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`INSERT INTO task_history (task_id, worker, script_name, status, error, at_unix_ns)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					record.TaskID,
					record.Worker,
					record.ScriptName,
					string(record.Status),
					record.Error,
					record.At.UnixNano(),
				},
			})
		if err != nil {
			return fmt.Errorf("recording task %s: %w", record.TaskID, err)
		}
		return nil
	})
}

// List returns the most recent rows, newest first. An empty worker
// lists every worker's history.
func (s *Store) List(ctx context.Context, worker string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT task_id, worker, script_name, status, error, at_unix_ns
		FROM task_history ORDER BY seq DESC LIMIT ?`
	args := []any{limit}
	if worker != "" {
		query = `SELECT task_id, worker, script_name, status, error, at_unix_ns
			FROM task_history WHERE worker = ? ORDER BY seq DESC LIMIT ?`
		args = []any{worker, limit}
	}

	records := []Record{}
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, Record{
					TaskID:     stmt.ColumnText(0),
					Worker:     stmt.ColumnText(1),
					ScriptName: stmt.ColumnText(2),
					Status:     fleet.TaskStatus(stmt.ColumnText(3)),
					Error:      stmt.ColumnText(4),
					At:         time.Unix(0, stmt.ColumnInt64(5)).UTC(),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing task history: %w", err)
	}
	return records, nil
}
