// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens a pool of zombiezen.com/go/sqlite
// connections with the pragmas gtool uses for local structured
// storage: WAL journaling, NORMAL synchronous, and a busy timeout so
// concurrent writers wait instead of failing with SQLITE_BUSY.
//
//	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
//	    Path:   filepath.Join(dataDir, "history.db"),
//	    Schema: schema,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.WithConn(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
//	})
//
// The package stays thin: callers write SQL and use sqlitex directly.
package sqlitepool
