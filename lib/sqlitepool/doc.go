// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases with the relay's standard
// connection settings.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers
// [Pool.Take] a connection, do their work, and [Pool.Put] it back.
// Connections are not safe for concurrent use.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: readers never block the writer.
//   - synchronous=NORMAL, or FULL when [Config.Durable] is set. FULL
//     syncs on every commit so a saved checkpoint survives power
//     loss, not only a process crash.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock.
//   - temp_store=MEMORY.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:    "/var/lib/seedrelay/state.db",
//	    Durable: true,
//	    Logger:  logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// The package exposes the zombiezen types directly. Callers write SQL
// with sqlitex.Execute and manage transactions with
// sqlitex.ImmediateTransaction.
package sqlitepool
