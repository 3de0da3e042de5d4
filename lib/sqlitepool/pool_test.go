// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/seedrelay/lib/sqlitepool"
)

func pragmaInt(t *testing.T, conn *sqlite.Conn, pragma string) int {
	t.Helper()
	var value int
	err := sqlitex.Execute(conn, pragma, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("%s: %v", pragma, err)
	}
	return value
}

func TestPragmas(t *testing.T) {
	for _, test := range []struct {
		durable     bool
		synchronous int
	}{
		{false, 1},
		{true, 2},
	} {
		pool := openTestPool(t, sqlitepool.Config{Durable: test.durable})
		conn, err := pool.Take(context.Background())
		if err != nil {
			t.Fatalf("Take: %v", err)
		}

		var journalMode string
		err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("PRAGMA journal_mode: %v", err)
		}
		if journalMode != "wal" {
			t.Errorf("journal_mode = %q, want wal", journalMode)
		}
		if got := pragmaInt(t, conn, "PRAGMA synchronous"); got != test.synchronous {
			t.Errorf("durable=%v: synchronous = %d, want %d", test.durable, got, test.synchronous)
		}
		pool.Put(conn)
	}
}

func TestOnConnectCreatesSchema(t *testing.T) {
	var calls int
	pool := openTestPool(t, sqlitepool.Config{
		OnConnect: func(conn *sqlite.Conn) error {
			calls++
			return sqlitex.ExecuteScript(conn, `
				CREATE TABLE IF NOT EXISTS stream_position (
					network TEXT NOT NULL,
					station TEXT NOT NULL
				);
			`, nil)
		},
	})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	if calls != 1 {
		t.Errorf("OnConnect called %d times, want 1", calls)
	}
	err = sqlitex.Execute(conn, "INSERT INTO stream_position (network, station) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"IU", "ANMO"},
	})
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestTakeHonorsCancelledContext(t *testing.T) {
	pool := openTestPool(t, sqlitepool.Config{PoolSize: 1})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take succeeded with a cancelled context and no free connection")
	}
}

// openTestPool opens cfg against a temporary database file and closes
// it when the test completes.
func openTestPool(t *testing.T, cfg sqlitepool.Config) *sqlitepool.Pool {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")
	pool, err := sqlitepool.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if pool.Path() != cfg.Path {
		t.Errorf("Path = %q, want %q", pool.Path(), cfg.Path)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
