// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/seedrelay/lib/clock"
	"github.com/bureau-foundation/seedrelay/lib/sqlitepool"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stream_position (
	network  TEXT    NOT NULL,
	station  TEXT    NOT NULL,
	sequence INTEGER NOT NULL,
	time_us  INTEGER,
	saved_at INTEGER NOT NULL,
	PRIMARY KEY (network, station)
) WITHOUT ROWID;
`

// SQLiteStore keeps State in a SQLite database, one row per stream.
// Save replaces every row in one immediate transaction.
type SQLiteStore struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

// OpenSQLite opens (creating if needed) the database at path. clk
// stamps saved rows; nil means the real clock.
func OpenSQLite(path string, clk clock.Clock, logger *slog.Logger) (*SQLiteStore, error) {
	if clk == nil {
		clk = clock.Real()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: 1,
		Durable:  true,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return &SQLiteStore{pool: pool, clock: clk}, nil
}

// Save replaces the stored positions with state.
func (s *SQLiteStore) Save(state State) (err error) {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("checkpoint: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, "DELETE FROM stream_position", nil); err != nil {
		return fmt.Errorf("checkpoint: clearing positions: %w", err)
	}
	savedAt := s.clock.Now().UnixMicro()
	for _, position := range state.Streams {
		var timeValue any
		if !position.Time.IsZero() {
			timeValue = position.Time.UnixMicro()
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO stream_position (network, station, sequence, time_us, saved_at)
			VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{position.Network, position.Station, position.Sequence, timeValue, savedAt},
			})
		if err != nil {
			return fmt.Errorf("checkpoint: saving %s_%s: %w", position.Network, position.Station, err)
		}
	}
	return nil
}

// Load reads every stored position.
func (s *SQLiteStore) Load() (State, error) {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: load: %w", err)
	}
	defer s.pool.Put(conn)

	var streams []Position
	err = sqlitex.Execute(conn,
		"SELECT network, station, sequence, time_us FROM stream_position ORDER BY network, station",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				position := Position{
					Network:  stmt.ColumnText(0),
					Station:  stmt.ColumnText(1),
					Sequence: stmt.ColumnInt64(2),
				}
				if stmt.ColumnType(3) != sqlite.TypeNull {
					position.Time = time.UnixMicro(stmt.ColumnInt64(3)).UTC()
				}
				streams = append(streams, position)
				return nil
			},
		})
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: load: %w", err)
	}
	if len(streams) == 0 {
		return State{}, ErrNotFound
	}
	return normalize(streams), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
