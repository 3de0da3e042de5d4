// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/seedrelay/lib/clock"
	"github.com/bureau-foundation/seedrelay/lib/codec"
	"github.com/bureau-foundation/seedrelay/lib/testutil"
)

var savedTime = time.Date(2002, time.August, 5, 14, 15, 0, 0, time.UTC)

func sampleState() State {
	var state State
	state.Update(Position{Network: "IU", Station: "KONO", Sequence: 0x1A, Time: savedTime})
	state.Update(Position{Network: "GE", Station: "WLF", Sequence: 7, Time: savedTime.Add(time.Minute)})
	state.Update(Position{Network: "XX", Station: "UNI", Sequence: -1})
	return state
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec     string
		path     string
		interval int
		wantErr  bool
	}{
		{spec: "slink.state", path: "slink.state"},
		{spec: "slink.state:100", path: "slink.state", interval: 100},
		{spec: "slink.state:0x10", path: "slink.state", interval: 16},
		{spec: "slink.state:1000000000", path: "slink.state", interval: 1000000000},
		{spec: "slink.state:1000000001", wantErr: true},
		{spec: "slink.state:ten", wantErr: true},
		{spec: "slink.state:-1", wantErr: true},
		{spec: "slink.state:", wantErr: true},
		{spec: ":5", wantErr: true},
	}
	for _, test := range tests {
		path, interval, err := ParseSpec(test.spec)
		if test.wantErr {
			if !errors.Is(err, ErrConfig) {
				t.Errorf("ParseSpec(%q) error = %v, want ErrConfig", test.spec, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSpec(%q): %v", test.spec, err)
			continue
		}
		if path != test.path || interval != test.interval {
			t.Errorf("ParseSpec(%q) = %q, %d", test.spec, path, interval)
		}
	}
}

func TestBackendsRoundTrip(t *testing.T) {
	for _, name := range []string{"state.txt", "state", "state.db", "state.sqlite3", "state.cbor", "state.cbor.zst", "state.cbor.lz4"} {
		t.Run(name, func(t *testing.T) {
			store, err := Open(filepath.Join(t.TempDir(), name), nil, testutil.Logger(t))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer store.Close()

			if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Load before Save: %v, want ErrNotFound", err)
			}

			first := sampleState()
			if err := store.Save(first); err != nil {
				t.Fatalf("Save: %v", err)
			}
			second := first.Clone()
			second.Update(Position{Network: "IU", Station: "KONO", Sequence: 0x1B, Time: savedTime.Add(time.Hour)})
			if err := store.Save(second); err != nil {
				t.Fatalf("second Save: %v", err)
			}

			loaded, err := store.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			assertStateEqual(t, loaded, second)
		})
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	directory := t.TempDir()
	tests := map[string]string{
		"a.state":    "*checkpoint.TextStore",
		"a.cbor":     "*checkpoint.SnapshotStore",
		"a.cbor.zst": "*checkpoint.SnapshotStore",
		"a.DB":       "*checkpoint.SQLiteStore",
		"a.sqlite":   "*checkpoint.SQLiteStore",
		"a.sqlite3":  "*checkpoint.SQLiteStore",
	}
	for name, want := range tests {
		store, err := Open(filepath.Join(directory, name), nil, nil)
		if err != nil {
			t.Fatalf("Open(%s): %v", name, err)
		}
		if got := reflect.TypeOf(store).String(); got != want {
			t.Errorf("Open(%s) = %s, want %s", name, got, want)
		}
		store.Close()
	}
}

func TestTextStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slink.state")
	store := NewTextStore(path)
	if err := store.Save(sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "GE WLF 7 2002,08,05,14,16,00\n" +
		"IU KONO 26 2002,08,05,14,15,00\n" +
		"XX UNI -1\n"
	if string(data) != want {
		t.Errorf("state file =\n%s\nwant\n%s", data, want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the state file", len(entries))
	}
}

func TestTextStoreRejectsMalformedLines(t *testing.T) {
	for _, content := range []string{
		"IU KONO\n",
		"IU KONO abc\n",
		"IU KONO 5 2002,13,01,00,00,00\n",
		"IU KONO 5 2002,08,05,14,15,00 extra\n",
	} {
		path := filepath.Join(t.TempDir(), "bad.state")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewTextStore(path).Load(); !errors.Is(err, ErrCorrupt) {
			t.Errorf("Load(%q) error = %v, want ErrCorrupt", strings.TrimSpace(content), err)
		}
	}
}

func TestSnapshotStoreDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	store := NewSnapshotStore(path, CompressionNone, nil)
	if err := store.Save(sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	index := strings.Index(string(data), "KONO")
	if index < 0 {
		t.Fatal("encoded snapshot does not contain the station name")
	}
	data[index] = 'X'
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load error = %v, want ErrCorrupt", err)
	}

	if err := os.WriteFile(path, []byte("not cbor"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load(garbage) error = %v, want ErrCorrupt", err)
	}
}

func TestCompressedSnapshotDetectsCorruption(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.cbor")
			store := NewSnapshotStore(path, compression, nil)
			if err := store.Save(sampleState()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if _, err := NewSnapshotStore(path, CompressionNone, nil).Load(); !errors.Is(err, ErrCorrupt) {
				t.Errorf("reading compressed file as plain CBOR: %v, want ErrCorrupt", err)
			}
			if err := os.WriteFile(path, []byte("not compressed"), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Load(); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Load(garbage) error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestSnapshotKeepsMicroseconds(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "state.cbor"), CompressionNone, nil)
	var state State
	state.Update(Position{Network: "IU", Station: "KONO", Sequence: 1, Time: savedTime.Add(1234 * time.Microsecond)})
	if err := store.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertStateEqual(t, loaded, state)
}

func TestSavesAreStampedByClock(t *testing.T) {
	stamp := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.cbor")
		if err := NewSnapshotStore(path, CompressionNone, clock.Fake(stamp)).Save(sampleState()); err != nil {
			t.Fatalf("Save: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var envelope snapshot
		if err := codec.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("decoding snapshot: %v", err)
		}
		if !envelope.SavedAt.Equal(stamp) {
			t.Errorf("saved_at = %v, want %v", envelope.SavedAt, stamp)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"), clock.Fake(stamp), testutil.Logger(t))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		defer store.Close()
		if err := store.Save(sampleState()); err != nil {
			t.Fatalf("Save: %v", err)
		}

		conn, err := store.pool.Take(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		defer store.pool.Put(conn)
		var stamps []int64
		err = sqlitex.Execute(conn, "SELECT DISTINCT saved_at FROM stream_position", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stamps = append(stamps, stmt.ColumnInt64(0))
				return nil
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(stamps) != 1 || stamps[0] != stamp.UnixMicro() {
			t.Errorf("saved_at values = %v, want [%d]", stamps, stamp.UnixMicro())
		}
	})
}

func assertStateEqual(t *testing.T, got, want State) {
	t.Helper()
	if len(got.Streams) != len(want.Streams) {
		t.Fatalf("got %d streams, want %d: %+v", len(got.Streams), len(want.Streams), got.Streams)
	}
	for i := range want.Streams {
		g, w := got.Streams[i], want.Streams[i]
		if g.Network != w.Network || g.Station != w.Station || g.Sequence != w.Sequence || !g.Time.Equal(w.Time) {
			t.Errorf("stream %d = %+v, want %+v", i, g, w)
		}
	}
}
