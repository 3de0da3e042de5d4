// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bureau-foundation/seedrelay/lib/clock"
)

// Store saves and loads State.
type Store interface {
	// Save replaces the stored checkpoint with state.
	Save(state State) error

	// Load returns the stored checkpoint, or ErrNotFound when none
	// has been saved.
	Load() (State, error)

	// Close releases the store's resources.
	Close() error
}

// maxInterval bounds the save interval accepted by ParseSpec.
const maxInterval = 1_000_000_000

// ParseSpec splits a "path[:interval]" state file argument. The
// interval is the number of forwarded records between saves; zero (or
// no suffix) saves only at shutdown.
func ParseSpec(spec string) (string, int, error) {
	path, suffix, found := strings.Cut(spec, ":")
	if path == "" {
		return "", 0, fmt.Errorf("%w: state file path is empty", ErrConfig)
	}
	if !found {
		return path, 0, nil
	}
	interval, err := strconv.ParseUint(suffix, 0, 64)
	if err != nil || interval > maxInterval {
		return "", 0, fmt.Errorf("%w: state saving interval specified incorrectly: %q", ErrConfig, suffix)
	}
	return path, int(interval), nil
}

// Open returns the backend for path chosen by its extension. clk
// stamps saved checkpoints; nil means the real clock.
func Open(path string, clk clock.Clock, logger *slog.Logger) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: state file path is empty", ErrConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".cbor.zst"):
		return NewSnapshotStore(path, CompressionZstd, clk), nil
	case strings.HasSuffix(lower, ".cbor.lz4"):
		return NewSnapshotStore(path, CompressionLZ4, clk), nil
	}
	switch filepath.Ext(lower) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path, clk, logger)
	case ".cbor":
		return NewSnapshotStore(path, CompressionNone, clk), nil
	default:
		return NewTextStore(path), nil
	}
}
