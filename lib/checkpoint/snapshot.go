// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/seedrelay/lib/clock"
	"github.com/bureau-foundation/seedrelay/lib/codec"
)

// snapshotVersion is the envelope format version.
const snapshotVersion = 1

// snapshot is the on-disk envelope. Streams holds the encoded
// position list so the digest covers exactly the bytes written.
type snapshot struct {
	Version int              `cbor:"version"`
	SavedAt time.Time        `cbor:"saved_at"`
	Streams codec.RawMessage `cbor:"streams"`
	Digest  []byte           `cbor:"digest"`
}

// SnapshotStore keeps State in a CBOR file with a BLAKE3 digest of
// the stream list, so a torn or edited file is detected on Load. The
// file may be compressed as a whole.
type SnapshotStore struct {
	path        string
	compression Compression
	clock       clock.Clock
}

// NewSnapshotStore returns a store for the file at path. clk stamps
// each snapshot; nil means the real clock.
func NewSnapshotStore(path string, compression Compression, clk clock.Clock) *SnapshotStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &SnapshotStore{path: path, compression: compression, clock: clk}
}

// Save writes state atomically.
func (s *SnapshotStore) Save(state State) error {
	streams := state.Streams
	if streams == nil {
		streams = []Position{}
	}
	encoded, err := codec.Marshal(streams)
	if err != nil {
		return fmt.Errorf("checkpoint: encoding streams: %w", err)
	}
	digest := blake3.Sum256(encoded)
	data, err := codec.Marshal(snapshot{
		Version: snapshotVersion,
		SavedAt: s.clock.Now().UTC(),
		Streams: encoded,
		Digest:  digest[:],
	})
	if err != nil {
		return fmt.Errorf("checkpoint: encoding snapshot: %w", err)
	}
	if data, err = s.compression.compress(data); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("checkpoint: saving %s: %w", s.path, err)
	}
	return nil
}

// Load reads and verifies the snapshot.
func (s *SnapshotStore) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: reading %s: %w", s.path, err)
	}
	if data, err = s.compression.decompress(data); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	var envelope snapshot
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if envelope.Version != snapshotVersion {
		return State{}, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, s.path, envelope.Version)
	}
	digest := blake3.Sum256(envelope.Streams)
	if !bytes.Equal(digest[:], envelope.Digest) {
		return State{}, fmt.Errorf("%w: %s: digest mismatch", ErrCorrupt, s.path)
	}
	var streams []Position
	if err := codec.Unmarshal(envelope.Streams, &streams); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return normalize(streams), nil
}

// Close is a no-op.
func (s *SnapshotStore) Close() error {
	return nil
}
