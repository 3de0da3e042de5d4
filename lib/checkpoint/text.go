// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/bureau-foundation/seedrelay/lib/hptime"
)

// TextStore keeps State in a SeedLink client state file: one
// "NET STA SEQ YYYY,MM,DD,HH,MM,SS" line per stream. A sequence of -1
// means unknown, and the time field is omitted when unknown.
type TextStore struct {
	path string
}

// NewTextStore returns a store for the file at path.
func NewTextStore(path string) *TextStore {
	return &TextStore{path: path}
}

// Path returns the state file path.
func (s *TextStore) Path() string {
	return s.path
}

// Save writes state atomically.
func (s *TextStore) Save(state State) error {
	var buffer bytes.Buffer
	for _, position := range state.Streams {
		fmt.Fprintf(&buffer, "%s %s %d", position.Network, position.Station, position.Sequence)
		if !position.Time.IsZero() {
			buffer.WriteByte(' ')
			buffer.WriteString(hptime.FromTime(position.Time).SeedLinkString())
		}
		buffer.WriteByte('\n')
	}
	if err := writeFileAtomic(s.path, buffer.Bytes()); err != nil {
		return fmt.Errorf("checkpoint: saving %s: %w", s.path, err)
	}
	return nil
}

// Load parses the state file.
func (s *TextStore) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("checkpoint: reading %s: %w", s.path, err)
	}

	var streams []Position
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		position, err := parseTextLine(text)
		if err != nil {
			return State{}, fmt.Errorf("%w: %s:%d: %v", ErrCorrupt, s.path, line, err)
		}
		streams = append(streams, position)
	}
	if err := scanner.Err(); err != nil {
		return State{}, fmt.Errorf("checkpoint: reading %s: %w", s.path, err)
	}
	return normalize(streams), nil
}

// Close is a no-op.
func (s *TextStore) Close() error {
	return nil
}

func parseTextLine(text string) (Position, error) {
	fields := strings.Fields(text)
	if len(fields) < 3 || len(fields) > 4 {
		return Position{}, fmt.Errorf("expected NET STA SEQ [TIME], got %q", text)
	}
	sequence, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || sequence < -1 || sequence > 0xFFFFFF {
		return Position{}, fmt.Errorf("bad sequence number %q", fields[2])
	}
	position := Position{Network: fields[0], Station: fields[1], Sequence: sequence}
	if len(fields) == 4 {
		value, err := hptime.Parse(fields[3])
		if err != nil {
			return Position{}, err
		}
		position.Time = value.Std()
	}
	return position, nil
}
