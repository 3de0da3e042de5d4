// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"cmp"
	"slices"
	"time"
)

// Position is the last delivered point of one subscription stream.
type Position struct {
	Network string `cbor:"network"`
	Station string `cbor:"station"`

	// Sequence is the 24-bit SeedLink sequence number of the last
	// delivered packet, or -1 when unknown.
	Sequence int64 `cbor:"sequence"`

	// Time is the start time of the last delivered record. The zero
	// value means unknown.
	Time time.Time `cbor:"time"`
}

// State holds one Position per stream, sorted by network then
// station.
type State struct {
	Streams []Position
}

func comparePosition(a Position, network, station string) int {
	return cmp.Or(cmp.Compare(a.Network, network), cmp.Compare(a.Station, station))
}

// Update inserts position, replacing any existing entry for the same
// network and station.
func (s *State) Update(position Position) {
	index, found := slices.BinarySearchFunc(s.Streams, position, func(existing, target Position) int {
		return comparePosition(existing, target.Network, target.Station)
	})
	if found {
		s.Streams[index] = position
		return
	}
	s.Streams = slices.Insert(s.Streams, index, position)
}

// Lookup returns the position recorded for network and station.
func (s State) Lookup(network, station string) (Position, bool) {
	index, found := slices.BinarySearchFunc(s.Streams, Position{}, func(existing, _ Position) int {
		return comparePosition(existing, network, station)
	})
	if !found {
		return Position{}, false
	}
	return s.Streams[index], true
}

// Clone returns a State that shares no memory with s.
func (s State) Clone() State {
	return State{Streams: slices.Clone(s.Streams)}
}

// Len returns the number of tracked streams.
func (s State) Len() int {
	return len(s.Streams)
}

// normalize sorts streams loaded from storage and collapses
// duplicates, keeping the last occurrence.
func normalize(streams []Position) State {
	var state State
	for _, position := range streams {
		state.Update(position)
	}
	return state
}
