// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the relay's CBOR encoding configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. The same logical value always produces the same bytes, which
// lets checkpoint snapshots carry a digest of their encoded streams.
//
// Times are encoded as RFC 3339 strings with nanoseconds so that
// microsecond record start times survive a round trip.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types serialized only as CBOR use `cbor` struct tags.
package codec
