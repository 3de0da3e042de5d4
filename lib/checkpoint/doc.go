// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint persists per-stream delivery positions so that a
// restarted relay resumes where it stopped.
//
// A [State] maps each subscription stream (network and station) to a
// [Position]: the SeedLink sequence number and record start time of
// the last record the sink accepted. [Open] selects a [Store] backend
// from the file extension:
//
//   - .db, .sqlite, .sqlite3: [SQLiteStore], one row per stream,
//     replaced in a single immediate transaction.
//   - .cbor: [SnapshotStore], a deterministic CBOR envelope whose
//     stream list is protected by a BLAKE3 digest. ".cbor.zst" and
//     ".cbor.lz4" compress the file with zstd or LZ4.
//   - anything else: [TextStore], the SeedLink client state file
//     format ("NET STA SEQ YYYY,MM,DD,HH,MM,SS" per line).
//
// File backends replace the whole file atomically (temporary file,
// fsync, rename), so a crash during Save leaves the previous
// checkpoint intact.
package checkpoint
