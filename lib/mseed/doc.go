// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mseed reads the fixed section of data header and the
// blockette chain of miniSEED 2.x records.
//
// Only header inspection is supported: sample payloads are never
// decoded. A [Header] is meant to be reused across records so that
// steady-state parsing does not allocate beyond the identifier strings.
//
// Byte order is detected per record from the start time fields, and
// the header may be big- or little-endian independently of the
// encoding declared in blockette 1000.
//
// [RewriteNetwork] edits the network code of a raw record in place,
// padding with spaces the way SEED fixed-width fields require.
package mseed
