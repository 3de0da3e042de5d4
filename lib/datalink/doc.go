// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package datalink is a DataLink client for writing miniSEED records
// to a ring server.
//
// Every DataLink packet is framed as
//
//	"DL" | header length (1 byte) | header | payload
//
// The client identifies itself with an ID exchange on connect, then
// sends one WRITE per record:
//
//	WRITE <streamid> <hpstart> <hpend> <A|N> <size>
//
// where the times are microseconds since the Unix epoch and the flag
// requests (A) or waives (N) an acknowledgement. Acknowledgements and
// errors come back as "OK|ERROR <value> <size>" followed by a size
// byte message.
//
// A [Session] never retries: failures are returned to the caller,
// which owns the reconnect policy.
package datalink
