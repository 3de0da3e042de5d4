// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seedlink is a SeedLink v3 client for subscribing to
// real-time miniSEED streams.
//
// A [Session] negotiates its subscription lazily on the first call to
// [Session.Next], then returns one [Packet] per call. Two subscription
// modes exist:
//
//   - uni-station: the server's default station, filtered by
//     selectors. Packets are attributed to the stream "XX"/"UNI".
//   - multi-station: one STATION/SELECT/DATA group per configured
//     stream, closed with END. Packets are attributed to the stream
//     whose network and station match the record header.
//
// Packet classification follows the SeedLink packet types. Only the
// six miniSEED record types report [PacketType.DataBearing]; INFO
// responses, including the ones solicited by the idle keepalive, never
// do.
//
// Termination is cooperative: [Session.Terminate] (or cancelling the
// context passed to Next) makes a blocked read return promptly, and
// Next reports [ErrEndOfStream].
package seedlink
