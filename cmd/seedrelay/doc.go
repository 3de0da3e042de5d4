// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// seedrelay forwards miniSEED records from a SeedLink server to a
// DataLink server.
//
//	seedrelay [options] slhost dlhost
//
// It subscribes to the SeedLink server (all streams, or the stations
// named with -S or -l), optionally rewrites each record's network
// code, and writes every data record to the DataLink server. When the
// DataLink server goes away the record in hand is retried, with a
// fixed backoff between reconnection attempts, until it is accepted.
//
// With -x the per-stream positions are saved to a state file and the
// subscription resumes from them on the next start. The file's
// extension picks the format: .db, .sqlite and .sqlite3 use SQLite,
// .cbor a checksummed snapshot, anything else the SeedLink text state
// format.
//
// SIGINT, SIGQUIT and SIGTERM stop the relay after the current
// record; SIGHUP and SIGPIPE are ignored.
//
// Exit status is 0 after a clean shutdown (including one caused by a
// SeedLink failure, which is logged), 1 for a usage or configuration
// error, and 2 when the DataLink server was never reached before
// termination.
package main
