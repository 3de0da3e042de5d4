// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the delivery controller: the single loop
// that pulls packets from a SeedLink source, translates data records,
// and forwards them to a DataLink sink.
//
// The controller is a four-state machine:
//
//	RUNNING       pull the next packet; forward data-bearing records
//	RECONNECTING  the sink failed; reconnect with a fixed backoff and
//	              retry the same record until it is accepted
//	DRAINING      the source ended or failed; close both sessions and
//	              save the final checkpoint
//	STOPPED       terminal
//
// A record is never dropped because the sink is unavailable. The only
// loss window is termination during RECONNECTING, which abandons at
// most one record; that record's position is not advanced, so a
// restart resumes at it.
//
// Positions are tracked from delivered records rather than received
// ones. A record whose header cannot be parsed is consumed: it is
// dropped and its position advances.
package relay
