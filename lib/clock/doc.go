// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The delivery controller sleeps a fixed interval between sink
// reconnect attempts, and the SeedLink session sends a keepalive after
// a quiet period. Both take a Clock so tests can drive them without
// real waits:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go controller.Run(ctx)
//	fake.WaitForTimers(1)          // controller is now sleeping
//	fake.Advance(10 * time.Second) // wake it deterministically
//
// WaitForTimers closes the race between a goroutine registering a
// sleep and the test advancing time.
package clock
