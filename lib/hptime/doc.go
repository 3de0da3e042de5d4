// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hptime implements the high-precision time representation
// used on the DataLink wire: a signed count of microseconds since the
// Unix epoch. WRITE commands carry the start and end of each record in
// this form.
//
// The package also handles the time string formats that appear around
// seismic data:
//
//   - SEED ordinal time: "2002,217,14:00:00.000000"
//   - ISO 8601: "2002-08-05T14:00:00.000000"
//   - month-day: "2002-08-05 14:00:00.000000"
//   - SeedLink command time: "2002,08,05,14,00,00" (see [Time.SeedLinkString])
//
// It provides day-of-year conversions with the 1900-2100 range check
// that SEED data headers assume.
package hptime
