// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers: mapping the
// error returned by run() onto a process exit status, and reporting
// it on stderr where the structured logger may not exist yet.
//
// An error carries its exit status by implementing ExitCode() int,
// usually by wrapping it with [WithCode]. Any other non-nil error
// exits 1.
package process
