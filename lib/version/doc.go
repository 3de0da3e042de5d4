// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for seedrelay.
//
// [Version], [GitCommit] and [BuildTime] are injected with -ldflags -X
// and default to development values otherwise. [Banner] produces the
// "seedrelay version: X" line printed by -V and logged at startup.
package version
