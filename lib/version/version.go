// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
)

// Set via -ldflags at build time.
var (
	// Version is the release version.
	Version = "0.7.0"

	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Info returns the version with its build provenance, e.g.
// "0.7.0 (abc1234, 2026-10-01T12:00:00Z)".
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Banner returns the one-line program identification used for -V
// and the startup log line.
func Banner(program string) string {
	return fmt.Sprintf("%s version: %s", program, Version)
}

// Print writes the banner plus build details to w.
func Print(w io.Writer, program string) {
	fmt.Fprintf(w, "%s\n  build: %s\n  go: %s %s/%s\n",
		Banner(program), Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
