// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestBanner(t *testing.T) {
	got := Banner("seedrelay")
	want := "seedrelay version: " + Version
	if got != want {
		t.Fatalf("Banner = %q, want %q", got, want)
	}
}

func TestPrintIncludesBanner(t *testing.T) {
	var buffer bytes.Buffer
	Print(&buffer, "seedrelay")
	if !strings.HasPrefix(buffer.String(), Banner("seedrelay")+"\n") {
		t.Fatalf("Print output does not start with banner: %q", buffer.String())
	}
	if !strings.Contains(buffer.String(), GitCommit) {
		t.Fatalf("Print output missing commit: %q", buffer.String())
	}
}
