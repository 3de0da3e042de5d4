// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/seedrelay/lib/config"
	"github.com/bureau-foundation/seedrelay/lib/relay"
)

// newLogger builds the process logger. Verbosity 0 logs at info, 1 at
// debug, 2 and above at trace. The auto format is text on a terminal
// and JSON otherwise.
func newLogger(w io.Writer, settings config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case settings.Verbosity >= 2:
		level = relay.LevelTrace
	case settings.Verbosity == 1:
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}

	text := settings.Format == config.FormatText
	if settings.Format == config.FormatAuto {
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			text = true
		}
	}
	if text {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// replaceLevel names the trace level, which slog would print as
// DEBUG-4.
func replaceLevel(groups []string, attr slog.Attr) slog.Attr {
	if attr.Key != slog.LevelKey || len(groups) > 0 {
		return attr
	}
	if level, ok := attr.Value.Any().(slog.Level); ok && level == relay.LevelTrace {
		attr.Value = slog.StringValue("TRACE")
	}
	return attr
}
