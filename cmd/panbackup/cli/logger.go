// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates the structured logger for a command. When
// stderr is a terminal it uses slog.TextHandler for human-readable
// output; when stderr is piped or redirected (cron, systemd, CI) it
// uses slog.JSONHandler so log collectors can parse every record.
func NewCommandLogger(verbose bool) *slog.Logger {
	return newLogger(os.Stderr, IsTerminal(os.Stderr), verbose)
}

func newLogger(w io.Writer, terminal, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// IsTerminal reports whether file is attached to a terminal.
func IsTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}
