// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Prompter shows the authorization URL and reads back the code the
// user was given.
type Prompter interface {
	ReadCode(ctx context.Context, authURL string) (string, error)
}

// TerminalPrompter prompts on a terminal. It refuses to prompt when
// input is not a terminal, so unattended runs fail instead of
// blocking.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter prompts on stdin and stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// ReadCode prints authURL and reads one line.
func (p *TerminalPrompter) ReadCode(ctx context.Context, authURL string) (string, error) {
	if !term.IsTerminal(int(p.In.Fd())) {
		return "", ErrNotTerminal
	}
	fmt.Fprintf(p.Out, "Open this URL in a browser and authorize the application:\n\n  %s\n\nAuthorization code: ", authURL)

	type line struct {
		text string
		err  error
	}
	result := make(chan line, 1)
	go func() {
		reader := bufio.NewReader(p.In)
		text, err := reader.ReadString('\n')
		if err == io.EOF && text != "" {
			err = nil
		}
		result <- line{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case read := <-result:
		if read.err != nil {
			return "", fmt.Errorf("reading authorization code: %w", read.err)
		}
		return read.text, nil
	}
}
