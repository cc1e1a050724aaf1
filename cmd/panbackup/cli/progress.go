// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/panbackup/lib/backup"
	"github.com/bureau-foundation/panbackup/lib/retry"
)

const progressWidth = 30

// ProgressBar draws a single-line upload progress bar on a terminal.
// It is a backup.Observer; every event redraws the line in place.
type ProgressBar struct {
	out      io.Writer
	filled   lipgloss.Style
	empty    lipgloss.Style
	label    lipgloss.Style
	mu       sync.Mutex
	done     int
	total    int
	stage    backup.Stage
	lastLine int
}

// NewProgressBar creates a bar writing to out. A nil profile detects
// the terminal's color support; tests pass termenv.Ascii.
func NewProgressBar(out io.Writer, profile *termenv.Profile) *ProgressBar {
	renderer := lipgloss.NewRenderer(out)
	if profile != nil {
		renderer.SetColorProfile(*profile)
	}
	return &ProgressBar{
		out:    out,
		filled: renderer.NewStyle().Foreground(lipgloss.Color("#5A9")),
		empty:  renderer.NewStyle().Foreground(lipgloss.Color("240")),
		label:  renderer.NewStyle().Bold(true),
	}
}

func (p *ProgressBar) OnStage(stage backup.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stage == backup.StageUpload && stage != backup.StageUpload {
		p.finishLocked()
	}
	p.stage = stage
	if stage == backup.StageUpload {
		p.done, p.total = 0, 0
	}
}

func (p *ProgressBar) OnProgress(_, totalBlocks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.total = totalBlocks
	p.drawLocked()
}

func (p *ProgressBar) OnError(retry.Kind, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

// Render returns the bar for done of total blocks.
func (p *ProgressBar) Render(done, total int) string {
	fraction := 0.0
	if total > 0 {
		fraction = float64(done) / float64(total)
	}
	filled := int(fraction * progressWidth)
	bar := p.filled.Render(strings.Repeat("█", filled)) +
		p.empty.Render(strings.Repeat("░", progressWidth-filled))
	return fmt.Sprintf("%s %s %3.0f%% (%d/%d blocks)",
		p.label.Render("upload"), bar, fraction*100, done, total)
}

func (p *ProgressBar) drawLocked() {
	line := p.Render(p.done, p.total)
	width := ansi.StringWidth(line)
	padding := ""
	if p.lastLine > width {
		padding = strings.Repeat(" ", p.lastLine-width)
	}
	p.lastLine = width
	fmt.Fprintf(p.out, "\r%s%s", line, padding)
}

// finishLocked ends the bar's line so later output starts clean.
func (p *ProgressBar) finishLocked() {
	if p.lastLine > 0 {
		fmt.Fprintln(p.out)
		p.lastLine = 0
	}
}
