// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// Exit codes. Scripts and monitoring distinguish a failed backup from
// a backup that succeeded but could not prune, and from a
// configuration mistake that will fail every run.
const (
	ExitFailure         = 1
	ExitUsage           = 2
	ExitRetentionFailed = 3
)

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have already reported
// the problem.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish a handled non-zero exit from an
// unexpected error to display.
func (e *ExitError) ExitCode() int {
	return e.Code
}
