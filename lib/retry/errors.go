// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"errors"
	"fmt"
)

// TerminalError is a failure the policy did not retry: a
// non-retryable kind, or a cancellation between attempts.
type TerminalError struct {
	// Unit names the unit of work ("block 3").
	Unit string

	// Attempt is the one-based attempt that failed.
	Attempt int

	// Kind is the classification that stopped the retries.
	Kind Kind

	// Err is the underlying failure.
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s failed (%s error, attempt %d): %v", e.Unit, e.Kind, e.Attempt, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// RetryKind lets an outer policy see the original classification.
func (e *TerminalError) RetryKind() Kind { return e.Kind }

// ExhaustedError is a unit of work that failed transiently on every
// attempt.
type ExhaustedError struct {
	// Unit names the unit of work.
	Unit string

	// Attempts is the number of attempts made.
	Attempts int

	// Err is the failure from the final attempt.
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Unit, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// RetryKind reports KindTransient: the budget is spent, but nothing
// about the failure itself forbids a later attempt.
func (e *ExhaustedError) RetryKind() Kind { return KindTransient }

// IsExhausted reports whether err is or wraps an *ExhaustedError.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// IsTerminal reports whether err is or wraps a *TerminalError.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}
