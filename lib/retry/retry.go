// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retry wraps a single remote call with bounded exponential
// backoff.
//
// Every failure is classified before the policy decides what to do
// with it. An error opts into a classification by implementing
// RetryKind; the netdisk client's APIError, the credential AuthError
// and the upload protocol errors all do. Client, auth and malformed
// failures end the unit of work after the attempt that produced them.
// Transient failures (the default for anything unclassified, including
// transport errors) are retried until the attempt budget is spent.
//
// With the default policy a unit of work gets three attempts, waiting
// one, then two seconds between them:
//
//	err := policy.Do(ctx, "block 3", func(ctx context.Context) error {
//	    return session.UploadBlock(ctx, 3, data)
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/panbackup/lib/clock"
)

// Kind classifies a failure for retry eligibility.
type Kind int

const (
	// KindTransient covers network failures, timeouts, rate limits
	// and server-side errors. The only retryable kind.
	KindTransient Kind = iota

	// KindClient is a request the service refused on its merits:
	// bad parameters, a conflicting path, a missing file.
	KindClient

	// KindAuth is a missing, invalid or expired credential.
	KindAuth

	// KindMalformed is a response that parsed but did not carry what
	// the protocol requires (an upload id, a file id).
	KindMalformed

	// KindCanceled is a context cancellation or deadline.
	KindCanceled
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindClient:
		return "client"
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable reports whether a failure of this kind may be attempted
// again.
func (k Kind) Retryable() bool { return k == KindTransient }

// Classifier is implemented by errors that know their own kind.
type Classifier interface {
	RetryKind() Kind
}

// Classify returns the kind of err. Context errors are KindCanceled
// (Do retries a deadline while its own ctx is still live);
// errors carrying a Classifier anywhere in their chain report that
// classification; everything else is KindTransient.
func Classify(err error) Kind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.RetryKind()
	}
	return KindTransient
}

// Defaults for a zero Policy.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy is a bounded exponential backoff. The zero value is usable
// and applies the defaults.
type Policy struct {
	// MaxAttempts is the total number of attempts per unit of work,
	// including the first. Zero selects DefaultMaxAttempts.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt. The wait
	// after attempt k (zero-based) is BaseDelay * 2^k. Zero selects
	// DefaultBaseDelay; a negative value disables waiting.
	BaseDelay time.Duration

	// Clock provides backoff waits. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives one record per failed attempt. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Delay returns the wait that follows failed attempt (zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base == 0 {
		base = DefaultBaseDelay
	}
	if base < 0 {
		return 0
	}
	return base << attempt
}

// Do runs fn until it succeeds, fails with a non-retryable kind, or
// the attempt budget is exhausted. The unit names the work in errors
// and logs ("block 3", "precreate").
//
// A terminal failure is returned as *TerminalError; running out of
// attempts is returned as *ExhaustedError. Both unwrap to the last
// error fn returned. Backoff waits end early when ctx is done.
func (p Policy) Do(ctx context.Context, unit string, fn func(context.Context) error) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempts := p.maxAttempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &TerminalError{Unit: unit, Attempt: attempt, Kind: KindCanceled, Err: err}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := Classify(err)
		if kind == KindCanceled && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			// A deadline fn set on its own call expired: a timed-out
			// request, not the caller giving up.
			kind = KindTransient
		}
		if !kind.Retryable() {
			return &TerminalError{Unit: unit, Attempt: attempt + 1, Kind: kind, Err: err}
		}

		if attempt == attempts-1 {
			break
		}

		delay := p.Delay(attempt)
		logger.Warn("attempt failed, retrying",
			"unit", unit,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-clk.After(delay):
		case <-ctx.Done():
			return &TerminalError{Unit: unit, Attempt: attempt + 1, Kind: KindCanceled, Err: ctx.Err()}
		}
	}

	return &ExhaustedError{Unit: unit, Attempts: attempts, Err: lastErr}
}

// Value is Do for functions that return a result.
func Value[T any](ctx context.Context, policy Policy, unit string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := policy.Do(ctx, unit, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
