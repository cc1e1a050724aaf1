// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/panbackup/lib/clock"
	"github.com/bureau-foundation/panbackup/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type kindError struct{ kind Kind }

func (e kindError) Error() string   { return "classified failure: " + e.kind.String() }
func (e kindError) RetryKind() Kind { return e.kind }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runAsync starts policy.Do in a goroutine and returns a channel for
// its result.
func runAsync(policy Policy, fn func(context.Context) error) <-chan error {
	result := make(chan error, 1)
	go func() { result <- policy.Do(context.Background(), "block 7", fn) }()
	return result
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	return testutil.RequireReceive(t, result, 5*time.Second, "Do did not return")
}

func TestDoTransientTwiceThenSuccess(t *testing.T) {
	fake := clock.Fake(epoch)
	policy := Policy{Clock: fake, Logger: quietLogger()}

	attempts := 0
	result := runAsync(policy, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	fake.WaitForTimers(1)
	fake.Advance(2 * time.Second)

	if err := waitResult(t, result); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	waits := fake.Waits()
	if len(waits) != 2 {
		t.Fatalf("backoff waits = %v, want exactly 2", waits)
	}
	if waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("backoff waits = %v, want [1s 2s]", waits)
	}
}

func TestDoClientErrorMakesOneAttempt(t *testing.T) {
	fake := clock.Fake(epoch)
	policy := Policy{Clock: fake, Logger: quietLogger()}

	attempts := 0
	err := policy.Do(context.Background(), "block 2", func(context.Context) error {
		attempts++
		return kindError{KindClient}
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("error = %v, want *TerminalError", err)
	}
	if terminal.Unit != "block 2" || terminal.Kind != KindClient || terminal.Attempt != 1 {
		t.Errorf("terminal = %+v", terminal)
	}
	if len(fake.Waits()) != 0 {
		t.Errorf("client error waited: %v", fake.Waits())
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	fake := clock.Fake(epoch)
	policy := Policy{Clock: fake, Logger: quietLogger()}

	attempts := 0
	failure := errors.New("HTTP 503")
	result := runAsync(policy, func(context.Context) error {
		attempts++
		return failure
	})

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	fake.WaitForTimers(1)
	fake.Advance(2 * time.Second)

	err := waitResult(t, result)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *ExhaustedError", err)
	}
	if exhausted.Unit != "block 7" || exhausted.Attempts != 3 {
		t.Errorf("exhausted = %+v", exhausted)
	}
	if !errors.Is(err, failure) {
		t.Error("ExhaustedError does not unwrap to the last failure")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if got := fake.Waits(); len(got) != 2 {
		t.Errorf("waits = %v, want 2 (no wait after the final attempt)", got)
	}
}

func TestDoStopsOnNonRetryableKinds(t *testing.T) {
	for _, kind := range []Kind{KindAuth, KindMalformed} {
		attempts := 0
		err := Policy{Clock: clock.Fake(epoch), Logger: quietLogger()}.Do(context.Background(), "finalize",
			func(context.Context) error {
				attempts++
				return kindError{kind}
			})
		if attempts != 1 {
			t.Errorf("%s: attempts = %d, want 1", kind, attempts)
		}
		if Classify(err) != kind {
			t.Errorf("%s: Classify(result) = %s", kind, Classify(err))
		}
	}
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	fake := clock.Fake(epoch)
	policy := Policy{Clock: fake, Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() {
		result <- policy.Do(ctx, "list", func(context.Context) error {
			return errors.New("timeout")
		})
	}()

	fake.WaitForTimers(1)
	cancel()

	err := waitResult(t, result)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if Classify(err) != KindCanceled {
		t.Errorf("Classify = %s, want canceled", Classify(err))
	}
}

func TestDoRetriesPerCallDeadline(t *testing.T) {
	policy := Policy{BaseDelay: -1, Logger: quietLogger()}
	attempts := 0
	err := policy.Do(context.Background(), "block 0", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			callCtx, cancel := context.WithTimeout(ctx, 0)
			defer cancel()
			<-callCtx.Done()
			return fmt.Errorf("upload block 0: %w", callCtx.Err())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDoStopsOnCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	attempts := 0
	err := Policy{BaseDelay: -1, Logger: quietLogger()}.Do(ctx, "block 0", func(ctx context.Context) error {
		attempts++
		return ctx.Err()
	})
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0 once the caller's deadline passed", attempts)
	}
	if !IsTerminal(err) || Classify(err) != KindCanceled {
		t.Errorf("error = %v (kind %s), want terminal canceled", err, Classify(err))
	}
}

func TestValueReturnsResult(t *testing.T) {
	policy := Policy{BaseDelay: -1, Logger: quietLogger()}
	calls := 0
	got, err := Value(context.Background(), policy, "precreate", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("EOF")
		}
		return "upload-id", nil
	})
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if got != "upload-id" || calls != 2 {
		t.Errorf("Value = %q after %d calls", got, calls)
	}
}

func TestDelaySchedule(t *testing.T) {
	policy := Policy{}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, expected := range want {
		if got := policy.Delay(attempt); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, expected)
		}
	}
	if got := (Policy{BaseDelay: -1}).Delay(2); got != 0 {
		t.Errorf("negative base delay: Delay = %v, want 0", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain", errors.New("boom"), KindTransient},
		{"classified", kindError{KindClient}, KindClient},
		{"wrapped", &ExhaustedError{Unit: "x", Err: kindError{KindAuth}}, KindTransient},
		{"terminal", &TerminalError{Kind: KindMalformed, Err: errors.New("x")}, KindMalformed},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", context.DeadlineExceeded, KindCanceled},
	}
	for _, test := range tests {
		if got := Classify(test.err); got != test.want {
			t.Errorf("%s: Classify = %s, want %s", test.name, got, test.want)
		}
	}
}
