// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// recorder captures Fatalf instead of stopping the test. Fatalf panics
// so the helper unwinds the way runtime.Goexit would.
type recorder struct {
	message string
}

type fatal struct{}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.message = fmt.Sprintf(format, args...)
	panic(fatal{})
}

func capture(fn func(TB)) (message string) {
	r := &recorder{}
	defer func() {
		if recovered := recover(); recovered != nil {
			if _, ok := recovered.(fatal); !ok {
				panic(recovered)
			}
		}
		message = r.message
	}()
	fn(r)
	return ""
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 42
	if got := RequireReceive(t, ch, time.Second, "value"); got != 42 {
		t.Errorf("RequireReceive = %d, want 42", got)
	}
}

func TestRequireReceiveTimeout(t *testing.T) {
	message := capture(func(tb TB) {
		RequireReceive(tb, make(chan int), time.Millisecond, "waiting for %s", "block 3")
	})
	if !strings.Contains(message, "timed out") || !strings.Contains(message, "waiting for block 3") {
		t.Errorf("message = %q", message)
	}
}

func TestRequireReceiveClosed(t *testing.T) {
	ch := make(chan int)
	close(ch)
	message := capture(func(tb TB) {
		RequireReceive(tb, ch, time.Second)
	})
	if !strings.Contains(message, "closed without sending") || !strings.Contains(message, "(no message)") {
		t.Errorf("message = %q", message)
	}
}

func TestRequireClosed(t *testing.T) {
	done := make(chan struct{})
	close(done)
	RequireClosed(t, done, time.Second, "done")

	message := capture(func(tb TB) {
		RequireClosed(tb, make(chan struct{}), time.Millisecond, "ready")
	})
	if !strings.Contains(message, "ready") {
		t.Errorf("message = %q", message)
	}
}
