// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for code that waits.
//
// The retry policy, the credential source and the backup orchestrator
// take a Clock instead of calling time.Now, time.After or time.Sleep.
// Production code passes Real(). Tests pass Fake(), which only moves
// when Advance is called, so backoff schedules and token expiry can be
// asserted without sleeping:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go func() { done <- policy.Do(ctx, "block 0", upload) }()
//	fake.WaitForTimers(1)    // the first backoff wait is registered
//	fake.Advance(time.Second) // release it
//
// FakeClock also records every duration it was asked to wait for
// (Waits), which is how tests check the exact backoff sequence.
package clock
