// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern used when a test waits on a goroutine driven by a fake
// clock. They are the only place tests use real wall-clock timeouts;
// a hang fails the test instead of stalling the suite.
package testutil
