// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the binary entrypoint helpers used before a
// structured logger exists or after main has given up on one.
package process
