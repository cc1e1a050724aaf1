// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backup runs one complete backup: acquire a credential,
// archive the local directory, compute its block manifest, upload it
// through the chunked protocol, prune old backup sets, and remove the
// local archive.
//
// The stages run strictly in that order and a failure stops the run,
// with two exceptions. Retention failures are logged and reported in
// Report.RetentionErr but do not fail a run whose upload succeeded.
// Cleanup of the local archive runs on every exit path once the
// archive exists, including failures and cancellation.
package backup
