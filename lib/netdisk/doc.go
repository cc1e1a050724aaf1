// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netdisk is a client for the Baidu Netdisk "xpan" open API,
// limited to the calls a backup needs: the three-phase chunked upload
// (precreate, superfile2, create), directory listing and batch delete.
//
// Every request carries the OAuth access token from a TokenSource as
// the access_token query parameter. Apps may only write beneath
// /apps/<app name>/, which ValidateRemoteDir enforces before a run
// starts.
//
// The service reports most failures as HTTP 200 with a non-zero errno
// in the body; the PCS upload host reports them as error_code with a
// 4xx status. Both surface as *APIError, which classifies itself for
// lib/retry: rejected requests and auth failures are terminal, rate
// limiting, 5xx and unknown errnos are transient. Transport errors are
// returned unwrapped by APIError and are transient by default.
//
// The client does not retry. Callers wrap individual calls with a
// retry.Policy so the unit of work (one block, one listing) is what
// gets retried.
package netdisk
