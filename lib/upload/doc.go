// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload drives the three-phase chunked upload: precreate,
// one upload per block, and a final create that merges the blocks.
//
// A Session tracks one upload through its states:
//
//	Unopened -> Opened -> Uploading -> Finalized
//	                 \         \
//	                  +---------+--> Abandoned
//
// Open declares the full block manifest up front. UploadBlock may be
// called for any index in any order and more than once for the same
// index (the service overwrites the stored part). Finalize refuses to
// run until every index has been acknowledged, and refuses a manifest
// that differs in any way from the one the session was opened with,
// so the service is never asked to assemble a file it cannot verify.
// A finalized or abandoned session rejects further calls; the upload
// id is never reused for another artifact.
//
// Uploader runs the whole protocol for a local file, wrapping each
// remote call in a retry.Policy and uploading blocks with a bounded
// number of workers that all finish before finalize.
package upload
