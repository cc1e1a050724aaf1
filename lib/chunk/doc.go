// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits an artifact into fixed-size blocks and computes
// the block manifest the remote service uses to verify assembly.
//
// Blocks are contiguous, non-overlapping byte ranges of at most the
// chunk size; only the last block may be shorter. The manifest is the
// ordered list of block digests. Its order is the upload order and the
// order submitted when the upload is finalized, so a Manifest is never
// mutated after it is computed.
//
// The Chunker reads its input exactly once, front to back, through a
// single buffer of chunk-size bytes. Uploading needs the block bytes a
// second time; ReadBlock re-reads one block by index from an
// io.ReaderAt so retries and out-of-order workers never hold the whole
// artifact in memory.
package chunk
