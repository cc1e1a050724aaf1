// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/panbackup/lib/retry"
)

var (
	// ErrSessionClosed is returned for calls on a finalized or
	// abandoned session.
	ErrSessionClosed = errors.New("upload session closed")

	// ErrManifestMismatch is returned when Finalize is given a
	// manifest that differs from the one the session was opened with.
	ErrManifestMismatch = errors.New("manifest does not match the manifest declared at precreate")
)

// PrecreateError is a precreate response without a usable upload id.
type PrecreateError struct {
	Path     string
	Response string
}

func (e *PrecreateError) Error() string {
	return fmt.Sprintf("precreate %s: no upload id in response %s", e.Path, e.Response)
}

func (e *PrecreateError) RetryKind() retry.Kind { return retry.KindMalformed }

// ManifestError is an upload whose manifest does not describe the
// artifact: wrong size, wrong block count or an unknown digest. Retrying
// cannot fix it.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("opening upload of %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

func (e *ManifestError) RetryKind() retry.Kind { return retry.KindClient }

// FinalizeError is a create response without a file id: the merge did
// not complete.
type FinalizeError struct {
	Path     string
	Response string
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("create %s: no file id in response %s", e.Path, e.Response)
}

func (e *FinalizeError) RetryKind() retry.Kind { return retry.KindMalformed }

// IncompleteError is a Finalize call made before every block was
// acknowledged.
type IncompleteError struct {
	Path    string
	Missing []int
	Total   int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("finalizing %s: %d of %d blocks not uploaded (first missing: %d)",
		e.Path, len(e.Missing), e.Total, e.Missing[0])
}

func (e *IncompleteError) RetryKind() retry.Kind { return retry.KindClient }

// BlockMismatchError is a block whose bytes do not hash to the
// manifest digest. Remote is true when the service's digest of the
// received bytes disagreed (a corrupted transfer, worth re-sending);
// false when the local bytes changed after the manifest was computed.
type BlockMismatchError struct {
	Index  int
	Want   string
	Got    string
	Remote bool
}

func (e *BlockMismatchError) Error() string {
	side := "local"
	if e.Remote {
		side = "remote"
	}
	return fmt.Sprintf("block %d: %s digest %s does not match manifest digest %s", e.Index, side, e.Got, e.Want)
}

func (e *BlockMismatchError) RetryKind() retry.Kind {
	if e.Remote {
		return retry.KindTransient
	}
	return retry.KindClient
}
