// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bureau-foundation/panbackup/lib/chunk"
	"github.com/bureau-foundation/panbackup/lib/digest"
	"github.com/bureau-foundation/panbackup/lib/netdisk"
)

// Remote is the part of the storage service the upload protocol uses.
// *netdisk.Client implements it.
type Remote interface {
	Precreate(ctx context.Context, request netdisk.PrecreateRequest) (*netdisk.PrecreateResponse, error)
	UploadBlock(ctx context.Context, request netdisk.UploadBlockRequest) (*netdisk.UploadBlockResponse, error)
	Create(ctx context.Context, request netdisk.CreateRequest) (*netdisk.CreateResponse, error)
}

// State is a session's position in the upload protocol.
type State int

const (
	StateUnopened State = iota
	StateOpened
	StateUploading
	StateFinalized
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpened:
		return "opened"
	case StateUploading:
		return "uploading"
	case StateFinalized:
		return "finalized"
	case StateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result describes a finalized remote file.
type Result struct {
	FileID   uint64
	Path     string
	Size     int64
	MD5      string
	UploadID string
	Blocks   int
}

// Session is one in-progress upload. It is safe for concurrent
// UploadBlock calls.
type Session struct {
	remote    Remote
	path      string
	size      int64
	manifest  chunk.Manifest
	algorithm digest.Algorithm
	uploadID  string

	mu       sync.Mutex
	state    State
	acked    []bool
	ackCount int
}

// Open requests a new upload session for a file of size bytes whose
// blocks are described by manifest. It fails with *PrecreateError if
// the service does not return an upload id, and with *ManifestError
// when manifest does not describe size bytes.
func Open(ctx context.Context, remote Remote, targetPath string, size int64, manifest chunk.Manifest) (*Session, error) {
	if size != manifest.TotalSize {
		return nil, &ManifestError{Path: targetPath,
			Err: fmt.Errorf("size %d does not match manifest size %d", size, manifest.TotalSize)}
	}
	if want := chunk.BlockCount(size, manifest.ChunkSize); manifest.Len() != want {
		return nil, &ManifestError{Path: targetPath,
			Err: fmt.Errorf("manifest has %d blocks, size %d needs %d", manifest.Len(), size, want)}
	}
	algorithm, err := digest.Lookup(manifest.Algorithm)
	if err != nil {
		return nil, &ManifestError{Path: targetPath, Err: err}
	}

	session := &Session{
		remote:    remote,
		path:      targetPath,
		size:      size,
		manifest:  manifest.Clone(),
		algorithm: algorithm,
		acked:     make([]bool, manifest.Len()),
	}

	response, err := remote.Precreate(ctx, netdisk.PrecreateRequest{
		Path:      targetPath,
		Size:      size,
		BlockList: session.manifest.Digests,
	})
	if err != nil {
		return nil, err
	}
	if response.UploadID == "" {
		return nil, &PrecreateError{Path: targetPath, Response: fmt.Sprintf("%+v", *response)}
	}

	session.uploadID = response.UploadID
	session.state = StateOpened
	return session, nil
}

// UploadID returns the service's session token.
func (s *Session) UploadID() string { return s.uploadID }

// Path returns the remote target path.
func (s *Session) Path() string { return s.path }

// Manifest returns a copy of the manifest the session was opened with.
func (s *Session) Manifest() chunk.Manifest { return s.manifest.Clone() }

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Acknowledged returns how many distinct blocks the service has
// accepted.
func (s *Session) Acknowledged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ackCount
}

func (s *Session) checkActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpened && s.state != StateUploading {
		return fmt.Errorf("%w: session for %s is %s", ErrSessionClosed, s.path, s.state)
	}
	return nil
}

// UploadBlock sends the bytes of block index. The bytes must hash to
// the manifest digest for that index. Repeating an index re-sends the
// block; the service keeps the latest copy.
func (s *Session) UploadBlock(ctx context.Context, index int, data []byte) error {
	if err := s.checkActive(); err != nil {
		return err
	}
	if index < 0 || index >= s.manifest.Len() {
		return fmt.Errorf("block index %d out of range [0, %d)", index, s.manifest.Len())
	}

	want := s.manifest.Digests[index]
	if got := digest.Sum(s.algorithm, data); got != want {
		return &BlockMismatchError{Index: index, Want: want, Got: got}
	}

	response, err := s.remote.UploadBlock(ctx, netdisk.UploadBlockRequest{
		Path:     s.path,
		UploadID: s.uploadID,
		PartSeq:  index,
		Data:     data,
	})
	if err != nil {
		return err
	}
	if s.algorithm == digest.MD5 && response.MD5 != "" && !strings.EqualFold(response.MD5, want) {
		return &BlockMismatchError{Index: index, Want: want, Got: response.MD5, Remote: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpened {
		s.state = StateUploading
	}
	if !s.acked[index] {
		s.acked[index] = true
		s.ackCount++
	}
	return nil
}

// Missing returns the indexes not yet acknowledged, ascending.
func (s *Session) Missing() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []int
	for index, done := range s.acked {
		if !done {
			missing = append(missing, index)
		}
	}
	sort.Ints(missing)
	return missing
}

// Finalize asks the service to assemble the uploaded blocks in
// manifest order. manifest must equal the manifest passed to Open.
func (s *Session) Finalize(ctx context.Context, manifest chunk.Manifest) (*Result, error) {
	if err := s.checkActive(); err != nil {
		return nil, err
	}
	if !manifest.Equal(s.manifest) {
		return nil, fmt.Errorf("finalizing %s: %w", s.path, ErrManifestMismatch)
	}
	if missing := s.Missing(); len(missing) > 0 {
		return nil, &IncompleteError{Path: s.path, Missing: missing, Total: s.manifest.Len()}
	}

	response, err := s.remote.Create(ctx, netdisk.CreateRequest{
		Path:      s.path,
		Size:      s.size,
		UploadID:  s.uploadID,
		BlockList: s.manifest.Digests,
	})
	if err != nil {
		return nil, err
	}
	if response.FsID == 0 {
		return nil, &FinalizeError{Path: s.path, Response: fmt.Sprintf("%+v", *response)}
	}

	s.mu.Lock()
	s.state = StateFinalized
	s.mu.Unlock()

	path := response.Path
	if path == "" {
		path = s.path
	}
	return &Result{
		FileID:   response.FsID,
		Path:     path,
		Size:     s.size,
		MD5:      response.MD5,
		UploadID: s.uploadID,
		Blocks:   s.manifest.Len(),
	}, nil
}

// Abandon moves the session to its terminal failure state. The
// service discards the partial upload on its own schedule.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFinalized {
		s.state = StateAbandoned
	}
}
