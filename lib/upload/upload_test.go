// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/bureau-foundation/panbackup/lib/chunk"
	"github.com/bureau-foundation/panbackup/lib/digest"
	"github.com/bureau-foundation/panbackup/lib/netdisk"
	"github.com/bureau-foundation/panbackup/lib/retry"
)

// memoryRemote is an in-memory storage service. It records every call
// and assembles finalized files from the parts it received.
type memoryRemote struct {
	mu sync.Mutex

	uploadID  string
	precreate []netdisk.PrecreateRequest
	creates   []netdisk.CreateRequest
	parts     map[int][]byte
	uploads   []int
	files     map[string][]byte

	// failBlock makes the first n uploads of the keyed index fail
	// with failErr.
	failBlock map[int]int
	failErr   error

	precreateErr error
	createResp   *netdisk.CreateResponse
	wrongMD5     bool
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{
		uploadID:  "upload-1",
		parts:     make(map[int][]byte),
		files:     make(map[string][]byte),
		failBlock: make(map[int]int),
	}
}

func (m *memoryRemote) Precreate(_ context.Context, request netdisk.PrecreateRequest) (*netdisk.PrecreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.precreate = append(m.precreate, request)
	if m.precreateErr != nil {
		return nil, m.precreateErr
	}
	return &netdisk.PrecreateResponse{UploadID: m.uploadID}, nil
}

func (m *memoryRemote) UploadBlock(_ context.Context, request netdisk.UploadBlockRequest) (*netdisk.UploadBlockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, request.PartSeq)
	if m.failBlock[request.PartSeq] > 0 {
		m.failBlock[request.PartSeq]--
		return nil, m.failErr
	}
	m.parts[request.PartSeq] = append([]byte(nil), request.Data...)
	sum := digest.Sum(digest.MD5, request.Data)
	if m.wrongMD5 {
		sum = "00000000000000000000000000000000"
	}
	return &netdisk.UploadBlockResponse{MD5: sum}, nil
}

func (m *memoryRemote) Create(_ context.Context, request netdisk.CreateRequest) (*netdisk.CreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, request)
	if m.createResp != nil {
		return m.createResp, nil
	}
	var assembled []byte
	for index := range request.BlockList {
		assembled = append(assembled, m.parts[index]...)
	}
	m.files[request.Path] = assembled
	return &netdisk.CreateResponse{FsID: 42, Path: request.Path, Size: request.Size}, nil
}

func (m *memoryRemote) uploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

// transientError is a retryable failure.
type transientError struct{}

func (transientError) Error() string         { return "connection reset" }
func (transientError) RetryKind() retry.Kind { return retry.KindTransient }

type clientError struct{}

func (clientError) Error() string         { return "bad request" }
func (clientError) RetryKind() retry.Kind { return retry.KindClient }

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func testManifest(t *testing.T, data []byte, chunkSize int) chunk.Manifest {
	t.Helper()
	manifest, err := chunk.Compute(bytes.NewReader(data), chunkSize, digest.MD5)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return manifest
}

func writeTestFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.tar.gz")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noWait() retry.Policy {
	return retry.Policy{BaseDelay: -1}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	data := testData(10)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	ctx := context.Background()

	session, err := Open(ctx, remote, "/apps/test/a.tar.gz", int64(len(data)), manifest)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if session.State() != StateOpened {
		t.Errorf("state after Open = %s, want opened", session.State())
	}
	if session.UploadID() != "upload-1" {
		t.Errorf("UploadID = %q", session.UploadID())
	}
	if got := remote.precreate[0].BlockList; len(got) != 3 {
		t.Errorf("precreate declared %d blocks, want 3", len(got))
	}

	// Blocks out of order.
	for _, index := range []int{2, 0, 1} {
		block, err := chunk.ReadBlock(bytes.NewReader(data), index, 4, int64(len(data)))
		if err != nil {
			t.Fatal(err)
		}
		if err := session.UploadBlock(ctx, index, block); err != nil {
			t.Fatalf("UploadBlock(%d): %v", index, err)
		}
	}
	if session.State() != StateUploading {
		t.Errorf("state after uploads = %s, want uploading", session.State())
	}

	result, err := session.Finalize(ctx, manifest)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.FileID != 42 || result.Blocks != 3 || result.Size != 10 {
		t.Errorf("result = %+v", result)
	}
	if !bytes.Equal(remote.files["/apps/test/a.tar.gz"], data) {
		t.Error("assembled file does not match source")
	}
	if session.State() != StateFinalized {
		t.Errorf("state = %s, want finalized", session.State())
	}

	if err := session.UploadBlock(ctx, 0, data[:4]); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("UploadBlock after finalize: got %v, want ErrSessionClosed", err)
	}
	if _, err := session.Finalize(ctx, manifest); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Finalize: got %v, want ErrSessionClosed", err)
	}
}

func TestFinalizeRejectsMismatchedManifest(t *testing.T) {
	t.Parallel()

	data := testData(8)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	ctx := context.Background()

	session, err := Open(ctx, remote, "/apps/test/a.tar.gz", 8, manifest)
	if err != nil {
		t.Fatal(err)
	}
	for index := range 2 {
		if err := session.UploadBlock(ctx, index, data[index*4:(index+1)*4]); err != nil {
			t.Fatal(err)
		}
	}

	cases := map[string]func(chunk.Manifest) chunk.Manifest{
		"changed digest": func(m chunk.Manifest) chunk.Manifest {
			m.Digests[1] = "ffffffffffffffffffffffffffffffff"
			return m
		},
		"reordered": func(m chunk.Manifest) chunk.Manifest {
			m.Digests[0], m.Digests[1] = m.Digests[1], m.Digests[0]
			return m
		},
		"extra block": func(m chunk.Manifest) chunk.Manifest {
			m.Digests = append(m.Digests, m.Digests[0])
			return m
		},
		"fewer blocks": func(m chunk.Manifest) chunk.Manifest {
			m.Digests = m.Digests[:1]
			return m
		},
	}
	for name, mutate := range cases {
		_, err := session.Finalize(ctx, mutate(manifest.Clone()))
		if !errors.Is(err, ErrManifestMismatch) {
			t.Errorf("%s: got %v, want ErrManifestMismatch", name, err)
		}
	}
	if len(remote.creates) != 0 {
		t.Errorf("create called %d times for mismatched manifests", len(remote.creates))
	}

	// The session is still usable with the declared manifest.
	if _, err := session.Finalize(ctx, manifest); err != nil {
		t.Errorf("Finalize with declared manifest: %v", err)
	}
}

func TestFinalizeRequiresEveryBlock(t *testing.T) {
	t.Parallel()

	data := testData(12)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	ctx := context.Background()

	session, err := Open(ctx, remote, "/apps/test/a.tar.gz", 12, manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.UploadBlock(ctx, 1, data[4:8]); err != nil {
		t.Fatal(err)
	}

	_, err = session.Finalize(ctx, manifest)
	var incomplete *IncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("got %v, want *IncompleteError", err)
	}
	if fmt.Sprint(incomplete.Missing) != "[0 2]" {
		t.Errorf("Missing = %v, want [0 2]", incomplete.Missing)
	}
	if retry.Classify(err) != retry.KindClient {
		t.Errorf("kind = %s, want client", retry.Classify(err))
	}
	if len(remote.creates) != 0 {
		t.Error("create called with missing blocks")
	}
}

func TestDuplicateBlockUploadIsIdempotent(t *testing.T) {
	t.Parallel()

	data := testData(8)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	ctx := context.Background()

	session, err := Open(ctx, remote, "/apps/test/a.tar.gz", 8, manifest)
	if err != nil {
		t.Fatal(err)
	}
	for _, index := range []int{0, 0, 1, 0} {
		if err := session.UploadBlock(ctx, index, data[index*4:(index+1)*4]); err != nil {
			t.Fatal(err)
		}
	}
	if session.Acknowledged() != 2 {
		t.Errorf("Acknowledged = %d, want 2", session.Acknowledged())
	}
	if _, err := session.Finalize(ctx, manifest); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(remote.files["/apps/test/a.tar.gz"], data) {
		t.Error("assembled file does not match source")
	}
}

func TestUploadBlockRejectsWrongBytes(t *testing.T) {
	t.Parallel()

	data := testData(8)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	ctx := context.Background()

	session, err := Open(ctx, remote, "/apps/test/a.tar.gz", 8, manifest)
	if err != nil {
		t.Fatal(err)
	}

	err = session.UploadBlock(ctx, 0, data[4:8])
	var mismatch *BlockMismatchError
	if !errors.As(err, &mismatch) || mismatch.Remote {
		t.Fatalf("got %v, want local *BlockMismatchError", err)
	}
	if retry.Classify(err) != retry.KindClient {
		t.Errorf("local mismatch kind = %s, want client", retry.Classify(err))
	}
	if remote.uploadCount() != 0 {
		t.Error("mismatched block was sent")
	}

	if err := session.UploadBlock(ctx, 5, data[:4]); err == nil {
		t.Error("out-of-range index accepted")
	}
}

func TestUploadBlockDetectsRemoteCorruption(t *testing.T) {
	t.Parallel()

	data := testData(4)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	remote.wrongMD5 = true

	session, err := Open(context.Background(), remote, "/apps/test/a.tar.gz", 4, manifest)
	if err != nil {
		t.Fatal(err)
	}
	err = session.UploadBlock(context.Background(), 0, data)
	var mismatch *BlockMismatchError
	if !errors.As(err, &mismatch) || !mismatch.Remote {
		t.Fatalf("got %v, want remote *BlockMismatchError", err)
	}
	if retry.Classify(err) != retry.KindTransient {
		t.Errorf("remote mismatch kind = %s, want transient", retry.Classify(err))
	}
	if session.Acknowledged() != 0 {
		t.Error("corrupted block was acknowledged")
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	data := testData(8)
	manifest := testManifest(t, data, 4)
	ctx := context.Background()

	t.Run("missing upload id", func(t *testing.T) {
		remote := newMemoryRemote()
		remote.uploadID = ""
		_, err := Open(ctx, remote, "/apps/test/a.tar.gz", 8, manifest)
		var precreate *PrecreateError
		if !errors.As(err, &precreate) {
			t.Fatalf("got %v, want *PrecreateError", err)
		}
		if retry.Classify(err) != retry.KindMalformed {
			t.Errorf("kind = %s, want malformed", retry.Classify(err))
		}
	})

	bad := map[string]func() (int64, chunk.Manifest){
		"size mismatch": func() (int64, chunk.Manifest) { return 9, manifest },
		"block count mismatch": func() (int64, chunk.Manifest) {
			short := manifest.Clone()
			short.Digests = short.Digests[:1]
			return 8, short
		},
		"unknown digest": func() (int64, chunk.Manifest) {
			renamed := manifest.Clone()
			renamed.Algorithm = "sha1"
			return 8, renamed
		},
	}
	for name, build := range bad {
		t.Run(name, func(t *testing.T) {
			remote := newMemoryRemote()
			size, candidate := build()
			_, err := Open(ctx, remote, "/apps/test/a.tar.gz", size, candidate)
			var manifestErr *ManifestError
			if !errors.As(err, &manifestErr) {
				t.Fatalf("got %v, want *ManifestError", err)
			}
			if retry.Classify(err) != retry.KindClient {
				t.Errorf("kind = %s, want client", retry.Classify(err))
			}
			if len(remote.precreate) != 0 {
				t.Error("precreate called despite local validation failure")
			}
		})
	}

	t.Run("service error", func(t *testing.T) {
		remote := newMemoryRemote()
		remote.precreateErr = clientError{}
		if _, err := Open(ctx, remote, "/apps/test/a.tar.gz", 8, manifest); !errors.Is(err, clientError{}) {
			t.Errorf("got %v, want the service error", err)
		}
	})
}

func TestFinalizeWithoutFileID(t *testing.T) {
	t.Parallel()

	data := testData(4)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	remote.createResp = &netdisk.CreateResponse{}
	ctx := context.Background()

	session, err := Open(ctx, remote, "/apps/test/a.tar.gz", 4, manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.UploadBlock(ctx, 0, data); err != nil {
		t.Fatal(err)
	}
	_, err = session.Finalize(ctx, manifest)
	var finalize *FinalizeError
	if !errors.As(err, &finalize) {
		t.Fatalf("got %v, want *FinalizeError", err)
	}
}

func TestAbandonClosesSession(t *testing.T) {
	t.Parallel()

	data := testData(4)
	manifest := testManifest(t, data, 4)
	session, err := Open(context.Background(), newMemoryRemote(), "/apps/test/a.tar.gz", 4, manifest)
	if err != nil {
		t.Fatal(err)
	}
	session.Abandon()
	if session.State() != StateAbandoned {
		t.Errorf("state = %s, want abandoned", session.State())
	}
	if err := session.UploadBlock(context.Background(), 0, data); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("got %v, want ErrSessionClosed", err)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	progress []int
	total    int
	errors   []retry.Kind
}

func (r *recordingObserver) OnProgress(index, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, index)
	r.total = total
}

func (r *recordingObserver) OnError(kind retry.Kind, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, kind)
}

func TestUploaderSequential(t *testing.T) {
	t.Parallel()

	data := testData(10)
	path := writeTestFile(t, data)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	observer := &recordingObserver{}

	uploader := &Uploader{Remote: remote, Retry: noWait(), Observer: observer}
	result, err := uploader.Upload(context.Background(), path, "/apps/test/a.tar.gz", manifest)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.FileID != 42 {
		t.Errorf("FileID = %d", result.FileID)
	}
	if fmt.Sprint(remote.uploads) != "[0 1 2]" {
		t.Errorf("upload order = %v, want [0 1 2]", remote.uploads)
	}
	if fmt.Sprint(observer.progress) != "[0 1 2]" || observer.total != 3 {
		t.Errorf("progress = %v of %d", observer.progress, observer.total)
	}
	if !bytes.Equal(remote.files["/apps/test/a.tar.gz"], data) {
		t.Error("assembled file does not match source")
	}
}

func TestUploaderParallel(t *testing.T) {
	t.Parallel()

	data := testData(4*16 + 3)
	path := writeTestFile(t, data)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	observer := &recordingObserver{}

	uploader := &Uploader{Remote: remote, Retry: noWait(), Parallelism: 4, Observer: observer}
	if _, err := uploader.Upload(context.Background(), path, "/apps/test/a.tar.gz", manifest); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	sort.Ints(observer.progress)
	if len(observer.progress) != 17 {
		t.Fatalf("progress events = %d, want 17", len(observer.progress))
	}
	for i, index := range observer.progress {
		if i != index {
			t.Fatalf("progress indexes = %v", observer.progress)
		}
	}
	if len(remote.creates) != 1 {
		t.Errorf("create calls = %d, want 1", len(remote.creates))
	}
	if !bytes.Equal(remote.files["/apps/test/a.tar.gz"], data) {
		t.Error("assembled file does not match source")
	}
}

func TestUploaderRetriesTransientBlockFailure(t *testing.T) {
	t.Parallel()

	data := testData(8)
	path := writeTestFile(t, data)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	remote.failBlock[1] = 2
	remote.failErr = transientError{}

	uploader := &Uploader{Remote: remote, Retry: noWait()}
	if _, err := uploader.Upload(context.Background(), path, "/apps/test/a.tar.gz", manifest); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if fmt.Sprint(remote.uploads) != "[0 1 1 1]" {
		t.Errorf("uploads = %v, want [0 1 1 1]", remote.uploads)
	}
}

func TestUploaderStopsOnClientError(t *testing.T) {
	t.Parallel()

	data := testData(12)
	path := writeTestFile(t, data)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	remote.failBlock[1] = 100
	remote.failErr = clientError{}
	observer := &recordingObserver{}

	uploader := &Uploader{Remote: remote, Retry: noWait(), Observer: observer}
	_, err := uploader.Upload(context.Background(), path, "/apps/test/a.tar.gz", manifest)
	if !retry.IsTerminal(err) {
		t.Fatalf("got %v, want terminal error", err)
	}
	if fmt.Sprint(remote.uploads) != "[0 1]" {
		t.Errorf("uploads = %v, want [0 1]", remote.uploads)
	}
	if len(remote.creates) != 0 {
		t.Error("create called after a failed block")
	}
	if fmt.Sprint(observer.errors) != "[client]" {
		t.Errorf("observer errors = %v, want [client]", observer.errors)
	}
}

func TestUploaderExhaustsRetries(t *testing.T) {
	t.Parallel()

	data := testData(4)
	path := writeTestFile(t, data)
	manifest := testManifest(t, data, 4)
	remote := newMemoryRemote()
	remote.failBlock[0] = 100
	remote.failErr = transientError{}

	uploader := &Uploader{Remote: remote, Retry: noWait()}
	_, err := uploader.Upload(context.Background(), path, "/apps/test/a.tar.gz", manifest)
	if !retry.IsExhausted(err) {
		t.Fatalf("got %v, want exhausted error", err)
	}
	if remote.uploadCount() != retry.DefaultMaxAttempts {
		t.Errorf("attempts = %d, want %d", remote.uploadCount(), retry.DefaultMaxAttempts)
	}
}

func TestUploaderRejectsStaleManifest(t *testing.T) {
	t.Parallel()

	data := testData(8)
	path := writeTestFile(t, data)
	manifest := testManifest(t, testData(9), 4)

	uploader := &Uploader{Remote: newMemoryRemote(), Retry: noWait()}
	_, err := uploader.Upload(context.Background(), path, "/apps/test/a.tar.gz", manifest)
	var manifestErr *ManifestError
	if !errors.As(err, &manifestErr) {
		t.Fatalf("got %v, want *ManifestError when file size differs from manifest", err)
	}
}

func TestUploaderDoesNotRetryInvalidManifest(t *testing.T) {
	t.Parallel()

	data := testData(8)
	path := writeTestFile(t, data)
	manifest := testManifest(t, data, 4)
	manifest.Algorithm = "sha1"

	remote := newMemoryRemote()
	uploader := &Uploader{Remote: remote, Retry: noWait()}
	_, err := uploader.Upload(context.Background(), path, "/apps/test/a.tar.gz", manifest)
	if !retry.IsTerminal(err) || retry.IsExhausted(err) {
		t.Fatalf("got %v, want a terminal error after one attempt", err)
	}
	var terminal *retry.TerminalError
	if errors.As(err, &terminal) && terminal.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", terminal.Attempt)
	}
	if len(remote.precreate) != 0 {
		t.Errorf("precreate calls = %d, want 0", len(remote.precreate))
	}
}
