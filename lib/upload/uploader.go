// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bureau-foundation/panbackup/lib/chunk"
	"github.com/bureau-foundation/panbackup/lib/retry"
)

// Observer receives progress from an Uploader. Implementations must
// be safe for concurrent use when Parallelism is above one.
type Observer interface {
	// OnProgress is called once per block after the service
	// acknowledges it. Calls are not ordered by index.
	OnProgress(blockIndex, totalBlocks int)

	// OnError is called once for the failure that ends an upload.
	OnError(kind retry.Kind, detail string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnProgress(int, int)        {}
func (NopObserver) OnError(retry.Kind, string) {}

// Uploader runs the full precreate, upload, create sequence for one
// local file.
type Uploader struct {
	Remote Remote

	// Retry wraps each remote call: precreate, every block, create.
	Retry retry.Policy

	// Parallelism bounds concurrent block uploads. Values below one
	// upload sequentially.
	Parallelism int

	// Observer defaults to NopObserver.
	Observer Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (u *Uploader) observer() Observer {
	if u.Observer == nil {
		return NopObserver{}
	}
	return u.Observer
}

func (u *Uploader) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

// Upload sends localPath to remotePath. manifest must describe the
// current contents of localPath. On any failure the session is
// abandoned and the error carries a retry classification.
func (u *Uploader) Upload(ctx context.Context, localPath, remotePath string, manifest chunk.Manifest) (*Result, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s for upload: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}
	if info.Size() != manifest.TotalSize {
		return nil, &ManifestError{Path: remotePath,
			Err: fmt.Errorf("%s is %d bytes but its manifest describes %d", localPath, info.Size(), manifest.TotalSize)}
	}

	logger := u.logger().With("path", remotePath)
	observer := u.observer()

	session, err := retry.Value(ctx, u.Retry, "precreate", func(ctx context.Context) (*Session, error) {
		return Open(ctx, u.Remote, remotePath, info.Size(), manifest)
	})
	if err != nil {
		observer.OnError(retry.Classify(err), err.Error())
		return nil, err
	}
	logger.Debug("upload session opened", "upload_id", session.UploadID(), "blocks", manifest.Len())

	if err := u.uploadBlocks(ctx, session, file, manifest); err != nil {
		session.Abandon()
		observer.OnError(retry.Classify(err), err.Error())
		return nil, err
	}

	result, err := retry.Value(ctx, u.Retry, "finalize", func(ctx context.Context) (*Result, error) {
		return session.Finalize(ctx, manifest)
	})
	if err != nil {
		session.Abandon()
		observer.OnError(retry.Classify(err), err.Error())
		return nil, err
	}
	logger.Info("upload finalized", "fs_id", result.FileID, "size", result.Size, "blocks", result.Blocks)
	return result, nil
}

// uploadBlocks sends every block through a pool of at most
// Parallelism workers. The first failure cancels the remaining work;
// all workers have returned before uploadBlocks does.
func (u *Uploader) uploadBlocks(ctx context.Context, session *Session, file *os.File, manifest chunk.Manifest) error {
	total := manifest.Len()
	if total == 0 {
		return nil
	}
	workers := u.Parallelism
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	indexes := make(chan int)
	var (
		waitGroup sync.WaitGroup
		errOnce   sync.Once
		firstErr  error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	observer := u.observer()
	for range workers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for index := range indexes {
				err := u.Retry.Do(ctx, fmt.Sprintf("block %d", index), func(ctx context.Context) error {
					data, err := chunk.ReadBlock(file, index, manifest.ChunkSize, manifest.TotalSize)
					if err != nil {
						return err
					}
					return session.UploadBlock(ctx, index, data)
				})
				if err != nil {
					fail(err)
					continue
				}
				observer.OnProgress(index, total)
			}
		}()
	}

feed:
	for index := range total {
		select {
		case indexes <- index:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	waitGroup.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return &retry.TerminalError{Unit: "upload", Kind: retry.KindCanceled, Err: err}
	}
	return nil
}
