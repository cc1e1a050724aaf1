// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/panbackup/lib/digest"
)

// DefaultSize is the block size the xpan upload API is designed
// around for ordinary accounts.
const DefaultSize = 4 * 1024 * 1024

// MaxSize bounds the configurable block size. The Chunker allocates one
// buffer of this many bytes, and the service rejects larger parts.
const MaxSize = 32 * 1024 * 1024

// Block is one contiguous range of an artifact.
type Block struct {
	// Index is the zero-based sequence number, which is also the
	// partseq sent with the upload.
	Index int

	// Offset is the position of the first byte in the artifact.
	Offset int64

	// Length is the number of bytes in the block.
	Length int

	// Digest is the lowercase hex digest of the block bytes.
	Digest string

	// Data holds the block bytes. It aliases the Chunker's buffer
	// and is only valid until the next call to Next.
	Data []byte
}

// Chunker iterates over the blocks of a stream. Create one with
// NewChunker and call Next until it returns io.EOF.
type Chunker struct {
	reader    io.Reader
	algorithm digest.Algorithm
	buffer    []byte
	index     int
	offset    int64
	done      bool
}

// NewChunker returns a Chunker that splits r into blocks of size bytes
// and digests each with algorithm. A nil algorithm selects
// digest.Default.
func NewChunker(r io.Reader, size int, algorithm digest.Algorithm) (*Chunker, error) {
	if err := ValidateSize(size); err != nil {
		return nil, err
	}
	if algorithm == nil {
		algorithm = digest.Default
	}
	return &Chunker{
		reader:    r,
		algorithm: algorithm,
		buffer:    make([]byte, size),
	}, nil
}

// Next returns the next block, or io.EOF once the input is exhausted.
// A short read fills the block as far as the input allows; a read that
// yields zero bytes ends the sequence.
func (c *Chunker) Next() (*Block, error) {
	if c.done {
		return nil, io.EOF
	}

	n, err := io.ReadFull(c.reader, c.buffer)
	switch {
	case errors.Is(err, io.EOF):
		c.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.done = true
	case err != nil:
		return nil, fmt.Errorf("reading block %d at offset %d: %w", c.index, c.offset, err)
	}

	data := c.buffer[:n]
	block := &Block{
		Index:  c.index,
		Offset: c.offset,
		Length: n,
		Digest: digest.Sum(c.algorithm, data),
		Data:   data,
	}
	c.index++
	c.offset += int64(n)
	return block, nil
}

// ValidateSize reports whether size is usable as a block size.
func ValidateSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if size > MaxSize {
		return fmt.Errorf("chunk size %d exceeds maximum %d", size, MaxSize)
	}
	return nil
}

// BlockCount returns ceil(totalSize / chunkSize). An empty artifact has
// no blocks.
func BlockCount(totalSize int64, chunkSize int) int {
	if totalSize <= 0 {
		return 0
	}
	size := int64(chunkSize)
	return int((totalSize + size - 1) / size)
}

// ReadBlock reads block index of an artifact of totalSize bytes from r.
// The returned slice is freshly allocated.
func ReadBlock(r io.ReaderAt, index, chunkSize int, totalSize int64) ([]byte, error) {
	count := BlockCount(totalSize, chunkSize)
	if index < 0 || index >= count {
		return nil, fmt.Errorf("block index %d out of range [0, %d)", index, count)
	}

	offset := int64(index) * int64(chunkSize)
	length := int64(chunkSize)
	if remaining := totalSize - offset; remaining < length {
		length = remaining
	}

	data := make([]byte, length)
	n, err := r.ReadAt(data, offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, fmt.Errorf("reading block %d at offset %d: %w", index, offset, err)
	}
	return data, nil
}
