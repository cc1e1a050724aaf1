// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/panbackup/lib/digest"
)

// Manifest is the ordered digest list of an artifact together with
// the parameters it was computed with.
type Manifest struct {
	// Digests holds one hex digest per block, in block order.
	Digests []string

	// ChunkSize is the block size used to compute Digests.
	ChunkSize int

	// TotalSize is the artifact length in bytes.
	TotalSize int64

	// Algorithm is the digest algorithm name.
	Algorithm string
}

// Len returns the number of blocks.
func (m Manifest) Len() int { return len(m.Digests) }

// Equal reports whether two manifests describe the same blocks in the
// same order with the same parameters.
func (m Manifest) Equal(other Manifest) bool {
	if m.ChunkSize != other.ChunkSize || m.TotalSize != other.TotalSize || m.Algorithm != other.Algorithm {
		return false
	}
	if len(m.Digests) != len(other.Digests) {
		return false
	}
	for i := range m.Digests {
		if m.Digests[i] != other.Digests[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no memory with m.
func (m Manifest) Clone() Manifest {
	clone := m
	clone.Digests = append([]string(nil), m.Digests...)
	return clone
}

// BlockListJSON encodes the digests as the JSON array the xpan API
// takes in its block_list parameter. An empty manifest encodes as [].
func (m Manifest) BlockListJSON() string {
	digests := m.Digests
	if digests == nil {
		digests = []string{}
	}
	encoded, _ := json.Marshal(digests)
	return string(encoded)
}

// Compute reads r to the end and returns its manifest.
func Compute(r io.Reader, chunkSize int, algorithm digest.Algorithm) (Manifest, error) {
	chunker, err := NewChunker(r, chunkSize, algorithm)
	if err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		ChunkSize: chunkSize,
		Algorithm: chunker.algorithm.Name(),
	}
	for {
		block, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Manifest{}, err
		}
		manifest.Digests = append(manifest.Digests, block.Digest)
		manifest.TotalSize += int64(block.Length)
	}
	return manifest, nil
}

// ComputeFile computes the manifest of the file at path.
func ComputeFile(path string, chunkSize int, algorithm digest.Algorithm) (Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	manifest, err := Compute(file, chunkSize, algorithm)
	if err != nil {
		return Manifest{}, fmt.Errorf("computing manifest of %s: %w", path, err)
	}
	return manifest, nil
}
