// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest names the block digest algorithms a manifest can be
// computed with.
//
// The remote service verifies assembled uploads against an MD5 block
// list, so MD5 is the default. BLAKE3 is available for manifests that
// are only compared locally (for example the manifest command, or
// checking that a re-read artifact has not changed between chunking
// and upload). The upload protocol only ever sees hex strings, so
// switching algorithms does not change its shape.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm produces fresh hash states for block digests.
type Algorithm interface {
	// Name is the stable identifier used in configuration and logs.
	Name() string

	// New returns a hash state ready for writing.
	New() hash.Hash
}

type md5Algorithm struct{}

func (md5Algorithm) Name() string   { return "md5" }
func (md5Algorithm) New() hash.Hash { return md5.New() }

type blake3Algorithm struct{}

func (blake3Algorithm) Name() string   { return "blake3" }
func (blake3Algorithm) New() hash.Hash { return blake3.New() }

var (
	// MD5 is the digest the xpan precreate and create calls expect.
	MD5 Algorithm = md5Algorithm{}

	// BLAKE3 is the 256-bit BLAKE3 hash in unkeyed mode.
	BLAKE3 Algorithm = blake3Algorithm{}
)

// Default is the algorithm used when configuration names none.
var Default = MD5

var registry = map[string]Algorithm{
	MD5.Name():    MD5,
	BLAKE3.Name(): BLAKE3,
}

// Lookup returns the algorithm registered under name. Matching is
// case-insensitive; the empty string selects Default.
func Lookup(name string) (Algorithm, error) {
	if name == "" {
		return Default, nil
	}
	algorithm, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown digest algorithm %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return algorithm, nil
}

// Names returns the registered algorithm names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum hashes data in one call and returns the lowercase hex digest.
func Sum(algorithm Algorithm, data []byte) string {
	hasher := algorithm.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
