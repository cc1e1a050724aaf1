// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ExpirySkew is subtracted from the service's expires_in when
// computing ExpiresAt.
const ExpirySkew = 300 * time.Second

// Token is the persisted form of an OAuth token.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Valid reports whether the token has an access token that has not
// reached ExpiresAt.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Unix() < t.ExpiresAt
}

// Expiry returns ExpiresAt as a time.
func (t *Token) Expiry() time.Time {
	return time.Unix(t.ExpiresAt, 0)
}

// ErrMalformedToken marks a token file that exists but does not parse.
var ErrMalformedToken = errors.New("malformed token file")

// LoadToken reads a token file. A missing file returns (nil, nil); an
// unparseable one returns an error wrapping ErrMalformedToken.
func LoadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w: %w", path, ErrMalformedToken, err)
	}
	return &token, nil
}

// SaveToken writes token to path with mode 0600. The file is replaced
// atomically so a concurrent reader never sees a partial token.
func SaveToken(path string, token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	temp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary token file: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if err := temp.Chmod(0o600); err != nil {
		temp.Close()
		return fmt.Errorf("setting token file mode: %w", err)
	}
	if _, err := temp.Write(append(data, '\n')); err != nil {
		temp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("syncing token file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
