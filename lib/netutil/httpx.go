// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP response helpers for JSON APIs.
//
// ReadResponse bounds every body read at MaxResponseSize so a
// misbehaving server cannot exhaust memory. ErrorSnippet shortens a
// body for inclusion in an error message.
package netutil

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxResponseSize is the bound on JSON API response body reads. Real
// responses are a few kilobytes.
const MaxResponseSize int64 = 32 << 20

// ErrorSnippetSize is how much of a body ErrorSnippet keeps.
const ErrorSnippetSize = 512

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. A body longer than that is an error rather than a silently
// truncated document.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}

// ErrorSnippet returns body as a string, cut to ErrorSnippetSize bytes
// on a rune boundary with "..." appended when shortened.
func ErrorSnippet(body []byte) string {
	if len(body) <= ErrorSnippetSize {
		return string(body)
	}
	cut := ErrorSnippetSize
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
