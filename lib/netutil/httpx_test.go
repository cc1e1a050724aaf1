// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = '0'
	}
	return len(p), nil
}

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"errno":0}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"errno":0}` {
			t.Fatalf("got %q", data)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		_, err := ReadResponse(io.LimitReader(zeroReader{}, MaxResponseSize+10))
		if err == nil || !strings.Contains(err.Error(), "exceeds") {
			t.Fatalf("error = %v, want size error", err)
		}
	})
}

func TestErrorSnippet(t *testing.T) {
	if got := ErrorSnippet([]byte("short")); got != "short" {
		t.Errorf("ErrorSnippet(short) = %q", got)
	}

	long := bytes.Repeat([]byte("a"), ErrorSnippetSize+100)
	got := ErrorSnippet(long)
	if len(got) != ErrorSnippetSize+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("ErrorSnippet(long) has length %d", len(got))
	}

	// A multi-byte rune straddling the cut is dropped whole.
	multi := append(bytes.Repeat([]byte("a"), ErrorSnippetSize-1), []byte("é and more")...)
	got = ErrorSnippet(multi)
	if strings.ContainsRune(got, '�') || !strings.HasSuffix(got, "a...") {
		t.Errorf("ErrorSnippet cut a rune: %q", got[len(got)-8:])
	}
}
