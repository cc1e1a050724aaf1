// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfoFormat(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, Version+" (") || !strings.HasSuffix(info, ")") {
		t.Errorf("Info() = %q, want %q prefix and closing paren", info, Version+" (")
	}
}

func TestFullIncludesRuntime(t *testing.T) {
	full := Full()
	for _, want := range []string{runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(full, want) {
			t.Errorf("Full() = %q, missing %q", full, want)
		}
	}
}
