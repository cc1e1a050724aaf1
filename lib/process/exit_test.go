// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

func TestReport(t *testing.T) {
	var out bytes.Buffer
	report(&out, errors.New("upload: block 3: connection reset"))
	want := "panbackup: error: upload: block 3: connection reset\n"
	if out.String() != want {
		t.Errorf("report = %q, want %q", out.String(), want)
	}
}
