// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is the compression applied to the tar stream.
type Format uint8

const (
	// FormatGzip is the default: every consumer can open a .tar.gz.
	FormatGzip Format = iota

	// FormatZstd trades compatibility for a better ratio at similar
	// speed.
	FormatZstd

	// FormatLZ4 is the fastest option, for large directories of
	// already-compressed content.
	FormatLZ4
)

// String returns the configuration name of the format.
func (f Format) String() string {
	switch f {
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Suffix returns the filename suffix of archives in this format,
// including the leading dot.
func (f Format) Suffix() string {
	switch f {
	case FormatZstd:
		return ".tar.zst"
	case FormatLZ4:
		return ".tar.lz4"
	default:
		return ".tar.gz"
	}
}

// ParseFormat parses a configuration name. The empty string selects
// FormatGzip.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "gzip", "gz":
		return FormatGzip, nil
	case "zstd", "zst":
		return FormatZstd, nil
	case "lz4":
		return FormatLZ4, nil
	default:
		return 0, fmt.Errorf("unknown archive format %q (want gzip, zstd or lz4)", name)
	}
}

// TimestampLayout is the time format embedded in archive names. It
// sorts lexicographically in time order.
const TimestampLayout = "20060102-150405"

// ArtifactName returns the archive filename for a backup of localDir
// taken at the given time: <base>_<YYYYmmdd-HHMMSS><suffix>.
func ArtifactName(localDir string, at time.Time, format Format) string {
	base := filepath.Base(filepath.Clean(localDir))
	return base + "_" + at.Format(TimestampLayout) + format.Suffix()
}

// compressor wraps w with the format's streaming encoder. Closing the
// returned writer flushes the encoder but does not close w.
func (f Format) compressor(w io.Writer) (io.WriteCloser, error) {
	switch f {
	case FormatGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case FormatZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case FormatLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported archive format %s", f)
	}
}

// Decompressor wraps r with the format's streaming decoder.
func (f Format) Decompressor(r io.Reader) (io.ReadCloser, error) {
	switch f {
	case FormatGzip:
		return gzip.NewReader(r)
	case FormatZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	case FormatLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported archive format %s", f)
	}
}
