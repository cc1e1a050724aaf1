// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netdisk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/panbackup/lib/netutil"
	"github.com/bureau-foundation/panbackup/lib/retry"
)

// Errnos with a fixed meaning. The full list is long; these are the
// ones the backup path can hit.
const (
	ErrnoAuthFailed      = -6
	ErrnoBadName         = -7
	ErrnoAlreadyExists   = -8
	ErrnoNotFound        = -9
	ErrnoQuotaFull       = -10
	ErrnoBadParameter    = 2
	ErrnoTokenExpired    = 111
	ErrnoTokenInvalid    = 110
	ErrnoParams          = 31023
	ErrnoForbidden       = 31024
	ErrnoRateLimited     = 31034
	ErrnoFileExists      = 31061
	ErrnoBadFilename     = 31062
	ErrnoBadUploadPath   = 31064
	ErrnoFirstBlockSmall = 31299
	ErrnoBlockMissing    = 31363
	ErrnoBlockTooLarge   = 31364
	ErrnoFileTooLarge    = 31365
)

var authErrnos = map[int]bool{
	ErrnoAuthFailed:   true,
	ErrnoTokenInvalid: true,
	ErrnoTokenExpired: true,
}

var clientErrnos = map[int]bool{
	ErrnoBadName:         true,
	ErrnoAlreadyExists:   true,
	ErrnoNotFound:        true,
	ErrnoQuotaFull:       true,
	ErrnoBadParameter:    true,
	ErrnoParams:          true,
	ErrnoForbidden:       true,
	ErrnoFileExists:      true,
	ErrnoBadFilename:     true,
	ErrnoBadUploadPath:   true,
	ErrnoFirstBlockSmall: true,
	ErrnoBlockMissing:    true,
	ErrnoBlockTooLarge:   true,
	ErrnoFileTooLarge:    true,
}

// APIError is a failed xpan or PCS call: a non-2xx status, a non-zero
// errno, or a body that could not be decoded.
type APIError struct {
	// Operation names the call ("precreate", "upload block 3").
	Operation string

	// StatusCode is the HTTP status.
	StatusCode int

	// Errno is the service error code, zero when the body carried
	// none.
	Errno int

	// Message is the service's error text, or a decode failure.
	Message string

	// Body is a truncated copy of the response body.
	Body string
}

func newAPIError(operation string, statusCode int, envelope status, body []byte) *APIError {
	message := envelope.message()
	if message == "" && envelope.code() == 0 {
		message = strings.TrimSpace(netutil.ErrorSnippet(body))
	}
	return &APIError{
		Operation:  operation,
		StatusCode: statusCode,
		Errno:      envelope.code(),
		Message:    message,
		Body:       netutil.ErrorSnippet(body),
	}
}

func (err *APIError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "netdisk: %s: HTTP %d", err.Operation, err.StatusCode)
	if err.Errno != 0 {
		fmt.Fprintf(&builder, ", errno %d", err.Errno)
	}
	if err.Message != "" {
		fmt.Fprintf(&builder, ": %s", err.Message)
	}
	return builder.String()
}

// RetryKind classifies the failure for lib/retry.
func (err *APIError) RetryKind() retry.Kind {
	switch {
	case authErrnos[err.Errno], err.StatusCode == 401:
		return retry.KindAuth
	case err.Errno == ErrnoRateLimited, err.StatusCode == 429:
		return retry.KindTransient
	case clientErrnos[err.Errno]:
		return retry.KindClient
	case err.StatusCode >= 400 && err.StatusCode < 500:
		return retry.KindClient
	default:
		return retry.KindTransient
	}
}

// IsNotFound reports whether err is an API "no such file or
// directory" response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.Errno == ErrnoNotFound
}

// IsAuth reports whether err is an API response rejecting the access
// token.
func IsAuth(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.RetryKind() == retry.KindAuth
}
