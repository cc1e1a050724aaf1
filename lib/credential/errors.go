// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/panbackup/lib/retry"
)

// ErrNotTerminal is returned when interactive authorization is needed
// but stdin is not a terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// AuthError is a failure to produce a usable access token.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RetryKind marks every credential failure as fatal.
func (e *AuthError) RetryKind() retry.Kind { return retry.KindAuth }

// IsAuth reports whether err is or wraps an *AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
