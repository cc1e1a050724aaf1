// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential obtains OAuth access tokens for the netdisk API.
//
// A Source keeps the current token in a JSON file:
//
//	{"access_token": "...", "refresh_token": "...",
//	 "expires_in": 2592000, "expires_at": 1735689600}
//
// expires_at is Unix seconds, set 300 seconds before the service's
// stated expiry so a token is never used in its final minutes. On each
// AccessToken call the Source returns the stored token while it is
// valid, otherwise exchanges the refresh token, otherwise (when
// interactive) walks the user through the authorization-code flow on
// the terminal. Every new token is written back to the file
// atomically with mode 0600.
//
// All failures are *AuthError, which the retry policy treats as fatal.
package credential
