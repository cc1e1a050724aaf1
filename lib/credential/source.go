// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/bureau-foundation/panbackup/lib/clock"
)

// OAuth endpoints and parameters of the netdisk authorization server.
const (
	DefaultAuthURL  = "https://openapi.baidu.com/oauth/2.0/authorize"
	DefaultTokenURL = "https://openapi.baidu.com/oauth/2.0/token"

	// RedirectOOB makes the authorization server display the code
	// instead of redirecting, so it can be pasted into the terminal.
	RedirectOOB = "oob"

	// Scope is sent verbatim; the server expects a comma-separated
	// list.
	Scope = "basic,netdisk"
)

// Environment variables consulted when Config leaves the app
// credentials empty.
const (
	EnvAppKey    = "BAIDU_APP_KEY"
	EnvSecretKey = "BAIDU_SECRET_KEY"
)

// Config holds configuration for creating a Source.
type Config struct {
	// AppKey and SecretKey are the OAuth client credentials. Empty
	// values fall back to BAIDU_APP_KEY and BAIDU_SECRET_KEY.
	AppKey    string
	SecretKey string

	// TokenFile is where the token is persisted. Required.
	TokenFile string

	// Interactive allows the authorization-code flow when no stored
	// or refreshed token is available.
	Interactive bool

	// AuthURL and TokenURL override the authorization server
	// endpoints.
	AuthURL  string
	TokenURL string

	// Prompter asks the user for an authorization code. Defaults to
	// a TerminalPrompter on stdin/stderr.
	Prompter Prompter

	// HTTPClient is used for token requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock decides token validity. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Source produces access tokens, refreshing and persisting them as
// needed. It is safe for concurrent use; concurrent callers share one
// refresh.
type Source struct {
	oauth       *oauth2.Config
	tokenFile   string
	interactive bool
	prompter    Prompter
	httpClient  *http.Client
	clock       clock.Clock
	logger      *slog.Logger

	mu      sync.Mutex
	current *Token
	loaded  bool
}

// NewSource creates a Source. It fails with *AuthError when the app
// credentials are missing from both Config and the environment.
func NewSource(config Config) (*Source, error) {
	appKey := config.AppKey
	if appKey == "" {
		appKey = os.Getenv(EnvAppKey)
	}
	secretKey := config.SecretKey
	if secretKey == "" {
		secretKey = os.Getenv(EnvSecretKey)
	}
	if appKey == "" || secretKey == "" {
		return nil, &AuthError{
			Op:  "configure",
			Err: fmt.Errorf("app key and secret key are required (set credential.app_key/secret_key or %s/%s)", EnvAppKey, EnvSecretKey),
		}
	}
	if config.TokenFile == "" {
		return nil, &AuthError{Op: "configure", Err: errors.New("token file path is required")}
	}

	authURL := config.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompter := config.Prompter
	if prompter == nil {
		prompter = NewTerminalPrompter()
	}

	return &Source{
		oauth: &oauth2.Config{
			ClientID:     appKey,
			ClientSecret: secretKey,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: RedirectOOB,
			Scopes:      []string{Scope},
		},
		tokenFile:   config.TokenFile,
		interactive: config.Interactive,
		prompter:    prompter,
		httpClient:  httpClient,
		clock:       clk,
		logger:      logger,
	}, nil
}

// AccessToken returns a valid access token: the stored one, a
// refreshed one, or (when interactive) a newly authorized one.
func (s *Source) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		stored, err := LoadToken(s.tokenFile)
		if errors.Is(err, ErrMalformedToken) {
			s.logger.Warn("ignoring unreadable token file", "path", s.tokenFile, "error", err)
			stored, err = nil, nil
		}
		if err != nil {
			return "", &AuthError{Op: "load token", Err: err}
		}
		s.current = stored
		s.loaded = true
	}

	if s.current.Valid(s.clock.Now()) {
		return s.current.AccessToken, nil
	}

	if s.current != nil && s.current.RefreshToken != "" {
		refreshed, err := s.refresh(ctx, s.current.RefreshToken)
		if err == nil {
			return refreshed.AccessToken, nil
		}
		if !s.interactive {
			return "", err
		}
		s.logger.Warn("token refresh failed, falling back to authorization", "error", err)
	}

	if !s.interactive {
		return "", &AuthError{
			Op:  "obtain token",
			Err: fmt.Errorf("no valid token in %s and interactive authorization is disabled (run the auth command)", s.tokenFile),
		}
	}
	authorized, err := s.authorizeLocked(ctx)
	if err != nil {
		return "", err
	}
	return authorized.AccessToken, nil
}

// Authorize runs the authorization-code flow regardless of the stored
// token and persists the result.
func (s *Source) Authorize(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorizeLocked(ctx)
}

func (s *Source) authorizeLocked(ctx context.Context) (*Token, error) {
	authURL := s.oauth.AuthCodeURL("", oauth2.SetAuthURLParam("display", "popup"))
	code, err := s.prompter.ReadCode(ctx, authURL)
	if err != nil {
		return nil, &AuthError{Op: "authorize", Err: err}
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &AuthError{Op: "authorize", Err: errors.New("empty authorization code")}
	}

	issued, err := s.oauth.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, &AuthError{Op: "exchange code", Err: describeOAuthError(err)}
	}
	token, err := s.store(issued)
	if err != nil {
		return nil, err
	}
	s.logger.Info("authorization complete", "token_file", s.tokenFile, "expires_at", token.Expiry())
	return token, nil
}

func (s *Source) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	issued, err := s.oauth.TokenSource(s.oauthContext(ctx), expired).Token()
	if err != nil {
		return nil, &AuthError{Op: "refresh token", Err: describeOAuthError(err)}
	}
	token, err := s.store(issued)
	if err != nil {
		return nil, err
	}
	s.logger.Info("access token refreshed", "expires_at", token.Expiry())
	return token, nil
}

// store converts an issued token to the persisted form, writes it and
// makes it current. The refresh token is carried forward when the
// server omits a new one.
func (s *Source) store(issued *oauth2.Token) (*Token, error) {
	if issued.AccessToken == "" {
		return nil, &AuthError{Op: "store token", Err: errors.New("authorization server returned no access token")}
	}
	expiresIn := tokenExpiresIn(issued)
	token := &Token{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresIn:    expiresIn,
		ExpiresAt:    s.clock.Now().Unix() + expiresIn - int64(ExpirySkew/time.Second),
	}
	if token.RefreshToken == "" && s.current != nil {
		token.RefreshToken = s.current.RefreshToken
	}
	if err := SaveToken(s.tokenFile, token); err != nil {
		return nil, &AuthError{Op: "store token", Err: err}
	}
	s.current = token
	s.loaded = true
	return token, nil
}

func (s *Source) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// tokenExpiresIn reads expires_in from the token response.
func tokenExpiresIn(token *oauth2.Token) int64 {
	if token.ExpiresIn > 0 {
		return token.ExpiresIn
	}
	switch value := token.Extra("expires_in").(type) {
	case float64:
		return int64(value)
	case json.Number:
		parsed, _ := value.Int64()
		return parsed
	case string:
		parsed, _ := strconv.ParseInt(value, 10, 64)
		return parsed
	}
	return 0
}

// describeOAuthError surfaces the server's error code and description
// from an oauth2.RetrieveError.
func describeOAuthError(err error) error {
	var retrieve *oauth2.RetrieveError
	if !errors.As(err, &retrieve) {
		return err
	}
	if retrieve.ErrorCode != "" {
		return fmt.Errorf("%s: %s (HTTP %d)", retrieve.ErrorCode, retrieve.ErrorDescription, retrieve.Response.StatusCode)
	}
	return err
}
