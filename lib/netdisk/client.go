// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netdisk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/panbackup/lib/netutil"
)

// Default endpoints for the xpan API and the PCS upload host.
const (
	DefaultBaseURL   = "https://pan.baidu.com"
	DefaultUploadURL = "https://d.pcs.baidu.com"
)

// Default per-request timeouts. Block uploads get longer because they
// carry up to a full chunk of data.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultUploadTimeout  = 300 * time.Second
)

// userAgent is required by several xpan endpoints, which reject
// requests from unrecognized agents.
const userAgent = "pan.baidu.com"

// TokenSource yields a valid OAuth access token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// AccessToken returns the token.
func (token StaticToken) AccessToken(context.Context) (string, error) {
	return string(token), nil
}

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the xpan API root. Defaults to DefaultBaseURL. Must
	// use HTTPS.
	BaseURL string

	// UploadURL is the PCS host that accepts block data. Defaults to
	// DefaultUploadURL. Must use HTTPS.
	UploadURL string

	// Tokens supplies the access token. Required.
	Tokens TokenSource

	// HTTPClient is used for all requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// RequestTimeout bounds each metadata request. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// UploadTimeout bounds each block upload. Defaults to
	// DefaultUploadTimeout.
	UploadTimeout time.Duration

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client calls the xpan API. It is safe for concurrent use.
type Client struct {
	baseURL        string
	uploadURL      string
	tokens         TokenSource
	httpClient     *http.Client
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	logger         *slog.Logger
}

// NewClient creates a Client from config. Returns an error for a
// missing token source or a non-HTTPS endpoint.
func NewClient(config Config) (*Client, error) {
	if config.Tokens == nil {
		return nil, fmt.Errorf("netdisk: Tokens is required")
	}

	baseURL, err := normalizeEndpoint(config.BaseURL, DefaultBaseURL)
	if err != nil {
		return nil, err
	}
	uploadURL, err := normalizeEndpoint(config.UploadURL, DefaultUploadURL)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	uploadTimeout := config.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:        baseURL,
		uploadURL:      uploadURL,
		tokens:         config.Tokens,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		uploadTimeout:  uploadTimeout,
		logger:         logger,
	}, nil
}

func normalizeEndpoint(endpoint, fallback string) (string, error) {
	if endpoint == "" {
		endpoint = fallback
	}
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasPrefix(endpoint, "https://") {
		return "", fmt.Errorf("netdisk: API client requires HTTPS (got %q)", endpoint)
	}
	return endpoint, nil
}

// call is one API request: the operation name used in errors, the
// endpoint, query parameters (method, opera, ...) and an optional
// body.
type call struct {
	operation   string
	method      string
	endpoint    string
	query       url.Values
	body        io.Reader
	contentType string
	timeout     time.Duration
}

// status is the error envelope shared by xpan and PCS responses. xpan
// uses errno/errmsg; PCS uses error_code/error_msg.
type status struct {
	Errno     int    `json:"errno"`
	ErrMsg    string `json:"errmsg"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	RequestID any    `json:"request_id"`
}

func (s status) code() int {
	if s.Errno != 0 {
		return s.Errno
	}
	return s.ErrorCode
}

func (s status) message() string {
	if s.ErrMsg != "" {
		return s.ErrMsg
	}
	return s.ErrorMsg
}

// do executes c and decodes a successful JSON body into result (which
// may be nil). Non-2xx statuses and non-zero error codes are returned
// as *APIError.
func (client *Client) do(ctx context.Context, c call, result any) error {
	token, err := client.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("netdisk: %s: access token: %w", c.operation, err)
	}

	query := c.query
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", token)

	timeout := c.timeout
	if timeout <= 0 {
		timeout = client.requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, c.method, c.endpoint+"?"+query.Encode(), c.body)
	if err != nil {
		return fmt.Errorf("netdisk: %s: creating request: %w", c.operation, redactURL(err, c.endpoint))
	}
	request.Header.Set("User-Agent", userAgent)
	if c.contentType != "" {
		request.Header.Set("Content-Type", c.contentType)
	}

	started := time.Now()
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("netdisk: %s: %w", c.operation, redactURL(err, c.endpoint))
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("netdisk: %s: reading response body: %w", c.operation, err)
	}

	client.logger.Debug("netdisk request",
		"operation", c.operation,
		"status", response.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(started),
	)

	var envelope status
	decodeErr := json.Unmarshal(body, &envelope)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return newAPIError(c.operation, response.StatusCode, envelope, body)
	}
	if decodeErr != nil {
		return &APIError{
			Operation:  c.operation,
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("decoding response: %v", decodeErr),
			Body:       netutil.ErrorSnippet(body),
		}
	}
	if envelope.code() != 0 {
		return newAPIError(c.operation, response.StatusCode, envelope, body)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return &APIError{
				Operation:  c.operation,
				StatusCode: response.StatusCode,
				Message:    fmt.Sprintf("decoding response: %v", err),
				Body:       netutil.ErrorSnippet(body),
			}
		}
	}
	return nil
}

// redactURL replaces the URL inside a *url.Error with endpoint, which
// carries no query. The query holds the access token.
func redactURL(err error, endpoint string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = endpoint
	}
	return err
}

// fileURL is the xpan file management endpoint.
func (client *Client) fileURL() string {
	return client.baseURL + "/rest/2.0/xpan/file"
}

// postForm builds a call carrying form as a urlencoded body.
func postForm(operation, endpoint string, query url.Values, form url.Values) call {
	return call{
		operation:   operation,
		method:      http.MethodPost,
		endpoint:    endpoint,
		query:       query,
		body:        bytes.NewReader([]byte(form.Encode())),
		contentType: "application/x-www-form-urlencoded",
	}
}
