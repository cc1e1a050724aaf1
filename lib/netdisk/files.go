// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netdisk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ListPageSize is the number of entries requested per list call; the
// service caps it at 1000.
const ListPageSize = 1000

// AppRoot is the namespace every app-scoped path must live under.
const AppRoot = "/apps/"

type listResponse struct {
	List []Entry `json:"list"`
}

// ListPage returns up to limit entries of dir starting at start,
// ordered by name.
func (client *Client) ListPage(ctx context.Context, dir string, start, limit int) ([]Entry, error) {
	query := url.Values{}
	query.Set("method", "list")
	query.Set("dir", dir)
	query.Set("order", "name")
	query.Set("start", strconv.Itoa(start))
	query.Set("limit", strconv.Itoa(limit))

	var response listResponse
	err := client.do(ctx, call{
		operation: "list " + dir,
		method:    http.MethodGet,
		endpoint:  client.fileURL(),
		query:     query,
	}, &response)
	if err != nil {
		return nil, err
	}
	return response.List, nil
}

// List returns every entry of dir. A directory that does not exist
// lists as empty.
func (client *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	var entries []Entry
	for start := 0; ; start += ListPageSize {
		page, err := client.ListPage(ctx, dir, start, ListPageSize)
		if IsNotFound(err) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, page...)
		if len(page) < ListPageSize {
			return entries, nil
		}
	}
}

// Delete removes paths in a single synchronous batch call.
func (client *Client) Delete(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	encoded, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("netdisk: encoding delete list: %w", err)
	}

	form := url.Values{}
	form.Set("async", "0")
	form.Set("filelist", string(encoded))

	query := url.Values{}
	query.Set("method", "filemanager")
	query.Set("opera", "delete")

	return client.do(ctx, postForm(fmt.Sprintf("delete %d files", len(paths)),
		client.fileURL(), query, form), nil)
}

// ValidateRemoteDir checks that dir is an absolute, clean path inside
// an app namespace (/apps/<name>/...).
func ValidateRemoteDir(dir string) error {
	if !strings.HasPrefix(dir, "/") {
		return fmt.Errorf("remote directory %q must be absolute", dir)
	}
	cleaned := path.Clean(dir)
	if !strings.HasPrefix(cleaned, AppRoot) {
		return fmt.Errorf("remote directory %q must be under %s<app name>", dir, AppRoot)
	}
	return nil
}

// Join builds a remote path from a directory and a file name using
// forward slashes regardless of the local OS.
func Join(dir, name string) string {
	return path.Join(dir, name)
}
