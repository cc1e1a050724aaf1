// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netdisk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// rtypeOverwrite tells precreate and create to replace an existing
// file at the target path instead of failing or renaming.
const rtypeOverwrite = "3"

func encodeBlockList(blockList []string) string {
	if blockList == nil {
		blockList = []string{}
	}
	encoded, _ := json.Marshal(blockList)
	return string(encoded)
}

// Precreate opens an upload session for a file of the given size and
// block manifest.
func (client *Client) Precreate(ctx context.Context, request PrecreateRequest) (*PrecreateResponse, error) {
	form := url.Values{}
	form.Set("path", request.Path)
	form.Set("size", strconv.FormatInt(request.Size, 10))
	form.Set("isdir", "0")
	form.Set("autoinit", "1")
	form.Set("rtype", rtypeOverwrite)
	form.Set("block_list", encodeBlockList(request.BlockList))

	var response PrecreateResponse
	err := client.do(ctx, postForm("precreate", client.fileURL(),
		url.Values{"method": {"precreate"}}, form), &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// UploadBlock sends one block to the session's temporary storage.
// Sending the same partseq again replaces the stored block.
func (client *Client) UploadBlock(ctx context.Context, request UploadBlockRequest) (*UploadBlockResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "block")
	if err != nil {
		return nil, fmt.Errorf("netdisk: building block %d body: %w", request.PartSeq, err)
	}
	if _, err := part.Write(request.Data); err != nil {
		return nil, fmt.Errorf("netdisk: building block %d body: %w", request.PartSeq, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("netdisk: building block %d body: %w", request.PartSeq, err)
	}

	query := url.Values{}
	query.Set("method", "upload")
	query.Set("type", "tmpfile")
	query.Set("path", request.Path)
	query.Set("uploadid", request.UploadID)
	query.Set("partseq", strconv.Itoa(request.PartSeq))

	var response UploadBlockResponse
	err = client.do(ctx, call{
		operation:   fmt.Sprintf("upload block %d", request.PartSeq),
		method:      http.MethodPost,
		endpoint:    client.uploadURL + "/rest/2.0/pcs/superfile2",
		query:       query,
		body:        &body,
		contentType: writer.FormDataContentType(),
		timeout:     client.uploadTimeout,
	}, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Create merges the session's blocks, in BlockList order, into the
// final file.
func (client *Client) Create(ctx context.Context, request CreateRequest) (*CreateResponse, error) {
	form := url.Values{}
	form.Set("path", request.Path)
	form.Set("size", strconv.FormatInt(request.Size, 10))
	form.Set("isdir", "0")
	form.Set("rtype", rtypeOverwrite)
	form.Set("uploadid", request.UploadID)
	form.Set("block_list", encodeBlockList(request.BlockList))

	var response CreateResponse
	err := client.do(ctx, postForm("create", client.fileURL(),
		url.Values{"method": {"create"}}, form), &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}
