// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netdisk

// PrecreateRequest declares an upload before any block is sent.
type PrecreateRequest struct {
	// Path is the absolute remote path of the final file.
	Path string

	// Size is the total file size in bytes.
	Size int64

	// BlockList is the ordered MD5 manifest of the file.
	BlockList []string
}

// PrecreateResponse is the service's upload plan.
type PrecreateResponse struct {
	// UploadID identifies the upload session. Empty means the
	// service did not open one.
	UploadID string `json:"uploadid"`

	// ReturnType is 1 when blocks must be uploaded and 2 when the
	// service already holds identical content (rapid upload).
	ReturnType int `json:"return_type"`

	// BlockList lists the block indexes the service still needs.
	BlockList []int `json:"block_list"`
}

// UploadBlockRequest carries one block to temporary storage.
type UploadBlockRequest struct {
	Path     string
	UploadID string
	PartSeq  int
	Data     []byte
}

// UploadBlockResponse acknowledges a stored block.
type UploadBlockResponse struct {
	// MD5 is the service's digest of the received bytes.
	MD5 string `json:"md5"`
}

// CreateRequest merges uploaded blocks into the final file.
type CreateRequest struct {
	Path      string
	Size      int64
	UploadID  string
	BlockList []string
}

// CreateResponse describes the assembled file. FsID is zero when the
// merge did not complete.
type CreateResponse struct {
	FsID           uint64 `json:"fs_id"`
	Path           string `json:"path"`
	ServerFilename string `json:"server_filename"`
	Size           int64  `json:"size"`
	MD5            string `json:"md5"`
	Ctime          int64  `json:"ctime"`
	Mtime          int64  `json:"mtime"`
	IsDir          int    `json:"isdir"`
}

// Entry is one item of a directory listing.
type Entry struct {
	FsID           uint64 `json:"fs_id"`
	Path           string `json:"path"`
	ServerFilename string `json:"server_filename"`
	Size           int64  `json:"size"`
	IsDir          int    `json:"isdir"`
	ServerMtime    int64  `json:"server_mtime"`
	MD5            string `json:"md5"`
}

// Dir reports whether the entry is a directory.
func (e Entry) Dir() bool { return e.IsDir == 1 }

// Name returns the entry's base name, falling back to the last path
// element when the service omitted server_filename.
func (e Entry) Name() string {
	if e.ServerFilename != "" {
		return e.ServerFilename
	}
	for i := len(e.Path) - 1; i >= 0; i-- {
		if e.Path[i] == '/' {
			return e.Path[i+1:]
		}
	}
	return e.Path
}
